package services

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/items"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/dbx"
	"github.com/dmitrijs2005/hammerspace/internal/filex"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
)

// TreeSource is the remote side of a sync.
type TreeSource interface {
	GetTree(ctx context.Context) ([]models.Item, error)
}

// KeyInvalidator drops cached folder keys.
type KeyInvalidator interface {
	InvalidateAll()
}

// SyncService reconciles the local tree with the remote snapshot.
//
// Sync returns *common.SyncError when the snapshot cannot be fetched; the
// local cache is left as it was. Syncs for the same user never interleave.
type SyncService interface {
	Sync(ctx context.Context, userID string) error
}

type syncService struct {
	db          dbx.TxBeginner
	remote      TreeSource
	invalidator KeyInvalidator
	log         logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSyncService builds a SyncService. invalidator may be nil, in which case
// cached keys survive a sync.
func NewSyncService(db dbx.TxBeginner, remote TreeSource, invalidator KeyInvalidator, log logging.Logger) SyncService {
	return &syncService{
		db:          db,
		remote:      remote,
		invalidator: invalidator,
		log:         log.With("component", "sync"),
		locks:       map[string]*sync.Mutex{},
	}
}

func (s *syncService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *syncService) Sync(ctx context.Context, userID string) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	snapshot, err := s.remote.GetTree(ctx)
	if err != nil {
		s.log.Warn(ctx, "tree fetch failed, keeping local cache", "user", userID, "error", err)
		return &common.SyncError{UserID: userID, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &common.SyncError{UserID: userID, Err: err}
	}

	removed, err := items.ReplaceForUser(ctx, s.db, userID, snapshot)
	if err != nil {
		return err
	}

	pruned := 0
	for _, it := range removed {
		if it.LocalPlaintextURI == "" {
			continue
		}
		if err := filex.RemoveIfExists(it.LocalPlaintextURI); err != nil {
			s.log.Warn(ctx, "failed to prune plaintext", "item", it.ID, "error", err)
			continue
		}
		pruned++
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateAll()
	}

	s.log.Info(ctx, "sync finished", "user", userID, "items", len(snapshot), "removed", len(removed), "pruned", pruned)
	return nil
}
