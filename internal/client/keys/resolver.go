package keys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
	"golang.org/x/sync/singleflight"
)

const DefaultMaxDepth = 64

// ItemStore is the part of the metadata store the resolver reads.
type ItemStore interface {
	GetItem(ctx context.Context, id string) (*models.Item, error)
}

// KeyFetcher is the remote key-exchange endpoint.
type KeyFetcher interface {
	GetEncryptedFolderKey(ctx context.Context, folderID string) ([]byte, error)
}

// Vault is the part of vault.Vault the resolver uses.
type Vault interface {
	PrivateIdentity(ctx context.Context) (*vault.Identity, error)
	Unwrap(wrapped []byte, id *vault.Identity) ([]byte, error)
	DeriveOwnerKey(id *vault.Identity, ownerID string) ([]byte, error)
}

type Config struct {
	MaxDepth int
}

// Entry is a cached explicit folder key.
type Entry struct {
	FolderID string
	OwnerID  string
	Key      []byte
}

type Resolver struct {
	store     ItemStore
	fetcher   KeyFetcher
	vault     Vault
	localUser string
	maxDepth  int
	log       logging.Logger

	mu    sync.Mutex
	cache map[string]Entry
	gen   uint64

	flight singleflight.Group
}

func NewResolver(store ItemStore, fetcher KeyFetcher, v Vault, localUserID string, cfg Config, log logging.Logger) *Resolver {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	return &Resolver{
		store:     store,
		fetcher:   fetcher,
		vault:     v,
		localUser: localUserID,
		maxDepth:  cfg.MaxDepth,
		log:       log.With("component", "keys"),
		cache:     map[string]Entry{},
	}
}

// ResolveKey returns the key that encrypts item's content. The returned
// slice belongs to the caller.
func (r *Resolver) ResolveKey(ctx context.Context, item models.Item) ([]byte, error) {
	shared, err := r.nearestShared(ctx, item)
	if err != nil {
		return nil, err
	}
	if shared != nil {
		return r.explicitKey(ctx, *shared)
	}

	if item.OwnerID != r.localUser {
		return nil, fmt.Errorf("%w: item %s is owned by %s and not under a shared folder",
			common.ErrKeyUnavailable, item.ID, item.OwnerID)
	}
	return r.implicitKey(ctx, item.OwnerID)
}

// nearestShared walks from item towards the root and returns the first
// shared folder, or nil when the chain ends without one. The item itself
// counts when it is a shared folder.
func (r *Resolver) nearestShared(ctx context.Context, item models.Item) (*models.Item, error) {
	visited := make(map[string]struct{}, 8)
	cur := item

	for depth := 0; ; depth++ {
		if depth > r.maxDepth {
			return nil, fmt.Errorf("%w: parent chain of %s deeper than %d", common.ErrKeyUnavailable, item.ID, r.maxDepth)
		}
		if _, seen := visited[cur.ID]; seen {
			return nil, fmt.Errorf("%w: parent cycle at %s", common.ErrKeyUnavailable, cur.ID)
		}
		visited[cur.ID] = struct{}{}

		if cur.IsFolder() && cur.Shared {
			return &cur, nil
		}
		if cur.ParentID == models.RootID {
			return nil, nil
		}

		parent, err := r.store.GetItem(ctx, cur.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent of %s: %w", cur.ID, err)
		}
		if parent == nil {
			// The top of a subtree shared with us has a parent we cannot see.
			r.log.Debug(ctx, "parent chain ends outside local tree", "item", item.ID, "missing", cur.ParentID)
			return nil, nil
		}
		cur = *parent
	}
}

func (r *Resolver) implicitKey(ctx context.Context, ownerID string) ([]byte, error) {
	id, err := r.vault.PrivateIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrKeyUnavailable, err)
	}
	if id == nil {
		return nil, fmt.Errorf("%w: %w", common.ErrKeyUnavailable, vault.ErrNoIdentity)
	}
	return r.vault.DeriveOwnerKey(id, ownerID)
}

func (r *Resolver) explicitKey(ctx context.Context, folder models.Item) ([]byte, error) {
	r.mu.Lock()
	if e, ok := r.cache[folder.ID]; ok {
		r.mu.Unlock()
		r.log.Debug(ctx, "folder key cache hit", "folder", folder.ID)
		return bytes.Clone(e.Key), nil
	}
	r.mu.Unlock()

	v, err, _ := r.flight.Do(folder.ID, func() (any, error) {
		r.mu.Lock()
		gen := r.gen
		r.mu.Unlock()

		key, err := r.fetchAndUnwrap(ctx, folder)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		// Skip caching when an invalidation happened while fetching.
		if r.gen == gen {
			r.cache[folder.ID] = Entry{FolderID: folder.ID, OwnerID: folder.OwnerID, Key: bytes.Clone(key)}
		}
		r.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

func (r *Resolver) fetchAndUnwrap(ctx context.Context, folder models.Item) ([]byte, error) {
	r.log.Debug(ctx, "fetching folder key", "folder", folder.ID)

	wrapped, err := r.fetcher.GetEncryptedFolderKey(ctx, folder.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		return nil, fmt.Errorf("%w: no key record for folder %s", common.ErrKeyUnavailable, folder.ID)
	case err != nil:
		return nil, fmt.Errorf("failed to fetch key for folder %s: %w", folder.ID, err)
	}

	id, err := r.vault.PrivateIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrKeyUnavailable, err)
	}
	if id == nil {
		return nil, fmt.Errorf("%w: %w", common.ErrKeyUnavailable, vault.ErrNoIdentity)
	}

	key, err := r.vault.Unwrap(wrapped, id)
	if err != nil {
		r.log.Warn(ctx, "folder key unwrap failed", "folder", folder.ID, "error", err)
		return nil, fmt.Errorf("%w: folder %s: %w", common.ErrKeyUnavailable, folder.ID, err)
	}
	return key, nil
}

// ShareChanged drops the cached key of folderID so the next resolution
// fetches the current record.
func (r *Resolver) ShareChanged(folderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cache[folderID]; ok {
		common.WipeByteArray(e.Key)
		delete(r.cache, folderID)
	}
	r.gen++
	r.flight.Forget(folderID)
}

func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.cache {
		common.WipeByteArray(e.Key)
		r.flight.Forget(id)
	}
	r.cache = map[string]Entry{}
	r.gen++
}

// CachedFolders lists the folders whose keys are currently cached.
func (r *Resolver) CachedFolders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.cache))
	for id := range r.cache {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
