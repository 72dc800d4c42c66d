package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/hammerspace/internal/client/client"
	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/items"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/cryptox"
	"github.com/dmitrijs2005/hammerspace/internal/filex"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
	"github.com/google/uuid"
)

const DefaultMaxUploadBytes = 100 << 20

// ItemRemote is the mutating half of client.Client.
type ItemRemote interface {
	CreateFolder(ctx context.Context, id, parentID, name string) error
	RenameItem(ctx context.Context, id, newName string) error
	RemoveItem(ctx context.Context, item models.Item) error
	ShareFolder(ctx context.Context, folderID string, recipients []string) error
	UploadFile(ctx context.Context, u client.Upload) error
}

// ShareNotifier is told when a folder's membership changed.
type ShareNotifier interface {
	ShareChanged(folderID string)
}

// ItemService applies local mutations: the remote call goes first and the
// local store is updated only once it succeeded.
type ItemService interface {
	List(ctx context.Context, parentID string) ([]models.Item, error)
	Get(ctx context.Context, id string) (models.Item, error)
	CreateFolder(ctx context.Context, parentID, name string) (models.Item, error)
	Rename(ctx context.Context, id, newName string) error
	Remove(ctx context.Context, id string) error
	ShareFolder(ctx context.Context, folderID string, recipients []string) error
	Upload(ctx context.Context, parentID, name, mimeType string, content []byte) (models.Item, error)
}

type ItemServiceConfig struct {
	UserID         string
	MaxUploadBytes int64
	MaxDepth       int
}

type itemService struct {
	store  items.Repository
	remote ItemRemote
	keys   KeyResolver
	shares ShareNotifier
	cfg    ItemServiceConfig
	log    logging.Logger

	newID func() (string, error)
}

func NewItemService(store items.Repository, remote ItemRemote, keys KeyResolver, shares ShareNotifier, cfg ItemServiceConfig, log logging.Logger) ItemService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 64
	}
	return &itemService{
		store:  store,
		remote: remote,
		keys:   keys,
		shares: shares,
		cfg:    cfg,
		log:    log.With("component", "items"),
		newID:  newItemID,
	}
}

func newItemID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *itemService) List(ctx context.Context, parentID string) ([]models.Item, error) {
	if parentID == "" {
		parentID = models.RootID
	}
	return s.store.ListChildren(ctx, parentID)
}

func (s *itemService) Get(ctx context.Context, id string) (models.Item, error) {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return models.Item{}, err
	}
	if it == nil {
		return models.Item{}, fmt.Errorf("%w: item %s", common.ErrNotFound, id)
	}
	return *it, nil
}

func (s *itemService) checkParent(ctx context.Context, parentID string) error {
	if parentID == models.RootID {
		return nil
	}
	p, err := s.Get(ctx, parentID)
	if err != nil {
		return err
	}
	if !p.IsFolder() {
		return fmt.Errorf("%w: parent %s is not a folder", common.ErrInvalidItem, parentID)
	}
	return nil
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: bad name %q", common.ErrInvalidItem, name)
	}
	return nil
}

func (s *itemService) CreateFolder(ctx context.Context, parentID, name string) (models.Item, error) {
	if err := validName(name); err != nil {
		return models.Item{}, err
	}
	if err := s.checkParent(ctx, parentID); err != nil {
		return models.Item{}, err
	}

	id, err := s.newID()
	if err != nil {
		return models.Item{}, fmt.Errorf("failed to generate id: %w", err)
	}
	folder := models.NewFolder(id, parentID, name, s.cfg.UserID, false)

	if err := s.remote.CreateFolder(ctx, id, parentID, name); err != nil {
		return models.Item{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	if err := s.store.UpsertItems(ctx, []models.Item{folder}); err != nil {
		return models.Item{}, err
	}
	return folder, nil
}

func (s *itemService) Rename(ctx context.Context, id, newName string) error {
	if err := validName(newName); err != nil {
		return err
	}
	it, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.remote.RenameItem(ctx, id, newName); err != nil {
		return fmt.Errorf("rename %s: %w", id, err)
	}
	it.Name = newName
	return s.store.UpsertItems(ctx, []models.Item{it})
}

// Remove deletes the item remotely, then drops it and its local subtree
// together with any materialized plaintext.
func (s *itemService) Remove(ctx context.Context, id string) error {
	it, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.remote.RemoveItem(ctx, it); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}

	subtree, err := s.subtree(ctx, it)
	if err != nil {
		return err
	}
	for i := len(subtree) - 1; i >= 0; i-- {
		n := subtree[i]
		if err := s.store.DeleteItem(ctx, n.ID); err != nil {
			return err
		}
		if err := filex.RemoveIfExists(n.LocalPlaintextURI); err != nil {
			s.log.Warn(ctx, "failed to remove plaintext", "item", n.ID, "error", err)
		}
	}
	return nil
}

// subtree lists root and its descendants breadth first.
func (s *itemService) subtree(ctx context.Context, root models.Item) ([]models.Item, error) {
	out := []models.Item{root}
	seen := map[string]struct{}{root.ID: {}}
	level := []models.Item{root}

	for depth := 0; len(level) > 0; depth++ {
		if depth > s.cfg.MaxDepth {
			return nil, fmt.Errorf("%w: subtree of %s deeper than %d", common.ErrInvalidItem, root.ID, s.cfg.MaxDepth)
		}
		var next []models.Item
		for _, p := range level {
			if !p.IsFolder() {
				continue
			}
			children, err := s.store.ListChildren(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				if _, dup := seen[c.ID]; dup {
					continue
				}
				seen[c.ID] = struct{}{}
				out = append(out, c)
				next = append(next, c)
			}
		}
		level = next
	}
	return out, nil
}

func (s *itemService) ShareFolder(ctx context.Context, folderID string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients", common.ErrInvalidItem)
	}
	it, err := s.Get(ctx, folderID)
	if err != nil {
		return err
	}
	if !it.IsFolder() {
		return fmt.Errorf("%w: only folders can be shared", common.ErrInvalidItem)
	}

	if err := s.remote.ShareFolder(ctx, folderID, recipients); err != nil {
		return fmt.Errorf("share %s: %w", folderID, err)
	}
	if s.shares != nil {
		s.shares.ShareChanged(folderID)
	}

	if it.Shared {
		return nil
	}
	it.Shared = true
	return s.store.UpsertItems(ctx, []models.Item{it})
}

// Upload encrypts content under the key of its destination and stores it
// remotely. Oversized content is rejected before any network call.
func (s *itemService) Upload(ctx context.Context, parentID, name, mimeType string, content []byte) (models.Item, error) {
	if int64(len(content)) > s.cfg.MaxUploadBytes {
		return models.Item{}, fmt.Errorf("%w: %d bytes, limit is %d", common.ErrContentTooLarge, len(content), s.cfg.MaxUploadBytes)
	}
	if err := validName(name); err != nil {
		return models.Item{}, err
	}
	if err := s.checkParent(ctx, parentID); err != nil {
		return models.Item{}, err
	}
	if mimeType == "" {
		mimeType = models.DetectMimeType(name, content)
	}

	id, err := s.newID()
	if err != nil {
		return models.Item{}, fmt.Errorf("failed to generate id: %w", err)
	}
	file := models.NewFile(id, parentID, name, s.cfg.UserID, mimeType, int64(len(content)))
	if err := file.Validate(); err != nil {
		return models.Item{}, err
	}

	key, err := s.keys.ResolveKey(ctx, file)
	if err != nil {
		return models.Item{}, err
	}
	defer common.WipeByteArray(key)

	ciphertext, err := cryptox.Seal(key, content, []byte(id))
	if err != nil {
		return models.Item{}, err
	}

	err = s.remote.UploadFile(ctx, client.Upload{
		ID:         id,
		ParentID:   parentID,
		Name:       name,
		MimeType:   mimeType,
		SizeBytes:  int64(len(content)),
		Ciphertext: ciphertext,
	})
	if err != nil {
		return models.Item{}, fmt.Errorf("upload %q: %w", name, err)
	}

	if err := s.store.UpsertItems(ctx, []models.Item{file}); err != nil {
		return models.Item{}, err
	}
	s.log.Info(ctx, "uploaded", "item", id, "bytes", len(content), "digest", digest(ciphertext))
	return file, nil
}
