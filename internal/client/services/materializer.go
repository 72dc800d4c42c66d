package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/items"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/cryptox"
	"github.com/dmitrijs2005/hammerspace/internal/filex"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
	"golang.org/x/sync/singleflight"
)

// ContentFetcher streams the ciphertext of a file. Both remote clients and
// blobstore.S3Fetcher implement it.
type ContentFetcher interface {
	GetFile(ctx context.Context, itemID string) (io.ReadCloser, error)
}

// KeyResolver returns the folder key protecting an item.
type KeyResolver interface {
	ResolveKey(ctx context.Context, item models.Item) ([]byte, error)
}

// Materializer makes the plaintext of a file available locally and returns
// its path.
//
// Failures: common.ErrNotFound (the item is also dropped from the store),
// common.ErrProcessing, common.ErrKeyUnavailable, common.ErrDecryptionFailed
// and transport errors. Only a fully written file is ever recorded.
type Materializer interface {
	Materialize(ctx context.Context, item models.Item) (string, error)
}

// maxPrealloc caps how much of the declared size is reserved up front.
const maxPrealloc = 64 << 20

type materializer struct {
	store   items.Repository
	fetcher ContentFetcher
	keys    KeyResolver
	dir     string
	log     logging.Logger

	flight singleflight.Group
}

// NewMaterializer writes plaintext under UserCacheDir(cacheDir, userID).
func NewMaterializer(store items.Repository, fetcher ContentFetcher, keys KeyResolver, cacheDir, userID string, log logging.Logger) Materializer {
	return &materializer{
		store:   store,
		fetcher: fetcher,
		keys:    keys,
		dir:     UserCacheDir(cacheDir, userID),
		log:     log.With("component", "materializer"),
	}
}

func (m *materializer) Materialize(ctx context.Context, item models.Item) (string, error) {
	if !item.IsFile() {
		return "", fmt.Errorf("%w: %s is not a file", common.ErrInvalidItem, item.ID)
	}

	v, err, shared := m.flight.Do(item.ID, func() (any, error) {
		return m.materialize(ctx, item.ID)
	})
	if shared {
		m.log.Debug(ctx, "joined in-flight materialization", "item", item.ID)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *materializer) materialize(ctx context.Context, id string) (string, error) {
	cur, err := m.store.GetItem(ctx, id)
	if err != nil {
		return "", err
	}
	if cur == nil {
		return "", fmt.Errorf("%w: item %s is not in the local store", common.ErrNotFound, id)
	}
	it := *cur

	if path, ok := m.checkLocal(ctx, it); ok {
		return path, nil
	}
	if it.LocalPlaintextURI != "" {
		// The recorded file is gone. Unset the pointer before refetching.
		if err := m.store.SetPlaintextURI(ctx, it.ID, ""); err != nil {
			return "", err
		}
	}

	dir, err := filex.EnsureDir(m.dir)
	if err != nil {
		return "", err
	}
	final := filepath.Join(dir, it.ID+models.ExtensionFor(it.MimeType()))

	ciphertext, err := m.fetch(ctx, it, final)
	if err != nil {
		return "", err
	}

	key, err := m.keys.ResolveKey(ctx, it)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)

	plaintext, err := cryptox.Open(key, ciphertext, []byte(it.ID))
	if err != nil {
		m.log.Warn(ctx, "ciphertext failed authentication", "item", it.ID, "digest", digest(ciphertext))
		m.discard(ctx, final)
		return "", fmt.Errorf("item %s: %w", it.ID, err)
	}
	defer common.WipeByteArray(plaintext)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := filex.WriteFileAtomic(final, plaintext, 0o600); err != nil {
		return "", fmt.Errorf("failed to write plaintext for %s: %w", it.ID, err)
	}

	if err := ctx.Err(); err != nil {
		m.discard(ctx, final)
		return "", err
	}
	if err := m.store.SetPlaintextURI(ctx, it.ID, final); err != nil {
		m.discard(ctx, final)
		return "", err
	}

	if it.LocalPlaintextURI != "" && it.LocalPlaintextURI != final {
		m.discard(ctx, it.LocalPlaintextURI)
	}

	m.log.Info(ctx, "materialized", "item", it.ID, "bytes", len(plaintext))
	return final, nil
}

func (m *materializer) checkLocal(ctx context.Context, it models.Item) (string, bool) {
	if it.LocalPlaintextURI == "" {
		return "", false
	}
	ok, err := filex.Exists(it.LocalPlaintextURI)
	if err != nil {
		m.log.Warn(ctx, "cannot stat cached plaintext", "item", it.ID, "error", err)
		return "", false
	}
	if !ok {
		m.log.Debug(ctx, "cached plaintext is gone, refetching", "item", it.ID)
	}
	return it.LocalPlaintextURI, ok
}

// fetch downloads the whole ciphertext into memory. AES-GCM authenticates
// only at the end, so nothing is decrypted before the last byte is in.
func (m *materializer) fetch(ctx context.Context, it models.Item, final string) ([]byte, error) {
	body, err := m.fetcher.GetFile(ctx, it.ID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		if delErr := m.forget(ctx, it, final); delErr != nil {
			return nil, fmt.Errorf("%w: %w", err, delErr)
		}
		return nil, err
	case err != nil:
		return nil, err
	}
	defer body.Close()

	var buf bytes.Buffer
	if size := it.SizeBytes(); size > 0 && size <= maxPrealloc {
		buf.Grow(int(size + cryptox.Overhead))
	}
	n, err := buf.ReadFrom(body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: download of %s: %w", common.ErrUnavailable, it.ID, err)
	}

	if want := it.SizeBytes() + cryptox.Overhead; it.SizeBytes() > 0 && n != want {
		m.log.Warn(ctx, "ciphertext size differs from declared size", "item", it.ID, "got", n, "want", want)
	}

	ciphertext := buf.Bytes()
	m.log.Debug(ctx, "ciphertext fetched", "item", it.ID, "bytes", n, "digest", digest(ciphertext))
	return ciphertext, nil
}

// forget drops an item the remote no longer has, with any local artifact.
func (m *materializer) forget(ctx context.Context, it models.Item, final string) error {
	m.discard(ctx, it.LocalPlaintextURI)
	m.discard(ctx, final)
	if err := m.store.DeleteItem(ctx, it.ID); err != nil {
		m.log.Error(ctx, "failed to drop missing item", "item", it.ID, "error", err)
		return fmt.Errorf("failed to drop missing item %s: %w", it.ID, err)
	}
	m.log.Info(ctx, "item no longer exists remotely", "item", it.ID)
	return nil
}

func (m *materializer) discard(ctx context.Context, path string) {
	if err := filex.RemoveIfExists(path); err != nil {
		m.log.Warn(ctx, "failed to remove local file", "path", path, "error", err)
	}
}
