package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dmitrijs2005/hammerspace/internal/client/blobstore"
	"github.com/dmitrijs2005/hammerspace/internal/client/client"
	"github.com/dmitrijs2005/hammerspace/internal/client/config"
	"github.com/dmitrijs2005/hammerspace/internal/client/keys"
	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/items"
	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/hammerspace/internal/client/services"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/filex"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
)

const (
	vaultNamespace   = "vault"
	sessionNamespace = "session"
)

// App owns everything one command invocation needs. User-scoped services
// are bound once a session is known.
type App struct {
	config *config.Config
	log    logging.Logger
	closer io.Closer

	db      *sql.DB
	remote  client.Client
	content services.ContentFetcher
	keySrc  keys.KeyFetcher
	vault   *lazyVault
	session services.SessionService

	out    io.Writer
	reader *bufio.Reader

	userID   string
	store    *items.SQLiteRepository
	resolver *keys.Resolver
	syncer   services.SyncService
	mat      services.Materializer
	items    services.ItemService
}

// newRemote is replaced in tests.
var newRemote = func(c *config.Config) (client.Client, error) {
	switch c.Server.Transport {
	case config.TransportGRPC:
		return client.NewGRPCClient(c.Server.Endpoint)
	default:
		return client.NewHTTPClient(c.Server.Endpoint, c.Server.Timeout), nil
	}
}

func NewApp(ctx context.Context, c *config.Config, in io.Reader, out, errOut io.Writer) (*App, error) {
	log, closer, err := logging.New(c.Log.Logging(), errOut)
	if err != nil {
		return nil, err
	}

	a := &App{config: c, log: log, closer: closer, out: out, reader: bufio.NewReader(in)}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if _, err := filex.EnsureDir(filepath.Dir(a.config.Storage.DB)); err != nil {
		return err
	}
	db, err := client.InitDatabase(ctx, a.config.Storage.DB)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	a.db = db

	remote, err := newRemote(a.config)
	if err != nil {
		return fmt.Errorf("error creating remote client: %w", err)
	}
	a.remote = remote

	// With content.source s3 both ciphertext and wrapped folder keys come
	// straight from the bucket.
	a.content, a.keySrc = remote, remote
	if a.config.Content.Source == config.SourceS3 {
		s3, err := blobstore.NewS3Fetcher(ctx, a.config.Content.S3.Blobstore())
		if err != nil {
			return err
		}
		a.content, a.keySrc = s3, s3
	}

	a.vault = newLazyVault(metadata.NewSQLiteRepository(db, vaultNamespace), func() ([]byte, error) {
		return GetPassphrase(a.out)
	})

	// Logout clears items for whichever user held the session.
	a.session = services.NewSessionService(remote,
		metadata.NewSQLiteRepository(db, sessionNamespace),
		invalidatorFunc(a.invalidateKeys),
		items.NewSQLiteRepository(db, ""),
		a.config.Storage.CacheDir, a.log)
	return nil
}

type invalidatorFunc func()

func (f invalidatorFunc) InvalidateAll() { f() }

func (a *App) invalidateKeys() {
	if a.resolver != nil {
		a.resolver.InvalidateAll()
	}
	a.vault.forget()
}

// requireSession restores the saved session and binds the user's services.
func (a *App) requireSession(ctx context.Context) error {
	if a.userID != "" {
		return nil
	}
	sess, ok, err := a.session.Restore(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: run 'hammer login' first", common.ErrNoSession)
	}
	a.bind(sess.UserID)
	return nil
}

func (a *App) bind(userID string) {
	a.userID = userID
	a.store = items.NewSQLiteRepository(a.db, userID)
	a.resolver = keys.NewResolver(a.store, a.keySrc, a.vault, userID,
		keys.Config{MaxDepth: a.config.Keys.MaxDepth}, a.log)

	var invalidator services.KeyInvalidator
	if a.config.Keys.InvalidateOnSync {
		invalidator = a.resolver
	}
	a.syncer = services.NewSyncService(a.db, a.remote, invalidator, a.log)
	a.mat = services.NewMaterializer(a.store, a.content, a.resolver, a.config.Storage.CacheDir, userID, a.log)
	a.items = services.NewItemService(a.store, a.remote, a.resolver, a.resolver, services.ItemServiceConfig{
		UserID:         userID,
		MaxUploadBytes: a.config.Upload.MaxBytes,
		MaxDepth:       a.config.Keys.MaxDepth,
	}, a.log)
}

func (a *App) Close() error {
	var errs []error
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.closer != nil {
		errs = append(errs, a.closer.Close())
	}
	return errors.Join(errs...)
}
