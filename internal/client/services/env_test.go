package services_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/hammerspace/internal/client/client"
	"github.com/dmitrijs2005/hammerspace/internal/client/keys"
	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/items"
	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/hammerspace/internal/client/services"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/cryptox"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
	"github.com/dmitrijs2005/hammerspace/internal/testutil"
	"github.com/dmitrijs2005/hammerspace/internal/testutil/fakeremote"
	"github.com/stretchr/testify/require"
)

const password = "secret"

// env is one logged-in user wired the way the CLI wires it.
type env struct {
	userID   string
	db       *sql.DB
	srv      *fakeremote.Server
	remote   *client.HTTPClient
	store    *items.SQLiteRepository
	vault    *vault.Vault
	identity *vault.Identity
	resolver *keys.Resolver
	cacheDir string

	sync  services.SyncService
	mat   services.Materializer
	items services.ItemService
}

func newEnv(t *testing.T, userID string) *env {
	t.Helper()
	srv := fakeremote.New()
	t.Cleanup(srv.Close)
	return newEnvOn(t, srv, userID)
}

func newEnvOn(t *testing.T, srv *fakeremote.Server, userID string) *env {
	t.Helper()
	ctx := context.Background()

	db := testutil.NewDB(t)
	v := vault.New(metadata.NewSQLiteRepository(db, "vault"), []byte("passphrase"))
	id, rcpt, err := v.GenerateIdentity(ctx)
	require.NoError(t, err)
	srv.AddUser(userID, password, rcpt)

	remote := client.NewHTTPClient(srv.URL(), 5*time.Second)
	t.Cleanup(func() { _ = remote.Close() })
	_, err = remote.Login(ctx, userID, password)
	require.NoError(t, err)

	store := items.NewSQLiteRepository(db, userID)
	log := logging.Nop()
	resolver := keys.NewResolver(store, remote, v, userID, keys.Config{}, log)
	cacheDir := t.TempDir()

	return &env{
		userID:   userID,
		db:       db,
		srv:      srv,
		remote:   remote,
		store:    store,
		vault:    v,
		identity: id,
		resolver: resolver,
		cacheDir: cacheDir,
		sync:     services.NewSyncService(db, remote, resolver, log),
		mat:      services.NewMaterializer(store, remote, resolver, cacheDir, userID, log),
		items: services.NewItemService(store, remote, resolver, resolver,
			services.ItemServiceConfig{UserID: userID}, log),
	}
}

// ownKey is the implicit key protecting items this user owns.
func (e *env) ownKey(t *testing.T) []byte {
	t.Helper()
	k, err := e.vault.DeriveOwnerKey(e.identity, e.userID)
	require.NoError(t, err)
	return k
}

func seal(t *testing.T, key []byte, plaintext, itemID string) []byte {
	t.Helper()
	ct, err := cryptox.Seal(key, []byte(plaintext), []byte(itemID))
	require.NoError(t, err)
	return ct
}

// seedHello puts folder f1 with the 12 byte text file x1 into the user's
// remote tree.
func (e *env) seedHello(t *testing.T) {
	t.Helper()
	e.srv.Put(e.userID,
		client.Node{ID: "f1", ParentDir: "root", Name: "docs", Type: client.DirectoryType, UserID: e.userID},
		client.Node{ID: "x1", ParentDir: "f1", Name: "hello.txt", Type: "text/plain", FileSize: 12, UserID: e.userID},
	)
	e.srv.PutBlob("x1", seal(t, e.ownKey(t), "hello world!", "x1"))
}
