package keys

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/cryptox"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string][]byte{}
	}
	s.m[key] = value
	return nil
}

type fakeItems map[string]models.Item

func (f fakeItems) GetItem(_ context.Context, id string) (*models.Item, error) {
	it, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	wrapped map[string][]byte
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (f *fakeFetcher) GetEncryptedFolderKey(_ context.Context, folderID string) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	w, ok := f.wrapped[folderID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return w, nil
}

func (f *fakeFetcher) set(folderID string, wrapped []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wrapped == nil {
		f.wrapped = map[string][]byte{}
	}
	if wrapped == nil {
		delete(f.wrapped, folderID)
		return
	}
	f.wrapped[folderID] = wrapped
}

type fixture struct {
	vault   *vault.Vault
	id      *vault.Identity
	items   fakeItems
	fetcher *fakeFetcher
	r       *Resolver
}

func newFixture(t *testing.T, localUser string, cfg Config) *fixture {
	t.Helper()
	v := vault.New(&memStore{}, []byte("pass"))
	id, _, err := v.GenerateIdentity(context.Background())
	require.NoError(t, err)

	f := &fixture{vault: v, id: id, items: fakeItems{}, fetcher: &fakeFetcher{}}
	f.r = NewResolver(f.items, f.fetcher, v, localUser, cfg, logging.Nop())
	return f
}

func (f *fixture) add(items ...models.Item) {
	for _, it := range items {
		f.items[it.ID] = it
	}
}

// share records a fresh key for folderID wrapped for the fixture identity.
func (f *fixture) share(t *testing.T, folderID string) []byte {
	t.Helper()
	key := cryptox.NewKey()
	wrapped, err := vault.Wrap(key, f.id.Recipient())
	require.NoError(t, err)
	f.fetcher.set(folderID, wrapped)
	return key
}

func TestResolveKey_ImplicitForOwnedItems(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("d1", models.RootID, "docs", "alice", false))
	file := models.NewFile("x1", "d1", "a.txt", "alice", "text/plain", 3)

	key, err := f.r.ResolveKey(context.Background(), file)
	require.NoError(t, err)

	want, err := f.vault.DeriveOwnerKey(f.id, "alice")
	require.NoError(t, err)
	assert.Equal(t, want, key)
	assert.Zero(t, f.fetcher.calls.Load())
	assert.Empty(t, f.r.CachedFolders())
}

func TestResolveKey_ForeignItemWithoutShare(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	file := models.NewFile("x1", models.RootID, "a.txt", "bob", "text/plain", 3)

	_, err := f.r.ResolveKey(context.Background(), file)
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
	assert.Zero(t, f.fetcher.calls.Load())
}

func TestResolveKey_NearestShareWins(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(
		models.NewFolder("a", models.RootID, "outer", "bob", true),
		models.NewFolder("b", "a", "inner", "bob", true),
		models.NewFolder("c", "b", "plain", "bob", false),
	)
	keyA := f.share(t, "a")
	keyB := f.share(t, "b")
	ctx := context.Background()

	got, err := f.r.ResolveKey(ctx, models.NewFile("x1", "c", "deep.txt", "bob", "text/plain", 1))
	require.NoError(t, err)
	assert.Equal(t, keyB, got)

	got, err = f.r.ResolveKey(ctx, models.NewFile("x2", "a", "top.txt", "bob", "text/plain", 1))
	require.NoError(t, err)
	assert.Equal(t, keyA, got)

	// a shared folder resolves to its own key
	got, err = f.r.ResolveKey(ctx, f.items["b"])
	require.NoError(t, err)
	assert.Equal(t, keyB, got)

	assert.Equal(t, []string{"a", "b"}, f.r.CachedFolders())
}

func TestResolveKey_SharedSubtreeOfOwnerWinsOverImplicit(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("s", models.RootID, "team", "alice", true))
	ctx := context.Background()

	// no remote record: no fallback to the implicit key
	_, err := f.r.ResolveKey(ctx, models.NewFile("x1", "s", "a", "alice", "text/plain", 1))
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
	assert.NotErrorIs(t, err, common.ErrDecryptionFailed)

	key := f.share(t, "s")
	got, err := f.r.ResolveKey(ctx, models.NewFile("x1", "s", "a", "alice", "text/plain", 1))
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestResolveKey_CachesAndShareChanged(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("s", models.RootID, "team", "bob", true))
	key := f.share(t, "s")
	file := models.NewFile("x1", "s", "a", "bob", "text/plain", 1)
	ctx := context.Background()

	for range 3 {
		got, err := f.r.ResolveKey(ctx, file)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	}
	assert.EqualValues(t, 1, f.fetcher.calls.Load())

	f.r.ShareChanged("s")
	_, err := f.r.ResolveKey(ctx, file)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.fetcher.calls.Load())
}

func TestResolveKey_ReturnedKeyIsACopy(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("s", models.RootID, "team", "bob", true))
	key := f.share(t, "s")
	file := models.NewFile("x1", "s", "a", "bob", "text/plain", 1)

	got, err := f.r.ResolveKey(context.Background(), file)
	require.NoError(t, err)
	common.WipeByteArray(got)

	again, err := f.r.ResolveKey(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestResolveKey_UnwrapFailureIsNotCached(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("s", models.RootID, "team", "bob", true))
	file := models.NewFile("x1", "s", "a", "bob", "text/plain", 1)
	ctx := context.Background()

	other := vault.New(&memStore{}, []byte("x"))
	_, otherRcpt, err := other.GenerateIdentity(ctx)
	require.NoError(t, err)
	wrongWrap, err := vault.Wrap(cryptox.NewKey(), otherRcpt)
	require.NoError(t, err)
	f.fetcher.set("s", wrongWrap)

	_, err = f.r.ResolveKey(ctx, file)
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
	assert.Empty(t, f.r.CachedFolders())

	key := f.share(t, "s")
	got, err := f.r.ResolveKey(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.EqualValues(t, 2, f.fetcher.calls.Load())
}

func TestResolveKey_TransportErrorPassesThrough(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("s", models.RootID, "team", "bob", true))
	f.fetcher.err = common.ErrUnavailable

	_, err := f.r.ResolveKey(context.Background(), models.NewFile("x1", "s", "a", "bob", "text/plain", 1))
	require.ErrorIs(t, err, common.ErrTransport)
	assert.NotErrorIs(t, err, common.ErrKeyUnavailable)
	assert.True(t, common.Retriable(err))
}

func TestResolveKey_CycleFailsClosed(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(
		models.NewFolder("a", "b", "a", "alice", false),
		models.NewFolder("b", "a", "b", "alice", false),
	)

	_, err := f.r.ResolveKey(context.Background(), models.NewFile("x1", "a", "f", "alice", "text/plain", 1))
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
	assert.ErrorContains(t, err, "cycle")
}

func TestResolveKey_DepthGuard(t *testing.T) {
	f := newFixture(t, "alice", Config{MaxDepth: 3})
	parent := models.RootID
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		f.add(models.NewFolder(id, parent, id, "alice", false))
		parent = id
	}

	_, err := f.r.ResolveKey(context.Background(), models.NewFile("x1", "d5", "f", "alice", "text/plain", 1))
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
	assert.ErrorContains(t, err, "deeper than 3")

	_, err = f.r.ResolveKey(context.Background(), models.NewFile("x2", "d2", "f", "alice", "text/plain", 1))
	require.NoError(t, err)
}

func TestResolveKey_SharedRootWithInvisibleParent(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("s", "bobs-home", "team", "bob", true))
	key := f.share(t, "s")

	got, err := f.r.ResolveKey(context.Background(), models.NewFile("x1", "s", "a", "bob", "text/plain", 1))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = f.r.ResolveKey(context.Background(), models.NewFile("x2", "bobs-home", "b", "bob", "text/plain", 1))
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
}

func TestResolveKey_RevokedShare(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("s", models.RootID, "team", "bob", true))
	f.share(t, "s")
	file := models.NewFile("x1", "s", "a", "bob", "text/plain", 1)
	ctx := context.Background()

	_, err := f.r.ResolveKey(ctx, file)
	require.NoError(t, err)

	f.fetcher.set("s", nil)
	// still cached until the membership change is signalled
	_, err = f.r.ResolveKey(ctx, file)
	require.NoError(t, err)

	f.r.ShareChanged("s")
	_, err = f.r.ResolveKey(ctx, file)
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
}

func TestResolveKey_ConcurrentMissesShareOneFetch(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(models.NewFolder("s", models.RootID, "team", "bob", true))
	key := f.share(t, "s")
	f.fetcher.release = make(chan struct{})
	file := models.NewFile("x1", "s", "a", "bob", "text/plain", 1)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.r.ResolveKey(context.Background(), file)
			if err == nil && string(got) != string(key) {
				err = errors.New("wrong key")
			}
			errs <- err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.fetcher.calls.Load())
}

func TestInvalidateAll(t *testing.T) {
	f := newFixture(t, "alice", Config{})
	f.add(
		models.NewFolder("s1", models.RootID, "one", "bob", true),
		models.NewFolder("s2", models.RootID, "two", "bob", true),
	)
	f.share(t, "s1")
	f.share(t, "s2")
	ctx := context.Background()

	_, err := f.r.ResolveKey(ctx, f.items["s1"])
	require.NoError(t, err)
	_, err = f.r.ResolveKey(ctx, f.items["s2"])
	require.NoError(t, err)
	require.Len(t, f.r.CachedFolders(), 2)

	f.r.InvalidateAll()
	assert.Empty(t, f.r.CachedFolders())
}

func TestResolveKey_NoIdentity(t *testing.T) {
	v := vault.New(&memStore{}, []byte("pass"))
	r := NewResolver(fakeItems{}, &fakeFetcher{}, v, "alice", Config{}, logging.Nop())

	_, err := r.ResolveKey(context.Background(), models.NewFile("x1", models.RootID, "a", "alice", "text/plain", 1))
	require.ErrorIs(t, err, common.ErrKeyUnavailable)
	require.ErrorIs(t, err, vault.ErrNoIdentity)
}
