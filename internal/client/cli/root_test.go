package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/hammerspace/internal/client/client"
	"github.com/dmitrijs2005/hammerspace/internal/client/config"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/testutil/fakeremote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t       *testing.T
	srv     *fakeremote.Server
	dir     string
	cfgPath string
}

func newHarness(t *testing.T, extra string) *harness {
	t.Helper()
	srv := fakeremote.New()
	t.Cleanup(srv.Close)
	return newHarnessOn(t, srv, extra)
}

// newHarnessOn is a second device with its own database talking to srv.
func newHarnessOn(t *testing.T, srv *fakeremote.Server, extra string) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`server:
  endpoint: %s
storage:
  db: %s
  cache_dir: %s
log:
  level: error
%s`, srv.URL(), filepath.Join(dir, "data", "hammer.db"), filepath.Join(dir, "cache"), extra)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	t.Setenv(PassphraseEnv, "correct horse")
	return &harness{t: t, srv: srv, dir: dir, cfgPath: cfgPath}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--config", h.cfgPath))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run("", args...)
	require.NoError(h.t, err, out)
	return out
}

var recipientLine = regexp.MustCompile(`recipient: (age1\S+)`)

// register creates the local identity and a matching account on the server.
func (h *harness) register(userID, password string) vault.Recipient {
	h.t.Helper()
	stubReadPassword(h.t, password)
	out, err := h.run(userID+"@example.com\n", "register", userID)
	require.NoError(h.t, err, out)
	assert.Contains(h.t, out, "registered as "+userID)

	m := recipientLine.FindStringSubmatch(out)
	require.Len(h.t, m, 2, out)
	rcpt := vault.Recipient(m[1])
	require.Equal(h.t, rcpt, h.srv.Recipient(userID))
	return rcpt
}

func (h *harness) login(userID, password string) {
	h.t.Helper()
	stubReadPassword(h.t, password)
	out := h.mustRun("login", userID)
	assert.Contains(h.t, out, "logged in as "+userID)
}

func firstLine(s string) string {
	return strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
}

func TestCLI_EndToEnd(t *testing.T) {
	h := newHarness(t, "")
	h.register("U", "pw")
	h.login("U", "pw")

	dirID := firstLine(h.mustRun("mkdir", "docs"))
	require.NotEmpty(t, dirID)

	local := filepath.Join(h.dir, "hello.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello world!"), 0o600))
	fileID := firstLine(h.mustRun("upload", local, "--parent", dirID))
	require.NotEmpty(t, fileID)

	assert.Contains(t, h.mustRun("sync"), "synced 2 items")
	assert.Contains(t, h.mustRun("ls"), "docs")
	listing := h.mustRun("ls", dirID)
	assert.Contains(t, listing, "hello.txt")
	assert.Contains(t, listing, "text/plain")

	opened := firstLine(h.mustRun("open", fileID))
	parts := strings.Split(opened, "\t")
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[1])
	content, err := os.ReadFile(parts[0])
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(content))
	assert.True(t, strings.HasPrefix(parts[0], filepath.Join(h.dir, "cache")))

	h.mustRun("mv", fileID, "greeting.txt")
	assert.Contains(t, h.mustRun("ls", dirID), "greeting.txt")

	_, err = h.run("", "share", dirID, "nobody")
	require.Error(t, err)

	h.mustRun("rm", dirID)
	assert.NotContains(t, h.mustRun("ls"), "docs")
	_, err = os.Stat(parts[0])
	assert.True(t, os.IsNotExist(err))

	assert.Contains(t, h.mustRun("logout", "--clear-cache"), "logged out")
	_, err = h.run("", "sync")
	require.ErrorIs(t, err, common.ErrNoSession)
}

func TestCLI_RequiresLogin(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.run("", "ls")
	require.ErrorIs(t, err, common.ErrNoSession)
}

func TestCLI_BadPassword(t *testing.T) {
	h := newHarness(t, "")
	h.register("U", "pw")

	stubReadPassword(t, "wrong")
	_, err := h.run("", "login", "U")
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestCLI_LoginPromptsForUser(t *testing.T) {
	h := newHarness(t, "")
	h.register("U", "pw")

	stubReadPassword(t, "pw")
	out, err := h.run("U\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "User\n> ")
	assert.Contains(t, out, "logged in as U")
}

func TestCLI_Identity(t *testing.T) {
	h := newHarness(t, "")

	_, err := h.run("", "identity", "show")
	require.ErrorIs(t, err, vault.ErrNoIdentity)

	out := h.mustRun("identity", "init")
	m := recipientLine.FindStringSubmatch(out)
	require.Len(t, m, 2)
	phrase := strings.TrimSpace(out[strings.Index(out, "shown once):")+len("shown once):"):])
	assert.Len(t, strings.Fields(phrase), 24)

	assert.Contains(t, h.mustRun("identity", "show"), m[1])

	_, err = h.run("", "identity", "init")
	require.ErrorIs(t, err, vault.ErrIdentityExists)

	t.Setenv(PassphraseEnv, "a new passphrase")
	out, err = h.run(phrase+"\n", "identity", "restore")
	require.NoError(t, err)
	assert.Contains(t, out, "identity restored, recipient: "+m[1])

	_, err = h.run("not a phrase\n", "identity", "restore")
	require.ErrorIs(t, err, vault.ErrInvalidPhrase)
}

func TestCLI_Register(t *testing.T) {
	h := newHarness(t, "")

	stubReadPassword(t, "pw")
	out, err := h.run("U\nu@example.com\n", "register")
	require.NoError(t, err, out)
	assert.Contains(t, out, "User\n> ")
	assert.Contains(t, out, "Email\n> ")
	assert.Contains(t, out, "shown once):")
	assert.Contains(t, out, "registered as U")
	assert.Equal(t, "u@example.com", h.srv.Email("U"))

	m := recipientLine.FindStringSubmatch(out)
	require.Len(t, m, 2)
	assert.Equal(t, vault.Recipient(m[1]), h.srv.Recipient("U"))
	assert.Contains(t, h.mustRun("identity", "show"), m[1])

	// The session is kept, no separate login needed.
	assert.Contains(t, h.mustRun("sync"), "synced 0 items")

	stubReadPassword(t, "pw2")
	out, err = h.run("w@example.com\n", "register", "W")
	require.NoError(t, err, out)
	assert.Contains(t, out, "using existing identity, recipient: "+m[1])
	assert.NotContains(t, out, "shown once")
	assert.Equal(t, vault.Recipient(m[1]), h.srv.Recipient("W"))

	stubReadPassword(t, "pw3")
	_, err = h.run("again@example.com\n", "register", "U")
	require.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestCLI_S3ContentSource(t *testing.T) {
	srv := fakeremote.New()
	t.Cleanup(srv.Close)

	var (
		mu   sync.Mutex
		seen []string
	)
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()

		dir, id, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/blobs/"), "/")
		var body []byte
		switch dir {
		case "files":
			body = srv.Blob(id)
		case "folderkeys":
			if key := srv.FolderKey(id); key != nil {
				wrapped, err := vault.Wrap(key, srv.Recipient("U"), srv.Recipient("V"))
				if err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				body = wrapped
			}
		}
		if body == nil {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(bucket.Close)

	owner := newHarnessOn(t, srv, "")
	owner.register("U", "pw")
	member := newHarnessOn(t, srv, fmt.Sprintf(`content:
  source: s3
  s3:
    bucket: blobs
    region: us-east-1
    endpoint: %s
    access_key: test
    secret_key: test
`, bucket.URL))
	member.register("V", "pw")

	dirID := firstLine(owner.mustRun("mkdir", "team"))
	owner.mustRun("share", dirID, "V")
	local := filepath.Join(owner.dir, "plan.txt")
	require.NoError(t, os.WriteFile(local, []byte("ship it"), 0o600))
	fileID := firstLine(owner.mustRun("upload", local, "--parent", dirID))

	member.mustRun("sync")
	opened := firstLine(member.mustRun("open", fileID))
	path, _, _ := strings.Cut(opened, "\t")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ship it", string(content))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "/blobs/files/"+fileID)
	assert.Contains(t, seen, "/blobs/folderkeys/"+dirID)
	assert.Zero(t, srv.Calls("/getFile"))
	assert.Zero(t, srv.Calls("/getEncryptedFolderKey"))
}

func TestCLI_UploadLimit(t *testing.T) {
	h := newHarness(t, "upload:\n  max_bytes: 4\n")
	h.register("U", "pw")
	h.login("U", "pw")

	local := filepath.Join(h.dir, "big.bin")
	require.NoError(t, os.WriteFile(local, []byte("12345"), 0o600))

	_, err := h.run("", "upload", local)
	require.ErrorIs(t, err, common.ErrContentTooLarge)
	assert.Zero(t, h.srv.Calls("/uploadFile"))
}

func TestCLI_InvalidConfig(t *testing.T) {
	h := newHarness(t, "keys:\n  max_depth: -1\n")

	_, err := h.run("", "ls")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCLI_ShellKeepsState(t *testing.T) {
	h := newHarness(t, "")
	h.register("U", "pw")
	stubReadPassword(t, "pw")

	script := strings.Join([]string{
		"login U",
		"mkdir team",
		"sync",
		"bogus",
		"shell",
		"keys invalidate",
		"keys cached",
		"exit",
	}, "\n") + "\n"

	out, err := h.run(script, "shell")
	require.NoError(t, err, out)
	assert.Contains(t, out, "hammer> ")
	assert.Contains(t, out, "logged in as U")
	assert.Contains(t, out, "hammer (U)> ")
	assert.Contains(t, out, "synced 1 items")
	assert.Contains(t, out, "error: unknown command")
	assert.Contains(t, out, "already in a shell")
	assert.Contains(t, out, "Bye!")
}

func TestCLI_ShellEndsOnEOF(t *testing.T) {
	h := newHarness(t, "")

	out, err := h.run("", "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "hammer> ")
}

func TestNewRemote(t *testing.T) {
	var c config.Config
	c.LoadDefaults()

	r, err := newRemote(&c)
	require.NoError(t, err)
	assert.IsType(t, &client.HTTPClient{}, r)
	require.NoError(t, r.Close())

	c.Server.Transport = config.TransportGRPC
	c.Server.Endpoint = "127.0.0.1:1"
	r, err = newRemote(&c)
	require.NoError(t, err)
	assert.IsType(t, &client.GRPCClient{}, r)
	require.NoError(t, r.Close())
}
