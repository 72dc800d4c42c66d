// Package fakeremote is an in-process stand-in for the storage service's
// HTTP API, used by client and service tests. It keeps every user's tree,
// blob and wrapped folder key in memory and counts calls per endpoint.
package fakeremote

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/hammerspace/internal/client/client"
	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/cryptox"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	MsgFileNotFound  = "File not found"
	MsgDirNotFound   = "Directory doesn't exist"
	MsgProcessing    = "File is being processed, try again later"
	MsgInvalidToken  = "Invalid authToken"
	MsgInvalidCreds  = "Invalid Credentials"
	MsgNoCredentials = "Authentication Missing"
	MsgUserTaken     = "UserID already taken"
	MsgBadSignup     = "Invalid signup"
)

var signingKey = []byte("fakeremote")

type failure struct {
	status int
	msg    string
}

// Server is a running fake. Create it with New and stop it with Close.
type Server struct {
	srv *httptest.Server

	mu         sync.Mutex
	passwords  map[string]string
	emails     map[string]string
	tokens     map[string]string
	recipients map[string]vault.Recipient
	trees      map[string][]client.Node
	blobs      map[string][]byte
	processing map[string]bool
	folderKeys map[string]map[string][]byte
	rawKeys    map[string][]byte
	uploads    map[string]string
	calls      map[string]int
	fail       map[string]failure
	down       bool
	tokenTTL   time.Duration
}

func New() *Server {
	s := &Server{
		passwords:  map[string]string{},
		emails:     map[string]string{},
		tokens:     map[string]string{},
		recipients: map[string]vault.Recipient{},
		trees:      map[string][]client.Node{},
		blobs:      map[string][]byte{},
		processing: map[string]bool{},
		folderKeys: map[string]map[string][]byte{},
		rawKeys:    map[string][]byte{},
		uploads:    map[string]string{},
		calls:      map[string]int{},
		fail:       map[string]failure{},
		tokenTTL:   time.Hour,
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/logout", s.handleLogout)
		r.Post("/sync", s.handleSync)
		r.Post("/getFile", s.handleGetFile)
		r.Post("/getEncryptedFolderKey", s.handleGetFolderKey)
		r.Post("/shareDir", s.handleShareDir)
		r.Post("/createDir", s.handleCreateDir)
		r.Post("/renameItem", s.handleRename)
		r.Post("/removeDir", s.handleRemove("dirID"))
		r.Post("/removeFile", s.handleRemove("fileID"))
	})
	r.Post("/uploadFile", s.handleUpload)
	return r
}

func (s *Server) URL() string { return s.srv.URL }

func (s *Server) Close() { s.srv.Close() }

// AddUser registers credentials and, when r is non-empty, the user's public
// recipient used to wrap shared folder keys.
func (s *Server) AddUser(userID, password string, r vault.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[userID] = password
	if r != "" {
		s.recipients[userID] = r
	}
}

// Recipient returns the public recipient registered for userID.
func (s *Server) Recipient(userID string) vault.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipients[userID]
}

// Email returns the address given at signup.
func (s *Server) Email(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emails[userID]
}

// Put adds or replaces nodes in a user's tree.
func (s *Server) Put(userID string, nodes ...client.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.putLocked(userID, n)
	}
}

func (s *Server) putLocked(userID string, n client.Node) {
	tree := s.trees[userID]
	for i := range tree {
		if tree[i].ID == n.ID {
			tree[i] = n
			return
		}
	}
	s.trees[userID] = append(tree, n)
}

// Remove deletes id from the user's tree. Blobs are kept so a stale client
// can still observe the tree change first.
func (s *Server) Remove(userID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(userID, id)
}

func (s *Server) removeLocked(userID, id string) {
	tree := s.trees[userID]
	out := tree[:0]
	for _, n := range tree {
		if n.ID != id {
			out = append(out, n)
		}
	}
	s.trees[userID] = out
}

// propagateLocked makes n visible to every other user who can see its
// parent, the way content added to a shared folder reaches its members.
func (s *Server) propagateLocked(userID string, n client.Node) {
	for u := range s.trees {
		if u == userID {
			continue
		}
		if _, visible := s.findLocked(u, n.ParentDir); visible {
			s.putLocked(u, n)
		}
	}
}

func (s *Server) Tree(userID string) []client.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]client.Node(nil), s.trees[userID]...)
}

func (s *Server) PutBlob(id string, ciphertext []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = append([]byte(nil), ciphertext...)
}

func (s *Server) DeleteBlob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
}

func (s *Server) Blob(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[id]
}

func (s *Server) SetProcessing(id string, processing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processing[id] = processing
}

// PutFolderKey stores the wrapped key returned to userID for folderID.
func (s *Server) PutFolderKey(folderID, userID string, wrapped []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.folderKeys[folderID] == nil {
		s.folderKeys[folderID] = map[string][]byte{}
	}
	s.folderKeys[folderID][userID] = wrapped
}

// FolderKey returns the raw key generated when folderID was first shared, so
// tests can produce ciphertext for shared content.
func (s *Server) FolderKey(folderID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawKeys[folderID]
}

// RevokeFolderKey drops userID's access to the folder key.
func (s *Server) RevokeFolderKey(folderID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.folderKeys[folderID], userID)
}

// FailNext makes the next call to path fail with the given status and
// service error message.
func (s *Server) FailNext(path string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[path] = failure{status: status, msg: msg}
}

// SetDown makes every endpoint answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// SetTokenTTL changes the lifetime of tokens issued by later logins.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		down := s.down
		f, failing := s.fail[r.URL.Path]
		delete(s.fail, r.URL.Path)
		s.mu.Unlock()

		if down {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		if failing {
			writeJSON(w, f.status, map[string]any{"success": false, "error": f.msg})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authRequest struct {
	UserID    string `json:"userID"`
	AuthToken string `json:"authToken"`

	FileID     string `json:"fileID"`
	FolderID   string `json:"folderID"`
	DirID      string `json:"dirID"`
	DirName    string `json:"dirName"`
	ParentDir  string `json:"parentDir"`
	WithUserID string `json:"withUserID"`
	ItemID     string `json:"itemID"`
	NewName    string `json:"newName"`
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req authRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
			return
		}
		if req.UserID == "" || req.AuthToken == "" {
			fail(w, MsgNoCredentials)
			return
		}
		if !s.validToken(req.UserID, req.AuthToken) {
			fail(w, MsgInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(withRequest(r.Context(), req)))
	})
}

func (s *Server) validToken(userID, token string) bool {
	s.mu.Lock()
	owner, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok || owner != userID {
		return false
	}
	_, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userID"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, MsgBadSignup)
		return
	}
	if req.UserID == "" || req.Password == "" || req.PublicKey == "" {
		fail(w, MsgBadSignup)
		return
	}

	s.mu.Lock()
	if _, taken := s.passwords[req.UserID]; taken {
		s.mu.Unlock()
		fail(w, MsgUserTaken)
		return
	}
	s.passwords[req.UserID] = req.Password
	s.emails[req.UserID] = req.Email
	s.recipients[req.UserID] = vault.Recipient(req.PublicKey)
	s.mu.Unlock()

	s.issueToken(w, req.UserID)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userID"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, MsgNoCredentials)
		return
	}

	s.mu.Lock()
	pw, ok := s.passwords[req.UserID]
	s.mu.Unlock()
	if !ok || pw != req.Password {
		fail(w, MsgInvalidCreds)
		return
	}

	s.issueToken(w, req.UserID)
}

func (s *Server) issueToken(w http.ResponseWriter, userID string) {
	s.mu.Lock()
	ttl := s.tokenTTL
	s.mu.Unlock()

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "userID": userID, "authToken": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r.Context())
	s.mu.Lock()
	delete(s.tokens, req.AuthToken)
	s.mu.Unlock()
	succeed(w)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r.Context())
	writeJSON(w, http.StatusOK, client.TreeResponse{Folders: s.Tree(req.UserID)})
}

func (s *Server) findLocked(userID, id string) (client.Node, bool) {
	for _, n := range s.trees[userID] {
		if n.ID == id {
			return n, true
		}
	}
	return client.Node{}, false
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r.Context())

	s.mu.Lock()
	_, visible := s.findLocked(req.UserID, req.FileID)
	blob, exists := s.blobs[req.FileID]
	processing := s.processing[req.FileID]
	s.mu.Unlock()

	switch {
	case !visible || !exists:
		fail(w, MsgFileNotFound)
	case processing:
		fail(w, MsgProcessing)
	default:
		w.Header().Set("Content-Type", "application/vnd.age")
		w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blob)
	}
}

func (s *Server) handleGetFolderKey(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r.Context())

	s.mu.Lock()
	wrapped, exists := s.folderKeys[req.FolderID][req.UserID]
	s.mu.Unlock()

	if !exists {
		fail(w, MsgFileNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(wrapped)
}

// handleShareDir generates the folder key on first share and wraps it for
// the owner and the new recipient. The folder subtree becomes visible
// to the recipient.
func (s *Server) handleShareDir(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	folder, found := s.findLocked(req.UserID, req.DirID)
	if !found || folder.Type != client.DirectoryType {
		fail(w, MsgDirNotFound)
		return
	}
	if _, known := s.passwords[req.WithUserID]; !known {
		fail(w, "User doesn't exist")
		return
	}

	holders := s.folderKeys[req.DirID]
	if holders == nil {
		holders = map[string][]byte{}
		s.folderKeys[req.DirID] = holders
	}
	key, exists := s.rawKeys[req.DirID]
	if !exists {
		key = cryptox.NewKey()
		s.rawKeys[req.DirID] = key
	}

	for _, u := range []string{req.UserID, req.WithUserID} {
		rcpt, known := s.recipients[u]
		if !known {
			continue
		}
		wrapped, err := vault.Wrap(key, rcpt)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
			return
		}
		holders[u] = wrapped
	}

	folder.Shared = true
	s.putLocked(req.UserID, folder)
	for _, n := range s.subtreeLocked(req.UserID, folder.ID) {
		s.putLocked(req.WithUserID, n)
	}
	succeed(w)
}

func (s *Server) subtreeLocked(userID, rootID string) []client.Node {
	out := []client.Node{}
	in := map[string]bool{}
	for _, n := range s.trees[userID] {
		if n.ID == rootID {
			out = append(out, n)
			in[n.ID] = true
		}
	}
	for grew := true; grew; {
		grew = false
		for _, n := range s.trees[userID] {
			if !in[n.ID] && in[n.ParentDir] {
				out = append(out, n)
				in[n.ID] = true
				grew = true
			}
		}
	}
	return out
}

func (s *Server) handleCreateDir(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ParentDir != models.RootID {
		if p, found := s.findLocked(req.UserID, req.ParentDir); !found || p.Type != client.DirectoryType {
			fail(w, MsgDirNotFound)
			return
		}
	}
	n := client.Node{
		ID: req.DirID, ParentDir: req.ParentDir, Name: req.DirName, Type: client.DirectoryType, UserID: req.UserID,
	}
	s.putLocked(req.UserID, n)
	s.propagateLocked(req.UserID, n)
	succeed(w)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	req := requestFrom(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()
	n, found := s.findLocked(req.UserID, req.ItemID)
	if !found {
		fail(w, MsgFileNotFound)
		return
	}
	n.Name = req.NewName
	s.putLocked(req.UserID, n)
	succeed(w)
}

func (s *Server) handleRemove(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := requestFrom(r.Context())
		id := req.FileID
		if field == "dirID" {
			id = req.DirID
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, found := s.findLocked(req.UserID, id); !found {
			fail(w, MsgFileNotFound)
			return
		}
		for _, n := range s.subtreeLocked(req.UserID, id) {
			s.removeLocked(req.UserID, n.ID)
			delete(s.blobs, n.ID)
		}
		succeed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	userID := r.FormValue("userID")
	if !s.validToken(userID, r.FormValue("authToken")) {
		fail(w, MsgInvalidToken)
		return
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	id := r.FormValue("fileID")
	if id == "" {
		id = uuid.NewString()
	}
	size, _ := strconv.ParseInt(r.FormValue("size"), 10, 64)
	parent := r.FormValue("parentDir")

	s.mu.Lock()
	defer s.mu.Unlock()
	if parent != models.RootID {
		if p, found := s.findLocked(userID, parent); !found || p.Type != client.DirectoryType {
			fail(w, MsgDirNotFound)
			return
		}
	}
	n := client.Node{
		ID: id, ParentDir: parent, Name: hdr.Filename, Type: r.FormValue("mimeType"), FileSize: size, UserID: userID,
	}
	s.putLocked(userID, n)
	s.propagateLocked(userID, n)
	s.blobs[id] = content
	s.uploads[id] = hdr.Header.Get("Content-Type")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "fileID": id})
}

// UploadContentType returns the part content type seen for an upload.
func (s *Server) UploadContentType(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads[id]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail mirrors the service: errors come back with a 200 status.
func fail(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": msg})
}

func succeed(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
