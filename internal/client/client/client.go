package client

import (
	"context"
	"io"
	"sync"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/common"
)

// Session identifies the logged-in user towards the remote service.
type Session struct {
	UserID    string
	AuthToken string
}

// Upload describes an already encrypted file to store remotely.
type Upload struct {
	ID         string
	ParentID   string
	Name       string
	MimeType   string
	SizeBytes  int64
	Ciphertext []byte
}

// Client is the remote storage service as seen by the sync core.
//
// Error contract: common.ErrAlreadyExists for a taken user ID,
// common.ErrUnauthorized for rejected or expired sessions,
// common.ErrNotFound and common.ErrProcessing for content and key lookups,
// errors wrapping common.ErrTransport for everything network related.
type Client interface {
	// Register creates the account and publishes the user's public recipient
	// so folder keys can be wrapped for them. It starts a session like Login.
	Register(ctx context.Context, userID, email, password string, r vault.Recipient) (Session, error)
	Login(ctx context.Context, userID, password string) (Session, error)
	Logout(ctx context.Context) error
	SetSession(s Session)
	Session() Session

	GetTree(ctx context.Context) ([]models.Item, error)
	GetFile(ctx context.Context, itemID string) (io.ReadCloser, error)
	GetEncryptedFolderKey(ctx context.Context, folderID string) ([]byte, error)

	ShareFolder(ctx context.Context, folderID string, recipients []string) error
	CreateFolder(ctx context.Context, id, parentID, name string) error
	RenameItem(ctx context.Context, id, newName string) error
	RemoveItem(ctx context.Context, item models.Item) error
	UploadFile(ctx context.Context, u Upload) error

	Close() error
}

// sessionHolder is embedded by both transports.
type sessionHolder struct {
	mu sync.RWMutex
	s  Session
}

func (h *sessionHolder) SetSession(s Session) {
	h.mu.Lock()
	h.s = s
	h.mu.Unlock()
}

func (h *sessionHolder) Session() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}

// authorized returns the current session, failing early when there is none
// or when its token is already known to be expired.
func (h *sessionHolder) authorized() (Session, error) {
	s := h.Session()
	if s.UserID == "" || s.AuthToken == "" {
		return Session{}, common.ErrNoSession
	}
	if TokenExpired(s.AuthToken) {
		return Session{}, common.ErrUnauthorized
	}
	return s, nil
}
