package services

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/hammerspace/internal/client/client"
	"github.com/dmitrijs2005/hammerspace/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/logging"
)

const (
	sessionUserKey  = "userID"
	sessionTokenKey = "authToken"
)

// SessionRemote is the session half of client.Client.
type SessionRemote interface {
	Register(ctx context.Context, userID, email, password string, r vault.Recipient) (client.Session, error)
	Login(ctx context.Context, userID, password string) (client.Session, error)
	Logout(ctx context.Context) error
	SetSession(s client.Session)
	Session() client.Session
}

// ItemsClearer wipes a user's cached tree.
type ItemsClearer interface {
	ClearForUser(ctx context.Context, userID string) error
}

// SessionService keeps the login session in the metadata store so later
// invocations can reuse it.
type SessionService interface {
	// Register creates the account, publishes r as the user's recipient and
	// keeps the resulting session.
	Register(ctx context.Context, userID, email, password string, r vault.Recipient) (client.Session, error)
	Login(ctx context.Context, userID, password string) (client.Session, error)
	// Restore loads a saved session into the remote client. It reports false
	// when nothing was saved.
	Restore(ctx context.Context) (client.Session, bool, error)
	// Logout ends the session remotely and locally. Cached keys are always
	// dropped; with clearCache the user's tree and plaintext go too.
	Logout(ctx context.Context, clearCache bool) error
}

type sessionService struct {
	remote   SessionRemote
	meta     metadata.Repository
	keys     KeyInvalidator
	items    ItemsClearer
	cacheDir string
	log      logging.Logger
}

// NewSessionService expects meta to be scoped to the session namespace.
func NewSessionService(remote SessionRemote, meta metadata.Repository, keys KeyInvalidator, items ItemsClearer, cacheDir string, log logging.Logger) SessionService {
	return &sessionService{
		remote:   remote,
		meta:     meta,
		keys:     keys,
		items:    items,
		cacheDir: cacheDir,
		log:      log.With("component", "session"),
	}
}

func (s *sessionService) Register(ctx context.Context, userID, email, password string, r vault.Recipient) (client.Session, error) {
	sess, err := s.remote.Register(ctx, userID, email, password, r)
	if err != nil {
		return client.Session{}, fmt.Errorf("registration error: %w", err)
	}
	if err := s.save(ctx, sess); err != nil {
		return client.Session{}, err
	}

	s.log.Info(ctx, "registered", "user", sess.UserID)
	return sess, nil
}

func (s *sessionService) Login(ctx context.Context, userID, password string) (client.Session, error) {
	sess, err := s.remote.Login(ctx, userID, password)
	if err != nil {
		return client.Session{}, fmt.Errorf("login error: %w", err)
	}
	if err := s.save(ctx, sess); err != nil {
		return client.Session{}, err
	}

	s.log.Info(ctx, "logged in", "user", sess.UserID)
	return sess, nil
}

func (s *sessionService) save(ctx context.Context, sess client.Session) error {
	if err := s.meta.Set(ctx, sessionUserKey, []byte(sess.UserID)); err != nil {
		return err
	}
	return s.meta.Set(ctx, sessionTokenKey, []byte(sess.AuthToken))
}

func (s *sessionService) Restore(ctx context.Context) (client.Session, bool, error) {
	user, err := s.meta.Get(ctx, sessionUserKey)
	if err != nil {
		return client.Session{}, false, err
	}
	token, err := s.meta.Get(ctx, sessionTokenKey)
	if err != nil {
		return client.Session{}, false, err
	}
	if len(user) == 0 || len(token) == 0 {
		return client.Session{}, false, nil
	}

	sess := client.Session{UserID: string(user), AuthToken: string(token)}
	s.remote.SetSession(sess)
	return sess, true, nil
}

func (s *sessionService) Logout(ctx context.Context, clearCache bool) error {
	sess := s.remote.Session()

	remoteErr := s.remote.Logout(ctx)
	if remoteErr != nil {
		s.log.Warn(ctx, "remote logout failed, clearing local session anyway", "error", remoteErr)
	}

	if s.keys != nil {
		s.keys.InvalidateAll()
	}
	if err := s.meta.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	if clearCache && sess.UserID != "" {
		if err := s.items.ClearForUser(ctx, sess.UserID); err != nil {
			return err
		}
		if err := os.RemoveAll(UserCacheDir(s.cacheDir, sess.UserID)); err != nil {
			return fmt.Errorf("failed to remove plaintext cache: %w", err)
		}
	}

	s.log.Info(ctx, "logged out", "user", sess.UserID, "cache_cleared", clearCache)
	if remoteErr != nil {
		return fmt.Errorf("remote logout: %w", remoteErr)
	}
	return nil
}
