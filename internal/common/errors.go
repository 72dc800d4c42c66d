// Package common defines the error taxonomy shared by every layer of the
// hammerspace client. Callers match these values with errors.Is and decide
// between retrying and reporting based on the sentinel that comes back.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures. No local state was changed.
	ErrTransport = errors.New("transport error")
	// ErrUnavailable is a transport error where the server could not be reached
	// or did not answer in time.
	ErrUnavailable = fmt.Errorf("%w: server unavailable", ErrTransport)

	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyExists is returned when registering a user ID that is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound means the remote service no longer has the requested object.
	ErrNotFound = errors.New("not found")
	// ErrProcessing means the remote object exists but is not finalized yet.
	ErrProcessing = errors.New("content is being processed")

	// ErrKeyUnavailable is returned when no folder key can be resolved for an item.
	ErrKeyUnavailable = errors.New("key unavailable")
	// ErrDecryptionFailed is returned when ciphertext fails authentication or a
	// wrapped key cannot be opened with the local identity.
	ErrDecryptionFailed = errors.New("decryption failed")

	ErrInvalidItem     = errors.New("invalid item")
	ErrContentTooLarge = errors.New("content too large")
	ErrNoSession       = errors.New("not logged in")
)

// SyncError wraps a transport or auth failure raised while reconciling the
// local tree with the remote snapshot. The local cache is left untouched
// whenever a SyncError is returned.
type SyncError struct {
	UserID string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync for user %s failed: %v", e.UserID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retriable reports whether err is worth retrying later without any other
// change to local state.
func Retriable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrProcessing)
}
