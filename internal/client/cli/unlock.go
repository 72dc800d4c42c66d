package cli

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/hammerspace/internal/client/vault"
	"github.com/dmitrijs2005/hammerspace/internal/common"
)

// lazyVault asks for the passphrase the first time the identity is needed,
// so commands that never touch keys never prompt. A failed prompt is asked
// again on the next use.
type lazyVault struct {
	store      vault.Store
	passphrase func() ([]byte, error)

	mu sync.Mutex
	v  *vault.Vault
}

func newLazyVault(store vault.Store, passphrase func() ([]byte, error)) *lazyVault {
	return &lazyVault{store: store, passphrase: passphrase}
}

func (l *lazyVault) open() (*vault.Vault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.v != nil {
		return l.v, nil
	}
	p, err := l.passphrase()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(p)
	l.v = vault.New(l.store, p)
	return l.v, nil
}

// PrivateIdentity unlocks the identity. A wrong passphrase is forgotten so
// the next call prompts again.
func (l *lazyVault) PrivateIdentity(ctx context.Context) (*vault.Identity, error) {
	v, err := l.open()
	if err != nil {
		return nil, err
	}
	id, err := v.PrivateIdentity(ctx)
	if errors.Is(err, common.ErrDecryptionFailed) {
		l.mu.Lock()
		if l.v == v {
			l.v = nil
		}
		l.mu.Unlock()
	}
	return id, err
}

func (l *lazyVault) Unwrap(wrapped []byte, id *vault.Identity) ([]byte, error) {
	v, err := l.open()
	if err != nil {
		return nil, err
	}
	return v.Unwrap(wrapped, id)
}

func (l *lazyVault) DeriveOwnerKey(id *vault.Identity, ownerID string) ([]byte, error) {
	v, err := l.open()
	if err != nil {
		return nil, err
	}
	return v.DeriveOwnerKey(id, ownerID)
}

// forget drops the unlocked identity if the vault was ever opened.
func (l *lazyVault) forget() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.v != nil {
		l.v.Forget()
	}
}
