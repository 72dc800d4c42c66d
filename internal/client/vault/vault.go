package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"filippo.io/age"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/cryptox"
	"github.com/tyler-smith/go-bip39"
)

var (
	ErrIdentityExists = errors.New("identity already exists")
	ErrNoIdentity     = errors.New("no identity")
	ErrInvalidPhrase  = errors.New("invalid recovery phrase")
	ErrNoRecovery     = errors.New("identity has no recovery copy")
)

const (
	recordKey = "identity"

	sealAD         = "hammerspace identity v1"
	recoveryInfo   = "hammerspace recovery v1"
	ownerKeyInfo   = "hammerspace folder key v1"
	recoveryBits   = 256
	saltSize       = 16
	maxWrappedSize = 64 << 10
)

// Store is the persistent key-value backend of the vault.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type record struct {
	Version   int       `json:"v"`
	Recipient Recipient `json:"recipient"`
	Salt      []byte    `json:"salt"`
	Sealed    []byte    `json:"sealed"`
	Recovery  []byte    `json:"recovery,omitempty"`
}

// Vault holds at most one identity for the local account. The unlocked
// identity is kept in memory after the first successful load.
type Vault struct {
	store      Store
	passphrase []byte

	mu       sync.Mutex
	unlocked *Identity
}

func New(store Store, passphrase []byte) *Vault {
	return &Vault{store: store, passphrase: bytes.Clone(passphrase)}
}

// GenerateIdentity creates and persists a new identity. It never replaces an
// existing one: if a record is already stored it fails with ErrIdentityExists.
func (v *Vault) GenerateIdentity(ctx context.Context) (*Identity, Recipient, error) {
	id, _, err := v.generate(ctx, false)
	if err != nil {
		return nil, "", err
	}
	return id, id.Recipient(), nil
}

// GenerateIdentityWithRecovery is GenerateIdentity that also returns a
// 24-word recovery phrase able to reset the passphrase later.
func (v *Vault) GenerateIdentityWithRecovery(ctx context.Context) (*Identity, Recipient, string, error) {
	id, phrase, err := v.generate(ctx, true)
	if err != nil {
		return nil, "", "", err
	}
	return id, id.Recipient(), phrase, nil
}

func (v *Vault) generate(ctx context.Context, withRecovery bool) (*Identity, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	existing, err := v.store.Get(ctx, recordKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read identity record: %w", err)
	}
	if existing != nil {
		return nil, "", ErrIdentityExists
	}

	x, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate identity: %w", err)
	}
	id := &Identity{x: x}

	rec := record{Version: 1, Recipient: id.Recipient(), Salt: common.GenerateRandByteArray(saltSize)}
	if rec.Sealed, err = v.seal(id, rec.Salt); err != nil {
		return nil, "", err
	}

	var phrase string
	if withRecovery {
		entropy, err := bip39.NewEntropy(recoveryBits)
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate recovery entropy: %w", err)
		}
		if phrase, err = bip39.NewMnemonic(entropy); err != nil {
			return nil, "", fmt.Errorf("failed to build recovery phrase: %w", err)
		}
		if rec.Recovery, err = sealForRecovery(id, phrase, rec.Salt); err != nil {
			return nil, "", err
		}
	}

	if err := v.save(ctx, rec); err != nil {
		return nil, "", err
	}

	v.unlocked = id
	return id, phrase, nil
}

// PrivateIdentity returns the unlocked identity, or (nil, nil) when none has
// been generated. A wrong passphrase yields common.ErrDecryptionFailed.
func (v *Vault) PrivateIdentity(ctx context.Context) (*Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.unlocked != nil {
		return v.unlocked, nil
	}

	rec, err := v.load(ctx)
	if err != nil || rec == nil {
		return nil, err
	}

	key, err := cryptox.PassphraseKey(v.passphrase, rec.Salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	id, err := openIdentity(key, rec.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock identity: %w", err)
	}

	v.unlocked = id
	return id, nil
}

// Recipient returns the stored public recipient without unlocking.
func (v *Vault) Recipient(ctx context.Context) (Recipient, error) {
	rec, err := v.load(ctx)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrNoIdentity
	}
	return rec.Recipient, nil
}

// Recover opens the recovery copy with phrase and reseals the identity under
// the vault's current passphrase.
func (v *Vault) Recover(ctx context.Context, phrase string) (*Identity, error) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidPhrase
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	rec, err := v.load(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoIdentity
	}
	if len(rec.Recovery) == 0 {
		return nil, ErrNoRecovery
	}

	key, err := recoveryKey(phrase, rec.Salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	id, err := openIdentity(key, rec.Recovery)
	if err != nil {
		return nil, fmt.Errorf("failed to recover identity: %w", err)
	}

	if rec.Sealed, err = v.seal(id, rec.Salt); err != nil {
		return nil, err
	}
	if err := v.save(ctx, *rec); err != nil {
		return nil, err
	}

	v.unlocked = id
	return id, nil
}

// Forget drops the unlocked identity from memory.
func (v *Vault) Forget() {
	v.mu.Lock()
	v.unlocked = nil
	v.mu.Unlock()
}

// Unwrap opens a folder key wrapped for the identity's recipient.
func (v *Vault) Unwrap(wrapped []byte, id *Identity) ([]byte, error) {
	if id == nil || id.x == nil {
		return nil, fmt.Errorf("%w: no identity", common.ErrDecryptionFailed)
	}

	r, err := age.Decrypt(bytes.NewReader(wrapped), id.x)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDecryptionFailed, err)
	}
	key, err := io.ReadAll(io.LimitReader(r, maxWrappedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDecryptionFailed, err)
	}
	if len(key) != cryptox.KeySize {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: unwrapped key has %d bytes", common.ErrDecryptionFailed, len(key))
	}
	return key, nil
}

// Wrap encrypts key for every recipient.
func (v *Vault) Wrap(key []byte, recipients ...Recipient) ([]byte, error) {
	return Wrap(key, recipients...)
}

// Wrap encrypts key for every recipient.
func Wrap(key []byte, recipients ...Recipient) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, errors.New("no recipients")
	}

	rs := make([]age.Recipient, 0, len(recipients))
	for _, r := range recipients {
		parsed, err := age.ParseX25519Recipient(string(r))
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", r, err)
		}
		rs = append(rs, parsed)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, rs...)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	if _, err := w.Write(key); err != nil {
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	return buf.Bytes(), nil
}

// DeriveOwnerKey returns the implicit folder key for items owned by ownerID
// and encrypted under id. The derivation never leaves the vault.
func (v *Vault) DeriveOwnerKey(id *Identity, ownerID string) ([]byte, error) {
	if id == nil || id.x == nil {
		return nil, ErrNoIdentity
	}
	return cryptox.DeriveKey([]byte(id.x.String()), []byte(ownerID), []byte(ownerKeyInfo))
}

func (v *Vault) seal(id *Identity, salt []byte) ([]byte, error) {
	key, err := cryptox.PassphraseKey(v.passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	sealed, err := cryptox.Seal(key, []byte(id.x.String()), []byte(sealAD))
	if err != nil {
		return nil, fmt.Errorf("failed to seal identity: %w", err)
	}
	return sealed, nil
}

func sealForRecovery(id *Identity, phrase string, salt []byte) ([]byte, error) {
	key, err := recoveryKey(phrase, salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	sealed, err := cryptox.Seal(key, []byte(id.x.String()), []byte(sealAD))
	if err != nil {
		return nil, fmt.Errorf("failed to seal recovery copy: %w", err)
	}
	return sealed, nil
}

func recoveryKey(phrase string, salt []byte) ([]byte, error) {
	seed := bip39.NewSeed(phrase, "")
	defer common.WipeByteArray(seed)
	return cryptox.DeriveKey(seed, salt, []byte(recoveryInfo))
}

func openIdentity(key, sealed []byte) (*Identity, error) {
	plain, err := cryptox.Open(key, sealed, []byte(sealAD))
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plain)

	x, err := age.ParseX25519Identity(string(plain))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed identity", common.ErrDecryptionFailed)
	}
	return &Identity{x: x}, nil
}

func (v *Vault) load(ctx context.Context) (*record, error) {
	raw, err := v.store.Get(ctx, recordKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity record: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode identity record: %w", err)
	}
	return &rec, nil
}

func (v *Vault) save(ctx context.Context, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode identity record: %w", err)
	}
	if err := v.store.Set(ctx, recordKey, raw); err != nil {
		return fmt.Errorf("failed to store identity record: %w", err)
	}
	return nil
}
