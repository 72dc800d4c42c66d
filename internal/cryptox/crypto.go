// Package cryptox wraps the symmetric primitives used for content and vault
// encryption.
//
// Content blobs use AES-256-GCM with a random 12-byte nonce prepended to the
// ciphertext:
//
//	blob = nonce || ciphertext || tag
//
// The associated data binds a blob to the item it belongs to, so a blob moved
// to another item ID fails authentication.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dmitrijs2005/hammerspace/internal/common"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
)

const (
	KeySize   = 32
	NonceSize = 12
	// Overhead is the number of bytes Seal adds to the plaintext.
	Overhead = NonceSize + 16
)

// scrypt cost parameters for passphrase-derived sealing keys.
var (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// NewKey returns a fresh random content key.
func NewKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext under key and returns nonce||ciphertext.
func Seal(key, plaintext, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aead.NonceSize())
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, ad), nil
}

// Open authenticates and decrypts a blob produced by Seal. Any failure to
// authenticate is reported as common.ErrDecryptionFailed.
func Open(key, blob, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDecryptionFailed, err)
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", common.ErrDecryptionFailed, len(blob))
	}

	nonce, ct := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// DeriveKey expands secret into a KeySize key with HKDF-SHA256.
func DeriveKey(secret, salt, info []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// PassphraseKey stretches a passphrase into a KeySize key with scrypt.
func PassphraseKey(passphrase, salt []byte) ([]byte, error) {
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to stretch passphrase: %w", err)
	}
	return key, nil
}
