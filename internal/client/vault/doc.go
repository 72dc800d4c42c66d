// Package vault is the Key Vault: it owns the local user's age X25519
// identity and the wrap/unwrap primitives for folder keys.
//
// # Storage
//
// The identity is persisted as a single record in a key-value Store (the
// "vault" namespace of the metadata table). The secret half is sealed with
// AES-GCM under a key stretched from the user's passphrase; when the identity
// was created with a recovery phrase, a second copy is sealed under a key
// derived from the BIP-39 seed of that phrase. The public recipient is kept in
// clear so it can be published without unlocking.
//
// # Handles
//
// Callers only ever see *Identity, an opaque handle. It prints and logs as
// "REDACTED" and exposes no accessor for the secret material; it can only be
// passed back into Unwrap or DeriveOwnerKey.
package vault
