// Package keys resolves the symmetric folder key protecting an item.
//
// # Overview
//
// A Resolver walks from an item up its parent chain. The nearest folder
// marked as shared decides the key: its wrapped key is fetched from the
// remote key exchange, unwrapped by the vault and cached in memory. When no
// shared ancestor exists and the item belongs to the local user, the key is
// derived from the local identity without any network call. Anything else
// fails with common.ErrKeyUnavailable.
//
// The walk is bounded by Config.MaxDepth and fails closed on a parent cycle.
// Unwrap failures are returned as errors matching both
// common.ErrKeyUnavailable and common.ErrDecryptionFailed and are never
// cached, so the next call tries again.
//
// Cached keys live only in memory. ShareChanged drops one folder,
// InvalidateAll drops everything (logout, successful sync).
package keys
