// Package services contains the application services of the hammerspace
// client: syncing the local tree, materializing file content, local
// mutations and the login session.
//
// # Overview
//
//   - SyncService replaces the cached tree with the remote snapshot, one
//     user at a time, and prunes plaintext of items that disappeared.
//   - Materializer downloads, decrypts and caches file content on demand.
//   - ItemService creates, renames, removes, shares and uploads items,
//     updating the local store once the remote call succeeded.
//   - SessionService logs in and out and keeps the session record in the
//     metadata store.
//
// Errors are the sentinels of package common, wrapped with context; callers
// match them with errors.Is.
package services
