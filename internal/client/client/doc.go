// Package client contains the remote side of the sync core: the storage
// service API and the local database bootstrap.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface) for the storage
//     service: Login/Logout, GetTree, GetFile, GetEncryptedFolderKey and the
//     mutating calls used by the item service.
//  2. An HTTP implementation (see HTTPClient) speaking the JSON-over-POST API,
//     where failures arrive as {"success": false, "error": "..."} bodies,
//     sometimes with a 200 status.
//  3. A gRPC implementation (see GRPCClient) that injects the access token via
//     an interceptor and maps status codes to sentinel errors.
//  4. Local persistence bootstrap (InitDatabase, RunMigrations) applying the
//     embedded goose migrations to an SQLite database.
//
// # Error Handling
//
// Failures are mapped onto the sentinels in package common so callers can
// match with errors.Is: ErrUnauthorized, ErrNotFound, ErrProcessing, and
// ErrUnavailable (which wraps ErrTransport).
//
// Sessions live inside the client. Calls made without one fail with
// common.ErrNoSession before touching the network; a JWT token whose exp has
// passed fails with common.ErrUnauthorized the same way.
package client
