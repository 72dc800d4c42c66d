// Package items is the Metadata Store: the local SQLite mirror of the
// folder/file tree.
//
// # Overview
//
// Every row belongs to one local user; a SQLiteRepository is bound to a user
// when it is constructed and only sees that user's rows. The repository runs
// over a dbx.DBTX, so the same code serves plain reads on *sql.DB and the
// atomic full replace performed by ReplaceForUser on *sql.Tx.
//
// # Rules
//
//   - UpsertItems is idempotent and last-write-wins on the item ID. It never
//     overwrites local_plaintext_uri of an existing row.
//   - ListChildren returns folders first, then files, each by name.
//   - GetItem returns (nil, nil) for a missing item.
//   - The store never talks to the network. Every persistence error is
//     returned wrapped; callers re-query instead of trusting partial writes.
package items
