package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/common"
	"github.com/dmitrijs2005/hammerspace/internal/dbx"
)

const itemColumns = `id, parent_id, name, kind, mime_type, size_bytes, owner_id, shared, local_plaintext_uri`

type SQLiteRepository struct {
	db     dbx.DBTX
	userID string
}

func NewSQLiteRepository(db dbx.DBTX, userID string) *SQLiteRepository {
	return &SQLiteRepository{db: db, userID: userID}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		it     models.Item
		kind   string
		mime   sql.NullString
		size   int64
		shared bool
		uri    sql.NullString
	)
	if err := row.Scan(&it.ID, &it.ParentID, &it.Name, &kind, &mime, &size, &it.OwnerID, &shared, &uri); err != nil {
		return models.Item{}, err
	}

	it.Kind = models.Kind(kind)
	it.Shared = shared
	it.LocalPlaintextURI = uri.String
	if it.Kind == models.KindFile {
		it.File = &models.FileMeta{MimeType: mime.String, SizeBytes: size}
	}
	return it, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpsertItems inserts or replaces the remote-owned columns of each item. The
// plaintext URI is only written for new rows; an existing row keeps its own
// unless the item turned into a folder.
func (r *SQLiteRepository) UpsertItems(ctx context.Context, items []models.Item) error {
	query := `
		INSERT INTO items (user_id, ` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			parent_id  = excluded.parent_id,
			name       = excluded.name,
			kind       = excluded.kind,
			mime_type  = excluded.mime_type,
			size_bytes = excluded.size_bytes,
			owner_id   = excluded.owner_id,
			shared     = excluded.shared,
			local_plaintext_uri = CASE WHEN excluded.kind = 'folder' THEN NULL ELSE items.local_plaintext_uri END
	`

	for _, it := range items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("failed to upsert item: %w", err)
		}

		_, err := r.db.ExecContext(ctx, query,
			r.userID, it.ID, it.ParentID, it.Name, string(it.Kind),
			nullString(it.MimeType()), it.SizeBytes(), it.OwnerID, it.Shared,
			nullString(it.LocalPlaintextURI),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	result := []models.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate item rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) ListChildren(ctx context.Context, parentID string) ([]models.Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE user_id = ? AND parent_id = ? ORDER BY kind DESC, name, id`, r.userID, parentID)
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]models.Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE user_id = ? ORDER BY id`, r.userID)
}

func (r *SQLiteRepository) GetItem(ctx context.Context, id string) (*models.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE user_id = ? AND id = ?`, r.userID, id)

	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return &it, nil
}

// SetPlaintextURI records where the decrypted content of a file lives. An
// empty uri marks the item as not materialized.
func (r *SQLiteRepository) SetPlaintextURI(ctx context.Context, id, uri string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET local_plaintext_uri = ? WHERE user_id = ? AND id = ? AND kind = 'file'`,
		nullString(uri), r.userID, id)
	if err != nil {
		return fmt.Errorf("failed to set plaintext uri for %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set plaintext uri for %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteItem(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE user_id = ? AND id = ?`, r.userID, id); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) ClearForUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear items for user %s: %w", userID, err)
	}
	return nil
}
