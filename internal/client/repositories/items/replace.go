package items

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
	"github.com/dmitrijs2005/hammerspace/internal/dbx"
)

// ReplaceForUser swaps the user's cached tree for snapshot in one
// transaction. Files that survive with the same ID and kind keep their
// plaintext URI. The returned slice lists the previously cached items that
// are gone from the snapshot, so the caller can drop their local artifacts
// once the transaction has committed.
func ReplaceForUser(ctx context.Context, db dbx.TxBeginner, userID string, snapshot []models.Item) ([]models.Item, error) {
	var removed []models.Item

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := NewSQLiteRepository(tx, userID)

		prev, err := repo.ListAll(ctx)
		if err != nil {
			return err
		}
		prevByID := make(map[string]models.Item, len(prev))
		for _, it := range prev {
			prevByID[it.ID] = it
		}

		removed = removed[:0]
		next := make([]models.Item, 0, len(snapshot))
		for _, it := range snapshot {
			it.LocalPlaintextURI = ""
			if old, ok := prevByID[it.ID]; ok {
				if old.IsFile() && it.IsFile() {
					it.LocalPlaintextURI = old.LocalPlaintextURI
				} else if old.IsFile() {
					removed = append(removed, old)
				}
				delete(prevByID, it.ID)
			}
			next = append(next, it)
		}

		for _, old := range prev {
			if _, ok := prevByID[old.ID]; ok {
				removed = append(removed, old)
			}
		}

		if err := repo.ClearForUser(ctx, userID); err != nil {
			return err
		}
		return repo.UpsertItems(ctx, next)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replace items for user %s: %w", userID, err)
	}
	return removed, nil
}
