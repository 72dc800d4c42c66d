package items

import (
	"context"

	"github.com/dmitrijs2005/hammerspace/internal/client/models"
)

type Repository interface {
	UpsertItems(ctx context.Context, items []models.Item) error
	ListChildren(ctx context.Context, parentID string) ([]models.Item, error)
	ListAll(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
	SetPlaintextURI(ctx context.Context, id, uri string) error
	DeleteItem(ctx context.Context, id string) error
	ClearForUser(ctx context.Context, userID string) error
}
