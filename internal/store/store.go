package store

import (
	"context"

	"github.com/starford/kvault/internal/models"
)

// ItemStore defines the item persistence operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type ItemStore interface {
	CreateItem(ctx context.Context, ownerID string, d models.ItemDraft) (*models.VaultItem, error)
	CreateItemFromSource(ctx context.Context, ownerID string, d models.ItemDraft, sourceTable, sourceID string) (*models.VaultItem, error)
	GetItem(ctx context.Context, id string) (*models.VaultItem, error)
	ListItems(ctx context.Context, ownerID string, f models.ItemFilter) ([]models.VaultItem, error)
	UpdateItem(ctx context.Context, id string, p models.ItemPatch) (*models.VaultItem, error)
	DeleteItem(ctx context.Context, id string) error
	CountByType(ctx context.Context, ownerID string) (map[models.ItemType]int, error)
	CountByPara(ctx context.Context, ownerID string) (map[models.ParaCategory]int, error)
	Initialize(ctx context.Context) error
}

// LinkStore defines the link graph operations.
type LinkStore interface {
	CreateLink(ctx context.Context, sourceID, targetID, linkType string) (*models.VaultLink, error)
	GetLink(ctx context.Context, id string) (*models.VaultLink, error)
	ListLinksFor(ctx context.Context, itemID string) ([]models.VaultLink, error)
	DeleteLink(ctx context.Context, id string) error
}

// Verify *DB satisfies both interfaces at compile time.
var (
	_ ItemStore = (*DB)(nil)
	_ LinkStore = (*DB)(nil)
)
