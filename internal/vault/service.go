// Package vault is the externally callable surface of the knowledge vault.
// Every operation resolves the caller, checks existence and ownership where
// an id is involved, and then delegates to the stores, the query service or
// the migration engine.
package vault

import (
	"context"
	"errors"
	"strings"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/query"
	"github.com/starford/kvault/internal/store"
)

// Event kinds published after successful mutations.
const (
	EventItemCreated = "item.created"
	EventItemUpdated = "item.updated"
	EventItemDeleted = "item.deleted"
	EventLinkCreated = "link.created"
	EventLinkDeleted = "link.deleted"
	EventMigrated    = "vault.migrated"
)

// Store combines the item and link stores.
type Store interface {
	store.ItemStore
	store.LinkStore
}

// Migrator runs a migration for one owner.
type Migrator interface {
	Migrate(ctx context.Context, ownerID string) (*models.MigrationResult, error)
}

// Notifier receives owner-scoped change events.
type Notifier interface {
	PublishVaultEvent(ownerID, kind, id string)
}

// Option configures a Service.
type Option func(*Service)

// WithConcealExistence makes foreign ids indistinguishable from missing ones.
func WithConcealExistence(on bool) Option {
	return func(s *Service) { s.conceal = on }
}

// WithNotifier publishes mutation events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// Service enforces authentication and ownership.
type Service struct {
	store    Store
	query    *query.Service
	migrator Migrator
	notifier Notifier
	conceal  bool
}

// NewService creates the access-controlled vault service.
func NewService(st Store, q *query.Service, m Migrator, opts ...Option) *Service {
	s := &Service{store: st, query: q, migrator: m}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize prepares the vault schema. It is idempotent.
func (s *Service) Initialize(ctx context.Context, caller string) error {
	if err := authenticated(caller); err != nil {
		return err
	}
	return s.store.Initialize(ctx)
}

// CreateItem stores a new item owned by the caller.
func (s *Service) CreateItem(ctx context.Context, caller string, d models.ItemDraft) (*models.VaultItem, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	it, err := s.store.CreateItem(ctx, caller, d)
	if err != nil {
		return nil, err
	}
	s.publish(caller, EventItemCreated, it.ID)
	return it, nil
}

// GetItem returns one of the caller's items.
func (s *Service) GetItem(ctx context.Context, caller, id string) (*models.VaultItem, error) {
	return s.owned(ctx, caller, id)
}

// ListItems lists the caller's items matching f.
func (s *Service) ListItems(ctx context.Context, caller string, f models.ItemFilter) ([]models.VaultItem, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	return s.query.Filter(ctx, caller, f)
}

// UpdateItem applies a partial update to one of the caller's items.
func (s *Service) UpdateItem(ctx context.Context, caller, id string, p models.ItemPatch) (*models.VaultItem, error) {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, apperr.Invalid("", "no fields to update")
	}
	it, err := s.store.UpdateItem(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.publish(caller, EventItemUpdated, it.ID)
	return it, nil
}

// DeleteItem removes one of the caller's items and its links.
func (s *Service) DeleteItem(ctx context.Context, caller, id string) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.publish(caller, EventItemDeleted, id)
	return nil
}

// CreateLink connects one of the caller's items to an existing target.
func (s *Service) CreateLink(ctx context.Context, caller, sourceID, targetID, linkType string) (*models.VaultLink, error) {
	if _, err := s.owned(ctx, caller, sourceID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(targetID) == "" {
		return nil, apperr.Invalid("target_id", "cannot be blank")
	}
	l, err := s.store.CreateLink(ctx, sourceID, targetID, linkType)
	if err != nil {
		return nil, err
	}
	s.publish(caller, EventLinkCreated, l.ID)
	return l, nil
}

// ListLinks returns every link touching one of the caller's items.
func (s *Service) ListLinks(ctx context.Context, caller, itemID string) ([]models.VaultLink, error) {
	if _, err := s.owned(ctx, caller, itemID); err != nil {
		return nil, err
	}
	return s.store.ListLinksFor(ctx, itemID)
}

// DeleteLink removes a link whose source item belongs to the caller. If the
// source item no longer exists the target's owner is consulted instead.
func (s *Service) DeleteLink(ctx context.Context, caller, linkID string) error {
	if err := authenticated(caller); err != nil {
		return err
	}
	l, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		return err
	}
	if _, err := s.owned(ctx, caller, l.SourceID); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if _, err := s.owned(ctx, caller, l.TargetID); err != nil {
			return err
		}
	}
	if err := s.store.DeleteLink(ctx, linkID); err != nil {
		return err
	}
	s.publish(caller, EventLinkDeleted, linkID)
	return nil
}

// Search finds the caller's items containing text.
func (s *Service) Search(ctx context.Context, caller, text string) ([]models.VaultItem, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	return s.query.Search(ctx, caller, text)
}

// Stats aggregates the caller's items.
func (s *Service) Stats(ctx context.Context, caller string) (*models.Stats, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	return s.query.Stats(ctx, caller)
}

// Migrate copies the caller's legacy records into the vault.
func (s *Service) Migrate(ctx context.Context, caller string) (*models.MigrationResult, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	res, err := s.migrator.Migrate(ctx, caller)
	if err != nil {
		return res, err
	}
	if res.MigratedCount > 0 {
		s.publish(caller, EventMigrated, "")
	}
	return res, nil
}

// owned loads id and verifies the caller owns it. Missing ids are
// ErrNotFound; foreign ids are ErrForbidden unless existence is concealed.
func (s *Service) owned(ctx context.Context, caller, id string) (*models.VaultItem, error) {
	if err := authenticated(caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperr.ErrNotFound
	}
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.CreatedBy != caller {
		if s.conceal {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.ErrForbidden
	}
	return it, nil
}

func (s *Service) publish(ownerID, kind, id string) {
	if s.notifier != nil {
		s.notifier.PublishVaultEvent(ownerID, kind, id)
	}
}

func authenticated(caller string) error {
	if strings.TrimSpace(caller) == "" {
		return apperr.ErrUnauthenticated
	}
	return nil
}
