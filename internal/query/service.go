// Package query answers read-only questions about one owner's items.
package query

import (
	"context"
	"strings"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/models"
)

// Reader is the part of the item store the query service reads from.
type Reader interface {
	ListItems(ctx context.Context, ownerID string, f models.ItemFilter) ([]models.VaultItem, error)
	CountByType(ctx context.Context, ownerID string) (map[models.ItemType]int, error)
	CountByPara(ctx context.Context, ownerID string) (map[models.ParaCategory]int, error)
}

// Service provides filtering, search and aggregates.
type Service struct {
	items Reader
}

// NewService creates a query service over items.
func NewService(items Reader) *Service {
	return &Service{items: items}
}

// Filter lists the owner's items matching f.
func (s *Service) Filter(ctx context.Context, ownerID string, f models.ItemFilter) ([]models.VaultItem, error) {
	return s.items.ListItems(ctx, ownerID, f)
}

// Search returns the owner's items whose title or content contains text,
// ignoring case, most recently updated first. Surrounding spaces are part of
// the search text.
func (s *Service) Search(ctx context.Context, ownerID, text string) ([]models.VaultItem, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Invalid("q", "cannot be blank")
	}
	return s.items.ListItems(ctx, ownerID, models.ItemFilter{SearchTerm: text})
}

// Stats counts the owner's items per type and per PARA category. Every
// known key is present; uncategorised items only count towards Total.
func (s *Service) Stats(ctx context.Context, ownerID string) (*models.Stats, error) {
	byType, err := s.items.CountByType(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	byPara, err := s.items.CountByPara(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	st := models.NewStats()
	for t, n := range byType {
		st.ByType[t] = n
		st.Total += n
	}
	for c, n := range byPara {
		st.ByPara[c] = n
	}
	return st, nil
}
