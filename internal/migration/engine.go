// Package migration converts records owned by legacy feature tables into
// vault items without duplicating earlier runs.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/models"
)

// Record is one legacy row awaiting conversion. Convert is called lazily so
// a malformed record fails on its own without affecting its neighbours.
type Record struct {
	SourceTable string
	SourceID    string
	Convert     func() (models.ItemDraft, error)
}

// Collaborator is a legacy source that can list everything an owner has.
type Collaborator interface {
	// Name identifies the source in errors when listing itself fails.
	Name() string
	Records(ctx context.Context, ownerID string) ([]Record, error)
}

// ItemWriter is the subset of the item store the engine writes through.
type ItemWriter interface {
	CreateItemFromSource(ctx context.Context, ownerID string, d models.ItemDraft, sourceTable, sourceID string) (*models.VaultItem, error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConcurrency bounds how many collaborators migrate at once.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine runs idempotent, best-effort migrations.
type Engine struct {
	items       ItemWriter
	sources     []Collaborator
	concurrency int
	logger      *slog.Logger
}

// NewEngine creates an engine writing through items and reading from sources.
func NewEngine(items ItemWriter, sources []Collaborator, opts ...EngineOption) *Engine {
	e := &Engine{
		items:       items,
		sources:     sources,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sources returns the configured collaborator names.
func (e *Engine) Sources() []string {
	out := make([]string, len(e.sources))
	for i, s := range e.sources {
		out[i] = s.Name()
	}
	return out
}

// Migrate copies every legacy record of ownerID into the vault. Records that
// were migrated before are counted as skipped; records that fail are
// collected in the result and never abort the run. The only returned error
// is a missing owner or a cancelled context.
func (e *Engine) Migrate(ctx context.Context, ownerID string) (*models.MigrationResult, error) {
	if ownerID == "" {
		return nil, apperr.Invalid("owner_id", "cannot be blank")
	}

	partials := make([]models.MigrationResult, len(e.sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, src := range e.sources {
		g.Go(func() error {
			partials[i] = e.migrateSource(gctx, ownerID, src)
			return nil
		})
	}
	_ = g.Wait()

	// Merge in collaborator order so output does not depend on scheduling.
	res := &models.MigrationResult{Errors: []models.MigrationError{}}
	for _, p := range partials {
		res.MigratedCount += p.MigratedCount
		res.SkippedCount += p.SkippedCount
		res.Errors = append(res.Errors, p.Errors...)
	}

	e.logger.Info("migration finished",
		slog.String("owner", ownerID),
		slog.Int("migrated", res.MigratedCount),
		slog.Int("skipped", res.SkippedCount),
		slog.Int("errors", len(res.Errors)))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) migrateSource(ctx context.Context, ownerID string, src Collaborator) models.MigrationResult {
	res := models.MigrationResult{}

	records, err := src.Records(ctx, ownerID)
	if err != nil {
		e.logger.Warn("migration: list failed",
			slog.String("source", src.Name()),
			slog.String("error", err.Error()))
		res.Errors = append(res.Errors, models.MigrationError{SourceTable: src.Name(), Message: err.Error()})
		return res
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return res
		}
		err := e.migrateRecord(ctx, ownerID, rec)
		switch {
		case err == nil:
			res.MigratedCount++
		case errors.Is(err, apperr.ErrAlreadyExists):
			res.SkippedCount++
		default:
			e.logger.Warn("migration: record failed",
				slog.String("source_table", rec.SourceTable),
				slog.String("source_id", rec.SourceID),
				slog.String("error", err.Error()))
			res.Errors = append(res.Errors, models.MigrationError{
				SourceTable: rec.SourceTable,
				SourceID:    rec.SourceID,
				Message:     err.Error(),
			})
		}
	}

	e.logger.Debug("migration: source done",
		slog.String("source", src.Name()),
		slog.Int("records", len(records)))
	return res
}

func (e *Engine) migrateRecord(ctx context.Context, ownerID string, rec Record) (err error) {
	// Converters are pluggable; a panicking one is just another bad record.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("convert: panic: %v", r)
		}
	}()

	draft, err := rec.Convert()
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	_, err = e.items.CreateItemFromSource(ctx, ownerID, draft, rec.SourceTable, rec.SourceID)
	return err
}
