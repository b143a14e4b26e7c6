package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/models"
)

// CreateLink stores a directed edge source → target. Both endpoints must
// exist when the link is created; the check and insert share a transaction.
func (db *DB) CreateLink(ctx context.Context, sourceID, targetID, linkType string) (*models.VaultLink, error) {
	linkType = strings.TrimSpace(linkType)
	if linkType == "" {
		linkType = models.DefaultLinkType
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, id := range []string{sourceID, targetID} {
		ok, err := itemExists(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("link endpoint %s: %w", id, apperr.ErrNotFound)
		}
	}

	l := &models.VaultLink{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		TargetID:  targetID,
		LinkType:  linkType,
		CreatedAt: db.timestamp(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_links (id, source_id, target_id, link_type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, l.ID, l.SourceID, l.TargetID, l.LinkType, l.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("store: insert link: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return l, nil
}

// GetLink returns one link or apperr.ErrNotFound.
func (db *DB) GetLink(ctx context.Context, id string) (*models.VaultLink, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, source_id, target_id, link_type, created_at
		FROM vault_links WHERE id = ?
	`, id)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get link: %w", err)
	}
	return l, nil
}

// ListLinksFor returns every link where itemID is the source or the target,
// oldest first. Only the forward direction is stored.
func (db *DB) ListLinksFor(ctx context.Context, itemID string) ([]models.VaultLink, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source_id, target_id, link_type, created_at
		FROM vault_links
		WHERE source_id = ? OR target_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, itemID, itemID)
	if err != nil {
		return nil, fmt.Errorf("store: list links: %w", err)
	}
	defer rows.Close()

	out := []models.VaultLink{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan link: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// DeleteLink removes a link by id.
func (db *DB) DeleteLink(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM vault_links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func itemExists(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM vault_items WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: item exists: %w", err)
	}
	return true, nil
}

func scanLink(r rowScanner) (*models.VaultLink, error) {
	var l models.VaultLink
	var created int64
	if err := r.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.LinkType, &created); err != nil {
		return nil, err
	}
	l.CreatedAt = fromUnixNano(created)
	return &l, nil
}
