package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/models"
)

const itemColumns = `id, type, title, content, para_category, folder_path, tags, metadata,
	linked_items, created_by, created_at, updated_at, source_table, source_id`

const insertItemSQL = `
	INSERT INTO vault_items (` + itemColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

var (
	itemTypeValues = func() []any {
		out := make([]any, len(models.ItemTypes))
		for i, t := range models.ItemTypes {
			out[i] = t
		}
		return out
	}()
	paraValues = func() []any {
		out := make([]any, len(models.ParaCategories))
		for i, c := range models.ParaCategories {
			out[i] = c
		}
		return out
	}()
)

// validateItem enforces the non-empty title and the closed type and PARA sets.
func validateItem(it *models.VaultItem) error {
	return apperr.Validation(validation.ValidateStruct(it,
		validation.Field(&it.Type, validation.Required, validation.In(itemTypeValues...)),
		validation.Field(&it.Title, validation.Required),
		validation.Field(&it.ParaCategory, validation.NilOrNotEmpty, validation.In(paraValues...)),
		validation.Field(&it.CreatedBy, validation.Required),
	))
}

// normalize trims free-text identity fields, dedupes tags and replaces nil
// collections.
func normalize(it *models.VaultItem) {
	it.Title = strings.TrimSpace(it.Title)
	if it.ParaCategory != nil && *it.ParaCategory == "" {
		it.ParaCategory = nil
	}
	if it.FolderPath != nil && strings.TrimSpace(*it.FolderPath) == "" {
		it.FolderPath = nil
	}
	it.Tags = models.CompactTags(it.Tags)
	if it.Tags == nil {
		it.Tags = []string{}
	}
	if it.Metadata == nil {
		it.Metadata = map[string]any{}
	}
	if it.LinkedItems == nil {
		it.LinkedItems = []string{}
	}
}

func (db *DB) newItem(ownerID string, d models.ItemDraft) (*models.VaultItem, error) {
	now := db.timestamp()
	it := &models.VaultItem{
		ID:           uuid.NewString(),
		Type:         d.Type,
		Title:        d.Title,
		Content:      d.Content,
		ParaCategory: d.ParaCategory,
		FolderPath:   d.FolderPath,
		Tags:         d.Tags,
		Metadata:     d.Metadata,
		LinkedItems:  d.LinkedItems,
		CreatedBy:    ownerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	normalize(it)
	if err := validateItem(it); err != nil {
		return nil, err
	}
	return it, nil
}

// CreateItem validates and stores a native item owned by ownerID.
func (db *DB) CreateItem(ctx context.Context, ownerID string, d models.ItemDraft) (*models.VaultItem, error) {
	it, err := db.newItem(ownerID, d)
	if err != nil {
		return nil, err
	}
	args, err := itemArgs(it)
	if err != nil {
		return nil, err
	}
	if _, err := db.conn.ExecContext(ctx, insertItemSQL, args...); err != nil {
		return nil, fmt.Errorf("store: insert item: %w", err)
	}
	return it, nil
}

// CreateItemFromSource stores an item migrated from a legacy record. If an
// item already references (sourceTable, sourceID) it is returned together
// with apperr.ErrAlreadyExists and nothing is written. The uniqueness check
// and the insert are one statement, so concurrent callers cannot duplicate.
func (db *DB) CreateItemFromSource(ctx context.Context, ownerID string, d models.ItemDraft, sourceTable, sourceID string) (*models.VaultItem, error) {
	if strings.TrimSpace(sourceTable) == "" {
		return nil, apperr.Invalid("source_table", "cannot be blank")
	}
	if strings.TrimSpace(sourceID) == "" {
		return nil, apperr.Invalid("source_id", "cannot be blank")
	}
	it, err := db.newItem(ownerID, d)
	if err != nil {
		return nil, err
	}
	it.SourceTable = &sourceTable
	it.SourceID = &sourceID

	args, err := itemArgs(it)
	if err != nil {
		return nil, err
	}
	res, err := db.conn.ExecContext(ctx, insertItemSQL+`
		ON CONFLICT(source_table, source_id) DO NOTHING`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: insert sourced item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		existing, err := db.ItemBySource(ctx, sourceTable, sourceID)
		if err != nil {
			return nil, err
		}
		return existing, apperr.ErrAlreadyExists
	}
	return it, nil
}

// GetItem returns the item with the given id or apperr.ErrNotFound.
func (db *DB) GetItem(ctx context.Context, id string) (*models.VaultItem, error) {
	return getItem(ctx, db.conn, `WHERE id = ?`, id)
}

// ItemBySource returns the item migrated from (sourceTable, sourceID).
func (db *DB) ItemBySource(ctx context.Context, sourceTable, sourceID string) (*models.VaultItem, error) {
	return getItem(ctx, db.conn, `WHERE source_table = ? AND source_id = ?`, sourceTable, sourceID)
}

func getItem(ctx context.Context, q querier, where string, args ...any) (*models.VaultItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM vault_items `+where, args...)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get item: %w", err)
	}
	return it, nil
}

// ListItems returns ownerID's items matching f, most recently updated first.
func (db *DB) ListItems(ctx context.Context, ownerID string, f models.ItemFilter) ([]models.VaultItem, error) {
	where := []string{"created_by = ?"}
	args := []any{ownerID}

	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.ParaCategory != "" {
		where = append(where, "para_category = ?")
		args = append(args, string(f.ParaCategory))
	}
	if f.FolderPath != "" {
		where = append(where, "folder_path = ?")
		args = append(args, f.FolderPath)
	}
	if len(f.TagsAny) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(f.TagsAny)), ",")
		where = append(where, `EXISTS (SELECT 1 FROM json_each(vault_items.tags) WHERE json_each.value IN (`+marks+`))`)
		for _, t := range f.TagsAny {
			args = append(args, t)
		}
	}
	if f.SearchTerm != "" {
		where = append(where, "(fold_contains(title, ?) OR fold_contains(content, ?))")
		args = append(args, f.SearchTerm, f.SearchTerm)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM vault_items
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY updated_at DESC, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list items: %w", err)
	}
	defer rows.Close()

	out := []models.VaultItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// UpdateItem merges p onto the stored item. The merged state is validated
// before anything is written, and updated_at always moves forward.
func (db *DB) UpdateItem(ctx context.Context, id string, p models.ItemPatch) (*models.VaultItem, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	current, err := getItem(ctx, tx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	next := p.Apply(*current)
	normalize(&next)
	if err := validateItem(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = db.advance(current.UpdatedAt)

	tags, meta, linked, err := encodeCollections(&next)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE vault_items SET
			title         = ?,
			content       = ?,
			para_category = ?,
			folder_path   = ?,
			tags          = ?,
			metadata      = ?,
			linked_items  = ?,
			updated_at    = ?
		WHERE id = ?
	`, next.Title, next.Content, paraArg(next.ParaCategory), next.FolderPath,
		tags, meta, linked, next.UpdatedAt.UnixNano(), id)
	if err != nil {
		return nil, fmt.Errorf("store: update item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return &next, nil
}

// DeleteItem removes an item and every link touching it in one transaction.
func (db *DB) DeleteItem(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM vault_links WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("store: prune links: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM vault_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return tx.Commit()
}

// CountByType returns ownerID's item counts grouped by type.
func (db *DB) CountByType(ctx context.Context, ownerID string) (map[models.ItemType]int, error) {
	out := make(map[models.ItemType]int)
	err := db.countGrouped(ctx, `
		SELECT type, COUNT(*) FROM vault_items
		WHERE created_by = ?
		GROUP BY type
	`, ownerID, func(key string, n int) { out[models.ItemType(key)] = n })
	return out, err
}

// CountByPara returns ownerID's item counts grouped by PARA category.
// Uncategorised items are not counted.
func (db *DB) CountByPara(ctx context.Context, ownerID string) (map[models.ParaCategory]int, error) {
	out := make(map[models.ParaCategory]int)
	err := db.countGrouped(ctx, `
		SELECT para_category, COUNT(*) FROM vault_items
		WHERE created_by = ? AND para_category IS NOT NULL
		GROUP BY para_category
	`, ownerID, func(key string, n int) { out[models.ParaCategory(key)] = n })
	return out, err
}

func (db *DB) countGrouped(ctx context.Context, query, ownerID string, add func(string, int)) error {
	rows, err := db.conn.QueryContext(ctx, query, ownerID)
	if err != nil {
		return fmt.Errorf("store: count: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		add(key, n)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (*models.VaultItem, error) {
	var (
		it                          models.VaultItem
		para, folder, srcTbl, srcID sql.NullString
		tags, meta, linked          string
		created, updated            int64
	)
	if err := r.Scan(&it.ID, &it.Type, &it.Title, &it.Content, &para, &folder,
		&tags, &meta, &linked, &it.CreatedBy, &created, &updated, &srcTbl, &srcID); err != nil {
		return nil, err
	}
	if para.Valid {
		c := models.ParaCategory(para.String)
		it.ParaCategory = &c
	}
	it.FolderPath = nullableString(folder)
	it.SourceTable = nullableString(srcTbl)
	it.SourceID = nullableString(srcID)
	it.CreatedAt = fromUnixNano(created)
	it.UpdatedAt = fromUnixNano(updated)

	if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &it.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(linked), &it.LinkedItems); err != nil {
		return nil, fmt.Errorf("decode linked items: %w", err)
	}
	normalize(&it)
	return &it, nil
}

func itemArgs(it *models.VaultItem) ([]any, error) {
	tags, meta, linked, err := encodeCollections(it)
	if err != nil {
		return nil, err
	}
	return []any{
		it.ID, string(it.Type), it.Title, it.Content, paraArg(it.ParaCategory), it.FolderPath,
		tags, meta, linked, it.CreatedBy, it.CreatedAt.UnixNano(), it.UpdatedAt.UnixNano(),
		it.SourceTable, it.SourceID,
	}, nil
}

func encodeCollections(it *models.VaultItem) (tags, meta, linked string, err error) {
	t, err := json.Marshal(it.Tags)
	if err != nil {
		return "", "", "", fmt.Errorf("store: encode tags: %w", err)
	}
	m, err := json.Marshal(it.Metadata)
	if err != nil {
		return "", "", "", apperr.Invalid("metadata", err.Error())
	}
	l, err := json.Marshal(it.LinkedItems)
	if err != nil {
		return "", "", "", fmt.Errorf("store: encode linked items: %w", err)
	}
	return string(t), string(m), string(l), nil
}

func paraArg(c *models.ParaCategory) any {
	if c == nil {
		return nil
	}
	return string(*c)
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
