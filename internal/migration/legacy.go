package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/kvault/internal/models"
)

// Row is one legacy record keyed by column name.
type Row map[string]any

// String returns the column as trimmed text, or "" when absent or NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Bool interprets 1/0, true/false and yes/no columns.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		b, err := strconv.ParseBool(r.String(col))
		if err != nil {
			return strings.EqualFold(r.String(col), "yes")
		}
		return b
	}
}

// TableSpec describes how rows of one legacy table become vault items.
type TableSpec struct {
	Table         string
	KeyColumn     string   // defaults to "id"
	OwnerColumn   string   // defaults to "user_id"
	TitleColumns  []string // first non-empty wins
	ContentColumn string
	// TitleFromContent derives a title from the first content line when no
	// title column is filled.
	TitleFromContent bool
	// DefaultTitle is used when nothing else yields a title.
	DefaultTitle string
	ItemType     models.ItemType
	// TypeOf overrides ItemType per row, for tables that feed several types.
	TypeOf func(Row) models.ItemType
}

// Columns mapped onto item fields rather than copied into metadata.
const (
	tagsColumn   = "tags"
	paraColumn   = "para_category"
	folderColumn = "folder_path"
)

const maxDerivedTitle = 80

// DefaultTables lists the legacy feature tables the application shipped with.
func DefaultTables() []TableSpec {
	return []TableSpec{
		{Table: "notes", TitleColumns: []string{"title"}, ContentColumn: "content", ItemType: models.TypeNote},
		{Table: "thought_sessions", TitleColumns: []string{"title", "topic"}, ContentColumn: "summary", ItemType: models.TypeThoughtSession},
		{Table: "thoughts", TitleColumns: []string{"title"}, ContentColumn: "content", TitleFromContent: true, ItemType: models.TypeThought},
		{Table: "ideas", TitleColumns: []string{"title"}, ContentColumn: "description", ItemType: models.TypeIdea},
		{
			Table: "articles", TitleColumns: []string{"title"}, ContentColumn: "content", ItemType: models.TypeArticle,
			TypeOf: func(r Row) models.ItemType {
				if r.Bool("is_research") || strings.EqualFold(r.String("kind"), "research") {
					return models.TypeResearch
				}
				return models.TypeArticle
			},
		},
		{Table: "quotes", TitleColumns: []string{"title", "author"}, ContentColumn: "text", TitleFromContent: true, ItemType: models.TypeQuote},
		{Table: "words", TitleColumns: []string{"word"}, ContentColumn: "definition", ItemType: models.TypeWord},
		{Table: "sticky_notes", TitleColumns: []string{"title"}, ContentColumn: "content", TitleFromContent: true, ItemType: models.TypeStickyNote},
		{Table: "tasks", TitleColumns: []string{"title"}, ContentColumn: "description", ItemType: models.TypeTask},
		{Table: "pomodoro_sessions", TitleColumns: []string{"label", "task_title"}, ContentColumn: "notes", DefaultTitle: "Focus session", ItemType: models.TypePomodoro},
	}
}

// SelectTables returns the specs whose table is in names; empty names means all.
func SelectTables(specs []TableSpec, names []string) []TableSpec {
	if len(names) == 0 {
		return specs
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var out []TableSpec
	for _, s := range specs {
		if _, ok := want[s.Table]; ok {
			out = append(out, s)
		}
	}
	return out
}

// LegacyTable reads one legacy table that lives in the vault's database.
type LegacyTable struct {
	db   *sql.DB
	spec TableSpec
}

// NewLegacyTable creates a collaborator for spec.
func NewLegacyTable(db *sql.DB, spec TableSpec) *LegacyTable {
	if spec.KeyColumn == "" {
		spec.KeyColumn = "id"
	}
	if spec.OwnerColumn == "" {
		spec.OwnerColumn = "user_id"
	}
	return &LegacyTable{db: db, spec: spec}
}

// LegacyTables builds one collaborator per spec.
func LegacyTables(db *sql.DB, specs []TableSpec) []Collaborator {
	out := make([]Collaborator, 0, len(specs))
	for _, s := range specs {
		out = append(out, NewLegacyTable(db, s))
	}
	return out
}

// Name returns the legacy table name.
func (t *LegacyTable) Name() string { return t.spec.Table }

// Records lists every row of the table owned by ownerID, ordered by key.
// A table that does not exist yields no records.
func (t *LegacyTable) Records(ctx context.Context, ownerID string) ([]Record, error) {
	ok, err := t.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.DebugContext(ctx, "legacy table absent, skipping", slog.String("table", t.spec.Table))
		return nil, nil
	}

	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT * FROM %s WHERE %s = ? ORDER BY %s`,
		quoteIdent(t.spec.Table), quoteIdent(t.spec.OwnerColumn), quoteIdent(t.spec.KeyColumn),
	), ownerID)
	if err != nil {
		return nil, fmt.Errorf("legacy %s: query: %w", t.spec.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("legacy %s: columns: %w", t.spec.Table, err)
	}

	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("legacy %s: scan: %w", t.spec.Table, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				vals[i] = string(b)
			}
			row[c] = vals[i]
		}
		out = append(out, Record{
			SourceTable: t.spec.Table,
			SourceID:    row.String(t.spec.KeyColumn),
			Convert:     func() (models.ItemDraft, error) { return t.convert(row) },
		})
	}
	return out, rows.Err()
}

func (t *LegacyTable) exists(ctx context.Context) (bool, error) {
	var one int
	err := t.db.QueryRowContext(ctx,
		`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, t.spec.Table,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("legacy %s: lookup: %w", t.spec.Table, err)
	}
	return true, nil
}

func (t *LegacyTable) convert(row Row) (models.ItemDraft, error) {
	s := t.spec
	d := models.ItemDraft{
		Type:     s.ItemType,
		Content:  row.String(s.ContentColumn),
		Metadata: map[string]any{},
	}
	if s.TypeOf != nil {
		d.Type = s.TypeOf(row)
	}

	for _, c := range s.TitleColumns {
		if v := row.String(c); v != "" {
			d.Title = v
			break
		}
	}
	if d.Title == "" && s.TitleFromContent {
		d.Title = firstLine(d.Content, maxDerivedTitle)
	}
	if d.Title == "" {
		d.Title = s.DefaultTitle
	}
	if d.Title == "" {
		return d, errors.New("missing title")
	}

	if v := row.String(paraColumn); v != "" {
		c := models.ParaCategory(strings.ToLower(v))
		d.ParaCategory = &c
	}
	if v := row.String(folderColumn); v != "" {
		d.FolderPath = &v
	}
	tags, err := parseTags(row[tagsColumn])
	if err != nil {
		return d, fmt.Errorf("tags: %w", err)
	}
	d.Tags = tags

	consumed := map[string]struct{}{
		s.KeyColumn: {}, s.OwnerColumn: {}, s.ContentColumn: {},
		tagsColumn: {}, paraColumn: {}, folderColumn: {},
	}
	for _, c := range s.TitleColumns {
		if row.String(c) == d.Title {
			consumed[c] = struct{}{}
		}
	}
	for col, v := range row {
		if _, ok := consumed[col]; ok || v == nil {
			continue
		}
		if ts, ok := v.(time.Time); ok {
			v = ts.UTC().Format(time.RFC3339Nano)
		}
		d.Metadata[col] = v
	}
	return d, nil
}

// parseTags accepts a JSON array or a comma separated list.
func parseTags(v any) ([]string, error) {
	var raw string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = strings.TrimSpace(x)
	default:
		raw = strings.TrimSpace(fmt.Sprint(x))
	}
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return nil, err
		}
		return models.CompactTags(tags), nil
	}
	return models.CompactTags(strings.Split(raw, ",")), nil
}

func firstLine(s string, max int) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(s), "\n", 2)[0])
	if utf8.RuneCountInString(line) <= max {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:max])) + "…"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
