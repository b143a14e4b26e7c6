package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/kvault/internal/migration"
	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/store"
	"github.com/starford/kvault/internal/testutil"
)

func seedLegacy(t *testing.T, db *store.DB) {
	t.Helper()
	testutil.CreateLegacyTables(t, db.Conn())
	stmts := []string{
		`INSERT INTO notes VALUES ('n1', 'u1', 'Welcome', 'Hello vault', '["a","b","a"]', 'Project', '/inbox', '2024-01-01')`,
		`INSERT INTO notes VALUES ('n2', 'u2', 'Not mine', 'other owner', NULL, NULL, NULL, NULL)`,
		`INSERT INTO articles VALUES ('a1', 'u1', 'Paper', 'abstract', 'https://example.org/p', 1, NULL)`,
		`INSERT INTO articles VALUES ('a2', 'u1', 'Blog post', 'body', NULL, 0, NULL)`,
		`INSERT INTO thoughts VALUES ('t1', 'u1', NULL, 'First line of thought
and more', 'calm')`,
		`INSERT INTO pomodoro_sessions VALUES ('p1', 'u1', NULL, NULL, NULL, 25)`,
		`INSERT INTO quotes VALUES ('q1', 'u1', NULL, NULL, NULL)`,
		`INSERT INTO ideas VALUES ('i1', 'u1', 'Side project', 'build it', 'open', 'go, sqlite')`,
	}
	for _, s := range stmts {
		_, err := db.Conn().Exec(s)
		require.NoError(t, err, s)
	}
}

func bySource(t *testing.T, db *store.DB, table, id string) *models.VaultItem {
	t.Helper()
	it, err := db.ItemBySource(context.Background(), table, id)
	require.NoError(t, err)
	return it
}

func TestLegacyTables_Migrate(t *testing.T) {
	db := testutil.TestDB(t)
	seedLegacy(t, db)
	ctx := context.Background()

	e := migration.NewEngine(db, migration.LegacyTables(db.Conn(), migration.DefaultTables()),
		migration.WithConcurrency(3), migration.WithLogger(testutil.Logger()))
	res, err := e.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 6, res.MigratedCount)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "quotes", res.Errors[0].SourceTable)
	require.Equal(t, "q1", res.Errors[0].SourceID)
	require.Contains(t, res.Errors[0].Message, "missing title")

	note := bySource(t, db, "notes", "n1")
	require.Equal(t, models.TypeNote, note.Type)
	require.Equal(t, "Welcome", note.Title)
	require.Equal(t, "Hello vault", note.Content)
	require.Equal(t, []string{"a", "b"}, note.Tags)
	require.NotNil(t, note.ParaCategory)
	require.Equal(t, models.ParaProject, *note.ParaCategory)
	require.NotNil(t, note.FolderPath)
	require.Equal(t, "/inbox", *note.FolderPath)
	require.Equal(t, "2024-01-01", note.Metadata["created_at"])
	require.NotContains(t, note.Metadata, "title")
	require.NotContains(t, note.Metadata, "user_id")

	require.Equal(t, models.TypeResearch, bySource(t, db, "articles", "a1").Type)
	blog := bySource(t, db, "articles", "a2")
	require.Equal(t, models.TypeArticle, blog.Type)
	require.Nil(t, blog.Metadata["url"])

	thought := bySource(t, db, "thoughts", "t1")
	require.Equal(t, models.TypeThought, thought.Type)
	require.Equal(t, "First line of thought", thought.Title)
	require.Equal(t, "calm", thought.Metadata["mood"])

	pomo := bySource(t, db, "pomodoro_sessions", "p1")
	require.Equal(t, models.TypePomodoro, pomo.Type)
	require.Equal(t, "Focus session", pomo.Title)
	require.EqualValues(t, 25, pomo.Metadata["duration_minutes"])

	idea := bySource(t, db, "ideas", "i1")
	require.Equal(t, []string{"go", "sqlite"}, idea.Tags)
	require.Equal(t, "build it", idea.Content)

	// Other owners' rows stay where they are.
	_, err = db.ItemBySource(ctx, "notes", "n2")
	require.Error(t, err)

	again, err := e.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, again.MigratedCount)
	require.Equal(t, 6, again.SkippedCount)
}

func TestLegacyTables_MissingTable(t *testing.T) {
	db := testutil.TestDB(t)
	specs := []migration.TableSpec{{Table: "ghosts", TitleColumns: []string{"title"}, ItemType: models.TypeNote}}
	e := migration.NewEngine(db, migration.LegacyTables(db.Conn(), specs), migration.WithLogger(testutil.Logger()))

	res, err := e.Migrate(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Zero(t, res.MigratedCount)
	require.False(t, res.Partial())
}

func TestLegacyTables_PartialSchema(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	_, err := db.Conn().Exec(`
		CREATE TABLE notes (id TEXT PRIMARY KEY, user_id TEXT, title TEXT, content TEXT);
		CREATE TABLE words (id TEXT PRIMARY KEY, user_id TEXT, word TEXT, definition TEXT);
		INSERT INTO notes (id, user_id, title, content) VALUES ('n1', 'u1', 'Only note', 'body');
		INSERT INTO words (id, user_id, word, definition) VALUES ('w1', 'u1', 'petrichor', 'smell of rain');
	`)
	require.NoError(t, err)

	e := migration.NewEngine(db, migration.LegacyTables(db.Conn(), migration.DefaultTables()),
		migration.WithLogger(testutil.Logger()))
	for run := 0; run < 2; run++ {
		res, err := e.Migrate(ctx, "u1")
		require.NoError(t, err)
		require.Empty(t, res.Errors, "run %d", run)
		require.False(t, res.Partial(), "run %d", run)
		require.Equal(t, 2, res.MigratedCount+res.SkippedCount, "run %d", run)
	}
}

func TestSelectTables(t *testing.T) {
	all := migration.DefaultTables()
	require.Len(t, migration.SelectTables(all, nil), len(all))

	picked := migration.SelectTables(all, []string{"words", "notes", "unknown"})
	require.Len(t, picked, 2)
	require.Equal(t, "notes", picked[0].Table)
	require.Equal(t, "words", picked[1].Table)
}
