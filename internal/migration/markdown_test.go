package migration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/migration"
	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/storage"
	"github.com/starford/kvault/internal/testutil"
)

func TestMarkdownDir_Migrate(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"u1/welcome.md": "---\ntitle: Welcome\ntype: Idea\npara_category: Area\ntags: [start]\nsource: export\n---\nSee [[Roadmap]] #intro\n",
		"u1/projects/roadmap.md": "# Roadmap\nQ1 goals",
		"u1/projects/untitled.md": "just text",
		"u1/.obsidian/config.md":  "hidden",
		"u2/welcome.md":           "# Someone else",
	})
	md, err := migration.NewMarkdownDir(root)
	require.NoError(t, err)
	require.Equal(t, migration.MarkdownTable, md.Name())

	db := testutil.TestDB(t)
	e := migration.NewEngine(db, []migration.Collaborator{md}, migration.WithLogger(testutil.Logger()))
	ctx := context.Background()

	res, err := e.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, res.MigratedCount)
	require.Empty(t, res.Errors)

	welcome := bySource(t, db, migration.MarkdownTable, "u1/welcome.md")
	require.Equal(t, "Welcome", welcome.Title)
	require.Equal(t, models.TypeIdea, welcome.Type)
	require.Equal(t, models.ParaArea, *welcome.ParaCategory)
	require.Nil(t, welcome.FolderPath)
	require.Equal(t, []string{"start", "intro"}, welcome.Tags)
	require.Equal(t, "export", welcome.Metadata["source"])
	require.Equal(t, []any{"Roadmap"}, welcome.Metadata["wikilinks"])
	raw, err := os.ReadFile(filepath.Join(root, "u1", "welcome.md"))
	require.NoError(t, err)
	require.Equal(t, storage.Checksum(raw), welcome.Metadata["checksum"])

	roadmap := bySource(t, db, migration.MarkdownTable, "u1/projects/roadmap.md")
	require.Equal(t, "Roadmap", roadmap.Title)
	require.Equal(t, models.TypeNote, roadmap.Type)
	require.Equal(t, "/projects", *roadmap.FolderPath)

	untitled := bySource(t, db, migration.MarkdownTable, "u1/projects/untitled.md")
	require.Equal(t, "untitled", untitled.Title)

	// u2 has a file with the same relative name; it must not be skipped.
	res2, err := e.Migrate(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, 1, res2.MigratedCount)
	require.Equal(t, 0, res2.SkippedCount)
}

func TestMarkdownDir_UnknownOwnerHasNothing(t *testing.T) {
	md, err := migration.NewMarkdownDir(t.TempDir())
	require.NoError(t, err)
	recs, err := md.Records(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestMarkdownDir_RejectsPathOwners(t *testing.T) {
	md, err := migration.NewMarkdownDir(t.TempDir())
	require.NoError(t, err)
	for _, owner := range []string{"..", "a/b", `a\b`, "."} {
		_, err := md.Records(context.Background(), owner)
		require.True(t, apperr.IsValidation(err), owner)
	}
}

func TestMarkdownDir_BadTypeIsRecordError(t *testing.T) {
	root := testutil.WriteFiles(t, map[string]string{
		"u1/odd.md": "---\ntype: recipe\n---\n# Soup\n",
	})
	md, err := migration.NewMarkdownDir(root)
	require.NoError(t, err)
	e := migration.NewEngine(testutil.TestDB(t), []migration.Collaborator{md}, migration.WithLogger(testutil.Logger()))

	res, err := e.Migrate(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 0, res.MigratedCount)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "u1/odd.md", res.Errors[0].SourceID)
}
