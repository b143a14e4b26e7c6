package vault_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/migration"
	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/query"
	"github.com/starford/kvault/internal/store"
	"github.com/starford/kvault/internal/testutil"
	"github.com/starford/kvault/internal/vault"
)

type event struct{ owner, kind, id string }

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) PublishVaultEvent(owner, kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{owner, kind, id})
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

func newService(t *testing.T, opts ...vault.Option) (*vault.Service, *store.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	testutil.CreateLegacyTables(t, db.Conn())
	engine := migration.NewEngine(db,
		migration.LegacyTables(db.Conn(), migration.DefaultTables()),
		migration.WithLogger(testutil.Logger()))
	return vault.NewService(db, query.NewService(db), engine, opts...), db
}

func note(title string) models.ItemDraft {
	return models.ItemDraft{Type: models.TypeNote, Title: title, Content: "hi"}
}

func TestScenario(t *testing.T) {
	rec := &recorder{}
	svc, db := newService(t, vault.WithNotifier(rec))
	ctx := context.Background()
	require.NoError(t, svc.Initialize(ctx, "u1"))

	welcome, err := svc.CreateItem(ctx, "u1", note("Welcome"))
	require.NoError(t, err)
	require.NotEmpty(t, welcome.ID)
	require.Equal(t, "u1", welcome.CreatedBy)
	require.Equal(t, welcome.CreatedAt, welcome.UpdatedAt)

	other, err := svc.CreateItem(ctx, "u1", note("Other"))
	require.NoError(t, err)

	link, err := svc.CreateLink(ctx, "u1", welcome.ID, other.ID, "reference")
	require.NoError(t, err)
	links, err := svc.ListLinks(ctx, "u1", welcome.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "reference", links[0].LinkType)
	require.Equal(t, link.ID, links[0].ID)

	for i := 1; i <= 5; i++ {
		_, err := db.Conn().Exec(`INSERT INTO notes (id, user_id, title, content) VALUES (?, 'u1', ?, 'legacy')`,
			fmt.Sprintf("legacy-%d", i), fmt.Sprintf("Legacy %d", i))
		require.NoError(t, err)
	}
	first, err := svc.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 5, first.MigratedCount)

	second, err := svc.Migrate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 0, second.MigratedCount)
	require.Equal(t, 5, second.SkippedCount)

	st, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 7, st.Total)

	require.Equal(t, []string{
		vault.EventItemCreated, vault.EventItemCreated, vault.EventLinkCreated, vault.EventMigrated,
	}, rec.kinds())
}

func TestUnauthenticated(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	calls := map[string]func() error{
		"initialize": func() error { return svc.Initialize(ctx, "") },
		"create":     func() error { _, err := svc.CreateItem(ctx, "", note("x")); return err },
		"get":        func() error { _, err := svc.GetItem(ctx, "", "id"); return err },
		"list":       func() error { _, err := svc.ListItems(ctx, " ", models.ItemFilter{}); return err },
		"search":     func() error { _, err := svc.Search(ctx, "", "x"); return err },
		"stats":      func() error { _, err := svc.Stats(ctx, ""); return err },
		"migrate":    func() error { _, err := svc.Migrate(ctx, ""); return err },
		"deleteLink": func() error { return svc.DeleteLink(ctx, "", "id") },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), apperr.ErrUnauthenticated)
		})
	}
}

func TestOwnership(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	mine, err := svc.CreateItem(ctx, "u1", note("Mine"))
	require.NoError(t, err)
	theirs, err := svc.CreateItem(ctx, "u2", note("Theirs"))
	require.NoError(t, err)

	_, err = svc.GetItem(ctx, "u2", mine.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.GetItem(ctx, "u2", "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.UpdateItem(ctx, "u2", mine.ID, models.ItemPatch{Title: models.Some("hijack")})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	require.ErrorIs(t, svc.DeleteItem(ctx, "u2", mine.ID), apperr.ErrForbidden)
	_, err = svc.ListLinks(ctx, "u2", mine.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.CreateLink(ctx, "u2", mine.ID, theirs.ID, "")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := svc.GetItem(ctx, "u1", mine.ID)
	require.NoError(t, err)
	require.Equal(t, "Mine", got.Title)

	list, err := svc.ListItems(ctx, "u2", models.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, theirs.ID, list[0].ID)
}

func TestConcealExistence(t *testing.T) {
	svc, _ := newService(t, vault.WithConcealExistence(true))
	ctx := context.Background()
	mine, err := svc.CreateItem(ctx, "u1", note("Mine"))
	require.NoError(t, err)

	_, err = svc.GetItem(ctx, "u2", mine.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, svc.DeleteItem(ctx, "u2", mine.ID), apperr.ErrNotFound)
}

func TestUpdateItem(t *testing.T) {
	rec := &recorder{}
	svc, _ := newService(t, vault.WithNotifier(rec))
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, "u1", note("Draft"))
	require.NoError(t, err)

	_, err = svc.UpdateItem(ctx, "u1", it.ID, models.ItemPatch{})
	require.True(t, apperr.IsValidation(err))

	_, err = svc.UpdateItem(ctx, "u1", it.ID, models.ItemPatch{Title: models.Some("")})
	require.True(t, apperr.IsValidation(err))

	up, err := svc.UpdateItem(ctx, "u1", it.ID, models.ItemPatch{
		Title:        models.Some("Final"),
		ParaCategory: models.Some(models.ParaResource),
	})
	require.NoError(t, err)
	require.Equal(t, "Final", up.Title)
	require.Equal(t, models.ParaResource, *up.ParaCategory)
	require.True(t, up.UpdatedAt.After(it.UpdatedAt))
	require.Equal(t, it.CreatedAt, up.CreatedAt)
	require.Equal(t, []string{vault.EventItemCreated, vault.EventItemUpdated}, rec.kinds())
}

func TestLinks(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a, _ := svc.CreateItem(ctx, "u1", note("A"))
	b, _ := svc.CreateItem(ctx, "u1", note("B"))
	foreign, _ := svc.CreateItem(ctx, "u2", note("F"))

	_, err := svc.CreateLink(ctx, "u1", a.ID, "missing", "")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.CreateLink(ctx, "u1", a.ID, " ", "")
	require.True(t, apperr.IsValidation(err))

	l, err := svc.CreateLink(ctx, "u1", a.ID, b.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.DefaultLinkType, l.LinkType)

	fromB, err := svc.ListLinks(ctx, "u1", b.ID)
	require.NoError(t, err)
	require.Len(t, fromB, 1)

	// A non-owner of the source item cannot remove the link.
	require.ErrorIs(t, svc.DeleteLink(ctx, "u2", l.ID), apperr.ErrForbidden)
	require.ErrorIs(t, svc.DeleteLink(ctx, "u1", "missing"), apperr.ErrNotFound)

	require.NoError(t, svc.DeleteLink(ctx, "u1", l.ID))
	require.ErrorIs(t, svc.DeleteLink(ctx, "u1", l.ID), apperr.ErrNotFound)

	// Deleting an item prunes its links.
	_, err = svc.CreateLink(ctx, "u2", foreign.ID, a.ID, "cites")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteItem(ctx, "u1", a.ID))
	left, err := svc.ListLinks(ctx, "u2", foreign.ID)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestSearchAndStatsScoped(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateItem(ctx, "u1", note("Shared word"))
	_, _ = svc.CreateItem(ctx, "u2", note("Shared word"))

	found, err := svc.Search(ctx, "u1", "SHARED")
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = svc.Search(ctx, "u1", "")
	require.True(t, apperr.IsValidation(err))

	st, err := svc.Stats(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, 1, st.Total)
}
