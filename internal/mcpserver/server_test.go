package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/kvault/internal/migration"
	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/query"
	"github.com/starford/kvault/internal/store"
	"github.com/starford/kvault/internal/testutil"
	"github.com/starford/kvault/internal/vault"
)

func testServer(t *testing.T, owner string) (*Server, *store.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	testutil.CreateLegacyTables(t, db.Conn())
	engine := migration.NewEngine(db,
		migration.LegacyTables(db.Conn(), migration.DefaultTables()),
		migration.WithLogger(testutil.Logger()))
	svc := vault.NewService(db, query.NewService(db), engine)
	return New(svc, owner), db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"search_items":   srv.searchItems,
		"list_items":     srv.listItems,
		"get_item":       srv.getItem,
		"create_item":    srv.createItem,
		"link_items":     srv.linkItems,
		"list_links":     srv.listLinks,
		"vault_stats":    srv.vaultStats,
		"migrate_legacy": srv.migrateLegacy,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func resultJSON[T any](t *testing.T, r *mcp.CallToolResult) T {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	var v T
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	return v
}

func TestCreateAndGetItem(t *testing.T) {
	srv, _ := testServer(t, "agent")

	created := resultJSON[models.VaultItem](t, callTool(t, srv, "create_item", map[string]any{
		"type":          "idea",
		"title":         "Self-hosted search",
		"content":       "index everything",
		"para_category": "project",
		"tags":          "search, infra",
	}))
	if created.CreatedBy != "agent" || created.Type != models.TypeIdea {
		t.Errorf("created = %+v", created)
	}
	if len(created.Tags) != 2 || created.Tags[1] != "infra" {
		t.Errorf("tags = %v", created.Tags)
	}

	got := resultJSON[models.VaultItem](t, callTool(t, srv, "get_item", map[string]any{"id": created.ID}))
	if got.Title != "Self-hosted search" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestCreateItemInvalid(t *testing.T) {
	srv, _ := testServer(t, "agent")

	for name, args := range map[string]map[string]any{
		"missing title": {"type": "note"},
		"unknown type":  {"type": "recipe", "title": "Soup"},
		"unknown para":  {"type": "note", "title": "x", "para_category": "inbox"},
	} {
		t.Run(name, func(t *testing.T) {
			if r := callTool(t, srv, "create_item", args); !r.IsError {
				t.Errorf("expected error, got %q", resultText(r))
			}
		})
	}
}

func TestGetItemForeign(t *testing.T) {
	srv, db := testServer(t, "agent")
	other, err := db.CreateItem(context.Background(), "someone", models.ItemDraft{Type: models.TypeNote, Title: "private"})
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "get_item", map[string]any{"id": other.ID})
	if !r.IsError || !strings.Contains(resultText(r), "forbidden") {
		t.Errorf("foreign get = %q", resultText(r))
	}
	r = callTool(t, srv, "get_item", map[string]any{"id": "missing"})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("missing get = %q", resultText(r))
	}
}

func TestSearchAndList(t *testing.T) {
	srv, _ := testServer(t, "agent")
	for _, title := range []string{"Alpha note", "Beta note", "Gamma"} {
		callTool(t, srv, "create_item", map[string]any{"type": "note", "title": title})
	}

	found := resultJSON[[]models.VaultItem](t, callTool(t, srv, "search_items", map[string]any{"query": "NOTE"}))
	if len(found) != 2 {
		t.Errorf("search hits = %d, want 2", len(found))
	}
	if r := callTool(t, srv, "search_items", map[string]any{}); !r.IsError {
		t.Error("expected error without query")
	}

	all := resultJSON[[]models.VaultItem](t, callTool(t, srv, "list_items", map[string]any{"type": "note"}))
	if len(all) != 3 {
		t.Errorf("list = %d, want 3", len(all))
	}
}

func TestLinkItems(t *testing.T) {
	srv, _ := testServer(t, "agent")
	a := resultJSON[models.VaultItem](t, callTool(t, srv, "create_item", map[string]any{"type": "note", "title": "A"}))
	b := resultJSON[models.VaultItem](t, callTool(t, srv, "create_item", map[string]any{"type": "quote", "title": "B"}))

	if r := callTool(t, srv, "list_links", map[string]any{"id": a.ID}); resultText(r) != "no links found" {
		t.Errorf("empty links = %q", resultText(r))
	}

	link := resultJSON[models.VaultLink](t, callTool(t, srv, "link_items", map[string]any{
		"source_id": a.ID, "target_id": b.ID, "link_type": "inspired_by",
	}))
	if link.LinkType != "inspired_by" {
		t.Errorf("link type = %q", link.LinkType)
	}

	links := resultJSON[[]models.VaultLink](t, callTool(t, srv, "list_links", map[string]any{"id": b.ID}))
	if len(links) != 1 || links[0].SourceID != a.ID {
		t.Errorf("links = %+v", links)
	}

	if r := callTool(t, srv, "link_items", map[string]any{"source_id": a.ID, "target_id": "ghost"}); !r.IsError {
		t.Error("expected error linking to a missing item")
	}
}

func TestStatsAndMigrate(t *testing.T) {
	srv, db := testServer(t, "agent")
	if _, err := db.Conn().Exec(`INSERT INTO words (id, user_id, word, definition) VALUES ('w1', 'agent', 'petrichor', 'smell of rain')`); err != nil {
		t.Fatal(err)
	}

	res := resultJSON[models.MigrationResult](t, callTool(t, srv, "migrate_legacy", nil))
	if res.MigratedCount != 1 {
		t.Errorf("migrate = %+v", res)
	}
	res = resultJSON[models.MigrationResult](t, callTool(t, srv, "migrate_legacy", nil))
	if res.SkippedCount != 1 || res.MigratedCount != 0 {
		t.Errorf("second migrate = %+v", res)
	}

	st := resultJSON[models.Stats](t, callTool(t, srv, "vault_stats", nil))
	if st.Total != 1 || st.ByType[models.TypeWord] != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestItemTypesResource(t *testing.T) {
	srv, _ := testServer(t, "agent")
	contents, err := srv.readItemTypes(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != ItemTypesURI {
		t.Fatalf("contents = %+v", contents)
	}
	for _, want := range []string{`"thought_session"`, `"pomodoro"`, `"archive"`} {
		if !strings.Contains(tc.Text, want) {
			t.Errorf("resource missing %s", want)
		}
	}
}

func TestEmptyOwnerIsRejected(t *testing.T) {
	srv, _ := testServer(t, "")
	if r := callTool(t, srv, "vault_stats", nil); !r.IsError {
		t.Error("expected unauthenticated error")
	}
}
