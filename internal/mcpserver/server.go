// Package mcpserver exposes the knowledge vault to LLM clients as an MCP
// (Model Context Protocol) server over stdio. Every tool acts as one
// configured owner.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/vault"
)

// ItemTypesURI is the resource describing the type and PARA vocabularies.
const ItemTypesURI = "kvault://item-types"

// Server wraps the MCP server with vault tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *vault.Service
	owner string
}

// New creates an MCP server acting as ownerID with all vault tools registered.
func New(svc *vault.Service, ownerID string) *Server {
	s := &Server{svc: svc, owner: ownerID}

	s.mcp = server.NewMCPServer(
		"kvault",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_items",
		mcp.WithDescription("Case-insensitive search through item titles and content, most recently updated first."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
	), s.searchItems)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List vault items, optionally narrowed by type, PARA category, folder or tags."),
		mcp.WithString("type", mcp.Description("Item type"), mcp.Enum(typeNames()...)),
		mcp.WithString("para_category", mcp.Description("PARA category"), mcp.Enum(paraNames()...)),
		mcp.WithString("folder_path", mcp.Description("Exact folder path")),
		mcp.WithString("tags", mcp.Description("Comma separated tags; items with any of them match")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("get_item",
		mcp.WithDescription("Read one vault item by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.getItem)

	s.mcp.AddTool(mcp.NewTool("create_item",
		mcp.WithDescription("Create a vault item. Read "+ItemTypesURI+" for the allowed types and PARA categories."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Item type"), mcp.Enum(typeNames()...)),
		mcp.WithString("title", mcp.Required(), mcp.Description("Non-empty title")),
		mcp.WithString("content", mcp.Description("Markdown body")),
		mcp.WithString("para_category", mcp.Description("PARA category"), mcp.Enum(paraNames()...)),
		mcp.WithString("folder_path", mcp.Description("Folder the item is filed under")),
		mcp.WithString("tags", mcp.Description("Comma separated tags")),
	), s.createItem)

	s.mcp.AddTool(mcp.NewTool("link_items",
		mcp.WithDescription("Create a directed, typed link between two items."),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Item the link starts from")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("Item the link points to")),
		mcp.WithString("link_type", mcp.Description("Free-form label, defaults to related")),
	), s.linkItems)

	s.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List links where the item is either source or target."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.listLinks)

	s.mcp.AddTool(mcp.NewTool("vault_stats",
		mcp.WithDescription("Count items per type and per PARA category."),
	), s.vaultStats)

	s.mcp.AddTool(mcp.NewTool("migrate_legacy",
		mcp.WithDescription("Copy legacy records into the vault. Safe to repeat; already migrated records are skipped."),
	), s.migrateLegacy)

	s.mcp.AddResource(
		mcp.NewResource(ItemTypesURI, "Item vocabularies",
			mcp.WithResourceDescription("Allowed item types and PARA categories."),
			mcp.WithMIMEType("application/json"),
		),
		s.readItemTypes,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.svc.Search(ctx, s.owner, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) listItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := models.ItemFilter{
		Type:         models.ItemType(req.GetString("type", "")),
		ParaCategory: models.ParaCategory(req.GetString("para_category", "")),
		FolderPath:   req.GetString("folder_path", ""),
		TagsAny:      splitTags(req.GetString("tags", "")),
	}
	items, err := s.svc.ListItems(ctx, s.owner, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) getItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.svc.GetItem(ctx, s.owner, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", id, err)), nil
	}
	return jsonResult(item)
}

func (s *Server) createItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d := models.ItemDraft{
		Type:    models.ItemType(typ),
		Title:   title,
		Content: req.GetString("content", ""),
		Tags:    splitTags(req.GetString("tags", "")),
	}
	if p := req.GetString("para_category", ""); p != "" {
		c := models.ParaCategory(p)
		d.ParaCategory = &c
	}
	if f := req.GetString("folder_path", ""); f != "" {
		d.FolderPath = &f
	}

	item, err := s.svc.CreateItem(ctx, s.owner, d)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(item)
}

func (s *Server) linkItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := req.RequireString("target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	link, err := s.svc.CreateLink(ctx, s.owner, src, dst, req.GetString("link_type", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(link)
}

func (s *Server) listLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.ListLinks(ctx, s.owner, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no links found"), nil
	}
	return jsonResult(links)
}

func (s *Server) vaultStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Stats(ctx, s.owner)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) migrateLegacy(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Migrate(ctx, s.owner)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) readItemTypes(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(map[string]any{
		"item_types":      models.ItemTypes,
		"para_categories": models.ParaCategories,
		"default_link":    models.DefaultLinkType,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ItemTypesURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func typeNames() []string {
	out := make([]string, len(models.ItemTypes))
	for i, t := range models.ItemTypes {
		out[i] = string(t)
	}
	return out
}

func paraNames() []string {
	out := make([]string, len(models.ParaCategories))
	for i, c := range models.ParaCategories {
		out[i] = string(c)
	}
	return out
}
