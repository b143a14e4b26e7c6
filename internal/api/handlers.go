package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/vault"
)

// Handler holds API route handlers.
type Handler struct {
	svc *vault.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *vault.Service) *Handler {
	return &Handler{svc: svc}
}

// Initialize handles POST /api/vault/initialize.
//
//	@Summary		Create the vault tables if they do not exist
//	@Tags			vault
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/vault/initialize [post]
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Initialize(r.Context(), OwnerFromRequest(r)); err != nil {
		writeError(w, r, "initialize", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "initialized"})
}

// ListItems handles GET /api/vault/items.
//
//	@Summary		List the caller's items
//	@Tags			items
//	@Produce		json
//	@Param			type			query		string	false	"Item type"
//	@Param			para_category	query		string	false	"PARA category"
//	@Param			folder_path		query		string	false	"Exact folder path"
//	@Param			tags			query		string	false	"Comma separated; any may match"
//	@Param			search			query		string	false	"Substring of title or content"
//	@Success		200				{object}	ItemListResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, "list items", err)
		return
	}
	items, err := h.svc.ListItems(r.Context(), OwnerFromRequest(r), f)
	if err != nil {
		writeError(w, r, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, itemList(items))
}

// CreateItem handles POST /api/vault/items.
//
//	@Summary		Create an item owned by the caller
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateItemRequest	true	"Item to create"
//	@Success		201		{object}	models.VaultItem
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create item", err)
		return
	}
	item, err := h.svc.CreateItem(r.Context(), OwnerFromRequest(r), req)
	if err != nil {
		writeError(w, r, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// GetItem handles GET /api/vault/items/{id}.
//
//	@Summary		Get one item
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	models.VaultItem
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/items/{id} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.GetItem(r.Context(), OwnerFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// UpdateItem handles PUT /api/vault/items/{id}.
//
//	@Summary		Partially update an item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Item id"
//	@Param			body	body		UpdateItemRequest	true	"Fields to change"
//	@Success		200		{object}	models.VaultItem
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/items/{id} [put]
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var patch UpdateItemRequest
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, "update item", err)
		return
	}
	item, err := h.svc.UpdateItem(r.Context(), OwnerFromRequest(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, "update item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/vault/items/{id}.
//
//	@Summary		Delete an item and its links
//	@Tags			items
//	@Param			id	path	string	true	"Item id"
//	@Success		204	"Item deleted"
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/items/{id} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteItem(r.Context(), OwnerFromRequest(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateLink handles POST /api/vault/items/{id}/links.
//
//	@Summary		Link an item to another item
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Source item id"
//	@Param			body	body		CreateLinkRequest	true	"Target and label"
//	@Success		201		{object}	models.VaultLink
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/items/{id}/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create link", err)
		return
	}
	link, err := h.svc.CreateLink(r.Context(), OwnerFromRequest(r), chi.URLParam(r, "id"), req.TargetID, req.LinkType)
	if err != nil {
		writeError(w, r, "create link", err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// ListLinks handles GET /api/vault/items/{id}/links.
//
//	@Summary		List links where the item is source or target
//	@Tags			links
//	@Produce		json
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	LinkListResponse
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/items/{id}/links [get]
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.ListLinks(r.Context(), OwnerFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "list links", err)
		return
	}
	if links == nil {
		links = []models.VaultLink{}
	}
	writeJSON(w, http.StatusOK, LinkListResponse{Links: links})
}

// DeleteLink handles DELETE /api/vault/links/{id}.
//
//	@Summary		Delete a link
//	@Tags			links
//	@Param			id	path	string	true	"Link id"
//	@Success		204	"Link deleted"
//	@Failure		403	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/links/{id} [delete]
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteLink(r.Context(), OwnerFromRequest(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/vault/search.
//
//	@Summary		Case-insensitive search over titles and content
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Search text"
//	@Success		200	{object}	ItemListResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vault/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Search(r.Context(), OwnerFromRequest(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, itemList(items))
}

// Stats handles GET /api/vault/stats.
//
//	@Summary		Item counts per type and PARA category
//	@Tags			vault
//	@Produce		json
//	@Success		200	{object}	models.Stats
//	@Security		BearerAuth
//	@Router			/vault/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context(), OwnerFromRequest(r))
	if err != nil {
		writeError(w, r, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Migrate handles POST /api/vault/migrate.
//
//	@Summary		Copy the caller's legacy records into the vault
//	@Tags			vault
//	@Produce		json
//	@Success		200	{object}	models.MigrationResult
//	@Security		BearerAuth
//	@Router			/vault/migrate [post]
func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Migrate(r.Context(), OwnerFromRequest(r))
	if err != nil {
		writeError(w, r, "migrate", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseFilter(r *http.Request) (models.ItemFilter, error) {
	q := r.URL.Query()
	f := models.ItemFilter{
		Type:         models.ItemType(q.Get("type")),
		ParaCategory: models.ParaCategory(q.Get("para_category")),
		FolderPath:   q.Get("folder_path"),
	}
	if s := q.Get("search"); strings.TrimSpace(s) != "" {
		f.SearchTerm = s
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, apperr.Invalid("type", "unknown item type")
	}
	if f.ParaCategory != "" && !f.ParaCategory.Valid() {
		return f, apperr.Invalid("para_category", "unknown PARA category")
	}
	for _, t := range strings.Split(q.Get("tags"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.TagsAny = append(f.TagsAny, t)
		}
	}
	return f, nil
}
