package api

import "github.com/starford/kvault/internal/models"

// CreateItemRequest is the request body for creating an item.
type CreateItemRequest = models.ItemDraft

// UpdateItemRequest is a partial update; absent keys are left unchanged and
// unknown or immutable keys are rejected.
type UpdateItemRequest = models.ItemPatch

// CreateLinkRequest is the request body for linking an item to a target.
type CreateLinkRequest struct {
	TargetID string `json:"target_id" example:"6f1c..." validate:"required"`
	LinkType string `json:"link_type,omitempty" example:"reference"`
}

// ItemListResponse wraps item listings and search hits.
type ItemListResponse struct {
	Items []models.VaultItem `json:"items" validate:"required"`
	Total int                `json:"total" example:"42" validate:"required"`
}

// LinkListResponse wraps the links touching one item.
type LinkListResponse struct {
	Links []models.VaultLink `json:"links" validate:"required"`
}

// StatusResponse is returned by operations without a payload of their own.
type StatusResponse struct {
	Status string `json:"status" example:"ok" validate:"required"`
}

func itemList(items []models.VaultItem) ItemListResponse {
	if items == nil {
		items = []models.VaultItem{}
	}
	return ItemListResponse{Items: items, Total: len(items)}
}
