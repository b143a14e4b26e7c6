// Package models defines the domain types for the knowledge vault.
package models

import (
	"strings"
	"time"
)

// ItemType is the closed set of content kinds a vault item can carry.
type ItemType string

const (
	TypeNote           ItemType = "note"
	TypeThought        ItemType = "thought"
	TypeThoughtSession ItemType = "thought_session"
	TypeIdea           ItemType = "idea"
	TypeArticle        ItemType = "article"
	TypeResearch       ItemType = "research"
	TypeQuote          ItemType = "quote"
	TypeWord           ItemType = "word"
	TypeStickyNote     ItemType = "sticky_note"
	TypeTask           ItemType = "task"
	TypePomodoro       ItemType = "pomodoro"
)

// ItemTypes lists every known item type in display order.
var ItemTypes = []ItemType{
	TypeNote, TypeThought, TypeThoughtSession, TypeIdea, TypeArticle,
	TypeResearch, TypeQuote, TypeWord, TypeStickyNote, TypeTask, TypePomodoro,
}

// Valid reports whether t is a member of ItemTypes.
func (t ItemType) Valid() bool {
	for _, known := range ItemTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParaCategory is a PARA-method classification, independent of ItemType.
type ParaCategory string

const (
	ParaProject  ParaCategory = "project"
	ParaArea     ParaCategory = "area"
	ParaResource ParaCategory = "resource"
	ParaArchive  ParaCategory = "archive"
)

// ParaCategories lists the four PARA buckets.
var ParaCategories = []ParaCategory{ParaProject, ParaArea, ParaResource, ParaArchive}

// Valid reports whether c is one of the PARA buckets.
func (c ParaCategory) Valid() bool {
	for _, known := range ParaCategories {
		if c == known {
			return true
		}
	}
	return false
}

// VaultItem is the unified, polymorphic vault entity. Type selects how
// Metadata is interpreted by clients; the storage shape never changes.
type VaultItem struct {
	ID           string         `json:"id"`
	Type         ItemType       `json:"type"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	ParaCategory *ParaCategory  `json:"para_category"`
	FolderPath   *string        `json:"folder_path"`
	Tags         []string       `json:"tags"`
	Metadata     map[string]any `json:"metadata"`
	// LinkedItems is a convenience copy of related ids. The link table is
	// authoritative; this list may lag behind it.
	LinkedItems []string  `json:"linked_items"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	SourceTable *string   `json:"source_table"`
	SourceID    *string   `json:"source_id"`
}

// HasTag reports whether the item carries tag.
func (i *VaultItem) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CompactTags trims tags, drops empty ones and removes duplicates, keeping
// the first occurrence.
func CompactTags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ItemDraft is the caller-supplied part of a new item.
type ItemDraft struct {
	Type         ItemType       `json:"type"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	ParaCategory *ParaCategory  `json:"para_category,omitempty"`
	FolderPath   *string        `json:"folder_path,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	LinkedItems  []string       `json:"linked_items,omitempty"`
}

// ItemFilter narrows ListItems. Zero values mean "no constraint".
type ItemFilter struct {
	Type         ItemType
	ParaCategory ParaCategory
	FolderPath   string
	TagsAny      []string
	SearchTerm   string
}

// VaultLink is a directed, typed edge between two items.
type VaultLink struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	LinkType  string    `json:"link_type"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultLinkType is used when a link is created without a label.
const DefaultLinkType = "related"

// Stats aggregates an owner's items. Every known type and PARA bucket is
// present in the maps, zero when empty.
type Stats struct {
	Total  int                  `json:"total"`
	ByType map[ItemType]int     `json:"by_type"`
	ByPara map[ParaCategory]int `json:"by_para"`
}

// NewStats returns Stats with zero-filled buckets.
func NewStats() *Stats {
	s := &Stats{
		ByType: make(map[ItemType]int, len(ItemTypes)),
		ByPara: make(map[ParaCategory]int, len(ParaCategories)),
	}
	for _, t := range ItemTypes {
		s.ByType[t] = 0
	}
	for _, c := range ParaCategories {
		s.ByPara[c] = 0
	}
	return s
}

// MigrationError describes one legacy record that could not be migrated.
// SourceID is empty when the whole source failed to list.
type MigrationError struct {
	SourceTable string `json:"source_table"`
	SourceID    string `json:"source_id"`
	Message     string `json:"message"`
}

// MigrationResult is the aggregate outcome of one migration run.
type MigrationResult struct {
	MigratedCount int              `json:"migrated_count"`
	SkippedCount  int              `json:"skipped_count"`
	Errors        []MigrationError `json:"errors"`
}

// Partial reports whether the run completed with per-record failures.
func (r *MigrationResult) Partial() bool {
	return len(r.Errors) > 0
}
