package models

import "encoding/json"

// Optional records whether a JSON key was present, so a partial update can
// tell "absent" apart from "explicitly null".
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON marks the field as set. A JSON null leaves Value at its zero value.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// ItemPatch is a partial update. Identity, ownership, creation time and
// provenance are deliberately absent.
//
// An empty ParaCategory or FolderPath clears the stored value.
type ItemPatch struct {
	Title        Optional[string]         `json:"title"`
	Content      Optional[string]         `json:"content"`
	ParaCategory Optional[ParaCategory]   `json:"para_category"`
	FolderPath   Optional[string]         `json:"folder_path"`
	Tags         Optional[[]string]       `json:"tags"`
	Metadata     Optional[map[string]any] `json:"metadata"`
	LinkedItems  Optional[[]string]       `json:"linked_items"`
}

// Empty reports whether no field is set.
func (p ItemPatch) Empty() bool {
	return !p.Title.Set && !p.Content.Set && !p.ParaCategory.Set && !p.FolderPath.Set &&
		!p.Tags.Set && !p.Metadata.Set && !p.LinkedItems.Set
}

// Apply merges the set fields onto a copy of item and returns it.
func (p ItemPatch) Apply(item VaultItem) VaultItem {
	if p.Title.Set {
		item.Title = p.Title.Value
	}
	if p.Content.Set {
		item.Content = p.Content.Value
	}
	if p.ParaCategory.Set {
		if p.ParaCategory.Value == "" {
			item.ParaCategory = nil
		} else {
			c := p.ParaCategory.Value
			item.ParaCategory = &c
		}
	}
	if p.FolderPath.Set {
		if p.FolderPath.Value == "" {
			item.FolderPath = nil
		} else {
			f := p.FolderPath.Value
			item.FolderPath = &f
		}
	}
	if p.Tags.Set {
		item.Tags = p.Tags.Value
	}
	if p.Metadata.Set {
		item.Metadata = p.Metadata.Value
	}
	if p.LinkedItems.Set {
		item.LinkedItems = p.LinkedItems.Value
	}
	return item
}
