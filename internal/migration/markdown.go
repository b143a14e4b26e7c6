package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/starford/kvault/internal/apperr"
	"github.com/starford/kvault/internal/models"
	"github.com/starford/kvault/internal/parser"
	"github.com/starford/kvault/internal/storage"
)

// MarkdownTable is the source_table recorded for items imported from files.
const MarkdownTable = "markdown_notes"

// MarkdownDir imports exported notes laid out as <root>/<owner>/**/*.md.
// Source ids are paths relative to root, so they stay unique across owners.
type MarkdownDir struct {
	src *storage.FS
}

// NewMarkdownDir opens root as a read-only markdown source.
func NewMarkdownDir(root string) (*MarkdownDir, error) {
	src, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	return &MarkdownDir{src: src}, nil
}

// Name returns MarkdownTable.
func (m *MarkdownDir) Name() string { return MarkdownTable }

// Root returns the absolute source directory.
func (m *MarkdownDir) Root() string { return m.src.Root() }

// Records lists the owner's markdown files. An owner without a directory
// simply has nothing to migrate.
func (m *MarkdownDir) Records(ctx context.Context, ownerID string) ([]Record, error) {
	if err := checkOwnerDir(ownerID); err != nil {
		return nil, err
	}
	files, err := m.src.List(ownerID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	prefix := ownerID + "/"
	out := make([]Record, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := strings.TrimPrefix(f.Path, prefix)
		out = append(out, Record{
			SourceTable: MarkdownTable,
			SourceID:    f.Path,
			Convert:     func() (models.ItemDraft, error) { return m.convert(f, rel) },
		})
	}
	return out, nil
}

func (m *MarkdownDir) convert(f storage.FileMeta, rel string) (models.ItemDraft, error) {
	data, err := m.src.Read(f.Path)
	if err != nil {
		return models.ItemDraft{}, err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return models.ItemDraft{}, err
	}

	d := models.ItemDraft{
		Type:    models.TypeNote,
		Title:   doc.Title,
		Content: doc.Body,
		Tags:    doc.Tags,
		Metadata: map[string]any{
			"checksum": f.Checksum,
			"modified": f.ModTime.UTC().Format(time.RFC3339),
		},
	}
	if d.Title == "" {
		d.Title = strings.TrimSuffix(path.Base(rel), ".md")
	}
	if t := doc.Field("type"); t != "" {
		d.Type = models.ItemType(strings.ToLower(t))
	}
	if p := doc.Field("para_category"); p != "" {
		c := models.ParaCategory(strings.ToLower(p))
		d.ParaCategory = &c
	}
	if dir := path.Dir(rel); dir != "." {
		folder := "/" + dir
		d.FolderPath = &folder
	}
	if len(doc.Links) > 0 {
		d.Metadata["wikilinks"] = doc.Links
	}
	for k, v := range doc.Frontmatter {
		switch k {
		case "title", "type", "para_category", "tags":
			continue
		}
		d.Metadata[k] = v
	}
	return d, nil
}

func checkOwnerDir(ownerID string) error {
	if ownerID == "" || ownerID == "." || ownerID == ".." ||
		strings.ContainsAny(ownerID, `/\`) || strings.ContainsRune(ownerID, os.PathSeparator) {
		return apperr.Invalid("owner_id", fmt.Sprintf("%q cannot name a directory", ownerID))
	}
	return nil
}
