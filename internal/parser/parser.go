// Package parser reads exported Markdown notes: YAML frontmatter, the body,
// [[wikilinks]] and #tags.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/kvault/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([\p{L}][\p{L}\p{N}_/-]*)`)
)

const fence = "---"

// Document is a parsed Markdown note.
type Document struct {
	Frontmatter map[string]any
	Body        string
	Links       []string
	Tags        []string
	Title       string
}

// Parse splits raw Markdown into frontmatter and body and collects links,
// tags and a title. Unparseable frontmatter is treated as body text.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Document{}, nil
	}
	fm, body := splitFrontmatter(data)
	doc := &Document{Frontmatter: fm, Body: body}
	doc.Links = wikilinks(body)
	doc.Tags = mergeTags(listField(fm, "tags"), inlineTags(body))
	doc.Title = doc.Field("title")
	if doc.Title == "" {
		doc.Title = firstHeading(body)
	}
	return doc, nil
}

// Field returns a scalar frontmatter value as trimmed text, or "".
func (d *Document) Field(key string) string {
	if d == nil || d.Frontmatter == nil {
		return ""
	}
	switch v := d.Frontmatter[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any, map[string]any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func splitFrontmatter(data []byte) (map[string]any, string) {
	trimmed := bytes.TrimLeft(data, "\r\n")
	if !bytes.HasPrefix(trimmed, []byte(fence)) {
		return nil, string(data)
	}
	rest := trimmed[len(fence):]
	end := bytes.Index(rest, []byte("\n"+fence))
	if end < 0 {
		return nil, string(data)
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, string(data)
	}
	body := strings.TrimLeft(string(rest[end+1+len(fence):]), "\r\n")
	return fm, body
}

// listField reads a frontmatter list given either as a YAML sequence or as
// a comma separated string.
func listField(fm map[string]any, key string) []string {
	if fm == nil {
		return nil
	}
	var out []string
	switch v := fm[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		out = strings.Split(v, ",")
	}
	return out
}

func inlineTags(body string) []string {
	var out []string
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

func mergeTags(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		for _, t := range l {
			all = append(all, strings.TrimPrefix(strings.TrimSpace(t), "#"))
		}
	}
	return models.CompactTags(all)
}

// wikilinks returns unique link targets in order of appearance, with
// [[Target|Alias]] reduced to Target.
func wikilinks(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range wikilinkRe.FindAllStringSubmatch(body, -1) {
		target, _, _ := strings.Cut(m[1], "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if h, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(h)
		}
	}
	return ""
}
