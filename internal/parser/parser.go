// Package parser reads and writes article files: YAML frontmatter followed
// by an HTML body of content blocks.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/folio/internal/content"
	"github.com/starford/folio/internal/workflow"
)

const delim = "---"

// Result holds the output of parsing an article file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Blocks      []content.Block
	Title       string
	Category    string
	Status      workflow.Status
	Tags        []string
	Summary     string
	Media       []string
}

// Document is everything needed to render an article file.
type Document struct {
	Title    string
	Category string
	Status   workflow.Status
	Tags     []string
	Summary  string
	Extra    map[string]any
	Blocks   []content.Block
}

type frontmatter struct {
	Title    string         `yaml:"title,omitempty"`
	Category string         `yaml:"category,omitempty"`
	Status   string         `yaml:"status,omitempty"`
	Tags     []string       `yaml:"tags,omitempty"`
	Summary  string         `yaml:"summary,omitempty"`
	Extra    map[string]any `yaml:",inline"`
}

var knownKeys = map[string]struct{}{
	"title": {}, "category": {}, "status": {}, "tags": {}, "summary": {},
}

// Parse splits frontmatter from the body, decodes the body into blocks, and
// derives the article metadata. It fails only when the frontmatter names an
// unknown review status.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)
	blocks := content.Decode(body)

	status, err := workflow.Parse(stringField(fm, "status"))
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Blocks:      blocks,
		Title:       deriveTitle(fm, blocks),
		Category:    stringField(fm, "category"),
		Status:      status,
		Tags:        extractTags(fm),
		Summary:     stringField(fm, "summary"),
		Media:       content.MediaURLs(blocks),
	}, nil
}

// Document returns the renderable form of r. Unknown frontmatter keys are kept.
func (r *Result) Document() Document {
	extra := make(map[string]any)
	for k, v := range r.Frontmatter {
		if _, known := knownKeys[k]; !known {
			extra[k] = v
		}
	}
	title := stringField(r.Frontmatter, "title")
	return Document{
		Title:    title,
		Category: r.Category,
		Status:   r.Status,
		Tags:     r.Tags,
		Summary:  r.Summary,
		Extra:    extra,
		Blocks:   r.Blocks,
	}
}

// Render writes d as an article file.
func Render(d Document) ([]byte, error) {
	fm := frontmatter{
		Title:    d.Title,
		Category: d.Category,
		Status:   string(d.Status),
		Tags:     d.Tags,
		Summary:  d.Summary,
		Extra:    d.Extra,
	}
	if fm.Status == "" {
		fm.Status = string(workflow.StatusDraft)
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(head)
	buf.WriteString(delim + "\n")
	if body := content.Encode(d.Blocks); body != "" {
		buf.WriteString(body)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- lines)
// from the body. Missing or invalid frontmatter leaves everything as body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	after := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(after), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

func stringField(fm map[string]any, key string) string {
	if fm == nil {
		return ""
	}
	s, _ := fm[key].(string)
	return strings.TrimSpace(s)
}

// extractTags collects the frontmatter "tags" list, deduplicated.
func extractTags(fm map[string]any) []string {
	raw, ok := fm["tags"].([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// deriveTitle prefers the frontmatter title, then the first heading1 block.
func deriveTitle(fm map[string]any, blocks []content.Block) string {
	if t := stringField(fm, "title"); t != "" {
		return t
	}
	return content.FirstHeading(blocks)
}
