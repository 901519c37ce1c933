// Package articleservice coordinates article files, the block codec, and the index.
package articleservice

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/content"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/workflow"
)

// CategoryChecker reports whether a category id exists.
type CategoryChecker interface {
	Exists(id string) bool
}

// Detail is the full representation of an article.
type Detail struct {
	Path        string            `json:"path"`
	Title       string            `json:"title"`
	Category    string            `json:"category"`
	Status      workflow.Status   `json:"status"`
	Actions     []workflow.Action `json:"actions"`
	Tags        []string          `json:"tags"`
	Summary     string            `json:"summary"`
	Frontmatter map[string]any    `json:"frontmatter,omitempty"`
	Blocks      []content.Block   `json:"blocks"`
	HTML        string            `json:"html"`
	Media       []string          `json:"media"`
	Checksum    string            `json:"checksum"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ListItem is a lightweight item in a list response.
type ListItem struct {
	Path      string          `json:"path"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Status    workflow.Status `json:"status"`
	Tags      []string        `json:"tags"`
	Summary   string          `json:"summary"`
	Checksum  string          `json:"checksum"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateInput describes a new article. Blocks win over HTML when both are set.
type CreateInput struct {
	Path     string
	Title    string
	Category string
	Tags     []string
	Summary  string
	Blocks   []content.Block
	HTML     string
}

// UpdateInput changes an existing article. Nil fields are left as they are.
type UpdateInput struct {
	Title    *string
	Category *string
	Tags     *[]string
	Summary  *string
	Blocks   *[]content.Block
}

// Service coordinates storage and index operations.
type Service struct {
	store storage.Provider
	db    index.ArticleIndex
	cats  CategoryChecker
	conv  *converter

	// mu serialises read-check-write cycles so If-Match is honoured.
	mu       sync.Mutex
	onChange func(kind, path string)
}

// NewService creates a new article service. cats may be nil to skip
// category validation.
func NewService(store storage.Provider, db index.ArticleIndex, cats CategoryChecker) *Service {
	return &Service{store: store, db: db, cats: cats, conv: newConverter()}
}

// OnChange registers fn to run after every successful write with one of
// index.EventCreated, index.EventUpdated, or index.EventDeleted. fn runs
// while the service lock is held and must not call back into the service.
func (s *Service) OnChange(fn func(kind, path string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Service) notify(kind, p string) {
	if s.onChange != nil {
		s.onChange(kind, p)
	}
}

// Get reads an article from storage and decodes it.
func (s *Service) Get(_ context.Context, p string) (*Detail, error) {
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	return s.detail(p, data)
}

// GetBlocks returns only the blocks of an article and its checksum.
func (s *Service) GetBlocks(ctx context.Context, p string) ([]content.Block, string, error) {
	d, err := s.Get(ctx, p)
	if err != nil {
		return nil, "", err
	}
	return d.Blocks, d.Checksum, nil
}

// Create writes a new draft article and indexes it.
func (s *Service) Create(_ context.Context, in CreateInput) (*Detail, error) {
	if err := validation.ValidateStruct(&in,
		validation.Field(&in.Path, validation.Required, validation.Length(1, 512)),
		validation.Field(&in.Title, validation.Length(0, 300)),
		validation.Field(&in.Summary, validation.Length(0, 2000)),
	); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrValidation)
	}
	p, err := CleanPath(in.Path)
	if err != nil {
		return nil, err
	}

	blocks := in.Blocks
	if blocks == nil && in.HTML != "" {
		blocks = content.Decode(s.conv.Sanitize(in.HTML))
	}
	doc := parser.Document{
		Title:    strings.TrimSpace(in.Title),
		Category: in.Category,
		Status:   workflow.StatusDraft,
		Tags:     in.Tags,
		Summary:  in.Summary,
		Blocks:   blocks,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.store.Exists(p)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("article %s: %w", p, apperr.ErrAlreadyExists)
	}
	d, err := s.write(p, doc)
	if err != nil {
		return nil, err
	}
	s.notify(index.EventCreated, p)
	return d, nil
}

// Import sanitises foreign HTML, decodes it into blocks, and stores it as a
// new article. The first heading becomes the title.
func (s *Service) Import(ctx context.Context, p, html string) (*Detail, error) {
	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("html is required: %w", apperr.ErrValidation)
	}
	return s.Create(ctx, CreateInput{Path: p, HTML: html})
}

// Update applies in to the article with optimistic concurrency.
func (s *Service) Update(_ context.Context, p string, in UpdateInput, ifMatch string) (*Detail, error) {
	return s.rewrite(p, ifMatch, func(d *parser.Document) error {
		if in.Title != nil {
			d.Title = strings.TrimSpace(*in.Title)
		}
		if in.Category != nil {
			d.Category = *in.Category
		}
		if in.Tags != nil {
			d.Tags = *in.Tags
		}
		if in.Summary != nil {
			d.Summary = *in.Summary
		}
		if in.Blocks != nil {
			d.Blocks = *in.Blocks
		}
		return nil
	})
}

// ReplaceBlocks swaps the body of an article.
func (s *Service) ReplaceBlocks(ctx context.Context, p string, blocks []content.Block, ifMatch string) (*Detail, error) {
	if blocks == nil {
		blocks = []content.Block{}
	}
	return s.Update(ctx, p, UpdateInput{Blocks: &blocks}, ifMatch)
}

// Transition applies a review action.
func (s *Service) Transition(_ context.Context, p string, action workflow.Action, ifMatch string) (*Detail, error) {
	return s.rewrite(p, ifMatch, func(d *parser.Document) error {
		next, err := workflow.Transition(d.Status, action)
		if err != nil {
			return err
		}
		d.Status = next
		return nil
	})
}

// Move renames an article.
func (s *Service) Move(_ context.Context, from, to string) (*Detail, error) {
	from, err := CleanPath(from)
	if err != nil {
		return nil, err
	}
	to, err = CleanPath(to)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.read(from)
	if err != nil {
		return nil, err
	}
	if err := s.store.Move(from, to); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return nil, fmt.Errorf("article %s: %w", to, apperr.ErrAlreadyExists)
		}
		return nil, err
	}
	if err := s.db.DeleteArticle(from); err != nil {
		return nil, err
	}
	if err := index.IndexFile(s.db, to, data); err != nil {
		return nil, err
	}
	s.notify(index.EventDeleted, from)
	s.notify(index.EventCreated, to)
	return s.detail(to, data)
}

// Delete removes an article from storage and index.
func (s *Service) Delete(_ context.Context, p string) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(p); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("article %s: %w", p, apperr.ErrNotFound)
		}
		return err
	}
	if err := s.db.DeleteArticle(p); err != nil {
		return err
	}
	s.notify(index.EventDeleted, p)
	return nil
}

// ExportMarkdown renders an article body as Markdown.
func (s *Service) ExportMarkdown(ctx context.Context, p string) (string, error) {
	d, err := s.Get(ctx, p)
	if err != nil {
		return "", err
	}
	html := d.HTML
	if d.Title != "" && content.FirstHeading(d.Blocks) != d.Title {
		html = "<h1>" + content.Escape(d.Title) + "</h1>\n" + html
	}
	return s.conv.Markdown(html)
}

// List returns paginated articles.
func (s *Service) List(_ context.Context, f index.ListFilter) ([]ListItem, int, error) {
	rows, total, err := s.db.ListArticles(f)
	if err != nil {
		return nil, 0, err
	}
	items := make([]ListItem, len(rows))
	for i, r := range rows {
		items[i] = ListItem{
			Path:      r.Path,
			Title:     r.Title,
			Category:  r.Category,
			Status:    workflow.Status(r.Status),
			Tags:      nonNilSlice(r.Tags),
			Summary:   r.Summary,
			Checksum:  r.Checksum,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required: %w", apperr.ErrValidation)
	}
	return s.db.Search(query, limit)
}

// MediaUsage lists the articles that embed url.
func (s *Service) MediaUsage(_ context.Context, url string) ([]string, error) {
	if url == "" {
		return nil, fmt.Errorf("url is required: %w", apperr.ErrValidation)
	}
	return s.db.ArticlesUsingMedia(url)
}

// rewrite loads p, checks ifMatch, lets fn edit the document, and writes it back.
func (s *Service) rewrite(p, ifMatch string, fn func(d *parser.Document) error) (*Detail, error) {
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.read(p)
	if err != nil {
		return nil, err
	}
	if !checksum.Matches(ifMatch, checksum.Sum(existing)) {
		return nil, fmt.Errorf("article %s changed: %w", p, apperr.ErrConflict)
	}
	res, err := parser.Parse(existing)
	if err != nil {
		return nil, err
	}
	doc := res.Document()
	if err := fn(&doc); err != nil {
		return nil, err
	}
	d, err := s.write(p, doc)
	if err != nil {
		return nil, err
	}
	s.notify(index.EventUpdated, p)
	return d, nil
}

// write validates, renders, stores, and indexes doc. Callers hold mu.
func (s *Service) write(p string, doc parser.Document) (*Detail, error) {
	if doc.Category != "" && s.cats != nil && !s.cats.Exists(doc.Category) {
		return nil, fmt.Errorf("category %s: %w", doc.Category, apperr.ErrNotFound)
	}
	for i, b := range doc.Blocks {
		if !b.Type.Valid() {
			return nil, fmt.Errorf("block %d: unknown type %q: %w", i, b.Type, apperr.ErrValidation)
		}
		if hasNUL(b) {
			return nil, fmt.Errorf("block %d: text contains a NUL character: %w", i, apperr.ErrValidation)
		}
	}
	doc.Blocks = content.EnsureIDs(doc.Blocks)

	data, err := parser.Render(doc)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(p, data); err != nil {
		return nil, err
	}
	if err := index.IndexFile(s.db, p, data); err != nil {
		return nil, err
	}
	d, err := s.detail(p, data)
	if err != nil {
		return nil, err
	}
	// Keep caller-supplied ids; decoding the file mints fresh ones.
	if len(d.Blocks) == len(doc.Blocks) {
		for i := range d.Blocks {
			d.Blocks[i].ID = doc.Blocks[i].ID
		}
	}
	return d, nil
}

func (s *Service) read(p string) ([]byte, error) {
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("article %s: %w", p, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// detail builds a Detail from raw data without re-reading the file.
func (s *Service) detail(p string, data []byte) (*Detail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	updated := time.Now()
	if row, err := s.db.GetArticle(p); err == nil {
		updated = row.UpdatedAt
	}
	return &Detail{
		Path:        p,
		Title:       res.Title,
		Category:    res.Category,
		Status:      res.Status,
		Actions:     nonNilSlice(workflow.Available(res.Status)),
		Tags:        nonNilSlice(res.Tags),
		Summary:     res.Summary,
		Frontmatter: res.Frontmatter,
		Blocks:      nonNilSlice(res.Blocks),
		HTML:        content.Encode(res.Blocks),
		Media:       nonNilSlice(res.Media),
		Checksum:    checksum.Sum(data),
		UpdatedAt:   updated,
	}, nil
}

// CleanPath normalises an article path relative to the content root. A
// missing extension gets ".html"; hidden segments and traversal are rejected.
func CleanPath(p string) (string, error) {
	p = strings.TrimPrefix(strings.TrimSpace(strings.ReplaceAll(p, "\\", "/")), "/")
	if p == "" {
		return "", fmt.Errorf("path is required: %w", apperr.ErrValidation)
	}
	p = path.Clean(p)
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." || strings.HasPrefix(seg, ".") {
			return "", fmt.Errorf("invalid path %q: %w", p, apperr.ErrValidation)
		}
	}
	switch path.Ext(p) {
	case "":
		p += storage.ArticleExt
	case storage.ArticleExt:
	default:
		return "", fmt.Errorf("path %q must end in %s: %w", p, storage.ArticleExt, apperr.ErrValidation)
	}
	return p, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// hasNUL reports whether any text payload of b holds U+0000, which the HTML
// parser drops and so cannot be stored.
func hasNUL(b content.Block) bool {
	fields := append([]string{b.Content, b.ImageURL, b.ImageAlt, b.VideoURL}, b.ListItems...)
	if b.CodeData != nil {
		fields = append(fields, b.CodeData.Code, b.CodeData.Language, b.CodeData.Filename)
	}
	return slices.ContainsFunc(fields, func(f string) bool { return strings.ContainsRune(f, 0) })
}
