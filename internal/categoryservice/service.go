// Package categoryservice owns the category tree and keeps it persisted.
package categoryservice

import (
	"context"
	"fmt"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/category"
	"github.com/starford/folio/internal/index"
)

// ArticleLookup finds articles filed under categories.
type ArticleLookup interface {
	ArticlesInCategories(ids []string) ([]string, error)
}

// DeleteResult reports what a cascading delete removed.
type DeleteResult struct {
	Removed  []string `json:"removed"`
	Orphaned []string `json:"orphaned"` // article paths still pointing at removed ids
}

// Service guards the in-memory tree and writes every mutation through to the store.
type Service struct {
	mu       sync.RWMutex
	tree     *category.Tree
	store    index.CategoryStore
	articles ArticleLookup
	onChange func()
}

// New loads the stored tree. articles may be nil.
func New(store index.CategoryStore, articles ArticleLookup) (*Service, error) {
	recs, err := store.ListCategories()
	if err != nil {
		return nil, err
	}
	tree, err := category.Build(recs)
	if err != nil {
		return nil, fmt.Errorf("categoryservice: load tree: %w", err)
	}
	return &Service{tree: tree, store: store, articles: articles}, nil
}

// OnChange registers fn to run after every successful mutation.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Forest returns the nested tree.
func (s *Service) Forest(_ context.Context) []category.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Forest()
}

// Flatten returns every category in pre-order with its ancestor path.
func (s *Service) Flatten(_ context.Context) []category.PathEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.FlattenWithPath()
}

// Get returns one category with its subtree.
func (s *Service) Get(_ context.Context, id string) (category.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Get(id)
}

// Exists reports whether id names a category.
func (s *Service) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Contains(id)
}

// ValidParents lists the ids id may be moved under.
func (s *Service) ValidParents(_ context.Context, id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.ValidParents(id)
}

// Descendants lists the ids below id.
func (s *Service) Descendants(_ context.Context, id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, err := s.tree.DescendantIDs(id)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range s.tree.FlattenWithPath() {
		if _, ok := set[e.ID]; ok {
			out = append(out, e.ID)
		}
	}
	return out, nil
}

// Create adds a category under parentID (empty for root).
func (s *Service) Create(_ context.Context, parentID, name string) (category.Node, error) {
	name, err := cleanName(name)
	if err != nil {
		return category.Node{}, err
	}
	var n category.Node
	err = s.mutate(func(t *category.Tree) error {
		var err error
		n, err = t.Insert(parentID, name)
		return err
	})
	return n, err
}

// Update renames id and, when parentID is non-nil, re-parents it.
func (s *Service) Update(_ context.Context, id string, name *string, parentID *string) (category.Node, error) {
	var clean string
	if name != nil {
		var err error
		if clean, err = cleanName(*name); err != nil {
			return category.Node{}, err
		}
	}
	var n category.Node
	err := s.mutate(func(t *category.Tree) error {
		if name != nil {
			if err := t.Update(id, clean); err != nil {
				return err
			}
		}
		if parentID != nil {
			if err := t.Move(id, *parentID); err != nil {
				return err
			}
		}
		var err error
		n, err = t.Get(id)
		return err
	})
	return n, err
}

// Delete removes id and its subtree. A category with children is only
// removed when confirm is set.
func (s *Service) Delete(_ context.Context, id string, confirm bool) (*DeleteResult, error) {
	var removed []string
	err := s.mutate(func(t *category.Tree) error {
		kids, err := t.HasChildren(id)
		if err != nil {
			return err
		}
		if kids && !confirm {
			return fmt.Errorf("category %s has subcategories, confirm to delete: %w", id, apperr.ErrConflict)
		}
		removed, err = t.Remove(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{Removed: removed, Orphaned: []string{}}
	if s.articles != nil {
		if res.Orphaned, err = s.articles.ArticlesInCategories(removed); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// mutate applies fn to a copy of the tree under the write lock. The copy
// replaces the live tree only after it has been persisted, so a failure in
// fn or in the store leaves both untouched.
func (s *Service) mutate(fn func(t *category.Tree) error) error {
	s.mu.Lock()
	next, err := category.Build(s.tree.Records())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.store.ReplaceCategories(next.Records()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.tree = next
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, validation.Required, validation.RuneLength(1, 120)); err != nil {
		return "", fmt.Errorf("name: %v: %w", err, apperr.ErrValidation)
	}
	return name, nil
}
