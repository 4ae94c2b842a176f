// Package memory provides an in-memory core.Store for tests and ephemeral use.
// All operations are safe for concurrent use. Nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/furrow/pkg/core"
)

// Store implements core.Store in memory.
type Store struct {
	mu     sync.RWMutex
	spaces map[string]core.Space
	docs   map[string]core.Document
	calls  map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		spaces: make(map[string]core.Space),
		docs:   make(map[string]core.Document),
		calls:  make(map[string]int),
	}
}

// Calls returns how many times the named operation ran. Useful to assert
// batching (e.g. one ListDocumentsByIDs per push).
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

func (s *Store) Initialize(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) ListDocumentsByIDs(ctx context.Context, ids []string) ([]core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["ListDocumentsByIDs"]++

	var docs []core.Document
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			docs = append(docs, d)
		}
	}
	sortDocs(docs)
	return docs, nil
}

func (s *Store) ListDocumentsBySpace(ctx context.Context, spaceID string) ([]core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["ListDocumentsBySpace"]++

	var docs []core.Document
	for _, d := range s.docs {
		if d.SpaceID == spaceID {
			docs = append(docs, d)
		}
	}
	sortDocs(docs)
	return docs, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return core.Document{}, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	return d, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc core.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document has no ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["CreateDocument"]++

	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, id string, fields core.DocumentFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["UpdateDocument"]++

	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	fields.Apply(&d)
	s.docs[id] = d
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	delete(s.docs, id)
	return nil
}

func (s *Store) GetSpace(ctx context.Context, id string) (core.Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, ok := s.spaces[id]
	if !ok {
		return core.Space{}, fmt.Errorf("space %s: %w", id, core.ErrNotFound)
	}
	return sp.Clone(), nil
}

func (s *Store) CreateSpace(ctx context.Context, space core.Space) error {
	if space.ID == "" {
		return fmt.Errorf("space has no ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spaces[space.ID]; ok {
		return fmt.Errorf("space %s already exists", space.ID)
	}
	s.spaces[space.ID] = space.Clone()
	return nil
}

func (s *Store) UpdateSpace(ctx context.Context, id string, update core.SpaceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["UpdateSpace"]++

	sp, ok := s.spaces[id]
	if !ok {
		return fmt.Errorf("space %s: %w", id, core.ErrNotFound)
	}
	update.Apply(&sp)
	s.spaces[id] = sp.Clone()
	return nil
}

func (s *Store) ListSpaces(ctx context.Context) ([]core.Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spaces := make([]core.Space, 0, len(s.spaces))
	for _, sp := range s.spaces {
		spaces = append(spaces, sp.Clone())
	}
	sort.Slice(spaces, func(i, j int) bool { return spaces[i].ID < spaces[j].ID })
	return spaces, nil
}

func sortDocs(docs []core.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

var _ core.Store = (*Store)(nil)
