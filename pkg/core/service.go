package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service handles the local business logic for documents: validation and the
// pending change bookkeeping that the next push clears.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a new Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SaveDocument creates or updates a document and records the pending change on its space.
func (s *Service) SaveDocument(ctx context.Context, spaceID, id, title, content string) error {
	if id == "" {
		return errors.New("document ID cannot be empty")
	}
	if spaceID == "" {
		return errors.New("space ID cannot be empty")
	}
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return fmt.Errorf("get space %s: %w", spaceID, err)
	}

	now := s.now().UTC()
	change := ChangeUpdate

	_, err = s.store.GetDocument(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		change = ChangeCreate
		err = s.store.CreateDocument(ctx, Document{
			ID:        id,
			SpaceID:   spaceID,
			Title:     title,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		})
	case err == nil:
		err = s.store.UpdateDocument(ctx, id, DocumentFields{
			Title:     &title,
			Content:   &content,
			UpdatedAt: &now,
		})
	}
	if err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}

	// Not yet pushed: an edit keeps the document a creation.
	if space.Changes[id] == ChangeCreate {
		change = ChangeCreate
	}
	return s.store.UpdateSpace(ctx, spaceID, SpaceUpdate{
		Changes: map[string]ChangeType{id: change},
	})
}

// GetDocument retrieves a document.
func (s *Service) GetDocument(ctx context.Context, id string) (Document, error) {
	if id == "" {
		return Document{}, errors.New("document ID cannot be empty")
	}
	return s.store.GetDocument(ctx, id)
}

// ListDocuments retrieves all documents of a space.
func (s *Service) ListDocuments(ctx context.Context, spaceID string) ([]Document, error) {
	return s.store.ListDocumentsBySpace(ctx, spaceID)
}

// DeleteDocument removes a document and records the pending deletion.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("document ID cannot be empty")
	}
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	return s.store.UpdateSpace(ctx, doc.SpaceID, SpaceUpdate{
		Changes: map[string]ChangeType{id: ChangeDelete},
	})
}

// SetActiveDocument marks the document currently open for a space.
func (s *Service) SetActiveDocument(ctx context.Context, spaceID, id string) error {
	return s.store.UpdateSpace(ctx, spaceID, SpaceUpdate{ActiveDocID: &id})
}

// Watch observes changes in the store if supported.
func (s *Service) Watch(ctx context.Context, pattern string) (<-chan Event, error) {
	w, ok := s.store.(Watchable)
	if !ok {
		return nil, errors.New("store does not support watching")
	}
	return w.Watch(ctx, pattern)
}
