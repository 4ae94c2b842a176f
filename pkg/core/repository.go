package core

import "context"

// Store defines the contract for the local document store.
// The sync engine only relies on these operations; adapters (filesystem,
// SQLite) decide how data is laid out.
type Store interface {
	// ListDocumentsByIDs returns the documents matching ids. Unknown ids are skipped.
	ListDocumentsByIDs(ctx context.Context, ids []string) ([]Document, error)

	// ListDocumentsBySpace returns every document of a space, ordered by id.
	ListDocumentsBySpace(ctx context.Context, spaceID string) ([]Document, error)

	// GetDocument returns ErrNotFound when the document does not exist.
	GetDocument(ctx context.Context, id string) (Document, error)

	// CreateDocument persists a new document.
	CreateDocument(ctx context.Context, doc Document) error

	// UpdateDocument applies fields to an existing document.
	UpdateDocument(ctx context.Context, id string, fields DocumentFields) error

	// DeleteDocument removes a document.
	DeleteDocument(ctx context.Context, id string) error

	// GetSpace returns ErrNotFound when the space does not exist.
	GetSpace(ctx context.Context, id string) (Space, error)

	// CreateSpace persists a new space.
	CreateSpace(ctx context.Context, space Space) error

	// UpdateSpace applies a partial update to a space.
	UpdateSpace(ctx context.Context, id string, update SpaceUpdate) error

	// ListSpaces returns all spaces, ordered by id.
	ListSpaces(ctx context.Context) ([]Space, error)

	// Initialize ensures the underlying storage is ready (directories, schema).
	Initialize(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Watchable is implemented by stores able to report local document changes.
type Watchable interface {
	// Watch emits an event for every local document change matching pattern.
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}

// Lockable is implemented by stores that live on a filesystem and can host
// cross-process lock files.
type Lockable interface {
	// LockDir returns the directory for lock files.
	LockDir() string
}

// Publisher notifies interested observers that a keyed value changed.
// Publish returns the epoch assigned to the value; epochs strictly increase
// per key, so observers see a change even when the value compares equal.
type Publisher interface {
	Publish(key string, value any) uint64
}
