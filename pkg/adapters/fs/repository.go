package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/furrow/pkg/core"
)

const (
	// DefaultSystemDir holds the index and lock files.
	DefaultSystemDir = ".furrow"

	spacesDir = "spaces"
	docsDir   = "docs"
)

// Repository implements core.Store on a directory tree:
//
//	<root>/spaces/<id>.json   one record per space (credential included, 0600)
//	<root>/docs/<id>.json     one record per document
//	<root>/.furrow/           index and lock files
type Repository struct {
	Path   string
	config Config
	ser    Serializer
	index  *index

	mu sync.RWMutex // serializes record writes

	stateMu       sync.Mutex
	watcherActive bool
	lastScan      *time.Time
}

// Config holds the configuration for the filesystem store.
type Config struct {
	Path      string
	MustExist bool
	SystemDir string // defaults to ".furrow"
	Format    string // "json" (default) or "yaml"
	Strict    bool   // reject unknown fields when reading records
	Logger    *slog.Logger

	// ErrorHandler receives watcher errors that cannot be returned to a caller.
	ErrorHandler func(error)
}

// NewRepository creates a filesystem-backed store. Call Initialize before use.
func NewRepository(config Config) (*Repository, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	if config.Format == "" {
		config.Format = "json"
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	ser, ok := DefaultSerializers(config.Strict)[config.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported store format: %s", config.Format)
	}

	return &Repository{
		Path:   config.Path,
		config: config,
		ser:    ser,
		index:  newIndex(filepath.Join(config.Path, config.SystemDir)),
	}, nil
}

// Initialize creates the directory layout and loads the index.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.MustExist {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("store path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", r.Path)
		}
	}

	for _, dir := range []string{r.Path, r.dir(spacesDir), r.dir(docsDir), r.dir(r.config.SystemDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if _, err := r.ensureIgnore(); err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}

	if err := r.index.Load(); err != nil {
		r.config.Logger.Warn("index unreadable, rebuilding", "error", err)
	}
	return nil
}

// ensureIgnore keeps the system directory out of version control when the
// store lives inside a working copy.
func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	ignoreEntry := r.config.SystemDir + "/"

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == ignoreEntry {
			return false, nil
		}
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	if _, err := f.WriteString(ignoreEntry + "\n"); err != nil {
		return false, err
	}
	return true, nil
}

// Close flushes the index.
func (r *Repository) Close() error {
	return r.index.Save()
}

// LockDir implements core.Lockable.
func (r *Repository) LockDir() string {
	return filepath.Join(r.Path, r.config.SystemDir, "locks")
}

func (r *Repository) dir(name string) string {
	return filepath.Join(r.Path, name)
}

func (r *Repository) docFile(id string) string {
	return filepath.Join(r.Path, docsDir, id+r.ser.Ext())
}

func (r *Repository) spaceFile(id string) string {
	return filepath.Join(r.Path, spacesDir, id+r.ser.Ext())
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is empty")
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || isTempFile(id) {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

// GetDocument reads a document record.
func (r *Repository) GetDocument(ctx context.Context, id string) (core.Document, error) {
	if err := validateID(id); err != nil {
		return core.Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readDocument(id)
}

func (r *Repository) readDocument(id string) (core.Document, error) {
	data, err := os.ReadFile(r.docFile(id))
	if os.IsNotExist(err) {
		return core.Document{}, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Document{}, err
	}

	var rec documentRecord
	if err := r.ser.Unmarshal(data, &rec); err != nil {
		return core.Document{}, fmt.Errorf("failed to parse document %s: %w", id, err)
	}
	doc := rec.document()
	doc.ID = id
	return doc, nil
}

func (r *Repository) writeDocument(doc core.Document) error {
	data, err := r.ser.Marshal(toDocumentRecord(doc))
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	path := r.docFile(doc.ID)
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", doc.ID, err)
	}
	if info, err := os.Stat(path); err == nil {
		r.index.Set(filepath.Base(path), &indexEntry{
			ID:           doc.ID,
			SpaceID:      doc.SpaceID,
			LastModified: info.ModTime(),
		})
	}
	return nil
}

// ListDocumentsByIDs reads the given documents. Unknown ids are skipped.
func (r *Repository) ListDocumentsByIDs(ctx context.Context, ids []string) ([]core.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]core.Document, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if validateID(id) != nil {
			continue
		}
		doc, err := r.readDocument(id)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sortDocuments(docs)
	return docs, nil
}

// ListDocumentsBySpace scans the docs directory. Files whose mtime matches
// the index are filtered by space without being parsed; unparseable files
// are skipped.
func (r *Repository) ListDocumentsBySpace(ctx context.Context, spaceID string) ([]core.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir(docsDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var docs []core.Document
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || isTempFile(name) || filepath.Ext(name) != r.ser.Ext() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		seen[name] = true

		if entry, hit := r.index.Get(name, info.ModTime()); hit && entry.SpaceID != spaceID {
			continue
		}

		id := strings.TrimSuffix(name, r.ser.Ext())
		doc, err := r.readDocument(id)
		if err != nil {
			r.config.Logger.Warn("skipping unreadable document", "id", id, "error", err)
			continue
		}
		r.index.Set(name, &indexEntry{ID: id, SpaceID: doc.SpaceID, LastModified: info.ModTime()})
		if doc.SpaceID == spaceID {
			docs = append(docs, doc)
		}
	}

	r.index.Prune(seen)
	if err := r.index.Save(); err != nil {
		r.config.Logger.Debug("index save failed", "error", err)
	}
	r.recordScan()

	sortDocuments(docs)
	return docs, nil
}

// CreateDocument writes a new document record.
func (r *Repository) CreateDocument(ctx context.Context, doc core.Document) error {
	if err := validateID(doc.ID); err != nil {
		return fmt.Errorf("document: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.docFile(doc.ID)); err == nil {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	if err := os.MkdirAll(r.dir(docsDir), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	return r.writeDocument(doc)
}

// UpdateDocument applies fields to an existing document record.
func (r *Repository) UpdateDocument(ctx context.Context, id string, fields core.DocumentFields) error {
	if err := validateID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readDocument(id)
	if err != nil {
		return err
	}
	fields.Apply(&doc)
	return r.writeDocument(doc)
}

// DeleteDocument removes a document record.
func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.docFile(id)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
		}
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	// The index entry stays until the next scan so the watcher can still
	// attribute the deletion to its space.
	return nil
}

// GetSpace reads a space record.
func (r *Repository) GetSpace(ctx context.Context, id string) (core.Space, error) {
	if err := validateID(id); err != nil {
		return core.Space{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readSpace(id)
}

func (r *Repository) readSpace(id string) (core.Space, error) {
	data, err := os.ReadFile(r.spaceFile(id))
	if os.IsNotExist(err) {
		return core.Space{}, fmt.Errorf("space %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Space{}, err
	}

	var rec spaceRecord
	if err := r.ser.Unmarshal(data, &rec); err != nil {
		return core.Space{}, fmt.Errorf("failed to parse space %s: %w", id, err)
	}
	space := rec.space()
	space.ID = id
	return space, nil
}

// Space records carry the access token, so they are private to the owner.
func (r *Repository) writeSpace(space core.Space) error {
	data, err := r.ser.Marshal(toSpaceRecord(space))
	if err != nil {
		return fmt.Errorf("failed to serialize space: %w", err)
	}
	if err := writeFileAtomic(r.spaceFile(space.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write space %s: %w", space.ID, err)
	}
	return nil
}

// CreateSpace writes a new space record.
func (r *Repository) CreateSpace(ctx context.Context, space core.Space) error {
	if err := validateID(space.ID); err != nil {
		return fmt.Errorf("space: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.spaceFile(space.ID)); err == nil {
		return fmt.Errorf("space %s already exists", space.ID)
	}
	if err := os.MkdirAll(r.dir(spacesDir), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	return r.writeSpace(space)
}

// UpdateSpace applies a partial update to a space record.
func (r *Repository) UpdateSpace(ctx context.Context, id string, update core.SpaceUpdate) error {
	if err := validateID(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	space, err := r.readSpace(id)
	if err != nil {
		return err
	}
	update.Apply(&space)
	space.UpdatedAt = time.Now().UTC()
	return r.writeSpace(space)
}

// ListSpaces reads every space record, ordered by id.
func (r *Repository) ListSpaces(ctx context.Context) ([]core.Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir(spacesDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}

	var spaces []core.Space
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || isTempFile(name) || filepath.Ext(name) != r.ser.Ext() {
			continue
		}
		space, err := r.readSpace(strings.TrimSuffix(name, r.ser.Ext()))
		if err != nil {
			r.config.Logger.Warn("skipping unreadable space", "file", name, "error", err)
			continue
		}
		spaces = append(spaces, space)
	}
	sort.Slice(spaces, func(i, j int) bool { return spaces[i].ID < spaces[j].ID })
	return spaces, nil
}

func sortDocuments(docs []core.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

var (
	_ core.Store     = (*Repository)(nil)
	_ core.Lockable  = (*Repository)(nil)
	_ core.Watchable = (*Repository)(nil)
)
