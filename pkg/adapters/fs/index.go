package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// indexEntry records which space a document file belongs to.
type indexEntry struct {
	ID           string    `json:"id"`
	SpaceID      string    `json:"spaceId"`
	LastModified time.Time `json:"lastModified"`
}

// index maps document file names to their space, so listing a space does
// not have to parse every document on disk.
type index struct {
	Path string

	mu      sync.RWMutex
	Version int
	Entries map[string]*indexEntry // keyed by file name, e.g. "a.json"
	dirty   bool
}

func newIndex(systemPath string) *index {
	return &index{
		Path:    filepath.Join(systemPath, "index.json"),
		Version: 1,
		Entries: make(map[string]*indexEntry),
	}
}

// Load reads the index from disk. A missing or corrupted index starts empty.
func (x *index) Load() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	data, err := os.ReadFile(x.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	var disk struct {
		Version int                    `json:"version"`
		Entries map[string]*indexEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &disk); err != nil || disk.Entries == nil {
		x.Entries = make(map[string]*indexEntry)
		x.dirty = true
		return nil
	}
	x.Version = disk.Version
	x.Entries = disk.Entries
	x.dirty = false
	return nil
}

// Save persists the index when it changed since the last load or save.
func (x *index) Save() error {
	x.mu.RLock()
	if !x.dirty {
		x.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(struct {
		Version int                    `json:"version"`
		Entries map[string]*indexEntry `json:"entries"`
	}{x.Version, x.Entries}, "", "  ")
	x.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(x.Path), 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(x.Path, data, 0644); err != nil {
		return err
	}

	x.mu.Lock()
	x.dirty = false
	x.mu.Unlock()
	return nil
}

// Get returns the entry for name when its recorded mtime matches.
func (x *index) Get(name string, mtime time.Time) (*indexEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	entry, ok := x.Entries[name]
	if !ok || !entry.LastModified.Equal(mtime) {
		return nil, false
	}
	return entry, true
}

// Lookup returns the entry for name regardless of freshness.
func (x *index) Lookup(name string) (*indexEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entry, ok := x.Entries[name]
	return entry, ok
}

func (x *index) Set(name string, entry *indexEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.Entries[name] = entry
	x.dirty = true
}

// Prune drops entries whose file was not seen during a scan.
func (x *index) Prune(keep map[string]bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for name := range x.Entries {
		if !keep[name] {
			delete(x.Entries, name)
			x.dirty = true
		}
	}
}

func (x *index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.Entries)
}
