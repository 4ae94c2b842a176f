// Package core holds the domain model shared by the sync engine and its
// collaborators: spaces, documents, snapshots and commit records.
package core

import (
	"sort"
	"time"
)

const (
	// DefaultBranch is the remote branch every space syncs against.
	DefaultBranch = "main"

	// DocsDir is the remote directory holding one file per document.
	DocsDir = "docs"

	// ManifestPath is the remote path of the encoded space.
	ManifestPath = "space.json"
)

// Settings binds a Space to one remote repository.
type Settings struct {
	RepoOwner string `json:"repoOwner"`
	RepoName  string `json:"repoName"`
	Token     string `json:"token,omitempty"`
	Branch    string `json:"branch,omitempty"`
}

// BranchName returns the configured branch or DefaultBranch.
func (s Settings) BranchName() string {
	if s.Branch == "" {
		return DefaultBranch
	}
	return s.Branch
}

// ChangeType describes a pending local change waiting for the next push.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// RemoteEntry is one entry of a remote directory listing.
type RemoteEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
	Type string `json:"type"` // "file" or "dir"
}

// CommitRecord is the last remote commit a space was synced with.
type CommitRecord struct {
	SHA  string        `json:"sha,omitempty"`
	Date time.Time     `json:"date,omitzero"`
	Tree []RemoteEntry `json:"tree,omitempty"`
}

// IsZero reports whether the space was never synced.
func (c CommitRecord) IsZero() bool {
	return c.SHA == "" && c.Date.IsZero()
}

// SnapshotEntry pairs a document id with its opaque version marker.
type SnapshotEntry struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

// Snapshot is an ordered manifest of document versions. It carries no payload
// and is only used for diffing.
type Snapshot struct {
	Entries []SnapshotEntry `json:"entries"`
}

// NewSnapshot builds a snapshot from an id -> version map, ordered by id.
func NewSnapshot(versions map[string]string) Snapshot {
	s := Snapshot{Entries: make([]SnapshotEntry, 0, len(versions))}
	for id, v := range versions {
		s.Entries = append(s.Entries, SnapshotEntry{ID: id, Version: v})
	}
	sort.Slice(s.Entries, func(i, j int) bool {
		return s.Entries[i].ID < s.Entries[j].ID
	})
	return s
}

// Versions returns the snapshot as an id -> version map.
func (s Snapshot) Versions() map[string]string {
	m := make(map[string]string, len(s.Entries))
	for _, e := range s.Entries {
		m[e.ID] = e.Version
	}
	return m
}

// Space is a workspace bound one-to-one with a remote repository.
type Space struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Settings    Settings              `json:"settings"`
	ActiveDocID string                `json:"activeDocId,omitempty"`
	Snapshot    Snapshot              `json:"snapshot"`
	Commit      CommitRecord          `json:"commit,omitzero"`
	Changes     map[string]ChangeType `json:"changes,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// Document is a single synchronizable content unit within a Space.
// Content holds the structured payload as JSON text.
type Document struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"spaceId"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Path is the document's location in the remote tree.
func (d Document) Path() string {
	return DocumentPath(d.ID)
}

// DocumentPath returns the remote path for a document id.
func DocumentPath(id string) string {
	return DocsDir + "/" + id + ".json"
}

// DocumentFields is a partial document write. Nil fields are left untouched.
type DocumentFields struct {
	SpaceID   *string
	Title     *string
	Content   *string
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// FieldsOf returns a full overwrite of the received document fields.
func FieldsOf(d Document) DocumentFields {
	return DocumentFields{
		SpaceID:   &d.SpaceID,
		Title:     &d.Title,
		Content:   &d.Content,
		CreatedAt: &d.CreatedAt,
		UpdatedAt: &d.UpdatedAt,
	}
}

// Apply copies the set fields onto d.
func (f DocumentFields) Apply(d *Document) {
	if f.SpaceID != nil {
		d.SpaceID = *f.SpaceID
	}
	if f.Title != nil {
		d.Title = *f.Title
	}
	if f.Content != nil {
		d.Content = *f.Content
	}
	if f.CreatedAt != nil {
		d.CreatedAt = *f.CreatedAt
	}
	if f.UpdatedAt != nil {
		d.UpdatedAt = *f.UpdatedAt
	}
}

// SpaceUpdate is a partial space write. Nil fields are left untouched.
type SpaceUpdate struct {
	Name        *string
	Settings    *Settings
	ActiveDocID *string
	Snapshot    *Snapshot
	Commit      *CommitRecord
	Changes     map[string]ChangeType
	// ClearChanges resets the pending change bookkeeping.
	ClearChanges bool
}

// Apply copies the set fields onto s.
func (u SpaceUpdate) Apply(s *Space) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Settings != nil {
		s.Settings = *u.Settings
	}
	if u.ActiveDocID != nil {
		s.ActiveDocID = *u.ActiveDocID
	}
	if u.Snapshot != nil {
		s.Snapshot = *u.Snapshot
	}
	if u.Commit != nil {
		s.Commit = *u.Commit
	}
	if u.ClearChanges {
		s.Changes = map[string]ChangeType{}
	}
	if len(u.Changes) > 0 {
		if s.Changes == nil {
			s.Changes = make(map[string]ChangeType, len(u.Changes))
		}
		for id, c := range u.Changes {
			s.Changes[id] = c
		}
	}
}

// Event keys published to the reactive view layer.
const (
	KeyActiveDocument = "active-document"
	KeySpaces         = "spaces"
)

// EventType represents the type of change in the local store.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change of a local document.
type Event struct {
	Type      EventType
	SpaceID   string
	ID        string
	Timestamp int64 // Unix timestamp
}

// String implements lifecycle.Event.
func (e Event) String() string {
	return string(e.Type) + " " + e.SpaceID + "/" + e.ID
}

// Clone returns a deep copy of the space.
func (s Space) Clone() Space {
	c := s
	c.Snapshot.Entries = append([]SnapshotEntry(nil), s.Snapshot.Entries...)
	c.Commit.Tree = append([]RemoteEntry(nil), s.Commit.Tree...)
	if s.Changes != nil {
		c.Changes = make(map[string]ChangeType, len(s.Changes))
		for k, v := range s.Changes {
			c.Changes[k] = v
		}
	}
	return c
}
