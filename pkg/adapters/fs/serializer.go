package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/furrow/pkg/core"
)

// Serializer defines how records are written to and read from disk.
type Serializer interface {
	// Ext is the file extension, including the dot.
	Ext() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// DefaultSerializers returns the supported formats keyed by Config.Format.
func DefaultSerializers(strict bool) map[string]Serializer {
	return map[string]Serializer{
		"json": NewJSONSerializer(strict),
		"yaml": NewYAMLSerializer(strict),
	}
}

// JSONSerializer stores records as indented JSON.
type JSONSerializer struct {
	// Strict rejects unknown fields.
	Strict bool
}

// NewJSONSerializer creates a JSON serializer.
func NewJSONSerializer(strict bool) *JSONSerializer {
	return &JSONSerializer{Strict: strict}
}

func (s *JSONSerializer) Ext() string { return ".json" }

func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (s *JSONSerializer) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if s.Strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

// YAMLSerializer stores records as YAML.
type YAMLSerializer struct {
	// Strict rejects unknown fields.
	Strict bool
}

// NewYAMLSerializer creates a YAML serializer.
func NewYAMLSerializer(strict bool) *YAMLSerializer {
	return &YAMLSerializer{Strict: strict}
}

func (s *YAMLSerializer) Ext() string { return ".yaml" }

func (s *YAMLSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *YAMLSerializer) Unmarshal(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(s.Strict)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	return nil
}

// documentRecord is the on-disk shape of a document.
type documentRecord struct {
	ID        string    `json:"id" yaml:"id"`
	SpaceID   string    `json:"spaceId" yaml:"spaceId"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

func toDocumentRecord(d core.Document) documentRecord {
	return documentRecord{
		ID:        d.ID,
		SpaceID:   d.SpaceID,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (r documentRecord) document() core.Document {
	return core.Document{
		ID:        r.ID,
		SpaceID:   r.SpaceID,
		Title:     r.Title,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// spaceRecord is the on-disk shape of a space, credential included.
type spaceRecord struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Settings    settingsRecord    `json:"settings" yaml:"settings"`
	ActiveDocID string            `json:"activeDocId,omitempty" yaml:"activeDocId,omitempty"`
	Snapshot    []snapshotRecord  `json:"snapshot" yaml:"snapshot"`
	Commit      commitRecord      `json:"commit" yaml:"commit"`
	Changes     map[string]string `json:"changes,omitempty" yaml:"changes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt" yaml:"updatedAt"`
}

type settingsRecord struct {
	RepoOwner string `json:"repoOwner" yaml:"repoOwner"`
	RepoName  string `json:"repoName" yaml:"repoName"`
	Token     string `json:"token,omitempty" yaml:"token,omitempty"`
	Branch    string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

type snapshotRecord struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version" yaml:"version"`
}

type commitRecord struct {
	SHA  string        `json:"sha,omitempty" yaml:"sha,omitempty"`
	Date time.Time     `json:"date,omitzero" yaml:"date,omitempty"`
	Tree []entryRecord `json:"tree,omitempty" yaml:"tree,omitempty"`
}

type entryRecord struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
	SHA  string `json:"sha" yaml:"sha"`
	Size int64  `json:"size" yaml:"size"`
	Type string `json:"type" yaml:"type"`
}

func toSpaceRecord(s core.Space) spaceRecord {
	rec := spaceRecord{
		ID:   s.ID,
		Name: s.Name,
		Settings: settingsRecord{
			RepoOwner: s.Settings.RepoOwner,
			RepoName:  s.Settings.RepoName,
			Token:     s.Settings.Token,
			Branch:    s.Settings.Branch,
		},
		ActiveDocID: s.ActiveDocID,
		Snapshot:    make([]snapshotRecord, 0, len(s.Snapshot.Entries)),
		Commit:      commitRecord{SHA: s.Commit.SHA, Date: s.Commit.Date},
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	for _, e := range s.Snapshot.Entries {
		rec.Snapshot = append(rec.Snapshot, snapshotRecord{ID: e.ID, Version: e.Version})
	}
	for _, e := range s.Commit.Tree {
		rec.Commit.Tree = append(rec.Commit.Tree, entryRecord(e))
	}
	if len(s.Changes) > 0 {
		rec.Changes = make(map[string]string, len(s.Changes))
		for id, c := range s.Changes {
			rec.Changes[id] = string(c)
		}
	}
	return rec
}

func (r spaceRecord) space() core.Space {
	s := core.Space{
		ID:   r.ID,
		Name: r.Name,
		Settings: core.Settings{
			RepoOwner: r.Settings.RepoOwner,
			RepoName:  r.Settings.RepoName,
			Token:     r.Settings.Token,
			Branch:    r.Settings.Branch,
		},
		ActiveDocID: r.ActiveDocID,
		Commit:      core.CommitRecord{SHA: r.Commit.SHA, Date: r.Commit.Date},
		Changes:     make(map[string]core.ChangeType, len(r.Changes)),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, e := range r.Snapshot {
		s.Snapshot.Entries = append(s.Snapshot.Entries, core.SnapshotEntry{ID: e.ID, Version: e.Version})
	}
	for _, e := range r.Commit.Tree {
		s.Commit.Tree = append(s.Commit.Tree, core.RemoteEntry(e))
	}
	for id, c := range r.Changes {
		s.Changes[id] = core.ChangeType(c)
	}
	return s
}
