// Package codec converts documents and spaces to and from the canonical text
// stored in the remote tree, and decodes the transport envelope (base64 blobs)
// returned by the remote API.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aretw0/furrow/pkg/core"
)

// ErrInvalidContent is returned when a document's content is not JSON text.
var ErrInvalidContent = errors.New("document content is not valid json")

// documentPayload is the on-remote shape of a document. Content is embedded as
// a JSON value rather than as an escaped string. The space is implied by the
// repository the file lives in, so it is not part of the payload.
type documentPayload struct {
	ID        string          `json:"id"`
	Title     string          `json:"title,omitempty"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// spacePayload is the on-remote shape of a space. Commit metadata, pending
// changes and the credential never leave the machine.
type spacePayload struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Settings    spaceSettings `json:"settings"`
	ActiveDocID string        `json:"activeDocId,omitempty"`
	Snapshot    core.Snapshot `json:"snapshot"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type spaceSettings struct {
	RepoOwner string `json:"repoOwner"`
	RepoName  string `json:"repoName"`
	Branch    string `json:"branch,omitempty"`
}

// EncodeDocument serializes a document into its canonical remote text.
// Empty content is encoded as null. The document's SpaceID is not encoded.
func EncodeDocument(doc core.Document) ([]byte, error) {
	content, err := compactContent(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}

	payload := documentPayload{
		ID:        doc.ID,
		Title:     doc.Title,
		Content:   content,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	return marshalIndent(payload)
}

// DecodeDocument parses the canonical remote text of a document. The result
// has no SpaceID; callers assign the space they pulled from.
func DecodeDocument(data []byte) (core.Document, error) {
	var payload documentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return core.Document{}, fmt.Errorf("%w: %v", core.ErrMalformedRemoteContent, err)
	}
	if payload.ID == "" {
		return core.Document{}, fmt.Errorf("%w: document has no id", core.ErrMalformedRemoteContent)
	}

	doc := core.Document{
		ID:        payload.ID,
		Title:     payload.Title,
		CreatedAt: payload.CreatedAt,
		UpdatedAt: payload.UpdatedAt,
	}
	if len(payload.Content) > 0 && string(payload.Content) != "null" {
		var buf bytes.Buffer
		if err := json.Compact(&buf, payload.Content); err != nil {
			return core.Document{}, fmt.Errorf("%w: %v", core.ErrMalformedRemoteContent, err)
		}
		doc.Content = buf.String()
	}
	return doc, nil
}

// EncodeSpace serializes the persisted fields of a space, without commit
// metadata, pending changes or token.
func EncodeSpace(space core.Space) ([]byte, error) {
	payload := spacePayload{
		ID:   space.ID,
		Name: space.Name,
		Settings: spaceSettings{
			RepoOwner: space.Settings.RepoOwner,
			RepoName:  space.Settings.RepoName,
			Branch:    space.Settings.Branch,
		},
		ActiveDocID: space.ActiveDocID,
		Snapshot:    space.Snapshot,
		CreatedAt:   space.CreatedAt.UTC(),
		UpdatedAt:   space.UpdatedAt.UTC(),
	}
	if payload.Snapshot.Entries == nil {
		payload.Snapshot.Entries = []core.SnapshotEntry{}
	}
	return marshalIndent(payload)
}

// DecodeSpace parses the canonical remote text of a space. Any commit metadata
// present in the text is ignored.
func DecodeSpace(data []byte) (core.Space, error) {
	var payload spacePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return core.Space{}, fmt.Errorf("%w: %v", core.ErrMalformedRemoteContent, err)
	}

	return core.Space{
		ID:   payload.ID,
		Name: payload.Name,
		Settings: core.Settings{
			RepoOwner: payload.Settings.RepoOwner,
			RepoName:  payload.Settings.RepoName,
			Branch:    payload.Settings.Branch,
		},
		ActiveDocID: payload.ActiveDocID,
		Snapshot:    payload.Snapshot,
		CreatedAt:   payload.CreatedAt,
		UpdatedAt:   payload.UpdatedAt,
	}, nil
}

// DecodeTransportBlob decodes the base64 content envelope of the remote API.
// Line breaks inserted by the API are ignored.
func DecodeTransportBlob(encoded string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)

	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrTransportDecode, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid utf-8 sequence", core.ErrTransportDecode)
	}
	return data, nil
}

// EncodeTransportBlob is the inverse of DecodeTransportBlob.
func EncodeTransportBlob(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Version returns the opaque snapshot marker of a document: the sha256 of its
// canonical encoding.
func Version(doc core.Document) (string, error) {
	data, err := EncodeDocument(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// marshalIndent is json.MarshalIndent without HTML escaping, so embedded
// content keeps its bytes.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func compactContent(content string) (json.RawMessage, error) {
	if strings.TrimSpace(content) == "" {
		return json.RawMessage("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(content)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
