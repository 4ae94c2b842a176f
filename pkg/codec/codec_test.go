package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/furrow/pkg/core"
)

func sampleDoc() core.Document {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return core.Document{
		ID:        "a1",
		SpaceID:   "s1",
		Title:     "Hello",
		Content:   `{ "type": "doc", "children": [ {"text": "hi"} ] }`,
		CreatedAt: ts,
		UpdatedAt: ts.Add(time.Minute),
	}
}

func TestEncodeDocument_EmbedsContentAsJSON(t *testing.T) {
	data, err := EncodeDocument(sampleDoc())
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("encoded document is not json: %v", err)
	}
	content, ok := raw["content"].(map[string]any)
	if !ok {
		t.Fatalf("expected content to be embedded as an object, got %T", raw["content"])
	}
	if content["type"] != "doc" {
		t.Errorf("unexpected embedded content: %v", content)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := sampleDoc()

	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	decoded, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}

	if decoded.Content != `{"type":"doc","children":[{"text":"hi"}]}` {
		t.Errorf("content should come back compacted, got %q", decoded.Content)
	}
	if decoded.ID != doc.ID || decoded.Title != doc.Title {
		t.Errorf("metadata mismatch: %+v", decoded)
	}
	if decoded.SpaceID != "" {
		t.Errorf("space id should not travel with the document, got %q", decoded.SpaceID)
	}
	if !decoded.UpdatedAt.Equal(doc.UpdatedAt) {
		t.Errorf("updatedAt mismatch: %v vs %v", decoded.UpdatedAt, doc.UpdatedAt)
	}

	// Re-encoding the decoded document yields the same version marker.
	v1, _ := Version(doc)
	v2, _ := Version(decoded)
	if v1 != v2 {
		t.Errorf("version changed across round trip: %s vs %s", v1, v2)
	}
}

func TestDocumentRoundTrip_KeepsHTMLCharacters(t *testing.T) {
	doc := sampleDoc()
	doc.Content = `{"html":"<b>&</b>"}`

	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	if !strings.Contains(string(data), `"<b>&</b>"`) {
		t.Errorf("content was escaped in the encoding:\n%s", data)
	}
	if strings.HasSuffix(string(data), "\n") {
		t.Errorf("encoding should not end with a newline")
	}

	decoded, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if decoded.Content != doc.Content {
		t.Errorf("content changed across round trip: %q vs %q", decoded.Content, doc.Content)
	}
}

func TestVersion_IgnoresSpaceID(t *testing.T) {
	doc := sampleDoc()
	other := doc
	other.SpaceID = "other"

	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	if strings.Contains(string(data), "spaceId") {
		t.Errorf("encoding should not carry the space id:\n%s", data)
	}

	v1, err := Version(doc)
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	v2, err := Version(other)
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v1 != v2 {
		t.Errorf("version depends on the local space id: %s vs %s", v1, v2)
	}
}

func TestEncodeDocument_EmptyAndInvalidContent(t *testing.T) {
	doc := sampleDoc()
	doc.Content = ""
	data, err := EncodeDocument(doc)
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	decoded, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if decoded.Content != "" {
		t.Errorf("expected empty content, got %q", decoded.Content)
	}

	doc.Content = "not json"
	if _, err := EncodeDocument(doc); !errors.Is(err, ErrInvalidContent) {
		t.Errorf("expected ErrInvalidContent, got %v", err)
	}
}

func TestDecodeDocument_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":   "{{{",
		"missing id": `{"spaceId":"s1","content":null}`,
		"wrong type": `{"id": 42}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDocument([]byte(input))
			if !errors.Is(err, core.ErrMalformedRemoteContent) {
				t.Errorf("expected ErrMalformedRemoteContent, got %v", err)
			}
		})
	}
}

func TestSpaceEncoding_StripsLocalFields(t *testing.T) {
	space := core.Space{
		ID:   "s1",
		Name: "notes",
		Settings: core.Settings{
			RepoOwner: "octo",
			RepoName:  "notes",
			Token:     "secret-token",
		},
		ActiveDocID: "a1",
		Snapshot:    core.NewSnapshot(map[string]string{"a1": "v1"}),
		Commit: core.CommitRecord{
			SHA:  "abc",
			Date: time.Now(),
			Tree: []core.RemoteEntry{{Name: "a1.json"}},
		},
		Changes: map[string]core.ChangeType{"a1": core.ChangeUpdate},
	}

	data, err := EncodeSpace(space)
	if err != nil {
		t.Fatalf("EncodeSpace failed: %v", err)
	}
	text := string(data)
	for _, leaked := range []string{"secret-token", `"commit"`, `"changes"`, `"abc"`} {
		if strings.Contains(text, leaked) {
			t.Errorf("encoded space leaks %s:\n%s", leaked, text)
		}
	}

	decoded, err := DecodeSpace(data)
	if err != nil {
		t.Fatalf("DecodeSpace failed: %v", err)
	}
	if decoded.Name != "notes" || decoded.ActiveDocID != "a1" {
		t.Errorf("unexpected decoded space: %+v", decoded)
	}
	if decoded.Snapshot.Versions()["a1"] != "v1" {
		t.Errorf("snapshot not preserved: %+v", decoded.Snapshot)
	}
	if !decoded.Commit.IsZero() {
		t.Errorf("commit metadata must not be decoded: %+v", decoded.Commit)
	}
}

func TestDecodeSpace_IgnoresCommitMetadata(t *testing.T) {
	input := `{"id":"s1","name":"n","settings":{"repoOwner":"o","repoName":"r"},
		"snapshot":{"entries":[]},"commitSha":"zzz","commitDate":"2024-01-01T00:00:00Z"}`
	space, err := DecodeSpace([]byte(input))
	if err != nil {
		t.Fatalf("DecodeSpace failed: %v", err)
	}
	if space.Commit.SHA != "" {
		t.Errorf("commit sha leaked into decoded space: %q", space.Commit.SHA)
	}

	if _, err := DecodeSpace([]byte("[]")); !errors.Is(err, core.ErrMalformedRemoteContent) {
		t.Errorf("expected ErrMalformedRemoteContent, got %v", err)
	}
}

func TestDecodeTransportBlob(t *testing.T) {
	text := `{"id":"é ✓"}`
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	// The API wraps base64 payloads at 60 columns.
	wrapped := encoded[:10] + "\n" + encoded[10:] + "\n"

	got, err := DecodeTransportBlob(wrapped)
	if err != nil {
		t.Fatalf("DecodeTransportBlob failed: %v", err)
	}
	if string(got) != text {
		t.Errorf("want %q, got %q", text, got)
	}

	if _, err := DecodeTransportBlob("%%%not-base64"); !errors.Is(err, core.ErrTransportDecode) {
		t.Errorf("expected ErrTransportDecode for invalid base64, got %v", err)
	}

	invalidUTF8 := base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd})
	if _, err := DecodeTransportBlob(invalidUTF8); !errors.Is(err, core.ErrTransportDecode) {
		t.Errorf("expected ErrTransportDecode for invalid utf-8, got %v", err)
	}
}

func TestVersion_ChangesWithContent(t *testing.T) {
	doc := sampleDoc()
	v1, err := Version(doc)
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	doc.Content = `{"type":"doc","children":[]}`
	v2, _ := Version(doc)
	if v1 == v2 {
		t.Error("expected different versions for different content")
	}
	if len(v1) != 64 {
		t.Errorf("expected sha256 hex marker, got %q", v1)
	}
}
