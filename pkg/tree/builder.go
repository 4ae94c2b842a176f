// Package tree turns a snapshot diff (or a full document listing) into the
// entries of a single remote tree-creation request.
package tree

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aretw0/furrow/pkg/codec"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/snapshot"
)

// Mode is a Git file mode.
type Mode string

const (
	ModeFile       Mode = "100644"
	ModeExecutable Mode = "100755"
	ModeDir        Mode = "040000"
	ModeSubmodule  Mode = "160000"
	ModeSymlink    Mode = "120000"
)

// Type is a Git object type.
type Type string

const (
	TypeBlob   Type = "blob"
	TypeTree   Type = "tree"
	TypeCommit Type = "commit"
)

// Item is one entry of a tree-creation request. Exactly one of the following
// holds: Content is set (new blob), SHA is set (existing object), or neither
// is set, which marks a deletion and is sent as "sha": null.
type Item struct {
	Path    string
	Mode    Mode
	Type    Type
	Content *string
	SHA     *string
}

// IsDeletion reports whether the item removes its path from the tree.
func (i Item) IsDeletion() bool {
	return i.Content == nil && i.SHA == nil
}

// MarshalJSON renders the wire shape expected by the tree API.
func (i Item) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"path": i.Path,
		"mode": i.Mode,
		"type": i.Type,
	}
	switch {
	case i.Content != nil:
		m["content"] = *i.Content
	case i.SHA != nil:
		m["sha"] = *i.SHA
	default:
		m["sha"] = nil
	}
	return json.Marshal(m)
}

// Blob returns a regular-file item with inline content.
func Blob(path string, content []byte) Item {
	s := string(content)
	return Item{Path: path, Mode: ModeFile, Type: TypeBlob, Content: &s}
}

// Deletion returns an item removing path.
func Deletion(path string) Item {
	return Item{Path: path, Mode: ModeFile, Type: TypeBlob}
}

// DocumentLister is the part of core.Store the builder needs.
type DocumentLister interface {
	ListDocumentsByIDs(ctx context.Context, ids []string) ([]core.Document, error)
}

// Builder assembles tree items.
type Builder struct {
	docs DocumentLister
}

// NewBuilder creates a Builder reading document bodies from docs.
func NewBuilder(docs DocumentLister) *Builder {
	return &Builder{docs: docs}
}

// ForExistingRemote builds the items for an incremental push: a deletion per
// deleted id, and a freshly encoded blob per added or updated id. Bodies are
// read with a single batched query.
func (b *Builder) ForExistingRemote(ctx context.Context, diff snapshot.Result) ([]Item, error) {
	items := make([]Item, 0, len(diff.Deleted)+len(diff.Added)+len(diff.Updated))
	for _, id := range diff.Deleted {
		items = append(items, Deletion(core.DocumentPath(id)))
	}

	changed := diff.Changed()
	if len(changed) == 0 {
		return items, nil
	}

	docs, err := b.docs.ListDocumentsByIDs(ctx, changed)
	if err != nil {
		return nil, fmt.Errorf("list changed documents: %w", err)
	}
	if len(docs) != len(changed) {
		return nil, fmt.Errorf("list changed documents: expected %d, got %d", len(changed), len(docs))
	}

	blobs, err := blobsFor(docs)
	if err != nil {
		return nil, err
	}
	return append(items, blobs...), nil
}

// ForFreshRemote builds the items for a bootstrap push: every document
// becomes a blob and nothing is deleted.
func (b *Builder) ForFreshRemote(docs []core.Document) ([]Item, error) {
	return blobsFor(docs)
}

// Manifest returns the entry for the encoded space itself.
func (b *Builder) Manifest(space core.Space) (Item, error) {
	data, err := codec.EncodeSpace(space)
	if err != nil {
		return Item{}, fmt.Errorf("encode space %s: %w", space.ID, err)
	}
	return Blob(core.ManifestPath, data), nil
}

func blobsFor(docs []core.Document) ([]Item, error) {
	sorted := append([]core.Document(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	items := make([]Item, 0, len(sorted))
	for _, d := range sorted {
		data, err := codec.EncodeDocument(d)
		if err != nil {
			return nil, err
		}
		items = append(items, Blob(d.Path(), data))
	}
	return items, nil
}
