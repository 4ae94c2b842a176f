// Package snapshot compares document manifests to find what a push must send.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/aretw0/furrow/pkg/codec"
	"github.com/aretw0/furrow/pkg/core"
)

// Class is the diff classification of a single document id.
type Class string

const (
	Added     Class = "added"
	Updated   Class = "updated"
	Deleted   Class = "deleted"
	Unchanged Class = "unchanged"
	Unknown   Class = ""
)

// Result is the outcome of comparing a local snapshot against the one the
// remote declares. The four id sets are disjoint and sorted.
type Result struct {
	Added     []string
	Updated   []string
	Deleted   []string
	Unchanged []string
}

// IsEqual reports whether pushing would change nothing on the remote.
func (r Result) IsEqual() bool {
	return len(r.Added) == 0 && len(r.Updated) == 0 && len(r.Deleted) == 0
}

// Changed returns the ids whose content must be uploaded (added then updated).
func (r Result) Changed() []string {
	ids := make([]string, 0, len(r.Added)+len(r.Updated))
	ids = append(ids, r.Added...)
	return append(ids, r.Updated...)
}

// Classify returns the class of id, or Unknown if neither side knows it.
func (r Result) Classify(id string) Class {
	for class, ids := range map[Class][]string{
		Added:     r.Added,
		Updated:   r.Updated,
		Deleted:   r.Deleted,
		Unchanged: r.Unchanged,
	} {
		i := sort.SearchStrings(ids, id)
		if i < len(ids) && ids[i] == id {
			return class
		}
	}
	return Unknown
}

// Diff compares local against remote from the perspective of the local side
// being pushed: ids only present locally are added, ids only present remotely
// are deleted, ids present on both sides with different versions are updated.
// Versions are opaque markers; timestamps play no part.
func Diff(local, remote core.Snapshot) Result {
	lv := local.Versions()
	rv := remote.Versions()

	var r Result
	for id, v := range lv {
		remoteVersion, ok := rv[id]
		switch {
		case !ok:
			r.Added = append(r.Added, id)
		case remoteVersion != v:
			r.Updated = append(r.Updated, id)
		default:
			r.Unchanged = append(r.Unchanged, id)
		}
	}
	for id := range rv {
		if _, ok := lv[id]; !ok {
			r.Deleted = append(r.Deleted, id)
		}
	}

	sort.Strings(r.Added)
	sort.Strings(r.Updated)
	sort.Strings(r.Deleted)
	sort.Strings(r.Unchanged)
	return r
}

// FromDocuments builds the snapshot of a document listing.
func FromDocuments(docs []core.Document) (core.Snapshot, error) {
	versions := make(map[string]string, len(docs))
	for _, d := range docs {
		v, err := codec.Version(d)
		if err != nil {
			return core.Snapshot{}, fmt.Errorf("snapshot %s: %w", d.ID, err)
		}
		versions[d.ID] = v
	}
	return core.NewSnapshot(versions), nil
}
