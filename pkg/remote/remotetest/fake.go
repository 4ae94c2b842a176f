// Package remotetest provides an in-memory Git object store implementing
// remote.API, for tests of the protocol and the engine.
package remotetest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/furrow/pkg/codec"
	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/remote"
	"github.com/aretw0/furrow/pkg/tree"
)

type commitObject struct {
	sha     string
	tree    string
	parents []string
	date    time.Time
	message string
}

// Fake is a minimal Git object store. Trees are flat path -> blob sha maps.
type Fake struct {
	mu      sync.Mutex
	blobs   map[string]string
	trees   map[string]map[string]string
	commits map[string]commitObject
	refs    map[string]string

	calls   map[string]int
	failOn  map[string]error
	corrupt map[string]string

	// Now stamps created commits.
	Now func() time.Time
	// LastTree holds the items of the most recent CreateTree call.
	LastTree []tree.Item
}

// New returns an empty repository (no branches).
func New() *Fake {
	return &Fake{
		blobs:   make(map[string]string),
		trees:   make(map[string]map[string]string),
		commits: make(map[string]commitObject),
		refs:    make(map[string]string),
		calls:   make(map[string]int),
		failOn:  make(map[string]error),
		corrupt: make(map[string]string),
		Now:     time.Now,
	}
}

// Calls returns how many times op (e.g. "CreateTree") was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// WriteCalls returns the number of tree, commit and ref writes.
func (f *Fake) WriteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["CreateTree"] + f.calls["CreateCommit"] + f.calls["UpdateRef"] + f.calls["CreateRef"]
}

// FailOn makes every call of op return err. A nil err clears the fault.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failOn, op)
		return
	}
	f.failOn[op] = err
}

// Corrupt makes content reads of p return raw as transport payload.
func (f *Fake) Corrupt(p, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrupt[p] = raw
}

// Seed commits files on branch directly, simulating another writer.
func (f *Fake) Seed(branch string, files map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := map[string]string{}
	parent, hasParent := f.refs["heads/"+branch]
	if hasParent {
		for p, b := range f.trees[f.commits[parent].tree] {
			base[p] = b
		}
	}
	for p, content := range files {
		base[p] = f.putBlob(content)
	}
	treeSHA := f.putTree(base)

	var parents []string
	if hasParent {
		parents = []string{parent}
	}
	c := f.putCommit(treeSHA, parents, "seed")
	f.refs["heads/"+branch] = c.sha
	return c.sha
}

// File returns the content of p at the head of branch.
func (f *Fake) File(branch, p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	head, ok := f.refs["heads/"+branch]
	if !ok {
		return "", false
	}
	blob, ok := f.trees[f.commits[head].tree][p]
	if !ok {
		return "", false
	}
	return f.blobs[blob], true
}

// Paths returns every path at the head of branch, sorted.
func (f *Fake) Paths(branch string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	head, ok := f.refs["heads/"+branch]
	if !ok {
		return nil
	}
	var paths []string
	for p := range f.trees[f.commits[head].tree] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Head returns the commit sha of branch.
func (f *Fake) Head(branch string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs["heads/"+branch]
}

func (f *Fake) enter(op string) error {
	f.mu.Lock()
	f.calls[op]++
	return f.failOn[op]
}

func (f *Fake) GetRef(ctx context.Context, ref string) (string, error) {
	if err := f.enter("GetRef"); err != nil {
		f.mu.Unlock()
		return "", err
	}
	defer f.mu.Unlock()

	sha, ok := f.refs[ref]
	if !ok {
		return "", fmt.Errorf("ref %s: %w", ref, core.ErrRemoteNotFound)
	}
	return sha, nil
}

func (f *Fake) CreateRef(ctx context.Context, ref, sha string) error {
	if err := f.enter("CreateRef"); err != nil {
		f.mu.Unlock()
		return err
	}
	defer f.mu.Unlock()

	name := strings.TrimPrefix(ref, "refs/")
	if _, ok := f.refs[name]; ok {
		return fmt.Errorf("ref %s exists: %w", ref, core.ErrRemoteConflict)
	}
	f.refs[name] = sha
	return nil
}

func (f *Fake) UpdateRef(ctx context.Context, ref, sha string, force bool) error {
	if err := f.enter("UpdateRef"); err != nil {
		f.mu.Unlock()
		return err
	}
	defer f.mu.Unlock()

	current, ok := f.refs[ref]
	if !ok {
		return fmt.Errorf("ref %s: %w", ref, core.ErrRemoteNotFound)
	}
	if !force && !f.isAncestor(current, sha) {
		return fmt.Errorf("update %s: %w", ref, core.ErrRemoteConflict)
	}
	f.refs[ref] = sha
	return nil
}

func (f *Fake) GetCommit(ctx context.Context, ref string) (remote.Commit, error) {
	if err := f.enter("GetCommit"); err != nil {
		f.mu.Unlock()
		return remote.Commit{}, err
	}
	defer f.mu.Unlock()

	c, ok := f.commits[f.resolve(ref)]
	if !ok {
		return remote.Commit{}, fmt.Errorf("commit %s: %w", ref, core.ErrRemoteNotFound)
	}
	return remote.Commit{SHA: c.sha, TreeSHA: c.tree, Date: c.date, Parents: c.parents, Message: c.message}, nil
}

func (f *Fake) GetContent(ctx context.Context, p, ref string) (remote.Content, error) {
	if err := f.enter("GetContent"); err != nil {
		f.mu.Unlock()
		return remote.Content{}, err
	}
	defer f.mu.Unlock()

	p = strings.TrimPrefix(p, "/")
	c, ok := f.commits[f.resolve(ref)]
	if !ok {
		return remote.Content{}, fmt.Errorf("ref %s: %w", ref, core.ErrRemoteNotFound)
	}
	blob, ok := f.trees[c.tree][p]
	if !ok {
		return remote.Content{}, fmt.Errorf("content %s: %w", p, core.ErrRemoteNotFound)
	}
	payload := codec.EncodeTransportBlob([]byte(f.blobs[blob]))
	if raw, bad := f.corrupt[p]; bad {
		payload = raw
	}
	return remote.Content{
		Name:     path.Base(p),
		Path:     p,
		SHA:      blob,
		Size:     int64(len(f.blobs[blob])),
		Encoding: "base64",
		Content:  payload,
	}, nil
}

func (f *Fake) ListDir(ctx context.Context, dir, ref string) ([]core.RemoteEntry, error) {
	if err := f.enter("ListDir"); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	defer f.mu.Unlock()

	c, ok := f.commits[f.resolve(ref)]
	if !ok {
		return nil, fmt.Errorf("ref %s: %w", ref, core.ErrRemoteNotFound)
	}
	prefix := strings.Trim(dir, "/") + "/"
	var entries []core.RemoteEntry
	for p, blob := range f.trees[c.tree] {
		if !strings.HasPrefix(p, prefix) || strings.Contains(p[len(prefix):], "/") {
			continue
		}
		entries = append(entries, core.RemoteEntry{
			Name: path.Base(p),
			Path: p,
			SHA:  blob,
			Size: int64(len(f.blobs[blob])),
			Type: "file",
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("dir %s: %w", dir, core.ErrRemoteNotFound)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (f *Fake) CreateTree(ctx context.Context, baseTree string, items []tree.Item) (string, error) {
	if err := f.enter("CreateTree"); err != nil {
		f.mu.Unlock()
		return "", err
	}
	defer f.mu.Unlock()

	f.LastTree = append([]tree.Item(nil), items...)
	entries := map[string]string{}
	if baseTree != "" {
		base, ok := f.trees[baseTree]
		if !ok {
			return "", fmt.Errorf("base tree %s: %w", baseTree, core.ErrRemoteNotFound)
		}
		for p, b := range base {
			entries[p] = b
		}
	}
	for _, it := range items {
		switch {
		case it.Content != nil:
			entries[it.Path] = f.putBlob(*it.Content)
		case it.SHA != nil:
			entries[it.Path] = *it.SHA
		default:
			delete(entries, it.Path)
		}
	}
	return f.putTree(entries), nil
}

func (f *Fake) CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (remote.Commit, error) {
	if err := f.enter("CreateCommit"); err != nil {
		f.mu.Unlock()
		return remote.Commit{}, err
	}
	defer f.mu.Unlock()

	if _, ok := f.trees[treeSHA]; !ok {
		return remote.Commit{}, fmt.Errorf("tree %s: %w", treeSHA, core.ErrRemoteNotFound)
	}
	c := f.putCommit(treeSHA, parents, message)
	return remote.Commit{SHA: c.sha, TreeSHA: c.tree, Date: c.date, Parents: c.parents, Message: message}, nil
}

func (f *Fake) resolve(ref string) string {
	if sha, ok := f.refs[ref]; ok {
		return sha
	}
	if sha, ok := f.refs["heads/"+ref]; ok {
		return sha
	}
	return ref
}

func (f *Fake) isAncestor(ancestor, sha string) bool {
	seen := map[string]bool{}
	queue := []string{sha}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == ancestor {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, f.commits[cur].parents...)
	}
	return false
}

func (f *Fake) putBlob(content string) string {
	sha := hash("blob", content)
	f.blobs[sha] = content
	return sha
}

func (f *Fake) putTree(entries map[string]string) string {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString(p + " " + entries[p] + "\n")
	}
	sha := hash("tree", sb.String())
	f.trees[sha] = entries
	return sha
}

func (f *Fake) putCommit(treeSHA string, parents []string, message string) commitObject {
	date := f.Now().UTC().Truncate(time.Second)
	sha := hash("commit", fmt.Sprintf("%s %v %s %d", treeSHA, parents, message, len(f.commits)))
	c := commitObject{sha: sha, tree: treeSHA, parents: parents, date: date, message: message}
	f.commits[sha] = c
	return c
}

func hash(kind, content string) string {
	sum := sha1.Sum([]byte(kind + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

var _ remote.API = (*Fake)(nil)
