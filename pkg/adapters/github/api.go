package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/furrow/pkg/core"
	"github.com/aretw0/furrow/pkg/remote"
	"github.com/aretw0/furrow/pkg/tree"
)

type refObject struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA  string `json:"sha"`
		Type string `json:"type"`
	} `json:"object"`
}

type shaObject struct {
	SHA string `json:"sha"`
}

type gitCommit struct {
	SHA     string      `json:"sha"`
	Message string      `json:"message"`
	Tree    shaObject   `json:"tree"`
	Parents []shaObject `json:"parents"`
	Author  struct {
		Date time.Time `json:"date"`
	} `json:"author"`
}

type repoCommit struct {
	SHA     string      `json:"sha"`
	Commit  gitCommit   `json:"commit"`
	Parents []shaObject `json:"parents"`
}

type contentObject struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// GetRef resolves ref ("heads/main") to a commit sha. An empty repository
// answers 409 and is reported as not found.
func (c *Client) GetRef(ctx context.Context, ref string) (string, error) {
	var out refObject
	err := c.do(ctx, "GetRef", http.MethodGet, c.repoPath("/git/ref/%s", escapePath(ref)), nil, &out)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		apiErr.Err = core.ErrRemoteNotFound
	}
	if err != nil {
		return "", err
	}
	return out.Object.SHA, nil
}

func (c *Client) CreateRef(ctx context.Context, ref, sha string) error {
	in := map[string]string{"ref": ref, "sha": sha}
	return c.do(ctx, "CreateRef", http.MethodPost, c.repoPath("/git/refs"), in, nil)
}

// UpdateRef moves ref to sha. GitHub rejects a non-fast-forward update with
// 422, which surfaces as core.ErrRemoteConflict.
func (c *Client) UpdateRef(ctx context.Context, ref, sha string, force bool) error {
	in := map[string]any{"sha": sha, "force": force}
	return c.do(ctx, "UpdateRef", http.MethodPatch, c.repoPath("/git/refs/%s", escapePath(ref)), in, nil)
}

func (c *Client) GetCommit(ctx context.Context, ref string) (remote.Commit, error) {
	var out repoCommit
	if err := c.do(ctx, "GetCommit", http.MethodGet, c.repoPath("/commits/%s", url.PathEscape(ref)), nil, &out); err != nil {
		return remote.Commit{}, err
	}
	return remote.Commit{
		SHA:     out.SHA,
		TreeSHA: out.Commit.Tree.SHA,
		Date:    out.Commit.Author.Date,
		Parents: shas(out.Parents),
		Message: out.Commit.Message,
	}, nil
}

func (c *Client) GetContent(ctx context.Context, path, ref string) (remote.Content, error) {
	var out contentObject
	if err := c.do(ctx, "GetContent", http.MethodGet, c.contentsPath(path, ref), nil, &out); err != nil {
		return remote.Content{}, err
	}
	if out.Type != "" && out.Type != "file" {
		return remote.Content{}, &Error{
			Op:   "GetContent",
			Path: path,
			Err:  fmt.Errorf("%w: %s is a %s", core.ErrMalformedRemoteContent, path, out.Type),
		}
	}
	return remote.Content{
		Name:     out.Name,
		Path:     out.Path,
		SHA:      out.SHA,
		Size:     out.Size,
		Encoding: out.Encoding,
		Content:  out.Content,
	}, nil
}

func (c *Client) ListDir(ctx context.Context, path, ref string) ([]core.RemoteEntry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "ListDir", http.MethodGet, c.contentsPath(path, ref), nil, &raw); err != nil {
		return nil, err
	}

	var listing []contentObject
	if err := json.Unmarshal(raw, &listing); err != nil {
		// A single object means path is a file.
		return nil, &Error{Op: "ListDir", Path: path, Err: fmt.Errorf("%w: %s is not a directory", core.ErrMalformedRemoteContent, path)}
	}

	entries := make([]core.RemoteEntry, 0, len(listing))
	for _, o := range listing {
		entries = append(entries, core.RemoteEntry{
			Name: o.Name,
			Path: o.Path,
			SHA:  o.SHA,
			Size: o.Size,
			Type: o.Type,
		})
	}
	return entries, nil
}

func (c *Client) CreateTree(ctx context.Context, baseTree string, items []tree.Item) (string, error) {
	in := struct {
		BaseTree string      `json:"base_tree,omitempty"`
		Tree     []tree.Item `json:"tree"`
	}{BaseTree: baseTree, Tree: items}

	var out shaObject
	if err := c.do(ctx, "CreateTree", http.MethodPost, c.repoPath("/git/trees"), in, &out); err != nil {
		return "", err
	}
	return out.SHA, nil
}

func (c *Client) CreateCommit(ctx context.Context, message, treeSHA string, parents []string) (remote.Commit, error) {
	if parents == nil {
		parents = []string{}
	}
	in := map[string]any{"message": message, "tree": treeSHA, "parents": parents}

	var out gitCommit
	if err := c.do(ctx, "CreateCommit", http.MethodPost, c.repoPath("/git/commits"), in, &out); err != nil {
		return remote.Commit{}, err
	}
	return remote.Commit{
		SHA:     out.SHA,
		TreeSHA: out.Tree.SHA,
		Date:    out.Author.Date,
		Parents: shas(out.Parents),
		Message: out.Message,
	}, nil
}

func (c *Client) contentsPath(path, ref string) string {
	p := c.repoPath("/contents/%s", escapePath(strings.Trim(path, "/")))
	if ref != "" {
		p += "?ref=" + url.QueryEscape(ref)
	}
	return p
}

// escapePath escapes each segment of a slash-separated path.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func shas(objs []shaObject) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.SHA)
	}
	return out
}

var _ remote.API = (*Client)(nil)
