// Package sqlite implements core.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aretw0/furrow/pkg/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

// Store implements core.Store on SQLite.
type Store struct {
	db  *sql.DB
	dsn string
}

// Open opens the database at dsn. Call Initialize to apply the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &Store{db: db, dsn: dsn}, nil
}

// Initialize applies pending migrations.
func (s *Store) Initialize(ctx context.Context) error {
	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// --- Documents ---

const docColumns = "id, space_id, title, content, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (core.Document, error) {
	var d core.Document
	var created, updated string
	if err := row.Scan(&d.ID, &d.SpaceID, &d.Title, &d.Content, &created, &updated); err != nil {
		return core.Document{}, err
	}
	d.CreatedAt = parseTime(created)
	d.UpdatedAt = parseTime(updated)
	return d, nil
}

func queryDocuments(ctx context.Context, db *sql.DB, query string, args ...any) ([]core.Document, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []core.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListDocumentsByIDs loads the given documents in one query.
func (s *Store) ListDocumentsByIDs(ctx context.Context, ids []string) ([]core.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return queryDocuments(ctx, s.db,
		"SELECT "+docColumns+" FROM documents WHERE id IN ("+placeholders+") ORDER BY id", args...)
}

func (s *Store) ListDocumentsBySpace(ctx context.Context, spaceID string) ([]core.Document, error) {
	return queryDocuments(ctx, s.db,
		"SELECT "+docColumns+" FROM documents WHERE space_id = ? ORDER BY id", spaceID)
}

func (s *Store) GetDocument(ctx context.Context, id string) (core.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+docColumns+" FROM documents WHERE id = ?", id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

func (s *Store) CreateDocument(ctx context.Context, doc core.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document has no ID")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO documents ("+docColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		doc.ID, doc.SpaceID, doc.Title, doc.Content, formatTime(doc.CreatedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *Store) UpdateDocument(ctx context.Context, id string, fields core.DocumentFields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	d, err := scanDocument(tx.QueryRowContext(ctx, "SELECT "+docColumns+" FROM documents WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get document %s: %w", id, err)
	}
	fields.Apply(&d)

	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET space_id = ?, title = ?, content = ?, created_at = ?, updated_at = ? WHERE id = ?",
		d.SpaceID, d.Title, d.Content, formatTime(d.CreatedAt), formatTime(d.UpdatedAt), id); err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// --- Spaces ---

const spaceColumns = "id, name, repo_owner, repo_name, token, branch, active_doc_id, snapshot, commit_sha, commit_date, commit_tree, changes, created_at, updated_at"

func scanSpace(row scanner) (core.Space, error) {
	var sp core.Space
	var snapshot, commitDate, tree, changes, created, updated string
	if err := row.Scan(&sp.ID, &sp.Name,
		&sp.Settings.RepoOwner, &sp.Settings.RepoName, &sp.Settings.Token, &sp.Settings.Branch,
		&sp.ActiveDocID, &snapshot, &sp.Commit.SHA, &commitDate, &tree, &changes, &created, &updated); err != nil {
		return core.Space{}, err
	}
	if err := json.Unmarshal([]byte(snapshot), &sp.Snapshot.Entries); err != nil {
		return core.Space{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(tree), &sp.Commit.Tree); err != nil {
		return core.Space{}, fmt.Errorf("decode commit tree: %w", err)
	}
	if err := json.Unmarshal([]byte(changes), &sp.Changes); err != nil {
		return core.Space{}, fmt.Errorf("decode changes: %w", err)
	}
	sp.Commit.Date = parseTime(commitDate)
	sp.CreatedAt = parseTime(created)
	sp.UpdatedAt = parseTime(updated)
	return sp, nil
}

func spaceArgs(sp core.Space) ([]any, error) {
	entries := sp.Snapshot.Entries
	if entries == nil {
		entries = []core.SnapshotEntry{}
	}
	snapshot, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	treeEntries := sp.Commit.Tree
	if treeEntries == nil {
		treeEntries = []core.RemoteEntry{}
	}
	tree, err := json.Marshal(treeEntries)
	if err != nil {
		return nil, err
	}
	changeMap := sp.Changes
	if changeMap == nil {
		changeMap = map[string]core.ChangeType{}
	}
	changes, err := json.Marshal(changeMap)
	if err != nil {
		return nil, err
	}
	return []any{
		sp.Name, sp.Settings.RepoOwner, sp.Settings.RepoName, sp.Settings.Token, sp.Settings.Branch,
		sp.ActiveDocID, string(snapshot), sp.Commit.SHA, formatTime(sp.Commit.Date), string(tree), string(changes),
		formatTime(sp.CreatedAt), formatTime(sp.UpdatedAt), sp.ID,
	}, nil
}

func (s *Store) GetSpace(ctx context.Context, id string) (core.Space, error) {
	sp, err := scanSpace(s.db.QueryRowContext(ctx, "SELECT "+spaceColumns+" FROM spaces WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Space{}, fmt.Errorf("space %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Space{}, fmt.Errorf("get space %s: %w", id, err)
	}
	return sp, nil
}

func (s *Store) CreateSpace(ctx context.Context, space core.Space) error {
	if space.ID == "" {
		return fmt.Errorf("space has no ID")
	}
	args, err := spaceArgs(space)
	if err != nil {
		return fmt.Errorf("encode space: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO spaces
		(name, repo_owner, repo_name, token, branch, active_doc_id, snapshot, commit_sha, commit_date, commit_tree, changes, created_at, updated_at, id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("create space %s: %w", space.ID, err)
	}
	return nil
}

// UpdateSpace applies the update inside a transaction.
func (s *Store) UpdateSpace(ctx context.Context, id string, update core.SpaceUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sp, err := scanSpace(tx.QueryRowContext(ctx, "SELECT "+spaceColumns+" FROM spaces WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("space %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get space %s: %w", id, err)
	}
	update.Apply(&sp)
	sp.UpdatedAt = time.Now().UTC()

	args, err := spaceArgs(sp)
	if err != nil {
		return fmt.Errorf("encode space: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE spaces SET
		name = ?, repo_owner = ?, repo_name = ?, token = ?, branch = ?, active_doc_id = ?, snapshot = ?,
		commit_sha = ?, commit_date = ?, commit_tree = ?, changes = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("update space %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *Store) ListSpaces(ctx context.Context) ([]core.Space, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+spaceColumns+" FROM spaces ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query spaces: %w", err)
	}
	defer rows.Close()

	var spaces []core.Space
	for rows.Next() {
		sp, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		spaces = append(spaces, sp)
	}
	return spaces, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ core.Store = (*Store)(nil)
