// Package history keeps a SQLite record of audit runs so later runs can
// tell which matches are new.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/exploopio/npm-audit/pkg/errors"
	"github.com/exploopio/npm-audit/pkg/fingerprint"
	"github.com/exploopio/npm-audit/pkg/report"
)

// Run is one recorded audit.
type Run struct {
	ID            string
	ProjectPath   string
	StartedAt     time.Time
	Strategy      string
	DirectCount   int
	LockfileCount int
	Summary       string
}

// Finding is one match recorded for a run.
type Finding struct {
	Fingerprint string
	Type        fingerprint.Type
	Package     string
	Version     string
	Path        []string
}

// Findings derives the findings of r, one per match.
func Findings(r *report.Report) []Finding {
	out := make([]Finding, 0, len(r.DirectMatches)+len(r.LockfileMatches))
	for _, m := range r.DirectMatches {
		spec := ""
		if s, ok := m.DeclaredVersionSpec.Str(); ok {
			spec = s
		}
		out = append(out, Finding{
			Fingerprint: fingerprint.Direct(m.Package, spec),
			Type:        fingerprint.TypeDirect,
			Package:     m.Package,
			Version:     spec,
		})
	}
	for _, m := range r.LockfileMatches {
		version := ""
		if m.Version != nil {
			version = *m.Version
		}
		out = append(out, Finding{
			Fingerprint: fingerprint.Lockfile(m.Package, version, m.Path),
			Type:        fingerprint.TypeLockfile,
			Package:     m.Package,
			Version:     version,
			Path:        m.Path,
		})
	}
	return out
}

// Store provides SQLite-backed run history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.E(errors.KindIO, "history.Open", "create history directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.E(errors.KindIO, "history.Open", "open database", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.E(errors.KindIO, "history.Open", "set pragma", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.E(errors.KindIO, "history.Open", "init schema", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		project_path TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		strategy TEXT NOT NULL DEFAULT '',
		direct_count INTEGER NOT NULL,
		lockfile_count INTEGER NOT NULL,
		summary TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matches (
		run_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		kind TEXT NOT NULL,
		package TEXT NOT NULL,
		version TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (run_id, fingerprint),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_path, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores run and its findings in one transaction. An empty run ID is
// replaced with a new UUID; the stored run is returned.
func (s *Store) Record(ctx context.Context, run Run, findings []Finding) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ProjectPath == "" {
		return run, errors.E(errors.KindInvalidInput, "history.Record", "run has no project path")
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return run, errors.E(errors.KindIO, "history.Record", "begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, project_path, started_at, strategy, direct_count, lockfile_count, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.ProjectPath, run.StartedAt.UnixNano(), run.Strategy,
		run.DirectCount, run.LockfileCount, run.Summary,
	); err != nil {
		return run, errors.E(errors.KindIO, "history.Record", "insert run", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO matches (run_id, fingerprint, kind, package, version, path)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return run, errors.E(errors.KindIO, "history.Record", "prepare match insert", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		path, err := json.Marshal(f.Path)
		if err != nil {
			return run, errors.E(errors.KindInternal, "history.Record", "encode path", err)
		}
		if f.Path == nil {
			path = []byte("[]")
		}
		if _, err := stmt.ExecContext(ctx, run.ID, f.Fingerprint, string(f.Type), f.Package, f.Version, string(path)); err != nil {
			return run, errors.E(errors.KindIO, "history.Record", "insert match", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return run, errors.E(errors.KindIO, "history.Record", "commit", err)
	}
	return run, nil
}

// Previous returns the run recorded for the same project just before runID,
// or nil when there is none.
func (s *Store) Previous(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.project_path, p.started_at, p.strategy, p.direct_count, p.lockfile_count, p.summary
		FROM runs p JOIN runs c ON c.id = ?
		WHERE p.project_path = c.project_path AND p.rowid < c.rowid
		ORDER BY p.rowid DESC
		LIMIT 1
	`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.E(errors.KindIO, "history.Previous", "query previous run", err)
	}
	return run, nil
}

// NewSincePrevious returns the findings of runID whose fingerprints were
// absent from the previous run of the same project. With no previous run
// every finding is new.
func (s *Store) NewSincePrevious(ctx context.Context, runID string) ([]Finding, error) {
	prev, err := s.Previous(ctx, runID)
	if err != nil {
		return nil, err
	}
	prevID := ""
	if prev != nil {
		prevID = prev.ID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, kind, package, version, path
		FROM matches
		WHERE run_id = ?
		AND fingerprint NOT IN (SELECT fingerprint FROM matches WHERE run_id = ?)
		ORDER BY rowid
	`, runID, prevID)
	if err != nil {
		return nil, errors.E(errors.KindIO, "history.NewSincePrevious", "query new matches", err)
	}
	defer rows.Close()

	var out []Finding
	for rows.Next() {
		var f Finding
		var kind, path string
		if err := rows.Scan(&f.Fingerprint, &kind, &f.Package, &f.Version, &path); err != nil {
			return nil, errors.E(errors.KindIO, "history.NewSincePrevious", "scan match", err)
		}
		f.Type = fingerprint.Type(kind)
		if err := json.Unmarshal([]byte(path), &f.Path); err != nil {
			return nil, errors.E(errors.KindIO, "history.NewSincePrevious", "decode path", err)
		}
		if len(f.Path) == 0 {
			f.Path = nil
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(errors.KindIO, "history.NewSincePrevious", "read matches", err)
	}
	return out, nil
}

// List returns the most recent runs, newest first. An empty projectPath
// lists every project.
func (s *Store) List(ctx context.Context, projectPath string, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_path, started_at, strategy, direct_count, lockfile_count, summary
		FROM runs
		WHERE ? = '' OR project_path = ?
		ORDER BY rowid DESC
		LIMIT ?
	`, projectPath, projectPath, limit)
	if err != nil {
		return nil, errors.E(errors.KindIO, "history.List", "list runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.E(errors.KindIO, "history.List", "scan run", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(errors.KindIO, "history.List", "read runs", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var started int64
	if err := row.Scan(&run.ID, &run.ProjectPath, &started, &run.Strategy,
		&run.DirectCount, &run.LockfileCount, &run.Summary); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, started)
	return &run, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
