// Package store persists repository metadata, merkle index state, and run
// checkpoints in SQLite.
//
// The store is the source of truth for "what was indexed last time": the
// current merkle root and per-file hash entries for each repository and
// branch. Run state is checkpointed after every stage so an interrupted
// run can resume from its last completed step.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/patchsmith/patchsmith/pkg/types"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent checkpoint writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS repositories (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	name TEXT NOT NULL,
	base_branch TEXT NOT NULL,
	current_merkle_root TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE(url, base_branch)
);

CREATE TABLE IF NOT EXISTS file_hashes (
	repository_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
	file_path TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	last_modified TIMESTAMP NOT NULL,
	PRIMARY KEY (repository_id, file_path)
);

CREATE TABLE IF NOT EXISTS agent_runs (
	id TEXT PRIMARY KEY,
	repository_id TEXT NOT NULL,
	current_step TEXT NOT NULL,
	status TEXT NOT NULL,
	state_json TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_repository ON agent_runs(repository_id, started_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// UpsertRepository inserts the repository or refreshes its timestamps.
// Lookup is by (url, base_branch); the given ID is only used on first
// insert, and the stored repository is returned either way.
func (s *Store) UpsertRepository(ctx context.Context, repo types.Repository) (types.Repository, error) {
	now := time.Now().UTC()

	existing, err := s.GetRepositoryByURL(ctx, repo.URL, repo.BaseBranch)
	if err == nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE repositories SET name = ?, updated_at = ? WHERE id = ?`,
			repo.Name, now, existing.ID)
		if err != nil {
			return types.Repository{}, fmt.Errorf("failed to update repository: %w", err)
		}
		existing.Name = repo.Name
		existing.UpdatedAt = now
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return types.Repository{}, err
	}

	repo.CreatedAt = now
	repo.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO repositories (id, url, name, base_branch, current_merkle_root, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.URL, repo.Name, repo.BaseBranch, repo.CurrentMerkleRoot, now, now)
	if err != nil {
		return types.Repository{}, fmt.Errorf("failed to insert repository: %w", err)
	}
	return repo, nil
}

// GetRepository fetches a repository by ID.
func (s *Store) GetRepository(ctx context.Context, id string) (types.Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, name, base_branch, current_merkle_root, created_at, updated_at
		 FROM repositories WHERE id = ?`, id)
	return scanRepository(row)
}

// GetRepositoryByURL fetches a repository by URL and base branch. Returns
// sql.ErrNoRows when absent.
func (s *Store) GetRepositoryByURL(ctx context.Context, url, baseBranch string) (types.Repository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, name, base_branch, current_merkle_root, created_at, updated_at
		 FROM repositories WHERE url = ? AND base_branch = ?`, url, baseBranch)
	return scanRepository(row)
}

func scanRepository(row *sql.Row) (types.Repository, error) {
	var r types.Repository
	err := row.Scan(&r.ID, &r.URL, &r.Name, &r.BaseBranch, &r.CurrentMerkleRoot, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return types.Repository{}, err
	}
	return r, nil
}

// SaveIndexState replaces the repository's file hash entries and merkle
// root in one transaction. A crash mid-write leaves the previous index
// state intact, so the root and entries can never disagree.
func (s *Store) SaveIndexState(ctx context.Context, repositoryID, merkleRoot string, entries []types.FileHashEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_hashes WHERE repository_id = ?`, repositoryID); err != nil {
		return fmt.Errorf("failed to clear file hashes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO file_hashes (repository_id, file_path, file_hash, file_size, last_modified)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, repositoryID, e.FilePath, e.FileHash, e.FileSize, e.LastModified.UTC()); err != nil {
			return fmt.Errorf("failed to insert file hash for %s: %w", e.FilePath, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE repositories SET current_merkle_root = ?, updated_at = ? WHERE id = ?`,
		merkleRoot, time.Now().UTC(), repositoryID)
	if err != nil {
		return fmt.Errorf("failed to update merkle root: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("repository %s not found", repositoryID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index state: %w", err)
	}
	return nil
}

// GetFileHashes returns the stored file hash entries for a repository,
// ordered by path.
func (s *Store) GetFileHashes(ctx context.Context, repositoryID string) ([]types.FileHashEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, file_hash, file_size, last_modified
		 FROM file_hashes WHERE repository_id = ? ORDER BY file_path`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file hashes: %w", err)
	}
	defer rows.Close()

	var entries []types.FileHashEntry
	for rows.Next() {
		var e types.FileHashEntry
		if err := rows.Scan(&e.FilePath, &e.FileHash, &e.FileSize, &e.LastModified); err != nil {
			return nil, fmt.Errorf("failed to scan file hash: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveRun checkpoints a run's full state. Called after each stage
// transition so a restart can resume from the last completed step.
func (s *Store) SaveRun(ctx context.Context, run *types.RunState) error {
	stateJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	var completedAt interface{}
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_runs (id, repository_id, current_step, status, state_json, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			current_step = excluded.current_step,
			status = excluded.status,
			state_json = excluded.state_json,
			completed_at = excluded.completed_at`,
		run.ID, run.RepositoryID, string(run.CurrentStep), string(run.Status),
		string(stateJSON), run.StartedAt.UTC(), completedAt)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a checkpointed run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*types.RunState, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM agent_runs WHERE id = ?`, id).Scan(&stateJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var run types.RunState
	if err := json.Unmarshal([]byte(stateJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns runs for a repository, most recent first.
func (s *Store) ListRuns(ctx context.Context, repositoryID string, limit int) ([]*types.RunState, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_json FROM agent_runs WHERE repository_id = ?
		 ORDER BY started_at DESC LIMIT ?`, repositoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.RunState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run types.RunState
		if err := json.Unmarshal([]byte(stateJSON), &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
