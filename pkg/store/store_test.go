package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchsmith/patchsmith/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "patchsmith.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRepo() types.Repository {
	return types.Repository{
		ID:         uuid.NewString(),
		URL:        "https://github.com/acme/widgets",
		Name:       "widgets",
		BaseBranch: "main",
	}
}

func TestUpsertRepositoryInsertAndLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	repo, err := s.UpsertRepository(ctx, testRepo())
	require.NoError(t, err)
	assert.False(t, repo.CreatedAt.IsZero())

	got, err := s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.URL, got.URL)
	assert.Equal(t, "main", got.BaseBranch)

	byURL, err := s.GetRepositoryByURL(ctx, repo.URL, "main")
	require.NoError(t, err)
	assert.Equal(t, repo.ID, byURL.ID)
}

func TestUpsertRepositoryIdempotentByURLAndBranch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.UpsertRepository(ctx, testRepo())
	require.NoError(t, err)

	// Second upsert with a fresh ID must return the stored repository.
	second, err := s.UpsertRepository(ctx, testRepo())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestUpsertRepositoryBranchesAreDistinct(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	main, err := s.UpsertRepository(ctx, testRepo())
	require.NoError(t, err)

	dev := testRepo()
	dev.BaseBranch = "develop"
	devRepo, err := s.UpsertRepository(ctx, dev)
	require.NoError(t, err)

	assert.NotEqual(t, main.ID, devRepo.ID)
}

func TestGetRepositoryByURLMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRepositoryByURL(context.Background(), "https://github.com/acme/none", "main")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSaveIndexStateReplacesEntries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	repo, err := s.UpsertRepository(ctx, testRepo())
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	first := []types.FileHashEntry{
		{FilePath: "a.go", FileHash: "hash-a", FileSize: 10, LastModified: now},
		{FilePath: "b.go", FileHash: "hash-b", FileSize: 20, LastModified: now},
	}
	require.NoError(t, s.SaveIndexState(ctx, repo.ID, "root-1", first))

	got, err := s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "root-1", got.CurrentMerkleRoot)

	entries, err := s.GetFileHashes(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.go", entries[0].FilePath)

	// Re-index: b.go deleted, c.go added.
	second := []types.FileHashEntry{
		{FilePath: "a.go", FileHash: "hash-a2", FileSize: 11, LastModified: now},
		{FilePath: "c.go", FileHash: "hash-c", FileSize: 5, LastModified: now},
	}
	require.NoError(t, s.SaveIndexState(ctx, repo.ID, "root-2", second))

	entries, err = s.GetFileHashes(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hash-a2", entries[0].FileHash)
	assert.Equal(t, "c.go", entries[1].FilePath)

	got, err = s.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "root-2", got.CurrentMerkleRoot)
}

func TestSaveIndexStateUnknownRepository(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveIndexState(context.Background(), "missing", "root", nil)
	assert.Error(t, err)
}

func TestSaveRunCheckpointAndResume(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run := &types.RunState{
		ID:           uuid.NewString(),
		RepositoryID: "repo-1",
		Task:         "add pagination to the users endpoint",
		RepoURL:      "https://github.com/acme/widgets",
		BaseBranch:   "main",
		CurrentStep:  types.StepIndexingComplete,
		Status:       types.StatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.SaveRun(ctx, run))

	// Checkpoint again after the next stage.
	run.CurrentStep = types.StepSandboxReady
	run.SandboxID = "sbx-1"
	require.NoError(t, s.SaveRun(ctx, run))

	loaded, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StepSandboxReady, loaded.CurrentStep)
	assert.Equal(t, "sbx-1", loaded.SandboxID)
	assert.Equal(t, run.Task, loaded.Task)
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	assert.Error(t, err)
}

func TestListRunsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		run := &types.RunState{
			ID:           uuid.NewString(),
			RepositoryID: "repo-1",
			Task:         "task",
			CurrentStep:  types.StepPRCreated,
			Status:       types.StatusCompleted,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.SaveRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, "repo-1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}
