// Package indexer drives the incremental indexing stage: hash the
// checkout, compare merkle roots, and push chunks of the changed files
// through embedding into the vector index. Unchanged repositories cost one
// hash pass and zero embedding calls.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patchsmith/patchsmith/pkg/chunk"
	"github.com/patchsmith/patchsmith/pkg/llm"
	"github.com/patchsmith/patchsmith/pkg/logging"
	"github.com/patchsmith/patchsmith/pkg/merkle"
	"github.com/patchsmith/patchsmith/pkg/store"
	"github.com/patchsmith/patchsmith/pkg/types"
	"github.com/patchsmith/patchsmith/pkg/vector"
)

var indexerLog *logging.Logger

func init() {
	var err error
	indexerLog, err = logging.NewLogger("indexer")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		indexerLog.Warnf("Failed to initialize indexer logger, using stderr fallback: %v", err)
	}
}

const (
	defaultBatchSize    = 100
	defaultBatchDelay   = 200 * time.Millisecond
	defaultEmbedRetries = 2
)

// Indexer ties the hashing, chunking, embedding, and storage layers
// together for one repository checkout.
type Indexer struct {
	store      *store.Store
	index      vector.Index
	provider   llm.Provider
	hasher     *merkle.Hasher
	chunker    *chunk.Chunker
	batchSize  int
	writeBatch int
	batchDelay time.Duration
	maxRetries int
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithBatchSize sets how many chunks are embedded per call.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithWriteBatch sets how many points are upserted per vector index call.
func WithWriteBatch(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.writeBatch = n
		}
	}
}

// WithMaxRetries sets how many times a failed embedding batch is retried
// before the pass is abandoned. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(ix *Indexer) {
		if n >= 0 {
			ix.maxRetries = n
		}
	}
}

// WithBatchDelay sets the pause between embedding batches.
func WithBatchDelay(d time.Duration) Option {
	return func(ix *Indexer) {
		if d >= 0 {
			ix.batchDelay = d
		}
	}
}

// WithHasher overrides the repository hasher.
func WithHasher(h *merkle.Hasher) Option {
	return func(ix *Indexer) {
		ix.hasher = h
	}
}

// WithChunker overrides the chunker.
func WithChunker(c *chunk.Chunker) Option {
	return func(ix *Indexer) {
		ix.chunker = c
	}
}

// New creates an Indexer.
func New(st *store.Store, idx vector.Index, provider llm.Provider, opts ...Option) *Indexer {
	ix := &Indexer{
		store:      st,
		index:      idx,
		provider:   provider,
		hasher:     merkle.NewHasher(),
		chunker:    chunk.New(),
		batchSize:  defaultBatchSize,
		writeBatch: defaultBatchSize,
		batchDelay: defaultBatchDelay,
		maxRetries: defaultEmbedRetries,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Result summarizes one indexing pass.
type Result struct {
	MerkleRoot   string
	PreviousRoot string
	ChangedFiles []string
	DeletedFiles []string

	// Skipped is true when the new root matched a known root and nothing
	// was embedded or written.
	Skipped bool

	ChunkCount int
}

// IndexCheckout hashes the checkout at dir and brings the vector index and
// metadata store up to date for the repository. previousRoot is the
// caller's last known root (may be empty); the repository's stored root is
// consulted as well, and matching either one skips the pass.
func (ix *Indexer) IndexCheckout(ctx context.Context, repo types.Repository, dir, previousRoot string) (*Result, error) {
	entries, _, err := ix.hasher.HashRepository(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to hash repository: %w", err)
	}
	newRoot := merkle.Root(entries)

	prevEntries, err := ix.store.GetFileHashes(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous file hashes: %w", err)
	}

	changes := merkle.Compare(newRoot, previousRoot, repo.CurrentMerkleRoot, prevEntries, entries)
	result := &Result{
		MerkleRoot:   newRoot,
		PreviousRoot: repo.CurrentMerkleRoot,
		ChangedFiles: changes.Changed,
		DeletedFiles: changes.Deleted,
	}

	if !changes.ShouldIndex {
		indexerLog.Infof("Repository %s unchanged at root %s, skipping", repo.ID, shortHash(newRoot))
		result.Skipped = true
		return result, nil
	}

	if err := ix.index.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure vector collection: %w", err)
	}

	// Stale points are removed before any new writes: both for files that
	// disappeared and for changed files, whose old chunks would otherwise
	// survive a shrinking rewrite.
	stale := append(append([]string{}, changes.Deleted...), changes.Changed...)
	if len(stale) > 0 {
		if err := ix.index.DeleteByFiles(ctx, repo.ID, repo.BaseBranch, stale); err != nil {
			return nil, fmt.Errorf("failed to delete stale vectors: %w", err)
		}
	}

	chunks := ix.chunker.Files(dir, changes.Changed, func(path, reason string) {
		indexerLog.Warnf("Skipping %s: %s", path, reason)
	})
	result.ChunkCount = len(chunks)

	if len(chunks) > 0 {
		vectors, err := ix.embedChunks(ctx, chunks)
		if err != nil {
			return nil, err
		}
		if err := ix.upsertChunks(ctx, repo, chunks, vectors); err != nil {
			return nil, err
		}
	}

	if err := ix.store.SaveIndexState(ctx, repo.ID, newRoot, entries); err != nil {
		return nil, fmt.Errorf("failed to save index state: %w", err)
	}

	indexerLog.Infof("Indexed %s: %d changed, %d deleted, %d chunks, root %s",
		repo.ID, len(changes.Changed), len(changes.Deleted), len(chunks), shortHash(newRoot))
	return result, nil
}

// embedChunks embeds all chunks in batches, pausing between batches.
// Transient failures are retried a bounded number of times; a persistent
// batch failure is tagged with its batch index. The returned slice is
// always exactly chunk-aligned.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []types.Chunk) ([][]float64, error) {
	vectors := make([][]float64, 0, len(chunks))

	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batchIndex := start / ix.batchSize

		inputs := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			inputs = append(inputs, chunk.EmbeddingInput(c))
		}

		batch, err := ix.embedBatch(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d failed: %w", batchIndex, err)
		}
		if len(batch) != len(inputs) {
			return nil, fmt.Errorf("embedding batch %d returned %d vectors for %d inputs", batchIndex, len(batch), len(inputs))
		}
		vectors = append(vectors, batch...)

		if end < len(chunks) && ix.batchDelay > 0 {
			select {
			case <-time.After(ix.batchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding produced %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return vectors, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, inputs []string) ([][]float64, error) {
	var lastErr error
	for attempt := 0; attempt <= ix.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		batch, err := ix.provider.Embed(ctx, inputs)
		if err == nil {
			return batch, nil
		}
		lastErr = err
		indexerLog.Warnf("Embedding attempt %d failed: %v", attempt+1, err)
	}
	return nil, lastErr
}

// upsertChunks writes points in batches.
func (ix *Indexer) upsertChunks(ctx context.Context, repo types.Repository, chunks []types.Chunk, vectors [][]float64) error {
	points := make([]vector.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vector.NewPoint(uuid.NewString(), vectors[i], c, repo.ID, repo.URL, repo.BaseBranch)
	}

	for start := 0; start < len(points); start += ix.writeBatch {
		end := start + ix.writeBatch
		if end > len(points) {
			end = len(points)
		}
		if err := ix.index.Upsert(ctx, points[start:end]); err != nil {
			return fmt.Errorf("vector upsert batch %d failed: %w", start/ix.writeBatch, err)
		}
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
