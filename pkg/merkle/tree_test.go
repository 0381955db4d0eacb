package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/patchsmith/patchsmith/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(path, content string) types.FileHashEntry {
	return types.FileHashEntry{
		FilePath: path,
		FileHash: HashContent([]byte(content)),
		FileSize: int64(len(content)),
	}
}

func TestEmptyTreeRootIsHashOfEmptyString(t *testing.T) {
	sum := sha256.Sum256(nil)
	want := hex.EncodeToString(sum[:])

	assert.Equal(t, want, EmptyRoot())
	assert.Equal(t, want, BuildTree(nil).Hash)
	assert.Equal(t, want, BuildTree([]types.FileHashEntry{}).Hash)
}

func TestSingleEntryRootEqualsEntryHash(t *testing.T) {
	e := entry("main.go", "package main\n")
	tree := BuildTree([]types.FileHashEntry{e})

	assert.Equal(t, e.FileHash, tree.Hash)
	assert.Equal(t, "main.go", tree.FilePath)
	assert.Empty(t, tree.Children)
}

func TestRootIndependentOfInputOrder(t *testing.T) {
	a := entry("a.go", "alpha")
	b := entry("b.go", "beta")
	c := entry("c.go", "gamma")

	root1 := Root([]types.FileHashEntry{a, b, c})
	root2 := Root([]types.FileHashEntry{c, a, b})
	root3 := Root([]types.FileHashEntry{b, c, a})

	assert.Equal(t, root1, root2)
	assert.Equal(t, root1, root3)
}

func TestPairwiseFoldMatchesManualComputation(t *testing.T) {
	a := entry("a.go", "alpha")
	b := entry("b.go", "beta")

	// Parent hash is sha256 over the raw (decoded) concatenated leaf hashes.
	la, err := hex.DecodeString(a.FileHash)
	require.NoError(t, err)
	lb, err := hex.DecodeString(b.FileHash)
	require.NoError(t, err)
	h := sha256.New()
	h.Write(la)
	h.Write(lb)
	want := hex.EncodeToString(h.Sum(nil))

	assert.Equal(t, want, Root([]types.FileHashEntry{a, b}))
}

func TestOddNodePromotedUnchanged(t *testing.T) {
	a := entry("a.go", "alpha")
	b := entry("b.go", "beta")
	c := entry("c.go", "gamma")

	tree := BuildTree([]types.FileHashEntry{a, b, c})

	// Level one pairs (a,b) and promotes c; the root combines pair(a,b)
	// with the unchanged c leaf.
	require.Len(t, tree.Children, 2)
	assert.Equal(t, c.FileHash, tree.Children[1].Hash)
	assert.Equal(t, "c.go", tree.Children[1].FilePath)
}

func TestRootChangesWhenContentChanges(t *testing.T) {
	before := []types.FileHashEntry{entry("a.go", "alpha"), entry("b.go", "beta")}
	after := []types.FileHashEntry{entry("a.go", "alpha"), entry("b.go", "beta v2")}

	assert.NotEqual(t, Root(before), Root(after))
}

func TestLeavesRoundTrip(t *testing.T) {
	entries := []types.FileHashEntry{
		entry("c.go", "gamma"),
		entry("a.go", "alpha"),
		entry("b.go", "beta"),
	}
	tree := BuildTree(entries)

	leaves := tree.Leaves()
	require.Len(t, leaves, 3)
	// Leaves come back in sorted-path order.
	assert.Equal(t, "a.go", leaves[0].FilePath)
	assert.Equal(t, "b.go", leaves[1].FilePath)
	assert.Equal(t, "c.go", leaves[2].FilePath)

	// Rebuilding from the leaves reproduces the stored root bit-for-bit.
	assert.Equal(t, tree.Hash, Root(leaves))
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("plain text\nwith lines\n")))
	assert.False(t, IsBinary(nil))
	assert.True(t, IsBinary([]byte{0x00, 0x01, 0x02, 0xFF, 0x00, 0x03}))
}
