// Package merkle computes content-addressed fingerprints of a repository
// checkout. Every file becomes a sha256 leaf; leaves fold pairwise into a
// single root hash that changes if and only if some file's content changed.
//
// The fold is deterministic: leaves are sorted by file path before pairing,
// adjacent pairs are hashed over the concatenation of their raw hash bytes,
// and an unpaired trailing node is promoted unchanged to the next level.
// An empty tree's root is sha256 of the empty string; a single-entry tree's
// root is that entry's hash. Any deviation breaks cross-run comparability,
// so the tests pin these cases down.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/patchsmith/patchsmith/pkg/types"
)

// Node is one node of the hash tree. The structure is fully serializable
// so a stored tree can be reconstructed bit-for-bit.
type Node struct {
	Hash     string  `json:"hash"`
	Children []*Node `json:"children,omitempty"`
	FilePath string  `json:"filePath,omitempty"`
}

// HashContent returns the hex sha256 of raw content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// EmptyRoot is the root hash of a tree with no entries: sha256("").
func EmptyRoot() string {
	return HashContent(nil)
}

// BuildTree folds file hash entries into a merkle tree. The input slice is
// not mutated; entries are sorted by path internally so callers may pass
// them in any order and still get the same root.
func BuildTree(entries []types.FileHashEntry) *Node {
	if len(entries) == 0 {
		return &Node{Hash: EmptyRoot()}
	}

	sorted := make([]types.FileHashEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FilePath < sorted[j].FilePath
	})

	nodes := make([]*Node, len(sorted))
	for i, entry := range sorted {
		nodes[i] = &Node{Hash: entry.FileHash, FilePath: entry.FilePath}
	}

	for len(nodes) > 1 {
		next := make([]*Node, 0, (len(nodes)+1)/2)
		for i := 0; i < len(nodes); i += 2 {
			if i+1 >= len(nodes) {
				// Odd node out: promoted unchanged.
				next = append(next, nodes[i])
				continue
			}
			left, right := nodes[i], nodes[i+1]
			combined, err := combineHashes(left.Hash, right.Hash)
			if err != nil {
				// Leaf hashes come from HashContent and stored trees; a
				// non-hex hash means corrupted input, not a recoverable state.
				panic(fmt.Sprintf("merkle: invalid node hash: %v", err))
			}
			next = append(next, &Node{Hash: combined, Children: []*Node{left, right}})
		}
		nodes = next
	}

	return nodes[0]
}

// Root is a convenience wrapper returning only the root hash.
func Root(entries []types.FileHashEntry) string {
	return BuildTree(entries).Hash
}

// combineHashes hashes the concatenation of two raw (decoded) hash values.
func combineHashes(left, right string) (string, error) {
	lb, err := hex.DecodeString(left)
	if err != nil {
		return "", fmt.Errorf("failed to decode left hash: %w", err)
	}
	rb, err := hex.DecodeString(right)
	if err != nil {
		return "", fmt.Errorf("failed to decode right hash: %w", err)
	}
	h := sha256.New()
	h.Write(lb)
	h.Write(rb)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Leaves walks the tree and returns its leaf entries (path + hash) in
// sorted-path order. Used to verify a stored tree against its entry set.
func (n *Node) Leaves() []types.FileHashEntry {
	var out []types.FileHashEntry
	var walk func(*Node)
	walk = func(node *Node) {
		if node == nil {
			return
		}
		if len(node.Children) == 0 {
			if node.FilePath != "" {
				out = append(out, types.FileHashEntry{FilePath: node.FilePath, FileHash: node.Hash})
			}
			return
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(n)
	return out
}
