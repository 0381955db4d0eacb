package merkle

import "github.com/patchsmith/patchsmith/pkg/types"

// ChangeSet is the result of comparing a new entry set against the
// previously recorded one for the same repository and branch.
type ChangeSet struct {
	// ShouldIndex is false when the new root matches a known root: the
	// no-op fast path. When false, Changed and Deleted are empty.
	ShouldIndex bool

	// Changed holds paths that are new or whose hash differs.
	Changed []string

	// Deleted holds paths present previously but absent now. Their vector
	// points must be removed before any new writes.
	Deleted []string
}

// Compare computes the change set for newEntries given the new root, the
// caller-supplied previous root (may be empty), the repository's stored
// root (may be empty), and the previous tree's entries (nil when no tree
// was stored). If the new root equals either known root, indexing is
// skipped entirely. With no previous entries, every current file is
// considered changed.
func Compare(newRoot, previousRoot, storedRoot string, previousEntries, newEntries []types.FileHashEntry) ChangeSet {
	if newRoot != "" && (newRoot == previousRoot || newRoot == storedRoot) {
		return ChangeSet{ShouldIndex: false}
	}

	if len(previousEntries) == 0 {
		changed := make([]string, 0, len(newEntries))
		for _, e := range newEntries {
			changed = append(changed, e.FilePath)
		}
		return ChangeSet{ShouldIndex: len(changed) > 0, Changed: changed}
	}

	previous := make(map[string]string, len(previousEntries))
	for _, e := range previousEntries {
		previous[e.FilePath] = e.FileHash
	}

	var changed []string
	current := make(map[string]struct{}, len(newEntries))
	for _, e := range newEntries {
		current[e.FilePath] = struct{}{}
		if prevHash, ok := previous[e.FilePath]; !ok || prevHash != e.FileHash {
			changed = append(changed, e.FilePath)
		}
	}

	var deleted []string
	for _, e := range previousEntries {
		if _, ok := current[e.FilePath]; !ok {
			deleted = append(deleted, e.FilePath)
		}
	}

	return ChangeSet{
		ShouldIndex: len(changed) > 0 || len(deleted) > 0,
		Changed:     changed,
		Deleted:     deleted,
	}
}
