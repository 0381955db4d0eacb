// Package coding provides the file and command tools the agent uses inside
// a sandbox checkout. Mutating tools report every change to an EditRecorder
// so the publishing stage knows exactly which files the run touched.
package coding

import (
	"sync"

	"github.com/patchsmith/patchsmith/pkg/types"
)

// EditRecorder accumulates the file edits made during a run. The original
// content is captured on the first change to each path, so repeated writes
// to one file still diff against what the checkout started with.
type EditRecorder struct {
	mu    sync.Mutex
	edits map[string]*types.EditedFile
	order []string
}

// NewEditRecorder creates an empty recorder.
func NewEditRecorder() *EditRecorder {
	return &EditRecorder{edits: make(map[string]*types.EditedFile)}
}

// RecordWrite records a file creation or modification. original is the
// content before this run first touched the file ("" for new files).
func (r *EditRecorder) RecordWrite(path, original, updated string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.edits[path]; ok {
		existing.NewContent = updated
		return
	}
	r.edits[path] = &types.EditedFile{
		FilePath:        path,
		OriginalContent: original,
		NewContent:      updated,
	}
	r.order = append(r.order, path)
}

// RecordDelete records a file removal. A deletion is an edit whose new
// content is empty with the deleted flag set.
func (r *EditRecorder) RecordDelete(path, original string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.edits[path]; ok {
		existing.NewContent = ""
		existing.Deleted = true
		return
	}
	r.edits[path] = &types.EditedFile{
		FilePath:        path,
		OriginalContent: original,
		Deleted:         true,
	}
	r.order = append(r.order, path)
}

// Edits returns the recorded edits in first-touched order.
func (r *EditRecorder) Edits() []types.EditedFile {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.EditedFile, 0, len(r.order))
	for _, path := range r.order {
		out = append(out, *r.edits[path])
	}
	return out
}

// HasEdits reports whether any edit has been recorded.
func (r *EditRecorder) HasEdits() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.edits) > 0
}

// Paths returns the touched file paths in first-touched order.
func (r *EditRecorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
