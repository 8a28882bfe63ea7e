// Package history keeps a bounded linear undo/redo history of document
// snapshots for a client session.
package history

import (
	"sync"

	"github.com/hearthside/pantrysync/internal/model"
)

// DefaultDepth is the undo stack bound when none is given.
const DefaultDepth = 100

// History holds immutable pre-mutation snapshots. A new recorded edit
// invalidates the redo stack; overflowing the depth drops the oldest
// undo entry.
type History struct {
	mu    sync.Mutex
	undo  []model.Document
	redo  []model.Document
	depth int
}

func New(depth int) *History {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &History{depth: depth}
}

// Record pushes the pre-mutation snapshot and clears the redo stack.
func (h *History) Record(snapshot model.Document) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = append(h.undo, snapshot.Clone())
	if len(h.undo) > h.depth {
		h.undo = h.undo[1:]
	}
	h.redo = h.redo[:0]
}

// Undo exchanges current for the most recent snapshot. ok is false when
// there is nothing to undo.
func (h *History) Undo(current model.Document) (model.Document, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return model.Document{}, false
	}
	snap := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, current.Clone())
	return snap, true
}

// Redo is the inverse of Undo.
func (h *History) Redo(current model.Document) (model.Document, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return model.Document{}, false
	}
	snap := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, current.Clone())
	return snap, true
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}
