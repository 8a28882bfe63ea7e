// Package docstore holds the authoritative document behind an
// optimistic-concurrency write interface. Every write is a whole-document
// compare-and-swap guarded by a monotonic revision counter; there is no
// field-level patching anywhere in the system.
package docstore

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hearthside/pantrysync/internal/model"
)

// Persister is the durable collaborator behind the store: load-all on
// startup, atomic replace-all on every accepted write.
type Persister interface {
	// Load returns the persisted document and revision. ok is false when
	// nothing has been persisted yet.
	Load() (doc model.Document, revision int64, ok bool, err error)
	// Replace atomically replaces all persisted state with doc at revision.
	Replace(doc model.Document, revision int64) error
}

// CommitFunc observes every accepted write, exactly once per commit.
type CommitFunc func(doc model.Document, revision int64)

// Store owns the authoritative document. CompareAndSwap and Reset are
// serialized behind a single mutex; Get may run concurrently with writers
// and always returns a consistent snapshot.
type Store struct {
	mu        sync.RWMutex
	doc       model.Document
	revision  int64
	persister Persister
	onCommit  CommitFunc
	logger    *slog.Logger
}

// New creates a Store, loading persisted state if any exists. A fresh
// store starts with the default document at revision 0 and persists it.
func New(p Persister, logger *slog.Logger) (*Store, error) {
	s := &Store{persister: p, logger: logger}

	doc, rev, ok, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		doc, rev = model.DefaultDocument(), 0
		if err := p.Replace(doc, rev); err != nil {
			return nil, fmt.Errorf("persist initial document: %w", err)
		}
	}
	s.doc = doc
	s.revision = rev
	logger.Info("document store ready", "revision", rev, "lists", len(doc.Lists))
	return s, nil
}

// OnCommit registers the commit observer. Must be called before the store
// starts accepting writes.
func (s *Store) OnCommit(fn CommitFunc) {
	s.onCommit = fn
}

// Get returns the current authoritative snapshot and its revision. The
// returned document never aliases store-internal state.
func (s *Store) Get() (model.Document, int64) {
	s.mu.RLock()
	doc, rev := s.doc, s.revision
	s.mu.RUnlock()

	out := doc.Clone()
	out.Revision = rev
	return out, rev
}

// CompareAndSwap replaces the document if expectedRevision matches the
// store's current revision. On success the new state is durably persisted
// before the in-memory commit and the new revision is returned. On
// mismatch it returns a *ConflictError carrying the current truth.
func (s *Store) CompareAndSwap(doc model.Document, expectedRevision int64) (int64, error) {
	if err := doc.Validate(); err != nil {
		return 0, &ValidationError{Reason: err.Error()}
	}

	s.mu.Lock()
	if expectedRevision != s.revision {
		current := s.doc.Clone()
		current.Revision = s.revision
		rev := s.revision
		s.mu.Unlock()
		return 0, &ConflictError{Current: current, Revision: rev}
	}

	newRev := expectedRevision + 1
	stored := doc.Clone()
	stored.Revision = newRev
	if err := s.persister.Replace(stored, newRev); err != nil {
		s.mu.Unlock()
		s.logger.Error("durable write failed", "revision", newRev, "error", err)
		return 0, &StorageError{Err: err}
	}
	s.doc = stored
	s.revision = newRev
	onCommit := s.onCommit
	s.mu.Unlock()

	s.logger.Debug("document committed", "revision", newRev)
	if onCommit != nil {
		onCommit(stored.Clone(), newRev)
	}
	return newRev, nil
}

// Reset replaces the document with the empty default. It is an
// unconditional write but still bumps the revision, so concurrent CAS
// writers racing a reset are rejected like any other stale writer.
func (s *Store) Reset() (int64, error) {
	s.mu.Lock()
	newRev := s.revision + 1
	doc := model.DefaultDocument()
	doc.Revision = newRev
	if err := s.persister.Replace(doc, newRev); err != nil {
		s.mu.Unlock()
		s.logger.Error("durable write failed on reset", "revision", newRev, "error", err)
		return 0, &StorageError{Err: err}
	}
	s.doc = doc
	s.revision = newRev
	onCommit := s.onCommit
	s.mu.Unlock()

	s.logger.Info("document reset", "revision", newRev)
	if onCommit != nil {
		onCommit(doc.Clone(), newRev)
	}
	return newRev, nil
}
