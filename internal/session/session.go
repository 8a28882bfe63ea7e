// Package session implements the client side of document sync: optimistic
// local application of edits, compare-and-swap commits with bounded
// rebase-and-retry on conflict, and a local fallback cache while the
// store is unreachable.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hearthside/pantrysync/internal/history"
	"github.com/hearthside/pantrysync/internal/model"
)

// DefaultMaxAttempts bounds the total number of compare-and-swap
// attempts one commit makes, rebasing and reapplying its mutation intent
// between them, before surfacing a conflict.
const DefaultMaxAttempts = 3

// ErrConflict is returned when a commit still conflicts after its retry
// budget is exhausted. The session has adopted the authoritative state;
// the local mutation intent is dropped.
var ErrConflict = errors.New("commit conflict: retries exhausted")

// ErrOffline is returned when the store is unreachable. It is a status,
// not a failure: the optimistic state is kept, cached locally, and
// replayed after Reconnect.
var ErrOffline = errors.New("store unreachable, working offline")

// PutResult is the store's answer to a compare-and-swap attempt.
type PutResult struct {
	Accepted bool
	Revision int64
	// Current carries the authoritative state when Accepted is false.
	Current model.Document
}

// Transport connects a session to the document store. A transport error
// means unreachable; a rejected Put is returned with Accepted=false and
// a nil error.
type Transport interface {
	Get(ctx context.Context) (model.Document, int64, error)
	Put(ctx context.Context, doc model.Document, expectedRevision int64) (PutResult, error)
}

// Mutation is a reapplicable edit intent. It must be pure over the
// document value: after a conflict rebase the same intent runs again
// against the adopted authoritative state.
type Mutation func(doc model.Document) (model.Document, error)

// Session mirrors the last known store state and layers optimistic local
// edits on top. All methods are safe for concurrent use, but the session
// models a single logical client: mutations run to completion before the
// next local action is processed.
type Session struct {
	mu        sync.Mutex
	transport Transport
	cache     *Cache
	history   *history.History
	logger    *slog.Logger

	doc         model.Document
	revision    int64
	pending     []Mutation
	inFlight    bool
	offline     bool
	maxAttempts int
}

// Option configures a Session.
type Option func(*Session)

// WithCache attaches a local fallback cache used while offline.
func WithCache(c *Cache) Option {
	return func(s *Session) { s.cache = c }
}

// WithHistory attaches an undo/redo history.
func WithHistory(h *history.History) Option {
	return func(s *Session) { s.history = h }
}

// WithMaxAttempts overrides how many compare-and-swap attempts one
// commit makes in total. Values below 1 mean a single attempt.
func WithMaxAttempts(n int) Option {
	return func(s *Session) {
		if n < 1 {
			n = 1
		}
		s.maxAttempts = n
	}
}

// New creates a session seeded with the given baseline snapshot.
func New(t Transport, doc model.Document, revision int64, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		transport:   t,
		doc:         doc.Clone(),
		revision:    revision,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect creates a session whose baseline comes from a fresh Get. When
// the store is unreachable and a cache holds state, the session starts
// offline from the cached snapshot.
func Connect(ctx context.Context, t Transport, logger *slog.Logger, opts ...Option) (*Session, error) {
	s := New(t, model.DefaultDocument(), 0, logger, opts...)

	doc, rev, err := t.Get(ctx)
	if err != nil {
		if s.cache != nil {
			if cached, cachedRev, ok := s.cache.Load(); ok {
				s.mu.Lock()
				s.doc = cached
				s.revision = cachedRev
				s.offline = true
				s.mu.Unlock()
				logger.Warn("store unreachable, starting from cache", "revision", cachedRev)
				return s, nil
			}
		}
		return nil, fmt.Errorf("initial fetch: %w", err)
	}

	s.mu.Lock()
	s.doc = doc
	s.revision = rev
	s.mu.Unlock()
	return s, nil
}

// Document returns the current local view. For the caller this always
// reflects every applied local edit, confirmed or not.
func (s *Session) Document() model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Revision returns the last store revision the session has adopted.
func (s *Session) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Offline reports whether the last commit attempt failed to reach the
// store.
func (s *Session) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// HasPending reports whether local edits await a successful commit.
func (s *Session) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// ApplyLocal runs the mutation against the local document immediately.
// The pre-mutation snapshot is recorded for undo; the mutation intent is
// retained so a conflicted commit can reapply it after rebasing.
func (s *Session) ApplyLocal(m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := m(s.doc.Clone())
	if err != nil {
		return err
	}

	if s.history != nil {
		s.history.Record(s.doc)
	}
	s.doc = next
	s.pending = append(s.pending, m)
	return nil
}

// Commit attempts to persist the local document via compare-and-swap.
// Accepted: the local revision advances and pending intents are cleared.
// Rejected: the session adopts the authoritative state, reapplies the
// pending intents, and retries up to the budget before ErrConflict.
// Unreachable: optimistic state is kept and cached, ErrOffline returned.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return fmt.Errorf("commit already in flight")
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	var lastAuthoritative model.Document
	var lastRev int64

	// WithMaxRetries counts retries after the first attempt.
	backoff := retry.WithMaxRetries(uint64(s.maxAttempts-1), retry.NewConstant(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s.mu.Lock()
		doc := s.doc.Clone()
		rev := s.revision
		s.mu.Unlock()

		doc.Revision = rev
		result, err := s.transport.Put(ctx, doc, rev)
		if err != nil {
			return err // transport failure, not retryable here
		}

		if result.Accepted {
			s.mu.Lock()
			s.revision = result.Revision
			s.doc.Revision = result.Revision
			s.pending = nil
			s.offline = false
			s.mu.Unlock()
			if s.cache != nil {
				s.cache.Clear()
			}
			return nil
		}

		// Rejected: adopt the authoritative state, then replay intent.
		lastAuthoritative, lastRev = result.Current, result.Revision
		s.rebase(result.Current, result.Revision)
		return retry.RetryableError(ErrConflict)
	})

	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) {
		// Retries exhausted: remote wins. Adopt the authoritative state
		// without the failed intent and surface the conflict so the
		// caller decides whether to reapply.
		s.mu.Lock()
		s.doc = lastAuthoritative.Clone()
		s.revision = lastRev
		s.pending = nil
		s.offline = false
		s.mu.Unlock()
		s.logger.Warn("commit conflict after retries", "revision", lastRev)
		return ErrConflict
	}

	// Transport failure: keep optimistic state, go offline.
	s.mu.Lock()
	s.offline = true
	doc := s.doc.Clone()
	rev := s.revision
	s.mu.Unlock()
	if s.cache != nil {
		if cacheErr := s.cache.Save(doc, rev); cacheErr != nil {
			s.logger.Error("cache save failed", "error", cacheErr)
		}
	}
	s.logger.Warn("store unreachable, keeping local state", "error", err)
	return ErrOffline
}

// rebase adopts the authoritative state and reapplies pending mutation
// intents on top of it.
func (s *Session) rebase(authoritative model.Document, revision int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := authoritative.Clone()
	for _, m := range s.pending {
		next, err := m(doc)
		if err != nil {
			// An intent that no longer applies after rebase is dropped;
			// remote state wins for that edit.
			s.logger.Warn("pending mutation dropped on rebase", "error", err)
			continue
		}
		doc = next
	}
	s.doc = doc
	s.revision = revision
}

// OnBroadcast feeds a hub snapshot into the session. A newer revision
// with no in-flight commit and no pending local edits replaces the local
// state wholesale; anything else is a no-op (the commit's own response
// takes precedence).
func (s *Session) OnBroadcast(doc model.Document, revision int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if revision <= s.revision || s.inFlight || len(s.pending) > 0 {
		return
	}
	s.doc = doc.Clone()
	s.revision = revision
}

// Reconnect rebases from a fresh Get and commits any pending local
// edits. Called when connectivity returns after a period offline.
func (s *Session) Reconnect(ctx context.Context) error {
	doc, rev, err := s.transport.Get(ctx)
	if err != nil {
		return fmt.Errorf("rebase fetch: %w", err)
	}

	s.mu.Lock()
	hasPending := len(s.pending) > 0
	s.mu.Unlock()

	if hasPending {
		s.rebase(doc, rev)
	} else {
		s.mu.Lock()
		s.doc = doc
		s.revision = rev
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.offline = false
	s.mu.Unlock()

	if hasPending {
		return s.Commit(ctx)
	}
	if s.cache != nil {
		s.cache.Clear()
	}
	return nil
}

// Undo restores the most recent pre-mutation snapshot and commits it
// through the normal conflict path. The restore itself is not recorded
// in history. No-op without an attached history or with an empty stack.
func (s *Session) Undo(ctx context.Context) error {
	return s.restore(ctx, func(current model.Document) (model.Document, bool) {
		return s.history.Undo(current)
	})
}

// Redo is the inverse of Undo.
func (s *Session) Redo(ctx context.Context) error {
	return s.restore(ctx, func(current model.Document) (model.Document, bool) {
		return s.history.Redo(current)
	})
}

func (s *Session) restore(ctx context.Context, pick func(model.Document) (model.Document, bool)) error {
	if s.history == nil {
		return nil
	}

	s.mu.Lock()
	snap, ok := pick(s.doc)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	restored := snap.Clone()
	s.doc = restored
	// The intent of a restore is "make the document this snapshot"; on
	// conflict rebase the snapshot still wins wholesale.
	s.pending = append(s.pending, func(model.Document) (model.Document, error) {
		return restored.Clone(), nil
	})
	s.mu.Unlock()

	return s.Commit(ctx)
}
