// Package hub fans out committed document snapshots to subscribed
// sessions. Delivery is at-least-once per connected subscriber and
// revision-monotonic per subscriber; a slow subscriber never blocks the
// committer or its peers.
package hub

import (
	"log/slog"
	"sync"

	"github.com/hearthside/pantrysync/internal/model"
)

const subscriberBufferSize = 16

// Snapshot is one full authoritative document state as delivered to
// subscribers.
type Snapshot struct {
	Doc      model.Document
	Revision int64
}

// SnapshotFunc supplies the current authoritative state for catch-up
// delivery at subscribe time.
type SnapshotFunc func() (model.Document, int64)

// Subscription is one subscriber's receive side. C carries snapshots in
// strictly increasing revision order.
type Subscription struct {
	C chan Snapshot

	mu      sync.Mutex
	lastRev int64
	closed  bool
}

// Hub maintains the set of active subscriptions.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	snapshot SnapshotFunc
	logger   *slog.Logger
}

// New creates a Hub. snapshot is consulted on every Subscribe so that new
// subscribers never see a revision older than the one current at
// subscribe time.
func New(snapshot SnapshotFunc, logger *slog.Logger) *Hub {
	return &Hub{
		subs:     make(map[*Subscription]struct{}),
		snapshot: snapshot,
		logger:   logger,
	}
}

// Subscribe registers a new subscriber and immediately queues the current
// snapshot as catch-up. The returned cancel func unsubscribes and closes
// the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (*Subscription, func()) {
	sub := &Subscription{
		C: make(chan Snapshot, subscriberBufferSize),
		// Catch-up below sets lastRev; start below any valid revision.
		lastRev: -1,
	}

	// Register before reading the snapshot. A commit landing between the
	// two reaches the subscriber via Publish; the monotonic guard in
	// deliver drops whichever of the two arrives second with the lower
	// revision.
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	doc, rev := h.snapshot()
	sub.deliver(Snapshot{Doc: doc, Revision: rev})

	cancel := func() {
		h.mu.Lock()
		_, ok := h.subs[sub]
		delete(h.subs, sub)
		h.mu.Unlock()
		if ok {
			sub.close()
		}
	}
	return sub, cancel
}

// Publish delivers the committed snapshot to every current subscriber.
// It is called once per accepted write and never blocks on a slow
// subscriber.
func (h *Hub) Publish(doc model.Document, revision int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		sub.deliver(Snapshot{Doc: doc, Revision: revision})
	}
	h.logger.Debug("published snapshot", "revision", revision, "subscribers", len(h.subs))
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// deliver queues snap unless it would violate monotonic delivery. When
// the buffer is full the oldest queued snapshot is dropped: every
// snapshot supersedes the ones before it, so the latest state must win.
func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || snap.Revision <= s.lastRev {
		return
	}
	s.lastRev = snap.Revision

	for {
		select {
		case s.C <- snap:
			return
		default:
		}
		select {
		case <-s.C:
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.C)
	}
}
