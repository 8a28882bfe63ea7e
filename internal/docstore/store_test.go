package docstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/hearthside/pantrysync/internal/model"
)

// memPersister is an in-memory Persister; failNext simulates a durable
// write failure.
type memPersister struct {
	mu       sync.Mutex
	doc      model.Document
	revision int64
	stored   bool
	failNext bool
	replaces int
}

func (p *memPersister) Load() (model.Document, int64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stored {
		return model.Document{}, 0, false, nil
	}
	return p.doc.Clone(), p.revision, true, nil
}

func (p *memPersister) Replace(doc model.Document, revision int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return fmt.Errorf("disk full")
	}
	p.doc = doc.Clone()
	p.revision = revision
	p.stored = true
	p.replaces++
	return nil
}

func newTestStore(t *testing.T) (*Store, *memPersister) {
	t.Helper()
	p := &memPersister{}
	s, err := New(p, slog.Default())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, p
}

func docWithList(base model.Document, name string) model.Document {
	doc := base.Clone()
	doc.Lists = append(doc.Lists, model.List{ID: "list-" + name, Name: name, Items: []model.ListItem{}})
	return doc
}

func TestNewStoreStartsAtRevisionZero(t *testing.T) {
	s, p := newTestStore(t)

	doc, rev := s.Get()
	if rev != 0 {
		t.Fatalf("revision = %d, want 0", rev)
	}
	if doc.Revision != 0 {
		t.Fatalf("doc.Revision = %d, want 0", doc.Revision)
	}
	if len(doc.Categories) == 0 {
		t.Error("expected seed categories")
	}
	if p.replaces != 1 {
		t.Errorf("initial persist count = %d, want 1", p.replaces)
	}
}

func TestCompareAndSwapAdvancesRevision(t *testing.T) {
	s, _ := newTestStore(t)

	base, rev := s.Get()
	newRev, err := s.CompareAndSwap(docWithList(base, "L1"), rev)
	if err != nil {
		t.Fatalf("CAS: %v", err)
	}
	if newRev != rev+1 {
		t.Fatalf("newRev = %d, want %d", newRev, rev+1)
	}

	doc, got := s.Get()
	if got != newRev {
		t.Errorf("Get revision = %d, want %d", got, newRev)
	}
	if len(doc.Lists) != 1 || doc.Lists[0].Name != "L1" {
		t.Errorf("lists = %+v", doc.Lists)
	}
}

func TestCompareAndSwapRejectsStaleWriter(t *testing.T) {
	s, _ := newTestStore(t)

	base, rev := s.Get()
	if _, err := s.CompareAndSwap(docWithList(base, "L1"), rev); err != nil {
		t.Fatalf("first CAS: %v", err)
	}

	// Second writer still at the old base revision.
	_, err := s.CompareAndSwap(docWithList(base, "L2"), rev)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if conflict.Revision != rev+1 {
		t.Errorf("conflict revision = %d, want %d", conflict.Revision, rev+1)
	}
	if len(conflict.Current.Lists) != 1 || conflict.Current.Lists[0].Name != "L1" {
		t.Errorf("conflict carries wrong state: %+v", conflict.Current.Lists)
	}
}

func TestTwoWritersSameBaseExactlyOneWins(t *testing.T) {
	s, _ := newTestStore(t)
	base, rev := s.Get()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CompareAndSwap(docWithList(base, fmt.Sprintf("L%d", i)), rev)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted writers = %d, want exactly 1", accepted)
	}
}

func TestCompareAndSwapRejectsInvalidDocument(t *testing.T) {
	s, _ := newTestStore(t)
	base, rev := s.Get()

	bad := base.Clone()
	bad.Lists = append(bad.Lists, model.List{ID: "l1", Items: []model.ListItem{
		{ID: "i1", GlobalItemID: "missing", Quantity: 1, PriceBasisQuantity: 1},
	}})

	_, err := s.CompareAndSwap(bad, rev)
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}

	// Store untouched.
	if _, got := s.Get(); got != rev {
		t.Errorf("revision moved to %d on invalid write", got)
	}
}

func TestPersistFailureLeavesMemoryUnchanged(t *testing.T) {
	s, p := newTestStore(t)
	base, rev := s.Get()

	p.mu.Lock()
	p.failNext = true
	p.mu.Unlock()

	_, err := s.CompareAndSwap(docWithList(base, "L1"), rev)
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("err = %v, want *StorageError", err)
	}

	doc, got := s.Get()
	if got != rev {
		t.Errorf("revision moved to %d after failed persist", got)
	}
	if len(doc.Lists) != 0 {
		t.Errorf("in-memory state mutated after failed persist")
	}

	// The same write succeeds once persistence recovers.
	if _, err := s.CompareAndSwap(docWithList(base, "L1"), rev); err != nil {
		t.Fatalf("retry after persist recovery: %v", err)
	}
}

func TestResetBumpsRevision(t *testing.T) {
	s, _ := newTestStore(t)
	base, rev := s.Get()

	if _, err := s.CompareAndSwap(docWithList(base, "L1"), rev); err != nil {
		t.Fatalf("CAS: %v", err)
	}

	newRev, err := s.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if newRev != rev+2 {
		t.Fatalf("reset revision = %d, want %d", newRev, rev+2)
	}

	doc, _ := s.Get()
	if len(doc.Lists) != 0 {
		t.Errorf("reset left %d lists", len(doc.Lists))
	}

	// A writer racing the reset from the pre-reset revision is rejected.
	_, err = s.CompareAndSwap(docWithList(base, "L2"), rev+1)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("stale post-reset write: err = %v, want *ConflictError", err)
	}
}

func TestOnCommitFiresOncePerAcceptedWrite(t *testing.T) {
	s, _ := newTestStore(t)

	var mu sync.Mutex
	var revs []int64
	s.OnCommit(func(_ model.Document, rev int64) {
		mu.Lock()
		revs = append(revs, rev)
		mu.Unlock()
	})

	base, rev := s.Get()
	if _, err := s.CompareAndSwap(docWithList(base, "L1"), rev); err != nil {
		t.Fatalf("CAS: %v", err)
	}
	// Stale write must not fire the hook.
	s.CompareAndSwap(docWithList(base, "L2"), rev)
	if _, err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(revs) != 2 || revs[0] != 1 || revs[1] != 2 {
		t.Fatalf("commit hook revisions = %v, want [1 2]", revs)
	}
}

func TestGetReturnsIndependentSnapshot(t *testing.T) {
	s, _ := newTestStore(t)

	doc, _ := s.Get()
	doc.Lists = append(doc.Lists, model.List{ID: "rogue", Name: "rogue"})

	again, _ := s.Get()
	if len(again.Lists) != 0 {
		t.Error("caller mutation leaked into store state")
	}
}
