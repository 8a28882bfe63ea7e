package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hearthside/pantrysync/internal/database"
	"github.com/hearthside/pantrysync/internal/docstore"
	"github.com/hearthside/pantrysync/internal/model"
	"github.com/hearthside/pantrysync/internal/persist"
)

func setupDataHandler(t *testing.T) (*DataHandler, *docstore.Store) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := docstore.New(persist.NewSQLite(db), slog.Default())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewDataHandler(store, slog.Default()), store
}

func doJSON(t *testing.T, h http.HandlerFunc, method string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/data", &buf)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeDoc(t *testing.T, rec *httptest.ResponseRecorder) model.Document {
	t.Helper()
	var doc model.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return doc
}

func withList(doc model.Document, id, name string) model.Document {
	out := doc.Clone()
	out.Lists = append(out.Lists, model.List{ID: id, Name: name, Items: []model.ListItem{}})
	return out
}

func TestGetReturnsDocumentWithRevision(t *testing.T) {
	h, _ := setupDataHandler(t)

	rec := doJSON(t, h.Get, http.MethodGet, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	doc := decodeDoc(t, rec)
	if doc.Revision != 0 {
		t.Errorf("revision = %d, want 0", doc.Revision)
	}
	if len(doc.Categories) == 0 {
		t.Error("expected seed categories in response")
	}
}

func TestPutAcceptsMatchingRevision(t *testing.T) {
	h, store := setupDataHandler(t)
	base, _ := store.Get()

	rec := doJSON(t, h.Put, http.MethodPut, withList(base, "l1", "Weekly"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message  string `json:"message"`
		Revision int64  `json:"revision"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Revision != 1 {
		t.Errorf("revision = %d, want 1", resp.Revision)
	}
	if resp.Message == "" {
		t.Error("expected a message")
	}
}

func TestPutStaleRevisionReturnsConflictWithCurrentState(t *testing.T) {
	h, store := setupDataHandler(t)
	base, _ := store.Get()

	// First writer wins.
	if rec := doJSON(t, h.Put, http.MethodPut, withList(base, "l1", "L1")); rec.Code != http.StatusOK {
		t.Fatalf("first put status = %d", rec.Code)
	}

	// Second writer still based on revision 0.
	rec := doJSON(t, h.Put, http.MethodPut, withList(base, "l2", "L2"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	current := decodeDoc(t, rec)
	if current.Revision != 1 {
		t.Errorf("conflict body revision = %d, want 1", current.Revision)
	}
	if len(current.Lists) != 1 || current.Lists[0].Name != "L1" {
		t.Errorf("conflict body lists = %+v, want the winner's state", current.Lists)
	}
}

func TestPutRejectsMalformedBody(t *testing.T) {
	h, _ := setupDataHandler(t)

	rec := doJSON(t, h.Put, http.MethodPut, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPutRejectsInvalidDocument(t *testing.T) {
	h, store := setupDataHandler(t)
	base, _ := store.Get()

	bad := base.Clone()
	bad.Lists = append(bad.Lists, model.List{ID: "l1", Items: []model.ListItem{
		{ID: "i1", GlobalItemID: "ghost", Quantity: 1, PriceBasisQuantity: 1},
	}})

	rec := doJSON(t, h.Put, http.MethodPut, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestClearResetsAndBumpsRevision(t *testing.T) {
	h, store := setupDataHandler(t)
	base, _ := store.Get()

	if rec := doJSON(t, h.Put, http.MethodPut, withList(base, "l1", "L1")); rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}

	rec := doJSON(t, h.Clear, http.MethodPost, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}

	doc, rev := store.Get()
	if rev != 2 {
		t.Errorf("revision after clear = %d, want 2", rev)
	}
	if len(doc.Lists) != 0 {
		t.Errorf("lists after clear = %d, want 0", len(doc.Lists))
	}
}

// The two-client scenario: A commits from revision 0 and wins; B, also
// based on revision 0, is rejected with A's state, rebases, reapplies
// its own list, and lands at revision 2 with both lists present.
func TestTwoClientRebaseScenario(t *testing.T) {
	h, store := setupDataHandler(t)
	base, _ := store.Get()

	if rec := doJSON(t, h.Put, http.MethodPut, withList(base, "l1", "L1")); rec.Code != http.StatusOK {
		t.Fatalf("client A put status = %d", rec.Code)
	}

	rec := doJSON(t, h.Put, http.MethodPut, withList(base, "l2", "L2"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("client B put status = %d, want 409", rec.Code)
	}
	rebased := withList(decodeDoc(t, rec), "l2", "L2")

	rec = doJSON(t, h.Put, http.MethodPut, rebased)
	if rec.Code != http.StatusOK {
		t.Fatalf("client B rebased put status = %d, body %s", rec.Code, rec.Body.String())
	}

	final, rev := store.Get()
	if rev != 2 {
		t.Errorf("final revision = %d, want 2", rev)
	}
	if len(final.Lists) != 2 {
		t.Fatalf("final lists = %d, want 2", len(final.Lists))
	}
	names := map[string]bool{final.Lists[0].Name: true, final.Lists[1].Name: true}
	if !names["L1"] || !names["L2"] {
		t.Errorf("final lists = %v, want L1 and L2", names)
	}
}
