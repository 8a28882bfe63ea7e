package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hearthside/pantrysync/internal/docstore"
	"github.com/hearthside/pantrysync/internal/model"
)

// DataHandler serves the whole-document sync endpoints. Reads return the
// authoritative snapshot; writes are compare-and-swap against the
// revision carried in the request body.
type DataHandler struct {
	store  *docstore.Store
	logger *slog.Logger
}

func NewDataHandler(store *docstore.Store, logger *slog.Logger) *DataHandler {
	return &DataHandler{store: store, logger: logger}
}

// Get returns the current document; the revision is embedded in the body.
func (h *DataHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, _ := h.store.Get()
	writeJSON(w, http.StatusOK, doc)
}

// Put attempts a compare-and-swap write. The body is the full document;
// its revision field is interpreted as the expected revision.
func (h *DataHandler) Put(w http.ResponseWriter, r *http.Request) {
	var doc model.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	newRev, err := h.store.CompareAndSwap(doc, doc.Revision)
	if err != nil {
		var conflict *docstore.ConflictError
		var invalid *docstore.ValidationError
		switch {
		case errors.As(err, &conflict):
			// The rejected writer rebases from the body.
			writeJSON(w, http.StatusConflict, conflict.Current)
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": invalid.Reason})
		default:
			h.logger.Error("store write failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store document"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Data updated successfully",
		"revision": newRev,
	})
}

// Clear resets the store to the empty default document. The reset is an
// ordinary revision-bumping write, so stale CAS writers racing it are
// rejected like any other conflict.
func (h *DataHandler) Clear(w http.ResponseWriter, r *http.Request) {
	newRev, err := h.store.Reset()
	if err != nil {
		h.logger.Error("store reset failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to reset document"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Data cleared",
		"revision": newRev,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
