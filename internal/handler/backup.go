package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hearthside/pantrysync/internal/backup"
	"github.com/hearthside/pantrysync/internal/docstore"
	"github.com/hearthside/pantrysync/internal/model"
)

// BackupService is the slice of the backup manager the handlers need.
type BackupService interface {
	Status() backup.Status
	Run(ctx context.Context) error
	Restore(ctx context.Context, key string) (model.Document, error)
	Enabled() bool
}

type BackupHandler struct {
	service BackupService
	store   *docstore.Store
	logger  *slog.Logger
}

func NewBackupHandler(service BackupService, store *docstore.Store, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{service: service, store: store, logger: logger}
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Status())
}

func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "backup is not configured"})
		return
	}

	if err := h.service.Run(r.Context()); err != nil {
		h.logger.Error("manual backup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "backup failed"})
		return
	}

	writeJSON(w, http.StatusOK, h.service.Status())
}

type restoreRequest struct {
	Key string `json:"key"`
}

// Restore downloads and decrypts the named backup object, then writes it
// through the ordinary compare-and-swap path. A concurrent writer racing
// the restore wins or loses exactly like any other CAS conflict.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "backup is not configured"})
		return
	}

	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing backup key"})
		return
	}

	doc, err := h.service.Restore(r.Context(), req.Key)
	if err != nil {
		h.logger.Error("restore failed", "key", req.Key, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "restore failed"})
		return
	}

	_, rev := h.store.Get()
	newRev, err := h.store.CompareAndSwap(doc, rev)
	if err != nil {
		var conflict *docstore.ConflictError
		var invalid *docstore.ValidationError
		switch {
		case errors.As(err, &conflict):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "document changed during restore"})
		case errors.As(err, &invalid):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": invalid.Reason})
		default:
			h.logger.Error("restore write failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store restored document"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Backup restored",
		"revision": newRev,
	})
}
