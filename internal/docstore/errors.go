package docstore

import (
	"fmt"

	"github.com/hearthside/pantrysync/internal/model"
)

// ConflictError reports a compare-and-swap revision mismatch. It carries
// the current authoritative state so the caller can rebase without a
// second round-trip.
type ConflictError struct {
	Current  model.Document
	Revision int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict: store is at revision %d", e.Revision)
}

// ValidationError reports a structurally invalid document. The store is
// never touched; the write must not be retried as-is.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid document: " + e.Reason
}

// StorageError reports a durable-persistence failure during an otherwise
// valid write. The in-memory state is unchanged: an accepted write is
// always a persisted write.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return "persist document: " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
