package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hearthside/pantrysync/internal/model"
)

// Cache is the local fallback store used while the server is
// unreachable. It holds the last optimistic document so an offline
// client survives a restart without losing its edits.
type Cache struct {
	path string
}

type cacheEnvelope struct {
	Document model.Document `json:"document"`
	Revision int64          `json:"revision"`
	SavedAt  time.Time      `json:"saved_at"`
}

// NewCache creates a cache backed by the given file path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Save writes the document and its base revision atomically (write to a
// temp file, then rename).
func (c *Cache) Save(doc model.Document, revision int64) error {
	data, err := json.Marshal(cacheEnvelope{
		Document: doc,
		Revision: revision,
		SavedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// Load returns the cached document and revision. ok is false when no
// usable cache exists.
func (c *Cache) Load() (model.Document, int64, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return model.Document{}, 0, false
	}

	var env cacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Document{}, 0, false
	}
	return env.Document, env.Revision, true
}

// Clear removes the cache file. Missing files are not an error.
func (c *Cache) Clear() {
	os.Remove(c.path)
}
