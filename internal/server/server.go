package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthside/pantrysync/internal/backup"
	"github.com/hearthside/pantrysync/internal/docstore"
	"github.com/hearthside/pantrysync/internal/handler"
	"github.com/hearthside/pantrysync/internal/hub"
	"github.com/hearthside/pantrysync/internal/middleware"
	ws "github.com/hearthside/pantrysync/internal/websocket"
)

// writeLimit caps document writes per client IP per minute. Generous for
// humans, tight enough to stop a looping client from monopolizing the
// store's critical section.
const (
	writeLimit  = 120
	writeWindow = time.Minute
)

type Server struct {
	store       *docstore.Store
	hub         *hub.Hub
	backups     *backup.Manager
	dataH       *handler.DataHandler
	backupH     *handler.BackupHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New wires the store, hub, backup manager, and handlers together. Every
// accepted write publishes to the hub exactly once via the store's
// commit hook.
func New(store *docstore.Store, backupCfg backup.Config, logger *slog.Logger) *Server {
	h := hub.New(store.Get, logger.With("component", "hub"))
	store.OnCommit(h.Publish)

	backupLogger := logger.With("component", "backup")
	backupMgr := backup.NewManager(backupCfg, store.Get, func(s backup.Status) {
		backupLogger.Debug("backup status", "state", s.State, "in_progress", s.InProgress)
	}, backupLogger)

	return &Server{
		store:       store,
		hub:         h,
		backups:     backupMgr,
		dataH:       handler.NewDataHandler(store, logger.With("component", "data")),
		backupH:     handler.NewBackupHandler(backupMgr, store, logger.With("component", "backup_handler")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Backups returns the backup manager for lifecycle control from main.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// RateLimiter returns the write rate limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /data", s.dataH.Get)
	mux.HandleFunc("PUT /data", s.rateLimited(s.dataH.Put))
	mux.HandleFunc("POST /data/clear", s.rateLimited(s.dataH.Clear))

	mux.HandleFunc("GET /ws", ws.Handler(s.hub, s.logger.With("component", "websocket")))

	mux.HandleFunc("GET /backup/status", s.backupH.Status)
	mux.HandleFunc("POST /backup/run", s.backupH.Run)
	mux.HandleFunc("POST /backup/restore", s.rateLimited(s.backupH.Restore))

	mux.HandleFunc("GET /health", s.healthHandler)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	limited := middleware.RateLimit(s.rateLimiter, middleware.RealIP, writeLimit, writeWindow)(next)
	return limited.ServeHTTP
}
