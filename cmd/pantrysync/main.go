package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hearthside/pantrysync/internal/backup"
	"github.com/hearthside/pantrysync/internal/database"
	"github.com/hearthside/pantrysync/internal/docstore"
	"github.com/hearthside/pantrysync/internal/logging"
	"github.com/hearthside/pantrysync/internal/persist"
	"github.com/hearthside/pantrysync/internal/server"
)

func main() {
	port := os.Getenv("PANTRYSYNC_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("PANTRYSYNC_DB_PATH")
	if dbPath == "" {
		dbPath = "pantrysync.db"
	}

	logger := logging.Setup(os.Getenv("PANTRYSYNC_LOG_LEVEL"), os.Getenv("PANTRYSYNC_LOG_FORMAT"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	store, err := docstore.New(persist.NewSQLite(db), logger.With("component", "docstore"))
	if err != nil {
		log.Fatalf("failed to initialize document store: %v", err)
	}

	backupInterval := 24 * time.Hour
	if v := os.Getenv("PANTRYSYNC_BACKUP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid PANTRYSYNC_BACKUP_INTERVAL: %v", err)
		}
		backupInterval = d
	}
	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("PANTRYSYNC_S3_ENDPOINT"),
			Bucket:    os.Getenv("PANTRYSYNC_S3_BUCKET"),
			Region:    os.Getenv("PANTRYSYNC_S3_REGION"),
			AccessKey: os.Getenv("PANTRYSYNC_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("PANTRYSYNC_S3_SECRET_KEY"),
		},
		Passphrase: os.Getenv("PANTRYSYNC_BACKUP_PASSPHRASE"),
		Prefix:     os.Getenv("PANTRYSYNC_BACKUP_PREFIX"),
		Interval:   backupInterval,
	}

	srv := server.New(store, backupCfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Backups().Start(ctx)
	defer srv.Backups().Stop()

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("pantrysync running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
