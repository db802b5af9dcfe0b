// Package main runs the Offcourse sync sidecar. It owns the offline action
// store, replays pending actions against the LMS in the background, and
// exposes a localhost REST/WebSocket surface for the UI.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mviana/offcourse/internal/config"
	"github.com/mviana/offcourse/internal/connectivity"
	"github.com/mviana/offcourse/internal/db"
	"github.com/mviana/offcourse/internal/logging"
	"github.com/mviana/offcourse/internal/rpc"
	syncpkg "github.com/mviana/offcourse/internal/sync"
	"github.com/mviana/offcourse/internal/sync/scheduler"
	"github.com/mviana/offcourse/internal/uploads"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := migrator.Up(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	siteID := os.Getenv("OFFCOURSE_SITEID")
	token := os.Getenv("OFFCOURSE_TOKEN")
	if cfg.ServerURL == "" || token == "" {
		log.Fatal("OFFCOURSE_SERVERURL and OFFCOURSE_TOKEN must be set")
	}

	store := uploads.NewStore(filepath.Join(cfg.DataDir, "staged"))
	files := uploads.NewManager(store, repo)
	client := rpc.NewHTTPClient(cfg.ServerURL, token, cfg.RequestTimeout)
	uploader := uploads.NewDraftUploader(cfg.ServerURL, token, store, cfg.RequestTimeout)

	monitor := connectivity.NewMonitor(true)
	events := syncpkg.NewEmitter()
	locks := syncpkg.NewLockRegistry()
	tracker := syncpkg.NewTimeTracker(repo, cfg.MinSyncInterval)

	synchronizer := syncpkg.NewSynchronizer(syncpkg.SynchronizerConfig{
		Repo:           repo,
		Locks:          locks,
		Tracker:        tracker,
		Registry:       syncpkg.NewRegistry(),
		Client:         client,
		Uploader:       uploader,
		Files:          files,
		Monitor:        monitor,
		Events:         events,
		RetryableCodes: cfg.RetryableErrorCodes,
	})
	orchestrator := syncpkg.NewOrchestrator(repo, synchronizer, monitor, events)

	sched := scheduler.New(orchestrator, monitor, siteID, &scheduler.Config{
		SweepInterval: cfg.SyncInterval,
		SweepTimeout:  5 * time.Minute,
	})

	hub := NewWSHub()
	events.Subscribe(hub.BroadcastSyncEvent)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()

	api := &apiServer{
		repo:         repo,
		synchronizer: synchronizer,
		orchestrator: orchestrator,
		scheduler:    sched,
		monitor:      monitor,
		siteID:       siteID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", api.handleHealth)
	mux.HandleFunc("/api/sync/pending", api.handlePending)
	mux.HandleFunc("/api/sync/entity", api.handleSyncEntity)
	mux.HandleFunc("/api/sync/all", api.handleSyncAll)
	mux.HandleFunc("/api/sync/block", api.handleBlock)
	mux.HandleFunc("/api/sync/status", api.handleStatus)
	mux.HandleFunc("/api/connectivity", api.handleConnectivity)
	mux.HandleFunc("/ws", hub.ServeWS)

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logging.Info("syncd listening", map[string]interface{}{"addr": cfg.ListenAddr})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
