package main

import (
	"log/slog"
	"path/filepath"

	"clipforge/internal/assembly"
	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/inventory"
	"clipforge/internal/notifications"
	"clipforge/internal/planner"
	"clipforge/internal/production"
	"clipforge/internal/services/lipsync"
	"clipforge/internal/services/llm"
	"clipforge/internal/services/mediagen"
	"clipforge/internal/services/objstore"
	"clipforge/internal/services/voice"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
	"clipforge/internal/watcher"
)

// buildDaemon assembles the full background pipeline: the production
// orchestrator as the watcher's producer, the planner over the configured
// model, and the notification service.
func buildDaemon(cfg *config.Config, st *store.Store, queue *taskqueue.Queue, logger *slog.Logger) (*daemon.Daemon, error) {
	components := inventory.NewCache(inventory.FileLoader{
		Path: filepath.Join(cfg.Paths.DataDir, "components.toml"),
	})

	orchestrator := production.New(production.Options{
		Contents:   st,
		Queue:      queue,
		Components: components,
		Media:      mediagen.NewClient(cfg),
		Voice:      voice.NewClient(cfg),
		LipSync:    lipsync.NewClient(cfg),
		Storage:    objstore.NewClient(cfg),
		Assembler:  assembly.NewEngine(cfg, logger),
		Logger:     logger,
	})

	w := watcher.New(cfg, queue, orchestrator, logger)
	p := planner.New(st, queue, llm.NewClient(cfg), logger)
	notifier := notifications.NewService(cfg)

	return daemon.New(cfg, st, queue, w, p, notifier, logger)
}
