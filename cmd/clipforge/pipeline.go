package main

import (
	"log/slog"
	"path/filepath"

	"clipforge/internal/assembly"
	"clipforge/internal/config"
	"clipforge/internal/inventory"
	"clipforge/internal/production"
	"clipforge/internal/services/lipsync"
	"clipforge/internal/services/mediagen"
	"clipforge/internal/services/objstore"
	"clipforge/internal/services/voice"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

// componentManifestPath returns the on-disk location of the component
// inventory manifest.
func componentManifestPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "components.toml")
}

// buildOrchestrator wires the production pipeline against the real external
// services configured in cfg.
func buildOrchestrator(cfg *config.Config, st *store.Store, queue *taskqueue.Queue, logger *slog.Logger, dryRun bool) *production.Orchestrator {
	components := inventory.NewCache(inventory.FileLoader{Path: componentManifestPath(cfg)})
	return production.New(production.Options{
		Contents:   st,
		Queue:      queue,
		Components: components,
		Media:      mediagen.NewClient(cfg),
		Voice:      voice.NewClient(cfg),
		LipSync:    lipsync.NewClient(cfg),
		Storage:    objstore.NewClient(cfg),
		Assembler:  assembly.NewEngine(cfg, logger),
		Logger:     logger,
		DryRun:     dryRun,
	})
}
