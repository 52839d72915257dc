package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/store"
	"clipforge/internal/taskqueue"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open pipeline store: %v", err)
	}
	queue := taskqueue.New(st.DB())

	d, err := buildDaemon(cfg, st, queue, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("clipforged shutting down")
	d.Stop()
}
