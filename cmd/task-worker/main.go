package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"conference-central/internal/config"
	"conference-central/internal/domain"
	"conference-central/internal/storage"
	"conference-central/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		config.Exitf("task-worker: %v", err)
	}
	logger := config.ConfigureLogging(cfg.Debug)
	logger.Info("task worker starting")

	if cfg.Storage.Driver != config.DriverTables {
		// Memory and sqlite queues live inside conference-api, which drains
		// them itself.
		log.Fatalf("task-worker needs STORE_DRIVER=%s, got %q", config.DriverTables, cfg.Storage.Driver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg.Storage, cfg.VisibilityTimeout)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer backend.Close()

	mailer, err := tasks.NewMailer(cfg.Mail, logger)
	if err != nil {
		log.Fatalf("mailer: %v", err)
	}

	w := tasks.NewWorker(backend.Queue, logger, tasks.WorkerOptions{
		IdleWait:   cfg.IdleWait,
		MaxDequeue: cfg.MaxDequeue,
	})
	tasks.Register(w, tasks.Deps{Store: backend.Store, Cache: backend.Cache, Mailer: mailer})

	go tasks.RunAnnouncementTicker(ctx, domain.NewAnnouncementRefresher(backend.Store, backend.Cache), cfg.AnnouncementInterval, logger)

	if err := w.Run(ctx); err != nil {
		logger.WithError(err).Error("task worker stopped")
	}
}
