package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"conference-central/internal/api"
	"conference-central/internal/config"
	"conference-central/internal/domain"
	"conference-central/internal/storage"
	"conference-central/internal/tasks"
)

func main() {
	cfg, err := config.LoadAPI()
	if err != nil {
		config.Exitf("conference-api: %v", err)
	}
	logger := config.ConfigureLogging(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg.Storage, 0)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer backend.Close()

	var auth *api.Auth
	if cfg.Auth.SharedSecret() {
		logger.Warn("LOCAL_AUTH_MODE=hs256: accepting locally signed tokens")
		auth = api.NewSharedSecretAuth([]byte(cfg.Auth.TestSecret), cfg.Auth.Audience, cfg.Auth.Issuer())
	} else {
		jwks, err := keyfunc.Get(cfg.Auth.JWKSURL(), keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(jwks, cfg.Auth.Audience, cfg.Auth.Issuer(), cfg.Auth.KeyCacheTTL)
	}

	var deduper api.Deduper
	if backend.Redis != nil {
		deduper = api.NewRedisDeduper(backend.Redis, cfg.DeduperTTL)
	} else {
		deduper = api.NewMemoryDeduper(cfg.DeduperTTL)
	}

	if backend.Local {
		mailer, err := tasks.NewMailer(cfg.Mail, logger)
		if err != nil {
			log.Fatalf("mailer: %v", err)
		}
		w := tasks.NewWorker(backend.Queue, logger, tasks.WorkerOptions{})
		tasks.Register(w, tasks.Deps{Store: backend.Store, Cache: backend.Cache, Mailer: mailer})
		go func() { _ = w.Run(ctx) }()
		go tasks.RunAnnouncementTicker(ctx, domain.NewAnnouncementRefresher(backend.Store, backend.Cache), cfg.AnnouncementInterval, logger)
		logger.Info("running task worker in-process")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.IdempotencyHeader},
	}))
	e.Use(middleware.Recover())
	e.Use(api.ContentEncodingMiddleware())

	api.Register(e, api.NewServices(backend.Store, backend.Queue, backend.Cache), auth, logger, api.Options{
		Deduper:   deduper,
		CronToken: cfg.CronToken,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown")
		}
	}()

	logger.WithFields(log.Fields{"port": cfg.Port, "driver": cfg.Storage.Driver}).Info("conference api listening")
	if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}
