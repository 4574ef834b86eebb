package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/Luka0103/studyconnect/api"
	"github.com/Luka0103/studyconnect/auth"
	"github.com/Luka0103/studyconnect/board"
	"github.com/Luka0103/studyconnect/config"
	"github.com/Luka0103/studyconnect/drag"
	"github.com/Luka0103/studyconnect/reconcile"
	"github.com/Luka0103/studyconnect/remote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	tp := newTracerProvider(logger)
	otel.SetTracerProvider(tp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := credentialStore(cfg)
	if err != nil {
		log.Fatalf("credential store: %v", err)
	}
	session := auth.NewSession(creds, logger)
	if err := session.Load(ctx); err != nil {
		logger.WithError(err).Warn("could not load stored credentials, starting signed out")
	}

	client := remote.New(cfg.APIBaseURL, session, remote.Options{
		Timeout:        cfg.RemoteTimeout,
		TracerProvider: tp,
		Logger:         logger,
	})
	store := board.NewStore(logger)
	ctrl := reconcile.NewController(store, client, client, session, logger, reconcile.Options{
		ExpireOverdue: cfg.ExpireOverdue,
		Timeout:       cfg.RemoteTimeout,
	})
	dispatcher := reconcile.NewDispatcher(ctrl, reconcile.DispatcherConfig{
		Workers:        cfg.ReconcileWorkers,
		Buffer:         cfg.ReconcileBuffer,
		Timeout:        cfg.RemoteTimeout,
		HandoffTimeout: cfg.ReconcileHandoff,
	}, logger)
	coordinator := drag.NewCoordinator(store, dispatcher, logger)

	go auth.NewScheduler(session, client, cfg.TokenRefreshInterval, logger).Run(ctx)

	if session.Authenticated() {
		if _, err := ctrl.Refresh(ctx); err != nil {
			logger.WithError(err).Warn("initial board fetch failed")
		}
		if err := ctrl.RefreshGroups(ctx); err != nil {
			logger.WithError(err).Warn("initial group fetch failed")
		}
	}

	e := api.New(api.Deps{
		Store:      store,
		Reconciler: ctrl,
		Drags:      coordinator,
		Session:    session,
		Auth:       client,
		Logger:     logger,
	})

	go func() {
		if err := e.Start(":" + cfg.ListenPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown")
	}
	dispatcher.Close()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracer shutdown")
	}
}

// credentialStore picks Redis when a connection string is configured and the
// per-user credentials file otherwise.
func credentialStore(cfg config.Config) (auth.CredentialStore, error) {
	if cfg.RedisConnectionString != "" {
		opts, err := config.RedisOptions(cfg.RedisConnectionString)
		if err != nil {
			return nil, err
		}
		return auth.NewRedisStore(redis.NewClient(opts), "studyconnect:"), nil
	}
	path := cfg.CredentialsFile
	if path == "" {
		p, err := auth.DefaultCredentialsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return auth.NewFileStore(path), nil
}
