package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"flowboard/api/internal/app"
	"flowboard/api/internal/config"
	"flowboard/api/internal/objects"
	"flowboard/api/internal/realtime"
	"flowboard/api/internal/session"
	"flowboard/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		logger.Fatalf("migrations failed: %v", err)
	}
	dataStore := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("redis connection failed: %v", err)
	}
	defer sessions.Close()

	var objectStore *objects.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objectStore, err = objects.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.PresignTTL)
		if err != nil {
			logger.Fatalf("object storage init failed: %v", err)
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Fatalf("object storage bucket failed: %v", err)
		}
	} else {
		logger.Info("MINIO_ENDPOINT not set, attachments disabled")
	}

	hub := realtime.NewHub(logger)
	var service *app.Service
	if objectStore != nil {
		service = app.New(cfg, dataStore, sessions, hub, objectStore, logger)
	} else {
		service = app.New(cfg, dataStore, sessions, hub, nil, logger)
	}

	wsHandler := realtime.NewHandler(
		hub,
		func(_ context.Context, token string) (realtime.Identity, error) {
			sess, err := service.SessionFromToken(token)
			if err != nil {
				return realtime.Identity{}, err
			}
			return realtime.Identity{UserID: sess.UserID, UserName: sess.UserName}, nil
		},
		func(ctx context.Context, boardID, userID string) error {
			return service.VerifyAccess(ctx, boardID, userID)
		},
		cfg.SendQueueSize,
		logger,
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	app.NewHTTPServer(service, wsHandler, cfg.CORSOrigin, logger).Register(e)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("flowboard API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
	hub.CloseAll()
}
