package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/app"
	"taskflow/api/internal/auth"
	"taskflow/api/internal/blob"
	"taskflow/api/internal/config"
	"taskflow/api/internal/email"
	"taskflow/api/internal/invite"
	"taskflow/api/internal/logging"
	"taskflow/api/internal/realtime"
	"taskflow/api/internal/search"
	"taskflow/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Service: "taskflow-api"})
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}
	if len(applied) > 0 {
		logger.WithField("migrations", applied).Info("applied migrations")
	}

	dataStore := store.NewPostgresStore(db)
	checks := map[string]func(context.Context) error{}

	var activitySink activity.Sink = dataStore
	if strings.TrimSpace(cfg.MongoURI) != "" {
		mongoStore, err := store.NewMongoActivityStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.WithError(err).Fatal("mongo connection failed")
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoStore.Close(closeCtx)
		}()
		activitySink = mongoStore
		checks["activity"] = mongoStore.Ping
		logger.Info("using MongoDB for activity log")
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	defer searchService.Close()
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	var blobs app.AttachmentStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobStore, err := blob.New(blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
			URLTTL:    cfg.AttachmentURLTTL,
		})
		if err != nil {
			logger.WithError(err).Fatal("blob store configuration failed")
		}
		if err := blobStore.EnsureBucket(ctx); err != nil {
			logger.WithError(err).Warn("attachment bucket unavailable")
		}
		blobs = blobStore
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, logger)
	if !mailer.IsConfigured() {
		logger.Warn("SMTP not configured; invitation links will be logged instead of emailed")
	}

	// The hub authorizes joins through the service, which is built below.
	var service *app.Service
	hub := realtime.NewHub(func(ctx context.Context, userID, taskID string) error {
		return service.AuthorizeTaskSubscription(ctx, userID, taskID)
	}, cfg.CORSOrigin, logger)
	defer hub.Close()

	var notifier realtime.Notifier = realtime.NewLocalNotifier(hub)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := realtime.OpenRedis(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
		defer rdb.Close()
		subscription, err := hub.Subscribe(ctx, rdb)
		if err != nil {
			logger.WithError(err).Fatal("redis subscription failed")
		}
		defer subscription.Close()
		notifier = realtime.NewRedisNotifier(rdb, logger)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("using Redis for realtime fan-out")
	}

	service = app.New(cfg, app.Dependencies{
		Store:    dataStore,
		Activity: activitySink,
		Notifier: notifier,
		Search:   searchService,
		Blobs:    blobs,
		Mailer:   mailer,
		Invites:  invite.NewIssuer(cfg.InviteSecret, cfg.InviteTTL),
		Logger:   logger,
		Checks:   checks,
	})

	httpServer := app.NewHTTPServer(service, auth.NewVerifier(cfg.AuthSecret), hub, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr).Info("TaskFlow API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	service.Close()
	logger.Info("stopped")
}
