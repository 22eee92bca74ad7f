package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flames/api/internal/app"
	"flames/api/internal/email"
	"flames/api/internal/media"
	"flames/api/internal/metrics"
	"flames/api/internal/moderation"
	"flames/api/internal/search"
	"flames/api/internal/session"
	"flames/api/internal/store"
)

const meiliHealthInterval = 30 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}
}

type storeHandle struct {
	data app.DataStore
	pg   *search.PgSearch
	// close releases the database pool; a no-op for the memory driver.
	close func()
}

func openStore(ctx context.Context) (storeHandle, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		return storeHandle{data: store.NewMemoryStore(), close: func() {}}, nil
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, dbPool())
	if err != nil {
		return storeHandle{}, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		db.Close()
		return storeHandle{}, fmt.Errorf("migrations failed: %w", err)
	}
	return storeHandle{
		data:  store.NewPostgresStore(db),
		pg:    search.NewPgSearch(db),
		close: func() { db.Close() },
	}, nil
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	handle, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer handle.close()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger, meiliHealthInterval)
	}
	searchService := search.NewService(meiliClient, handle.pg, logger)
	defer searchService.Close()
	searchService.ReindexAllFromPG(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	modOpts := []moderation.Option{
		moderation.WithIndexer(searchService),
		moderation.WithMetrics(metrics.NewModeration(reg)),
		moderation.WithLogger(logger),
	}

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		modOpts = append(modOpts, moderation.WithMailer(mailer))
	} else {
		logger.Info("SMTP not configured, notification emails disabled")
	}

	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		mediaStore, err := media.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL,
			media.WithBucket(cfg.S3Bucket),
			media.WithPublicBase(cfg.MediaPublicBase),
			media.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("media storage: %w", err)
		}
		if err := mediaStore.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("media bucket: %w", err)
		}
		modOpts = append(modOpts,
			moderation.WithMedia(mediaStore),
			moderation.WithMediaOrigins(mediaStore.PublicURL(""), cfg.MediaPublicBase),
		)
	} else {
		logger.Info("S3 not configured, media uploads disabled")
	}

	appOpts := []app.Option{
		app.WithSearch(searchService),
		app.WithLogger(logger),
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		appOpts = append(appOpts, app.WithSessions(redisStore))
	} else {
		logger.Info("REDIS_URL not set, refresh tokens disabled")
	}

	service := app.New(cfg, handle.data, moderation.NewService(handle.data, modOpts...), appOpts...)
	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		if _, err := service.GrantAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, ""); err != nil {
			logger.Warn("bootstrap admin failed", zap.Error(err))
		}
	}

	limiter := app.NewRateLimiter(cfg.FormRatePerMinute, cfg.FormRateBurst)
	defer limiter.Close()
	if err := limiter.TrustProxies(cfg.TrustedProxies); err != nil {
		return err
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin,
		app.WithServerLogger(logger),
		app.WithMetrics(metrics.NewHTTP(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		app.WithRateLimiter(limiter),
		app.WithMaxMediaBytes(cfg.MediaMaxBytes),
	)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Flames API listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}
