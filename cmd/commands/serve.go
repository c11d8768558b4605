package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Automobile-System/backend-sub001/config"
	"github.com/Automobile-System/backend-sub001/db"
	"github.com/Automobile-System/backend-sub001/internal/auth/handler"
	"github.com/Automobile-System/backend-sub001/internal/auth/repository/postgres"
	"github.com/Automobile-System/backend-sub001/internal/auth/service"
	"github.com/Automobile-System/backend-sub001/internal/events"
	"github.com/Automobile-System/backend-sub001/internal/logging"
	"github.com/Automobile-System/backend-sub001/internal/ratelimit"
	"github.com/Automobile-System/backend-sub001/internal/realtime"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "Start the HTTP API and the realtime channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.IsProduction())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewPostgresRepository(pool)
	tokens := service.NewTokenService(service.NewTokenConfig(cfg))

	opts := []service.Option{service.WithLogger(logger)}
	nc, err := events.Connect(cfg.NatsURL, logger)
	if err != nil {
		return err
	}
	if nc != nil {
		defer nc.Drain()
		opts = append(opts, service.WithPublisher(events.NewNatsPublisher(nc, logger)))
		logger.WithField("url", cfg.NatsURL).Info("publishing auth events to NATS")
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	authService := service.NewAuthService(repo, tokens, cfg, opts...)

	app := handler.NewApp(logger)
	if cfg.AllowedOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowCredentials: cfg.AllowedOrigins != "*",
		}))
	}
	handler.RegisterRoutes(app, handler.NewAuthHandler(authService, cfg), handler.RouteConfig{
		Verifier: tokens,
		Limiter:  limiter,
		Policy:   handler.DefaultAccessPolicy(),
		DB:       repo,
		Logger:   logger,
	})

	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	channelAuth := realtime.NewChannelAuthenticator(tokens, repo, cfg.RealtimeAllowAnonymous, logger)
	realtimeServer := &http.Server{
		Addr:              ":" + cfg.RealtimePort,
		Handler:           realtime.NewServer(hub, channelAuth, realtime.SplitOrigins(cfg.AllowedOrigins), logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("port", cfg.Port).Info("HTTP API listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.WithField("port", cfg.RealtimePort).Info("realtime channel listening")
		if err := realtimeServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP API shutdown")
	}
	if err := realtimeServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("realtime shutdown")
	}
	stop()

	return runErr
}

// newLimiter prefers Redis so limits hold across instances, and falls back to
// per-process counters when REDIS_URL is unset.
func newLimiter(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (handler.Limiter, func(), error) {
	window := time.Duration(cfg.RateLimitWindowSec) * time.Second

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if rdb == nil {
		logger.Warn("REDIS_URL not set, using in-memory rate limiter")
		return ratelimit.NewMemoryLimiter(cfg.RateLimitMax, window), func() {}, nil
	}

	return ratelimit.NewRedisLimiter(rdb, cfg.RateLimitMax, window), func() { _ = rdb.Close() }, nil
}
