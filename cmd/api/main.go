package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appointment-duration-api/config"
	"appointment-duration-api/handlers"
	"appointment-duration-api/logging"
	"appointment-duration-api/metrics"
	"appointment-duration-api/predictor"
	"appointment-duration-api/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Init("duration-api", cfg.Log.Environment, cfg.Log.Level)
	if cfg.Log.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := services.NewArtifactStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up artifact store")
	}
	trainer, err := predictor.NewTrainer(cfg.Model.Hyperparameters(), logger.With().Str("component", "trainer").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid model configuration")
	}
	svc := predictor.NewService(store, trainer, logger.With().Str("component", "predictor").Logger())
	if err := svc.Load(ctx); err != nil {
		// A corrupt artifact must not keep the API down; serve fallback estimates.
		logger.Error().Err(err).Msg("failed to load model artifact")
	}
	if a := svc.Current(); a != nil {
		metrics.ObserveModel(true, a.MAE)
	} else {
		metrics.ObserveModel(false, 0)
	}

	deps := handlers.RouterDeps{
		Service:   svc,
		Auth:      services.NewAuthService(cfg.JWT, cfg.Admin),
		CORS:      cfg.CORS,
		MaxUpload: cfg.Server.MaxUploadBytes,
		Logger:    logger,
	}

	if cfg.Redis.Enabled {
		cache, err := services.NewCacheService(cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, prediction cache and model feed disabled")
		} else {
			defer cache.Close()
			deps.Cache = cache
			go func() {
				if err := services.WatchModelUpdates(ctx, cache, svc, logger.With().Str("component", "model-watcher").Logger()); err != nil {
					logger.Warn().Err(err).Msg("model update watcher stopped")
				}
			}()
		}
	}

	if cfg.Database.Enabled {
		db, err := services.OpenDatabase(cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		deps.History = services.NewHistoryRepository(db)
		deps.Runs = services.NewModelRunRepository(db)
		logger.Info().Str("host", cfg.Database.Host).Msg("database connected")
	}

	router := handlers.NewRouter(deps)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Bool("model_loaded", svc.Current() != nil).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
