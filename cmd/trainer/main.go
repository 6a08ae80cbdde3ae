package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appointment-duration-api/config"
	"appointment-duration-api/logging"
	"appointment-duration-api/metrics"
	"appointment-duration-api/models"
	"appointment-duration-api/predictor"
	"appointment-duration-api/services"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type options struct {
	csvPath     string
	lookback    time.Duration
	interval    time.Duration
	metricsAddr string
}

// datasetSource yields the training data for one run.
type datasetSource func(ctx context.Context) (predictor.Dataset, error)

type runRecorder interface {
	RecordRun(ctx context.Context, run models.ModelRun) error
}

type publisher interface {
	PublishModelUpdate(ctx context.Context, u services.ModelUpdate) error
}

type job struct {
	svc     *predictor.Service
	source  datasetSource
	label   string
	runs    runRecorder
	publish publisher
	logger  zerolog.Logger
}

func main() {
	var opts options
	flag.StringVar(&opts.csvPath, "csv", "", "train from this CSV file instead of the appointment_history table")
	flag.DurationVar(&opts.lookback, "lookback", 0, "only train on appointments completed within this window (0 = all)")
	flag.DurationVar(&opts.interval, "interval", 0, "retrain periodically at this interval (0 = run once)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", ":9102", "metrics listen address in periodic mode")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Init("duration-trainer", cfg.Log.Environment, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := services.NewArtifactStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up artifact store")
	}
	trainer, err := predictor.NewTrainer(cfg.Model.Hyperparameters(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid model configuration")
	}

	j := job{
		svc:    predictor.NewService(store, trainer, logger),
		logger: logger,
	}

	var history *services.HistoryStore
	if cfg.Database.Enabled || opts.csvPath == "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database.GetURL())
		if err != nil {
			logger.Fatal().Err(err).Msg("db pool init failed")
		}
		defer dbPool.Close()
		if err := dbPool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("db ping failed")
		}
		history = services.NewHistoryStore(dbPool)
		j.runs = history
	}

	if opts.csvPath != "" {
		j.source, j.label = csvSource(opts.csvPath), "csv"
	} else {
		j.source, j.label = historySource(history, opts.lookback), "history"
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis ping failed, model updates will not be published")
		} else {
			j.publish = services.NewCacheServiceWithClient(client, cfg.Redis.CacheTTL)
		}
	}

	if opts.interval <= 0 {
		if _, err := j.run(ctx); err != nil {
			logger.Fatal().Err(err).Msg("training failed")
		}
		return
	}

	go serveHTTP(opts.metricsAddr, logger)
	logger.Info().Dur("interval", opts.interval).Str("source", j.label).Msg("trainer running")

	j.runLogged(ctx)
	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			j.runLogged(ctx)
		case <-ctx.Done():
			logger.Info().Msg("trainer shutting down")
			return
		}
	}
}

func (j job) runLogged(ctx context.Context) {
	if _, err := j.run(ctx); err != nil {
		j.logger.Error().Err(err).Msg("training run failed")
	}
}

// run trains, persists and records one model. Insufficient data is logged
// and skipped rather than treated as a failure, so the periodic loop can
// wait for more history.
func (j job) run(ctx context.Context) (predictor.RetrainResult, error) {
	run := models.ModelRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Source:    j.label,
	}
	defer func() {
		metrics.RetrainDuration.Observe(time.Since(run.StartedAt).Seconds())
	}()

	ds, err := j.source(ctx)
	if err != nil {
		metrics.RetrainsTotal.WithLabelValues(models.RunFailed).Inc()
		return predictor.RetrainResult{}, fmt.Errorf("load training data: %w", err)
	}

	res, err := j.svc.Retrain(ctx, ds)
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		metrics.RetrainsTotal.WithLabelValues(models.RunFailed).Inc()
		run.Status = models.RunFailed
		run.Error = err.Error()
		j.record(ctx, run)
		if predictor.IsDataInsufficient(err) {
			j.logger.Warn().Err(err).Msg("skipping training run")
			return predictor.RetrainResult{}, nil
		}
		return predictor.RetrainResult{}, err
	}

	metrics.RetrainsTotal.WithLabelValues(models.RunSucceeded).Inc()
	metrics.ObserveModel(true, res.MAE)
	mae, r2 := res.MAE, res.R2
	run.Status = models.RunSucceeded
	run.ModelVersion = res.Version
	run.MAE, run.R2 = &mae, &r2
	run.SampleSize = res.SampleSize
	j.record(ctx, run)

	if j.publish != nil {
		if a := j.svc.Current(); a != nil {
			if err := j.publish.PublishModelUpdate(ctx, services.NewModelUpdate(a)); err != nil {
				j.logger.Warn().Err(err).Msg("publish model update failed")
			}
		}
	}
	return res, nil
}

func (j job) record(ctx context.Context, run models.ModelRun) {
	if j.runs == nil {
		return
	}
	if err := j.runs.RecordRun(ctx, run); err != nil {
		j.logger.Warn().Err(err).Str("run_id", run.ID).Msg("record model run failed")
	}
}

func csvSource(path string) datasetSource {
	return func(context.Context) (predictor.Dataset, error) {
		f, err := os.Open(path)
		if err != nil {
			return predictor.Dataset{}, err
		}
		defer f.Close()
		return predictor.LoadCSV(f)
	}
}

func historySource(history *services.HistoryStore, lookback time.Duration) datasetSource {
	return func(ctx context.Context) (predictor.Dataset, error) {
		if history == nil {
			return predictor.Dataset{}, errors.New("appointment history is not configured")
		}
		var since time.Time
		if lookback > 0 {
			since = time.Now().UTC().Add(-lookback)
		}
		return history.Dataset(ctx, since)
	}
}

func serveHTTP(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("metrics server failed")
	}
}
