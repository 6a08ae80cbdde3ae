package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"appointment-duration-api/config"
	"appointment-duration-api/predictor"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ModelChannel carries a ModelUpdate each time a new model is swapped in.
const ModelChannel = "duration:model"

const predictionKeyPrefix = "duration:pred:"

type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(cfg config.RedisConfig, logger zerolog.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Retry up to 10 times (covers sidecar startup delay)
	var lastErr error
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = client.Ping(ctx).Err()
		cancel()
		if lastErr == nil {
			return &CacheService{client: client, ttl: cfg.CacheTTL}, nil
		}
		logger.Warn().Err(lastErr).Int("attempt", i+1).Msg("redis ping failed")
		time.Sleep(2 * time.Second)
	}

	client.Close()
	return &CacheService{client: nil}, fmt.Errorf("redis ping failed after 10 attempts: %w", lastErr)
}

// NewCacheServiceWithClient wraps an existing client. A nil client gives a
// disabled cache whose operations are no-ops.
func NewCacheServiceWithClient(client *redis.Client, ttl time.Duration) *CacheService {
	return &CacheService{client: client, ttl: ttl}
}

func (s *CacheService) Client() *redis.Client {
	return s.client
}

func (s *CacheService) Available() bool {
	return s != nil && s.client != nil
}

// PredictionKey identifies a prediction by model version and the resolved
// attributes, so a model swap never serves stale entries.
func PredictionKey(version string, rec predictor.Record) string {
	if version == "" {
		version = "fallback"
	}
	return fmt.Sprintf("%s%s:%q:%q:%d:%d:%d:%t:%d", predictionKeyPrefix, version,
		rec.AppointmentType, rec.ProviderID, rec.PatientAge, rec.DayOfWeek, rec.Hour,
		rec.IsFirstAppointment, rec.PatientComplexity)
}

// GetPrediction returns the cached prediction for key, if any.
func (s *CacheService) GetPrediction(ctx context.Context, key string) (predictor.Prediction, bool, error) {
	var p predictor.Prediction
	if !s.Available() {
		return p, false, nil
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	if err := json.Unmarshal(val, &p); err != nil {
		return p, false, fmt.Errorf("decode cached prediction: %w", err)
	}
	return p, true, nil
}

// SetPrediction caches p. Degraded predictions are not cached.
func (s *CacheService) SetPrediction(ctx context.Context, key string, p predictor.Prediction) error {
	if !s.Available() || p.Degraded() {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

// ModelUpdate is published on ModelChannel after a successful retrain.
type ModelUpdate struct {
	Version    string    `json:"version"`
	MAE        float64   `json:"mae"`
	R2         float64   `json:"r2"`
	SampleSize int       `json:"sample_size"`
	Features   []string  `json:"features"`
	TrainedAt  time.Time `json:"trained_at"`
}

func NewModelUpdate(a *predictor.Artifact) ModelUpdate {
	return ModelUpdate{
		Version:    a.Version,
		MAE:        a.MAE,
		R2:         a.R2,
		SampleSize: a.SampleSize,
		Features:   a.Features,
		TrainedAt:  a.TrainedAt,
	}
}

func (s *CacheService) PublishModelUpdate(ctx context.Context, u ModelUpdate) error {
	return s.Publish(ctx, ModelChannel, u)
}

func (s *CacheService) Publish(ctx context.Context, channel string, message interface{}) error {
	if !s.Available() {
		return nil
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channel, data).Err()
}

func (s *CacheService) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if !s.Available() {
		return nil
	}
	return s.client.Subscribe(ctx, channel)
}

func (s *CacheService) Close() error {
	if !s.Available() {
		return nil
	}
	return s.client.Close()
}
