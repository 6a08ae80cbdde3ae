package services

import (
	"context"
	"encoding/json"
	"fmt"

	"appointment-duration-api/metrics"
	"appointment-duration-api/predictor"

	"github.com/rs/zerolog"
)

// WatchModelUpdates keeps svc in step with models trained by other
// processes. Each update on ModelChannel naming a version other than the
// one being served triggers a reload from the artifact store. It blocks
// until ctx is done.
func WatchModelUpdates(ctx context.Context, cache *CacheService, svc *predictor.Service, logger zerolog.Logger) error {
	pubsub := cache.Subscribe(ctx, ModelChannel)
	if pubsub == nil {
		return nil
	}
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ModelChannel, err)
	}
	logger.Info().Str("channel", ModelChannel).Msg("watching for model updates")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := applyModelUpdate(ctx, svc, []byte(msg.Payload)); err != nil {
				logger.Error().Err(err).Msg("model update not applied")
			}
		}
	}
}

// applyModelUpdate reloads svc when payload announces a version it is not
// serving. It reports whether a reload happened.
func applyModelUpdate(ctx context.Context, svc *predictor.Service, payload []byte) (bool, error) {
	var u ModelUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return false, fmt.Errorf("decode model update: %w", err)
	}
	if cur := svc.Current(); cur != nil && cur.Version == u.Version {
		return false, nil
	}
	if err := svc.Load(ctx); err != nil {
		return false, err
	}
	if a := svc.Current(); a != nil {
		metrics.ObserveModel(true, a.MAE)
	}
	return true, nil
}
