package predictor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Safe default returned when inference fails.
const (
	SafeDefaultDuration   = 30
	SafeDefaultConfidence = 0.5
)

// ArtifactStore persists artifacts between processes. Load returns
// ErrNoArtifact when nothing has been saved yet.
type ArtifactStore interface {
	Load(ctx context.Context) (*Artifact, error)
	Save(ctx context.Context, a *Artifact) error
}

// Source tags how a prediction was produced.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
	SourceDegraded Source = "degraded"
)

// Prediction is the answer to a duration query. Source and Err are for
// logging and metrics only.
type Prediction struct {
	DurationMinutes int      `json:"predicted_duration_minutes"`
	Confidence      float64  `json:"confidence"`
	ModelUsed       bool     `json:"model_used"`
	RawPrediction   *float64 `json:"raw_prediction,omitempty"`
	Message         string   `json:"message,omitempty"`
	Source          Source   `json:"-"`
	ModelVersion    string   `json:"-"`
	Err             error    `json:"-"`
}

// Degraded reports whether the prediction is the safe default.
func (p Prediction) Degraded() bool {
	return p.Source == SourceDegraded
}

func safeDefault(err error) Prediction {
	return Prediction{
		DurationMinutes: SafeDefaultDuration,
		Confidence:      SafeDefaultConfidence,
		ModelUsed:       false,
		Source:          SourceDegraded,
		Err:             err,
	}
}

type Health struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	ModelMAE    *float64 `json:"model_mae"`
	ModelR2     *float64 `json:"model_r2"`
}

type ModelInfo struct {
	Loaded             bool               `json:"loaded"`
	Message            string             `json:"message,omitempty"`
	Version            string             `json:"version,omitempty"`
	Features           []string           `json:"features,omitempty"`
	MAE                *float64           `json:"mae,omitempty"`
	R2                 *float64           `json:"r2,omitempty"`
	TrainedAt          *time.Time         `json:"trained_at,omitempty"`
	SampleSize         int                `json:"sample_size,omitempty"`
	FeatureImportances map[string]float64 `json:"feature_importances,omitempty"`
}

type RetrainResult struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Version    string   `json:"version"`
	MAE        float64  `json:"mae"`
	R2         float64  `json:"r2"`
	SampleSize int      `json:"sample_size"`
	Features   []string `json:"features"`
}

// Service answers duration queries from the current artifact. Reads are
// lock-free; the artifact pointer is replaced as a whole by Load or Retrain,
// and only one Retrain runs at a time.
type Service struct {
	current   atomic.Pointer[Artifact]
	retrainMu sync.Mutex
	store     ArtifactStore
	trainer   *Trainer
	logger    zerolog.Logger
}

// NewService creates a service in fallback mode. store may be nil, in which
// case retrained artifacts live only in memory.
func NewService(store ArtifactStore, trainer *Trainer, logger zerolog.Logger) *Service {
	return &Service{store: store, trainer: trainer, logger: logger}
}

// Load reads the persisted artifact, if any. Finding none is not an error.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	a, err := s.store.Load(ctx)
	if errors.Is(err, ErrNoArtifact) {
		s.logger.Warn().Msg("no trained model found, serving fallback estimates")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	s.current.Store(a)
	s.logger.Info().
		Str("version", a.Version).
		Float64("mae", a.MAE).
		Float64("r2", a.R2).
		Msg("model loaded")
	return nil
}

// Current returns the artifact in use, or nil in fallback mode.
func (s *Service) Current() *Artifact {
	return s.current.Load()
}

// PredictRaw parses a client attribute map and predicts. Malformed input
// produces the safe default.
func (s *Service) PredictRaw(raw map[string]any) Prediction {
	attrs, err := ParseAttributes(raw)
	if err != nil {
		return safeDefault(&InferenceFailure{Cause: err})
	}
	return s.Predict(attrs)
}

// Predict never fails: it answers from the model, from the fallback
// heuristic when no model is loaded, or with the safe default when the model
// path breaks.
func (s *Service) Predict(attrs Attributes) Prediction {
	rec := attrs.Resolve()

	a := s.current.Load()
	if a == nil {
		est := EstimateFallback(rec)
		return Prediction{
			DurationMinutes: est.DurationMinutes,
			Confidence:      est.Confidence,
			ModelUsed:       false,
			Message:         "Using default durations (no trained model)",
			Source:          SourceFallback,
		}
	}

	p, err := predictWithModel(a, rec)
	if err != nil {
		out := safeDefault(err)
		out.ModelVersion = a.Version
		return out
	}
	return p
}

func predictWithModel(a *Artifact, rec Record) (p Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InferenceFailure{Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	vec, err := Derive(rec, a.Encoders, a.Features)
	if err != nil {
		return Prediction{}, &InferenceFailure{Cause: err}
	}
	raw, err := a.Model.Predict(vec.Values)
	if err != nil {
		return Prediction{}, &InferenceFailure{Cause: err}
	}

	rounded := round2(raw)
	return Prediction{
		DurationMinutes: ModelDuration(raw),
		Confidence:      ModelConfidence(a.R2),
		ModelUsed:       true,
		RawPrediction:   &rounded,
		Source:          SourceModel,
		ModelVersion:    a.Version,
	}, nil
}

func (s *Service) Health() Health {
	h := Health{Status: "ok"}
	if a := s.current.Load(); a != nil {
		mae, r2 := a.MAE, a.R2
		h.ModelLoaded = true
		h.ModelMAE = &mae
		h.ModelR2 = &r2
	}
	return h
}

func (s *Service) ModelInfo() ModelInfo {
	a := s.current.Load()
	if a == nil {
		return ModelInfo{Loaded: false, Message: "No model loaded. Upload training data to /retrain or run the trainer."}
	}
	mae, r2, trainedAt := a.MAE, a.R2, a.TrainedAt
	return ModelInfo{
		Loaded:             true,
		Version:            a.Version,
		Features:           append([]string(nil), a.Features...),
		MAE:                &mae,
		R2:                 &r2,
		TrainedAt:          &trainedAt,
		SampleSize:         a.SampleSize,
		FeatureImportances: a.Importances,
	}
}

// Retrain trains on ds, persists the result and swaps it in. On any error
// the previous artifact stays in use. A call made while another retrain is
// running returns ErrRetrainInProgress.
func (s *Service) Retrain(ctx context.Context, ds Dataset) (RetrainResult, error) {
	if s.trainer == nil {
		return RetrainResult{}, errors.New("retraining is not configured")
	}
	if !s.retrainMu.TryLock() {
		return RetrainResult{}, ErrRetrainInProgress
	}
	defer s.retrainMu.Unlock()

	trained, err := s.trainer.Train(ds)
	if err != nil {
		return RetrainResult{}, err
	}

	next := trained
	if s.store != nil {
		if err := s.store.Save(ctx, trained); err != nil {
			return RetrainResult{}, fmt.Errorf("persist artifact: %w", err)
		}
		// Serve exactly what was persisted, as a restart would.
		next, err = s.store.Load(ctx)
		if err != nil {
			return RetrainResult{}, fmt.Errorf("reload artifact: %w", err)
		}
	}

	prev := s.current.Swap(next)
	ev := s.logger.Info().Str("version", next.Version)
	if prev != nil {
		ev = ev.Str("previous_version", prev.Version)
	}
	ev.Msg("model swapped in")

	return RetrainResult{
		Success:    true,
		Message:    "Model retrained successfully",
		Version:    next.Version,
		MAE:        next.MAE,
		R2:         next.R2,
		SampleSize: next.SampleSize,
		Features:   append([]string(nil), next.Features...),
	}, nil
}
