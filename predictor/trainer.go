package predictor

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MinTrainingRows is the smallest number of usable rows a training run
// accepts.
const MinTrainingRows = 10

// Trainer runs the offline training pipeline.
type Trainer struct {
	params Hyperparameters
	logger zerolog.Logger
	now    func() time.Time
}

func NewTrainer(params Hyperparameters, logger zerolog.Logger) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hyperparameters: %w", err)
	}
	return &Trainer{params: params, logger: logger, now: time.Now}, nil
}

func (t *Trainer) Params() Hyperparameters {
	return t.params
}

// Train fits a new artifact from ds. Rows with out-of-range attributes are
// skipped like rows without a valid label. The returned artifact is
// complete; the caller decides when to persist and publish it.
func (t *Trainer) Train(ds Dataset) (*Artifact, error) {
	rows := t.validRows(ds.Usable())
	if len(rows) < MinTrainingRows {
		return nil, &DataInsufficientError{Rows: len(rows), Required: MinTrainingRows}
	}

	encoders := FitEncoders(rows, ds.Columns)

	features := AvailableFeatures(ds.Columns)
	if len(features) < MinFeatures {
		t.logger.Warn().
			Strs("available", features).
			Strs("using", MinimalFeatures).
			Msg("not enough features available, training on the minimal set")
		features = append([]string(nil), MinimalFeatures...)
	}

	X := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, rec := range rows {
		vec, err := Derive(rec, encoders, features)
		if err != nil {
			return nil, fmt.Errorf("derive features for row %d: %w", i, err)
		}
		X[i] = vec.Values
		y[i] = *rec.ActualDurationMinutes
	}

	trainIdx, testIdx := splitIndices(len(rows), t.params.TestFraction, t.params.Seed)
	model, importance := fitEnsemble(pick(X, trainIdx), pickFloats(y, trainIdx), t.params)

	observed := pickFloats(y, testIdx)
	predicted := make([]float64, len(testIdx))
	for i, row := range pick(X, testIdx) {
		p, err := model.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("evaluate model: %w", err)
		}
		predicted[i] = p
	}

	artifact := &Artifact{
		Version:     uuid.NewString(),
		Model:       model,
		Features:    features,
		MAE:         MeanAbsoluteError(observed, predicted),
		R2:          R2Score(observed, predicted),
		TrainedAt:   t.now().UTC(),
		SampleSize:  len(rows),
		Params:      t.params,
		Importances: make(map[string]float64, len(features)),
		Encoders:    encoders,
	}
	for i, f := range features {
		artifact.Importances[f] = importance[i]
	}

	t.logger.Info().
		Str("version", artifact.Version).
		Int("sample_size", artifact.SampleSize).
		Int("train_rows", len(trainIdx)).
		Int("test_rows", len(testIdx)).
		Float64("mae", artifact.MAE).
		Float64("r2", artifact.R2).
		Strs("features", features).
		Msg("model trained")
	for _, f := range rankFeatures(artifact.Importances) {
		t.logger.Debug().Str("feature", f).Float64("importance", artifact.Importances[f]).Msg("feature importance")
	}
	return artifact, nil
}

func (t *Trainer) validRows(rows []Record) []Record {
	kept := rows[:0:0]
	var firstErr error
	for _, rec := range rows {
		if err := rec.Validate(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		kept = append(kept, rec)
	}
	if dropped := len(rows) - len(kept); dropped > 0 {
		t.logger.Warn().
			Err(firstErr).
			Int("dropped", dropped).
			Int("kept", len(kept)).
			Msg("skipping rows with invalid attributes")
	}
	return kept
}

func pick(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func pickFloats(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

// rankFeatures orders features by descending importance.
func rankFeatures(importances map[string]float64) []string {
	names := make([]string, 0, len(importances))
	for n := range importances {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if importances[names[i]] != importances[names[j]] {
			return importances[names[i]] > importances[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
