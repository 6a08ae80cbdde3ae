package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Artifact is a trained model plus everything inference needs to reproduce
// the training-time feature vector. It is never modified after it is built
// or loaded; retraining produces a new one.
type Artifact struct {
	Version     string
	Model       *Ensemble
	Features    []string
	MAE         float64
	R2          float64
	TrainedAt   time.Time
	SampleSize  int
	Params      Hyperparameters
	Importances map[string]float64
	Encoders    Encoders
}

// modelBlob is the persisted form of everything except the encoders.
type modelBlob struct {
	Version     string             `json:"version"`
	Features    []string           `json:"features"`
	MAE         float64            `json:"mae"`
	R2          float64            `json:"r2"`
	TrainedAt   time.Time          `json:"trained_at"`
	SampleSize  int                `json:"sample_size"`
	Params      Hyperparameters    `json:"params"`
	Importances map[string]float64 `json:"feature_importances,omitempty"`
	Model       *Ensemble          `json:"model"`
}

// MarshalModel encodes the model blob.
func (a *Artifact) MarshalModel() ([]byte, error) {
	return json.Marshal(modelBlob{
		Version:     a.Version,
		Features:    a.Features,
		MAE:         a.MAE,
		R2:          a.R2,
		TrainedAt:   a.TrainedAt,
		SampleSize:  a.SampleSize,
		Params:      a.Params,
		Importances: a.Importances,
		Model:       a.Model,
	})
}

// encodersBlob is the persisted form of the encoding tables. ModelVersion
// ties the tables to the model they were fitted with.
type encodersBlob struct {
	ModelVersion string   `json:"model_version"`
	Tables       Encoders `json:"tables"`
}

// MarshalEncoders encodes the encoding tables blob.
func (a *Artifact) MarshalEncoders() ([]byte, error) {
	enc := a.Encoders
	if enc == nil {
		enc = Encoders{}
	}
	return json.Marshal(encodersBlob{ModelVersion: a.Version, Tables: enc})
}

// UnmarshalArtifact rebuilds an artifact from its two blobs. A nil encoders
// blob yields empty tables, under which every categorical value encodes to
// UnseenCode. Tables stamped with another model version are rejected with
// ErrArtifactMismatch.
func UnmarshalArtifact(model, encoders []byte) (*Artifact, error) {
	var blob modelBlob
	if err := json.Unmarshal(model, &blob); err != nil {
		return nil, fmt.Errorf("decode model blob: %w", err)
	}
	enc := Encoders{}
	if len(encoders) > 0 {
		var eb encodersBlob
		if err := json.Unmarshal(encoders, &eb); err != nil {
			return nil, fmt.Errorf("decode encoders blob: %w", err)
		}
		if eb.ModelVersion != blob.Version {
			return nil, fmt.Errorf("%w: model %q, encoders %q", ErrArtifactMismatch, blob.Version, eb.ModelVersion)
		}
		if eb.Tables != nil {
			enc = eb.Tables
		}
	}
	a := &Artifact{
		Version:     blob.Version,
		Model:       blob.Model,
		Features:    blob.Features,
		MAE:         blob.MAE,
		R2:          blob.R2,
		TrainedAt:   blob.TrainedAt,
		SampleSize:  blob.SampleSize,
		Params:      blob.Params,
		Importances: blob.Importances,
		Encoders:    enc,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks that the artifact can serve predictions.
func (a *Artifact) Validate() error {
	if a.Model == nil {
		return errors.New("artifact has no model")
	}
	if len(a.Features) == 0 {
		return errors.New("artifact has an empty feature list")
	}
	if a.Model.NumFeatures != len(a.Features) {
		return fmt.Errorf("model expects %d features but artifact lists %d", a.Model.NumFeatures, len(a.Features))
	}
	if err := a.Model.validate(); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	return nil
}
