package predictor

import (
	"fmt"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testTypes = []string{"new_consultation", "follow_up", "procedure", "vaccination", "prenatal"}

// syntheticRecords builds appointments whose duration follows the same
// rules as the fallback table plus gaussian noise.
func syntheticRecords(n int, seed uint64) []Record {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]Record, n)
	for i := range out {
		typ := testTypes[r.IntN(len(testTypes))]
		rec := Record{
			AppointmentType:    typ,
			ProviderID:         fmt.Sprintf("doctor_%d", r.IntN(5)+1),
			PatientAge:         r.IntN(89) + 1,
			DayOfWeek:          r.IntN(5),
			Hour:               r.IntN(9) + 8,
			IsFirstAppointment: r.Float64() < 0.3,
			PatientComplexity:  r.IntN(5),
		}
		d := float64(BaseDuration(typ))
		if rec.Hour < 10 {
			d += 5
		}
		if rec.DayOfWeek == 0 {
			d += 5
		}
		if rec.IsFirstAppointment {
			d += 10
		}
		d += float64(rec.PatientComplexity * 3)
		d += r.NormFloat64() * 2
		d = min(max(d, 5), 120)
		rec.ActualDurationMinutes = &d
		out[i] = rec
	}
	return out
}

func label(v float64) *float64 {
	return &v
}

func nopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestTrainer(t *testing.T) *Trainer {
	t.Helper()
	params := DefaultHyperparameters()
	params.NEstimators = 60
	tr, err := NewTrainer(params, nopLogger())
	require.NoError(t, err)
	return tr
}

// constantArtifact returns an artifact whose model always predicts value.
func constantArtifact(value, r2 float64) *Artifact {
	return &Artifact{
		Version:  "test",
		Model:    &Ensemble{NumFeatures: 2, Init: value, LearningRate: 0.1},
		Features: []string{FeatureHour, FeatureDayOfWeek},
		R2:       r2,
		Encoders: Encoders{},
	}
}

func ptr[T any](v T) *T {
	return &v
}
