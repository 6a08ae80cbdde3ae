package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveModel(t *testing.T) {
	ObserveModel(true, 4.25)
	assert.Equal(t, 1.0, testutil.ToFloat64(ModelLoaded))
	assert.Equal(t, 4.25, testutil.ToFloat64(ModelMAE))

	ObserveModel(false, 99)
	assert.Equal(t, 0.0, testutil.ToFloat64(ModelLoaded))
	assert.Equal(t, 4.25, testutil.ToFloat64(ModelMAE))
}

func TestPredictionsBySource(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("fallback"))
	PredictionsTotal.WithLabelValues("fallback").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PredictionsTotal.WithLabelValues("fallback")))
}
