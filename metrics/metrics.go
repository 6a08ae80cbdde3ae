package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duration_predictions_total",
		Help: "Duration predictions served, by source (model, fallback, degraded).",
	}, []string{"source"})
	PredictionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duration_prediction_cache_hits_total",
		Help: "Predictions answered from the Redis cache.",
	})
	PredictionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duration_prediction_latency_seconds",
		Help:    "Time spent computing a prediction.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
	RetrainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duration_model_retrains_total",
		Help: "Retrain attempts, by status.",
	}, []string{"status"})
	RetrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duration_model_retrain_duration_seconds",
		Help:    "Duration of a full retrain (training, persistence and swap).",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})
	ModelLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duration_model_loaded",
		Help: "1 when a trained model is serving predictions, 0 in fallback mode.",
	})
	ModelMAE = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duration_model_mae_minutes",
		Help: "Held-out mean absolute error of the loaded model.",
	})
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duration_http_requests_total",
		Help: "HTTP requests, by route and status code.",
	}, []string{"route", "status"})
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duration_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	AppointmentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duration_collector_appointments_ingested_total",
		Help: "Completed appointments written to the training history.",
	})
	AppointmentsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duration_collector_appointments_rejected_total",
		Help: "Completed-appointment messages that could not be parsed or stored.",
	})
)

// ObserveModel updates the model gauges. mae is ignored when loaded is false.
func ObserveModel(loaded bool, mae float64) {
	if !loaded {
		ModelLoaded.Set(0)
		return
	}
	ModelLoaded.Set(1)
	ModelMAE.Set(mae)
}
