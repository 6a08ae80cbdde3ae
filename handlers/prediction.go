package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"appointment-duration-api/metrics"
	"appointment-duration-api/middleware"
	"appointment-duration-api/models"
	"appointment-duration-api/predictor"
	"appointment-duration-api/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DatasetSource loads training rows completed at or after since.
type DatasetSource interface {
	Dataset(ctx context.Context, since time.Time) (predictor.Dataset, error)
}

// RunRecorder appends to the retrain audit log.
type RunRecorder interface {
	Create(ctx context.Context, run *models.ModelRun) error
}

type PredictionHandler struct {
	svc       *predictor.Service
	cache     *services.CacheService
	history   DatasetSource
	runs      RunRecorder
	logger    zerolog.Logger
	maxUpload int64
}

// NewPredictionHandler wires the prediction routes. cache, history and runs
// may be nil; the matching features are then disabled.
func NewPredictionHandler(svc *predictor.Service, cache *services.CacheService, history DatasetSource, runs RunRecorder, logger zerolog.Logger, maxUpload int64) *PredictionHandler {
	return &PredictionHandler{
		svc:       svc,
		cache:     cache,
		history:   history,
		runs:      runs,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

func (h *PredictionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

func (h *PredictionHandler) ModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ModelInfo())
}

func (h *PredictionHandler) PredictDuration(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no data provided"})
		return
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}
	if len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no data provided"})
		return
	}

	start := time.Now()
	p, cached := h.predict(c.Request.Context(), raw)
	metrics.PredictionLatency.Observe(time.Since(start).Seconds())
	if cached {
		metrics.PredictionCacheHits.Inc()
	} else {
		metrics.PredictionsTotal.WithLabelValues(string(p.Source)).Inc()
	}

	if p.Degraded() {
		h.logger.Warn().Err(p.Err).Str("model_version", p.ModelVersion).Msg("prediction degraded to safe default")
		c.JSON(http.StatusInternalServerError, gin.H{
			"predicted_duration_minutes": p.DurationMinutes,
			"confidence":                 p.Confidence,
			"model_used":                 p.ModelUsed,
			"error":                      p.Err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, p)
}

// predict answers from the cache when possible. The cache key carries the
// version of the artifact in use, so entries die with the model.
func (h *PredictionHandler) predict(ctx context.Context, raw map[string]any) (predictor.Prediction, bool) {
	attrs, err := predictor.ParseAttributes(raw)
	if err != nil {
		return h.svc.PredictRaw(raw), false
	}
	if !h.cache.Available() {
		return h.svc.Predict(attrs), false
	}

	var version string
	if a := h.svc.Current(); a != nil {
		version = a.Version
	}
	key := services.PredictionKey(version, attrs.Resolve())

	if p, ok, err := h.cache.GetPrediction(ctx, key); err != nil {
		h.logger.Warn().Err(err).Msg("prediction cache read failed")
	} else if ok {
		return p, true
	}

	p := h.svc.Predict(attrs)
	if p.ModelVersion == version {
		if err := h.cache.SetPrediction(ctx, key, p); err != nil {
			h.logger.Warn().Err(err).Msg("prediction cache write failed")
		}
	}
	return p, false
}

type retrainRequest struct {
	Source string     `json:"source"`
	Since  *time.Time `json:"since"`
}

// Retrain accepts either a multipart CSV upload in the "file" field or a
// JSON body {"source": "history"} to train on the stored history.
func (h *PredictionHandler) Retrain(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	source, ds, status, err := h.trainingData(c)
	if err != nil {
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	run := &models.ModelRun{
		ID:          uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		Source:      source,
		RequestedBy: c.GetString(middleware.ContextEmail),
	}
	res, err := h.svc.Retrain(c.Request.Context(), ds)
	run.FinishedAt = time.Now().UTC()
	metrics.RetrainDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())

	if errors.Is(err, predictor.ErrRetrainInProgress) {
		metrics.RetrainsTotal.WithLabelValues("conflict").Inc()
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		metrics.RetrainsTotal.WithLabelValues(models.RunFailed).Inc()
		run.Status = models.RunFailed
		run.Error = err.Error()
		h.recordRun(c.Request.Context(), run)
		h.logger.Error().Err(err).Str("source", source).Msg("retrain failed")

		status := http.StatusInternalServerError
		if predictor.IsDataInsufficient(err) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	metrics.RetrainsTotal.WithLabelValues(models.RunSucceeded).Inc()
	metrics.ObserveModel(true, res.MAE)
	mae, r2 := res.MAE, res.R2
	run.Status = models.RunSucceeded
	run.ModelVersion = res.Version
	run.MAE = &mae
	run.R2 = &r2
	run.SampleSize = res.SampleSize
	h.recordRun(c.Request.Context(), run)

	if a := h.svc.Current(); a != nil {
		if err := h.cache.PublishModelUpdate(c.Request.Context(), services.NewModelUpdate(a)); err != nil {
			h.logger.Warn().Err(err).Msg("publish model update failed")
		}
	}

	c.JSON(http.StatusOK, res)
}

func (h *PredictionHandler) trainingData(c *gin.Context) (string, predictor.Dataset, int, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", predictor.Dataset{}, http.StatusBadRequest, errors.New("no file provided")
		}
		f, err := fh.Open()
		if err != nil {
			return "", predictor.Dataset{}, http.StatusBadRequest, err
		}
		defer f.Close()
		ds, err := predictor.LoadCSV(f)
		if err != nil {
			return "", predictor.Dataset{}, http.StatusBadRequest, err
		}
		return "upload", ds, http.StatusOK, nil
	}

	var req retrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", predictor.Dataset{}, http.StatusBadRequest, errors.New("no file provided")
	}
	if req.Source != "history" {
		return "", predictor.Dataset{}, http.StatusBadRequest, errors.New(`unknown source, expected "history"`)
	}
	if h.history == nil {
		return "", predictor.Dataset{}, http.StatusServiceUnavailable, errors.New("appointment history is not configured")
	}
	var since time.Time
	if req.Since != nil {
		since = *req.Since
	}
	ds, err := h.history.Dataset(c.Request.Context(), since)
	if err != nil {
		h.logger.Error().Err(err).Msg("load appointment history failed")
		return "", predictor.Dataset{}, http.StatusInternalServerError, errors.New("failed to load appointment history")
	}
	return "history", ds, http.StatusOK, nil
}

func (h *PredictionHandler) recordRun(ctx context.Context, run *models.ModelRun) {
	if h.runs == nil {
		return
	}
	if err := h.runs.Create(context.WithoutCancel(ctx), run); err != nil {
		h.logger.Warn().Err(err).Str("run_id", run.ID).Msg("record model run failed")
	}
}
