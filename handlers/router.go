package handlers

import (
	"appointment-duration-api/config"
	"appointment-duration-api/middleware"
	"appointment-duration-api/predictor"
	"appointment-duration-api/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps collects what the HTTP layer needs. Cache, History and Runs
// are optional.
type RouterDeps struct {
	Service *predictor.Service
	Auth    *services.AuthService
	Cache   *services.CacheService
	History DatasetSource
	Runs    interface {
		RunRecorder
		RunLister
	}
	CORS      config.CORSConfig
	MaxUpload int64
	Logger    zerolog.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestMetrics(d.Logger))
	router.Use(middleware.SetupCORS(d.CORS))

	var runs RunRecorder
	if d.Runs != nil {
		runs = d.Runs
	}
	ph := NewPredictionHandler(d.Service, d.Cache, d.History, runs, d.Logger, d.MaxUpload)
	ah := NewAuthHandler(d.Auth, d.Logger)
	admin := middleware.RequireRole(d.Auth, services.RoleAdmin)

	router.GET("/health", ph.Health)
	router.POST("/predict-duration", ph.PredictDuration)
	router.GET("/model-info", ph.ModelInfo)
	router.POST("/retrain", admin, ph.Retrain)

	router.POST("/auth/login", ah.Login)
	if d.Runs != nil {
		router.GET("/model-runs", admin, NewModelRunHandler(d.Runs).List)
	}
	router.GET("/ws/model", ModelWebSocket(d.Cache, d.Auth, d.Logger))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
