package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"appointment-duration-api/config"
	"appointment-duration-api/logging"
	"appointment-duration-api/metrics"
	"appointment-duration-api/models"
	"appointment-duration-api/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// CompletedPayload is the message the scheduling system publishes when an
// appointment is closed.
type CompletedPayload struct {
	AppointmentID      string   `json:"appointment_id"`
	AppointmentTypeID  string   `json:"appointment_type_id"`
	DoctorID           string   `json:"doctor_id"`
	PatientAge         int      `json:"patient_age"`
	IsFirstAppointment bool     `json:"is_first_appointment"`
	PatientComplexity  int      `json:"patient_complexity"`
	StartedAt          string   `json:"started_at"`
	CompletedAt        string   `json:"completed_at"`
	DayOfWeek          *int     `json:"day_of_week"`
	Hour               *int     `json:"hour"`
	DurationMinutes    *float64 `json:"actual_duration_minutes"`
}

type historyInserter interface {
	Insert(ctx context.Context, h models.AppointmentHistory) (bool, error)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Init("duration-collector", cfg.Log.Environment, cfg.Log.Level)
	metricsAddr := getEnv("METRICS_ADDR", ":9101")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := pgxpool.New(ctx, cfg.Database.GetURL())
	if err != nil {
		logger.Fatal().Err(err).Msg("db pool init failed")
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("db ping failed")
	}
	history := services.NewHistoryStore(dbPool)

	go serveHTTP(metricsAddr, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID + "-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, message mqtt.Message) {
		processMessage(ctx, history, logger, message.Payload())
	})
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(cfg.MQTT.Topic, 1, nil)
		token.Wait()
		if token.Error() != nil {
			logger.Error().Err(token.Error()).Msg("mqtt subscribe failed")
			return
		}
		logger.Info().Str("topic", cfg.MQTT.Topic).Msg("collector subscribed")
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		logger.Fatal().Err(token.Error()).Msg("mqtt connection failed")
	}

	logger.Info().Str("broker", cfg.MQTT.Broker).Str("metrics", metricsAddr).Msg("collector running")

	<-ctx.Done()
	logger.Info().Msg("collector shutting down")
	client.Disconnect(250)
}

func serveHTTP(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("metrics server failed")
	}
}

func processMessage(ctx context.Context, history historyInserter, logger zerolog.Logger, payloadRaw []byte) {
	var payload CompletedPayload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		metrics.AppointmentsRejected.Inc()
		logger.Warn().Err(err).Msg("invalid payload")
		return
	}

	h, err := payload.toHistory()
	if err != nil {
		metrics.AppointmentsRejected.Inc()
		logger.Warn().Err(err).Str("appointment_id", payload.AppointmentID).Msg("rejected appointment")
		return
	}

	inserted, err := history.Insert(ctx, h)
	if err != nil {
		metrics.AppointmentsRejected.Inc()
		logger.Error().Err(err).Msg("db insert failed")
		return
	}
	if !inserted {
		logger.Debug().Str("appointment_id", h.AppointmentID).Msg("duplicate appointment ignored")
		return
	}
	metrics.AppointmentsIngested.Inc()
}

// toHistory validates the payload and fills the derived columns. The
// weekday and hour come from the start time when not sent explicitly, and
// the duration from the start and completion times.
func (p CompletedPayload) toHistory() (models.AppointmentHistory, error) {
	if strings.TrimSpace(p.AppointmentID) == "" {
		return models.AppointmentHistory{}, errors.New("missing appointment_id")
	}

	completed := time.Now().UTC()
	if p.CompletedAt != "" {
		ts, err := time.Parse(time.RFC3339, p.CompletedAt)
		if err != nil {
			return models.AppointmentHistory{}, fmt.Errorf("completed_at: %w", err)
		}
		completed = ts.UTC()
	}

	var started time.Time
	if p.StartedAt != "" {
		ts, err := time.Parse(time.RFC3339, p.StartedAt)
		if err != nil {
			return models.AppointmentHistory{}, fmt.Errorf("started_at: %w", err)
		}
		started = ts
	}

	h := models.AppointmentHistory{
		AppointmentID:      p.AppointmentID,
		CompletedAt:        completed,
		AppointmentTypeID:  p.AppointmentTypeID,
		DoctorID:           p.DoctorID,
		PatientAge:         p.PatientAge,
		IsFirstAppointment: p.IsFirstAppointment,
		PatientComplexity:  p.PatientComplexity,
	}

	switch {
	case p.DurationMinutes != nil:
		h.ActualDurationMinutes = *p.DurationMinutes
	case !started.IsZero() && p.CompletedAt != "":
		h.ActualDurationMinutes = completed.Sub(started).Minutes()
	default:
		return models.AppointmentHistory{}, errors.New("missing actual_duration_minutes")
	}
	if h.ActualDurationMinutes <= 0 {
		return models.AppointmentHistory{}, fmt.Errorf("non-positive duration %.1f", h.ActualDurationMinutes)
	}

	switch {
	case p.DayOfWeek != nil:
		h.DayOfWeek = *p.DayOfWeek
	case !started.IsZero():
		h.DayOfWeek = mondayFirst(started.Weekday())
	default:
		return models.AppointmentHistory{}, errors.New("missing day_of_week and started_at")
	}
	switch {
	case p.Hour != nil:
		h.Hour = *p.Hour
	case !started.IsZero():
		h.Hour = started.Hour()
	default:
		return models.AppointmentHistory{}, errors.New("missing hour and started_at")
	}
	if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
		return models.AppointmentHistory{}, fmt.Errorf("day_of_week out of range: %d", h.DayOfWeek)
	}
	if h.Hour < 0 || h.Hour > 23 {
		return models.AppointmentHistory{}, fmt.Errorf("hour out of range: %d", h.Hour)
	}
	if h.PatientAge < 0 {
		return models.AppointmentHistory{}, fmt.Errorf("negative patient_age: %d", h.PatientAge)
	}
	if h.PatientComplexity < 0 {
		return models.AppointmentHistory{}, fmt.Errorf("negative patient_complexity: %d", h.PatientComplexity)
	}
	return h, nil
}

// mondayFirst maps time.Weekday onto 0=Monday .. 6=Sunday.
func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
