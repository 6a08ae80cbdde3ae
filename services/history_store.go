package services

import (
	"context"
	"fmt"
	"time"

	"appointment-duration-api/models"
	"appointment-duration-api/predictor"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is the subset of pgxpool.Pool used by HistoryStore.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// HistoryStore is the pgx access path to the training history, used by the
// collector and the trainer binaries.
type HistoryStore struct {
	db PgxConn
}

func NewHistoryStore(db PgxConn) *HistoryStore {
	return &HistoryStore{db: db}
}

// Insert stores a completed appointment. It reports false when the
// appointment was already recorded.
func (s *HistoryStore) Insert(ctx context.Context, h models.AppointmentHistory) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO appointment_history (appointment_id, completed_at, appointment_type_id, doctor_id,
			patient_age, day_of_week, hour, is_first_appointment, patient_complexity, actual_duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (appointment_id) DO NOTHING
	`, h.AppointmentID, h.CompletedAt, h.AppointmentTypeID, h.DoctorID, h.PatientAge, h.DayOfWeek,
		h.Hour, h.IsFirstAppointment, h.PatientComplexity, h.ActualDurationMinutes)
	if err != nil {
		return false, fmt.Errorf("insert appointment %s: %w", h.AppointmentID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Dataset loads the appointments completed at or after since.
func (s *HistoryStore) Dataset(ctx context.Context, since time.Time) (predictor.Dataset, error) {
	rows, err := s.db.Query(ctx, `
		SELECT appointment_type_id, doctor_id, patient_age, day_of_week, hour,
			is_first_appointment, patient_complexity, actual_duration_minutes
		FROM appointment_history
		WHERE completed_at >= $1
		ORDER BY completed_at
	`, since)
	if err != nil {
		return predictor.Dataset{}, fmt.Errorf("query appointment history: %w", err)
	}
	defer rows.Close()

	var records []predictor.Record
	for rows.Next() {
		var h models.AppointmentHistory
		if err := rows.Scan(&h.AppointmentTypeID, &h.DoctorID, &h.PatientAge, &h.DayOfWeek, &h.Hour,
			&h.IsFirstAppointment, &h.PatientComplexity, &h.ActualDurationMinutes); err != nil {
			return predictor.Dataset{}, fmt.Errorf("scan appointment history: %w", err)
		}
		records = append(records, h.Record())
	}
	if err := rows.Err(); err != nil {
		return predictor.Dataset{}, fmt.Errorf("iterate appointment history: %w", err)
	}
	return predictor.NewDataset(records), nil
}

// RecordRun appends an entry to the retrain audit log.
func (s *HistoryStore) RecordRun(ctx context.Context, run models.ModelRun) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO model_runs (id, started_at, finished_at, source, status, model_version, mae, r2,
			sample_size, error, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, run.ID, run.StartedAt, run.FinishedAt, run.Source, run.Status, run.ModelVersion, run.MAE, run.R2,
		run.SampleSize, run.Error, run.RequestedBy)
	if err != nil {
		return fmt.Errorf("insert model run %s: %w", run.ID, err)
	}
	return nil
}
