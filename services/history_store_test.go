package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"appointment-duration-api/models"
	"appointment-duration-api/predictor"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHistory() models.AppointmentHistory {
	return models.AppointmentHistory{
		AppointmentID:         "appt-1",
		CompletedAt:           time.Date(2026, 10, 19, 9, 40, 0, 0, time.UTC),
		AppointmentTypeID:     "procedure",
		DoctorID:              "doctor_4",
		PatientAge:            61,
		DayOfWeek:             0,
		Hour:                  9,
		IsFirstAppointment:    true,
		PatientComplexity:     3,
		ActualDurationMinutes: 72,
	}
}

func TestHistoryStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	h := sampleHistory()
	mock.ExpectExec("INSERT INTO appointment_history").
		WithArgs(h.AppointmentID, h.CompletedAt, h.AppointmentTypeID, h.DoctorID, h.PatientAge, h.DayOfWeek,
			h.Hour, h.IsFirstAppointment, h.PatientComplexity, h.ActualDurationMinutes).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO appointment_history").
		WithArgs(h.AppointmentID, h.CompletedAt, h.AppointmentTypeID, h.DoctorID, h.PatientAge, h.DayOfWeek,
			h.Hour, h.IsFirstAppointment, h.PatientComplexity, h.ActualDurationMinutes).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewHistoryStore(mock)
	inserted, err := store.Insert(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Insert(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate appointment ids are ignored")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStoreInsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO appointment_history").WillReturnError(errors.New("connection reset"))
	_, err = NewHistoryStore(mock).Insert(context.Background(), sampleHistory())
	assert.ErrorContains(t, err, "appt-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStoreDataset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := mock.NewRows([]string{
		"appointment_type_id", "doctor_id", "patient_age", "day_of_week", "hour",
		"is_first_appointment", "patient_complexity", "actual_duration_minutes",
	}).
		AddRow("procedure", "doctor_4", 61, 0, 9, true, 3, 72.0).
		AddRow("follow_up", "doctor_1", 33, 4, 15, false, 0, 18.5)
	mock.ExpectQuery("SELECT (.+) FROM appointment_history").WithArgs(since).WillReturnRows(rows)

	ds, err := NewHistoryStore(mock).Dataset(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, "procedure", ds.Records[0].AppointmentType)
	assert.True(t, ds.Records[0].IsFirstAppointment)
	assert.Equal(t, 18.5, *ds.Records[1].ActualDurationMinutes)
	assert.Equal(t, predictor.CandidateFeatures, predictor.AvailableFeatures(ds.Columns))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryStoreRecordRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mae := 4.1
	run := models.ModelRun{ID: "run-1", Source: "trainer", Status: models.RunSucceeded, ModelVersion: "v1", MAE: &mae, SampleSize: 400}
	mock.ExpectExec("INSERT INTO model_runs").
		WithArgs("run-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "trainer", models.RunSucceeded, "v1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), 400, "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewHistoryStore(mock).RecordRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}
