package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"appointment-duration-api/models"
	"appointment-duration-api/predictor"
	"appointment-duration-api/services"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	updates []services.ModelUpdate
}

func (f *fakePublisher) PublishModelUpdate(_ context.Context, u services.ModelUpdate) error {
	f.updates = append(f.updates, u)
	return nil
}

func writeTrainingCSV(t *testing.T, n int) string {
	t.Helper()
	types := []string{"consultation", "follow_up", "procedure"}
	base := map[string]int{"consultation": 30, "follow_up": 20, "procedure": 60}
	rng := rand.New(rand.NewPCG(7, 7))

	var b strings.Builder
	b.WriteString("appointment_type_id,doctor_id,patient_age,day_of_week,hour,is_first_appointment,patient_complexity,actual_duration_minutes\n")
	for i := 0; i < n; i++ {
		typ := types[i%len(types)]
		hour := 8 + rng.IntN(9)
		dur := base[typ] + rng.IntN(5)
		fmt.Fprintf(&b, "%s,doctor_%d,%d,%d,%d,%t,%d,%d\n", typ, i%4, 18+i%60, i%5, hour, i%7 == 0, i%4, dur)
	}

	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newTestJob(t *testing.T, source datasetSource) (job, string) {
	t.Helper()
	dir := t.TempDir()
	trainer, err := predictor.NewTrainer(predictor.DefaultHyperparameters(), zerolog.Nop())
	require.NoError(t, err)
	return job{
		svc:    predictor.NewService(services.NewFileStore(dir), trainer, zerolog.Nop()),
		source: source,
		label:  "csv",
		logger: zerolog.Nop(),
	}, dir
}

func TestRunTrainsAndPersists(t *testing.T) {
	j, dir := newTestJob(t, csvSource(writeTrainingCSV(t, 120)))
	pub := &fakePublisher{}
	j.publish = pub

	res, err := j.run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 120, res.SampleSize)

	assert.FileExists(t, filepath.Join(dir, res.Version, services.ModelBlobName))
	assert.FileExists(t, filepath.Join(dir, res.Version, services.EncodersBlobName))
	assert.FileExists(t, filepath.Join(dir, services.CurrentPointerName))

	require.Len(t, pub.updates, 1)
	assert.Equal(t, res.Version, pub.updates[0].Version)
}

func TestRunRecordsModelRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	j, _ := newTestJob(t, csvSource(writeTrainingCSV(t, 60)))
	j.runs = services.NewHistoryStore(mock)

	mock.ExpectExec("INSERT INTO model_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "csv", models.RunSucceeded,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 60, "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, err = j.run(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSkipsInsufficientData(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	j, dir := newTestJob(t, csvSource(writeTrainingCSV(t, 4)))
	j.runs = services.NewHistoryStore(mock)

	mock.ExpectExec("INSERT INTO model_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "csv", models.RunFailed,
			"", pgxmock.AnyArg(), pgxmock.AnyArg(), 0, pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, err = j.run(context.Background())
	assert.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, services.CurrentPointerName))
	assert.Nil(t, j.svc.Current())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSourceError(t *testing.T) {
	j, _ := newTestJob(t, func(context.Context) (predictor.Dataset, error) {
		return predictor.Dataset{}, errors.New("connection refused")
	})
	_, err := j.run(context.Background())
	assert.ErrorContains(t, err, "load training data")
}

func TestCSVSourceMissingFile(t *testing.T) {
	_, err := csvSource(filepath.Join(t.TempDir(), "missing.csv"))(context.Background())
	assert.Error(t, err)
}

func TestHistorySourceNotConfigured(t *testing.T) {
	_, err := historySource(nil, 0)(context.Background())
	assert.Error(t, err)
}
