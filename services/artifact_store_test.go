package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"appointment-duration-api/config"
	"appointment-duration-api/predictor"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArtifact(version string) *predictor.Artifact {
	return &predictor.Artifact{
		Version:    version,
		Model:      &predictor.Ensemble{NumFeatures: 2, Init: 35, LearningRate: 0.1},
		Features:   []string{predictor.FeatureHour, predictor.FeatureDayOfWeek},
		MAE:        4.2,
		R2:         0.81,
		TrainedAt:  time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC),
		SampleSize: 120,
		Params:     predictor.DefaultHyperparameters(),
		Encoders: predictor.Encoders{
			predictor.ColumnAppointmentType: predictor.FitEncoder([]string{"procedure", "follow_up"}),
		},
	}
}

func TestFileStoreEmpty(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "models"))
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, predictor.ErrNoArtifact)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	store := NewFileStore(dir)
	require.NoError(t, store.Save(context.Background(), testArtifact("v1")))

	assert.FileExists(t, filepath.Join(dir, "v1", ModelBlobName))
	assert.FileExists(t, filepath.Join(dir, "v1", EncodersBlobName))
	pointer, err := os.ReadFile(filepath.Join(dir, CurrentPointerName))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(pointer))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, 120, got.SampleSize)
	assert.Equal(t, 2, got.Encoders.Encode(predictor.ColumnAppointmentType, "procedure"))

	require.NoError(t, store.Save(context.Background(), testArtifact("v2")))
	got, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Version)
}

func TestFileStorePrunesOldVersions(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, store.Save(context.Background(), testArtifact(v)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{CurrentPointerName, "v2", "v3"}, names, "no temp files or stale versions left behind")
}

func TestFileStoreFailedModelWriteKeepsServedArtifact(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.Save(context.Background(), testArtifact("v1")))

	// A directory squatting on the model blob path makes the rename fail
	// after the v2 encoders blob has already been written.
	v2 := testArtifact("v2")
	v2.Encoders = predictor.Encoders{
		predictor.ColumnAppointmentType: predictor.FitEncoder([]string{"checkup", "follow_up", "procedure"}),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "v2", ModelBlobName, "occupied"), 0o755))
	require.Error(t, store.Save(context.Background(), v2))
	assert.FileExists(t, filepath.Join(dir, "v2", EncodersBlobName))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, 2, got.Encoders.Encode(predictor.ColumnAppointmentType, "procedure"))
}

func TestFileStoreRejectsMixedBlobs(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.Save(context.Background(), testArtifact("v1")))

	foreign, err := testArtifact("v2").MarshalEncoders()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v1", EncodersBlobName), foreign, 0o644))

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, predictor.ErrArtifactMismatch)
}

func TestFileStoreMissingEncoders(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.Save(context.Background(), testArtifact("v1")))
	require.NoError(t, os.Remove(filepath.Join(dir, "v1", EncodersBlobName)))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, predictor.UnseenCode, got.Encoders.Encode(predictor.ColumnAppointmentType, "procedure"))
}

func TestFileStoreCorruptModel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "v1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v1", ModelBlobName), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CurrentPointerName), []byte("v1\n"), 0o644))
	_, err := NewFileStore(dir).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, predictor.ErrNoArtifact)
}

func TestFileStoreRejectsBadVersions(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	for _, v := range []string{"", "..", "a/b"} {
		assert.Error(t, store.Save(context.Background(), testArtifact(v)), v)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, CurrentPointerName), []byte("../etc"), 0o644))
	_, err := store.Load(context.Background())
	assert.Error(t, err)
}

// mockS3Client keeps objects in memory. failKey makes puts of that key fail.
type mockS3Client struct {
	objects map[string][]byte
	putErr  error
	failKey string
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil && (m.failKey == "" || m.failKey == *input.Key) {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	mock := newMockS3()
	store := NewS3Store(mock, "clinic-models", "duration-model/")

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, predictor.ErrNoArtifact)

	require.NoError(t, store.Save(context.Background(), testArtifact("v7")))
	assert.Contains(t, mock.objects, "duration-model/v7/"+ModelBlobName)
	assert.Contains(t, mock.objects, "duration-model/v7/"+EncodersBlobName)
	assert.Equal(t, "v7", string(mock.objects["duration-model/"+CurrentPointerName]))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v7", got.Version)
	assert.Equal(t, 1, got.Encoders.Encode(predictor.ColumnAppointmentType, "follow_up"))
}

func TestS3StoreFailedModelWriteKeepsServedArtifact(t *testing.T) {
	mock := newMockS3()
	store := NewS3Store(mock, "clinic-models", "m")
	require.NoError(t, store.Save(context.Background(), testArtifact("v1")))

	mock.putErr = errors.New("connection reset")
	mock.failKey = "m/v2/" + ModelBlobName
	require.Error(t, store.Save(context.Background(), testArtifact("v2")))
	assert.Contains(t, mock.objects, "m/v2/"+EncodersBlobName)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
}

func TestS3StoreMissingEncoders(t *testing.T) {
	mock := newMockS3()
	store := NewS3Store(mock, "clinic-models", "")
	require.NoError(t, store.Save(context.Background(), testArtifact("v1")))
	delete(mock.objects, "v1/"+EncodersBlobName)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Encoders)
}

func TestS3StoreSaveError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	err := NewS3Store(mock, "clinic-models", "p").Save(context.Background(), testArtifact("v1"))
	assert.ErrorContains(t, err, "access denied")
}

func TestNewArtifactStoreDefaultsToFiles(t *testing.T) {
	store, err := NewArtifactStore(context.Background(), config.StorageConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
}
