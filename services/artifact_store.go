package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"appointment-duration-api/config"
	"appointment-duration-api/predictor"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Blob names of a persisted artifact. Both blobs of a version live under a
// directory (or key prefix) named after it, and CurrentPointerName holds the
// version being served.
const (
	ModelBlobName      = "duration_model.json"
	EncodersBlobName   = "label_encoders.json"
	CurrentPointerName = "CURRENT"
)

func validVersion(v string) error {
	if v == "" || v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
		return fmt.Errorf("invalid artifact version %q", v)
	}
	return nil
}

// FileStore keeps the artifact blobs in a local directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, CurrentPointerName))
	if errors.Is(err, os.ErrNotExist) {
		return "", predictor.ErrNoArtifact
	}
	if err != nil {
		return "", fmt.Errorf("read artifact pointer: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if err := validVersion(version); err != nil {
		return "", err
	}
	return version, nil
}

func (s *FileStore) Load(_ context.Context) (*predictor.Artifact, error) {
	version, err := s.current()
	if err != nil {
		return nil, err
	}
	model, err := os.ReadFile(filepath.Join(s.dir, version, ModelBlobName))
	if err != nil {
		return nil, fmt.Errorf("read model blob of %s: %w", version, err)
	}
	encoders, err := os.ReadFile(filepath.Join(s.dir, version, EncodersBlobName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read encoders blob of %s: %w", version, err)
	}
	return predictor.UnmarshalArtifact(model, encoders)
}

// Save writes both blobs into a fresh version directory and only then
// repoints CURRENT at it. A failure before the pointer write leaves the
// served artifact untouched. Versions older than the previous one are
// pruned afterwards.
func (s *FileStore) Save(_ context.Context, a *predictor.Artifact) error {
	if err := validVersion(a.Version); err != nil {
		return err
	}
	model, encoders, err := marshalBlobs(a)
	if err != nil {
		return err
	}
	versionDir := filepath.Join(s.dir, a.Version)
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(versionDir, EncodersBlobName), encoders); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(versionDir, ModelBlobName), model); err != nil {
		return err
	}

	previous, _ := s.current()
	if err := writeFileAtomic(filepath.Join(s.dir, CurrentPointerName), []byte(a.Version)); err != nil {
		return err
	}
	s.prune(a.Version, previous)
	return nil
}

// prune removes version directories other than keep. Errors are ignored;
// a stale directory only costs disk space.
func (s *FileStore) prune(keep ...string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || slices.Contains(keep, e.Name()) {
			continue
		}
		_ = os.RemoveAll(filepath.Join(s.dir, e.Name()))
	}
}

func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(name), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(name), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(name), err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(name), err)
	}
	return nil
}

func marshalBlobs(a *predictor.Artifact) (model, encoders []byte, err error) {
	if model, err = a.MarshalModel(); err != nil {
		return nil, nil, fmt.Errorf("encode model blob: %w", err)
	}
	if encoders, err = a.MarshalEncoders(); err != nil {
		return nil, nil, fmt.Errorf("encode encoders blob: %w", err)
	}
	return model, encoders, nil
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps the artifact blobs under a prefix of an S3 bucket.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3Client builds an S3 client from the storage configuration. Static
// keys are used when both are set, otherwise the default AWS chain applies.
// A custom endpoint switches to path-style addressing for MinIO/LocalStack.
func NewS3Client(ctx context.Context, cfg config.StorageConfig) (*s3.Client, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s *S3Store) key(parts ...string) string {
	return path.Join(append([]string{s.prefix}, parts...)...)
}

func (s *S3Store) Load(ctx context.Context) (*predictor.Artifact, error) {
	pointer, err := s.get(ctx, s.key(CurrentPointerName))
	if isNoSuchKey(err) {
		return nil, predictor.ErrNoArtifact
	}
	if err != nil {
		return nil, err
	}
	version := strings.TrimSpace(string(pointer))
	if err := validVersion(version); err != nil {
		return nil, err
	}
	model, err := s.get(ctx, s.key(version, ModelBlobName))
	if err != nil {
		return nil, err
	}
	encoders, err := s.get(ctx, s.key(version, EncodersBlobName))
	if err != nil && !isNoSuchKey(err) {
		return nil, err
	}
	return predictor.UnmarshalArtifact(model, encoders)
}

// Save uploads both blobs under the version prefix, then overwrites the
// CURRENT object. Old versions are left for a bucket lifecycle rule.
func (s *S3Store) Save(ctx context.Context, a *predictor.Artifact) error {
	if err := validVersion(a.Version); err != nil {
		return err
	}
	model, encoders, err := marshalBlobs(a)
	if err != nil {
		return err
	}
	if err := s.put(ctx, s.key(a.Version, EncodersBlobName), encoders); err != nil {
		return err
	}
	if err := s.put(ctx, s.key(a.Version, ModelBlobName), model); err != nil {
		return err
	}
	return s.put(ctx, s.key(CurrentPointerName), []byte(a.Version))
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// NewArtifactStore picks the S3 store when a bucket is configured and the
// filesystem store otherwise.
func NewArtifactStore(ctx context.Context, cfg config.StorageConfig) (predictor.ArtifactStore, error) {
	if !cfg.UseS3() {
		return NewFileStore(cfg.Dir), nil
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
}
