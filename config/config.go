package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"appointment-duration-api/predictor"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	JWT      JWTConfig
	Admin    AdminConfig
	Model    ModelConfig
	Storage  StorageConfig
	MQTT     MQTTConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           int
	MaxUploadBytes int64
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// GetURL returns the connection string in URL form, as pgx expects it.
func (d DatabaseConfig) GetURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins string
}

// Origins splits AllowedOrigins on commas.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

// AdminConfig is the single operator account allowed to retrain.
// PasswordHash is a bcrypt hash.
type AdminConfig struct {
	Email        string
	PasswordHash string
}

type ModelConfig struct {
	NEstimators     int
	MaxDepth        int
	LearningRate    float64
	MinSamplesSplit int
	MinSamplesLeaf  int
	TestFraction    float64
	Seed            uint64
}

// Hyperparameters converts the configured values for the trainer.
func (m ModelConfig) Hyperparameters() predictor.Hyperparameters {
	return predictor.Hyperparameters{
		NEstimators:     m.NEstimators,
		MaxDepth:        m.MaxDepth,
		LearningRate:    m.LearningRate,
		MinSamplesSplit: m.MinSamplesSplit,
		MinSamplesLeaf:  m.MinSamplesLeaf,
		TestFraction:    m.TestFraction,
		Seed:            m.Seed,
	}
}

type StorageConfig struct {
	Dir       string
	S3Bucket  string
	S3Prefix  string
	S3Region  string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// UseS3 reports whether artifacts live in a bucket rather than on disk.
func (s StorageConfig) UseS3() bool {
	return s.S3Bucket != ""
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
}

type LogConfig struct {
	Level       string
	Environment string
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first when present; variables already set
// take precedence over it.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	serverPort, err := getIntEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	maxUploadMB, err := getIntEnv("MAX_UPLOAD_MB", 32)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %w", err)
	}

	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	dbEnabled, err := getBoolEnv("DB_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_ENABLED: %w", err)
	}

	redisPort, err := getIntEnv("REDIS_PORT", 6379)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	redisDB, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	redisEnabled, err := getBoolEnv("REDIS_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_ENABLED: %w", err)
	}
	cacheTTL, err := getIntEnv("PREDICTION_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return nil, fmt.Errorf("invalid PREDICTION_CACHE_TTL_SECONDS: %w", err)
	}

	jwtExpiry, err := getIntEnv("JWT_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY_HOURS: %w", err)
	}

	model, err := loadModelConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           serverPort,
			MaxUploadBytes: int64(maxUploadMB) << 20,
		},
		Database: DatabaseConfig{
			Enabled:  dbEnabled,
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "scheduler"),
			Password: getEnv("DB_PASSWORD", "scheduler_dev_password"),
			Name:     getEnv("DB_NAME", "scheduling"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  redisEnabled,
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     redisPort,
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			CacheTTL: time.Duration(cacheTTL) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
			ExpiryHours: jwtExpiry,
		},
		Admin: AdminConfig{
			Email:        getEnv("ADMIN_EMAIL", "admin@clinic.local"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Model: model,
		Storage: StorageConfig{
			Dir:       getEnv("MODEL_DIR", "models"),
			S3Bucket:  getEnv("ARTIFACT_S3_BUCKET", ""),
			S3Prefix:  getEnv("ARTIFACT_S3_PREFIX", "duration-model/"),
			S3Region:  getEnv("AWS_REGION", "us-east-1"),
			AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:  getEnv("ARTIFACT_S3_ENDPOINT", ""),
		},
		MQTT: MQTTConfig{
			Broker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID: getEnv("MQTT_CLIENT_ID", "appointment-collector"),
			Topic:    getEnv("MQTT_TOPIC", "clinic/appointments/completed"),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Environment: getEnv("APP_ENV", "development"),
		},
	}

	return cfg, nil
}

func loadModelConfig() (ModelConfig, error) {
	var m ModelConfig
	var err error
	if m.NEstimators, err = getIntEnv("MODEL_N_ESTIMATORS", 100); err != nil {
		return m, fmt.Errorf("invalid MODEL_N_ESTIMATORS: %w", err)
	}
	if m.MaxDepth, err = getIntEnv("MODEL_MAX_DEPTH", 5); err != nil {
		return m, fmt.Errorf("invalid MODEL_MAX_DEPTH: %w", err)
	}
	if m.LearningRate, err = getFloatEnv("MODEL_LEARNING_RATE", 0.1); err != nil {
		return m, fmt.Errorf("invalid MODEL_LEARNING_RATE: %w", err)
	}
	if m.MinSamplesSplit, err = getIntEnv("MODEL_MIN_SAMPLES_SPLIT", 10); err != nil {
		return m, fmt.Errorf("invalid MODEL_MIN_SAMPLES_SPLIT: %w", err)
	}
	if m.MinSamplesLeaf, err = getIntEnv("MODEL_MIN_SAMPLES_LEAF", 5); err != nil {
		return m, fmt.Errorf("invalid MODEL_MIN_SAMPLES_LEAF: %w", err)
	}
	if m.TestFraction, err = getFloatEnv("MODEL_TEST_FRACTION", 0.2); err != nil {
		return m, fmt.Errorf("invalid MODEL_TEST_FRACTION: %w", err)
	}
	seed, err := getIntEnv("MODEL_SEED", 42)
	if err != nil || seed < 0 {
		return m, fmt.Errorf("invalid MODEL_SEED: %q", os.Getenv("MODEL_SEED"))
	}
	m.Seed = uint64(seed)
	return m, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}
