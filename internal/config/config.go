package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Environment   string
	AWS           AWSConfig
	Provider      ProviderConfig
	Transcoder    TranscoderConfig
	Limits        LimitsConfig
	API           APIConfig
	Worker        WorkerConfig
	Reconciler    ReconcilerConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
}

// AWSConfig holds object storage, queue, and table configuration.
type AWSConfig struct {
	Region        string
	StorageBucket string
	SQSQueueURL   string
	DynamoDBTable string
	CDNDomain     string
}

// ProviderConfig holds managed video provider credentials and policy.
type ProviderConfig struct {
	BaseURL           string
	TokenID           string
	TokenSecret       string
	WebhookSecret     string
	PlaybackPolicy    string // "public" or "signed"
	SigningKeyID      string
	SigningKeyPrivate string // base64-encoded RSA private key PEM
}

// TranscoderConfig holds external encoder configuration.
type TranscoderConfig struct {
	BinaryPath string
	ProbePath  string
}

// LimitsConfig holds upload and migration size limits plus retention.
type LimitsConfig struct {
	MaxUploadBytes         int64
	MaxMigrationBytes      int64
	AnalyticsRetentionDays int
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Port      string
	JWTSecret string
}

// WorkerConfig holds transcode worker configuration.
type WorkerConfig struct {
	MaxConcurrentJobs int
	MetricsPort       int
}

// ReconcilerConfig holds reconciliation job configuration.
type ReconcilerConfig struct {
	SyncBatchSize int
	MetricsPort   int
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
}

// Default values
const (
	DefaultPort              = "8080"
	DefaultMetricsPort       = 2112
	DefaultMaxConcurrentJobs = 1
	DefaultSyncBatchSize     = 50
	DefaultOTLPEndpoint      = "localhost:4317"
	DefaultRegion            = "us-west-2"
	DefaultProviderBaseURL   = "https://api.managed-vp.com/video/v1"
	DefaultPlaybackPolicy    = "public"
	DefaultRetentionDays     = 90
	DefaultMaxUploadBytes    = int64(2) << 30 // 2 GiB
	DefaultMaxMigrationBytes = int64(5) << 30 // 5 GiB
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "dev"),
		AWS: AWSConfig{
			Region:        getEnv("AWS_REGION", DefaultRegion),
			StorageBucket: os.Getenv("STORAGE_BUCKET"),
			SQSQueueURL:   os.Getenv("SQS_QUEUE_URL"),
			DynamoDBTable: os.Getenv("DYNAMODB_TABLE"),
			CDNDomain:     os.Getenv("CDN_DOMAIN"),
		},
		Provider: ProviderConfig{
			BaseURL:           getEnv("PROVIDER_BASE_URL", DefaultProviderBaseURL),
			TokenID:           os.Getenv("PROVIDER_TOKEN_ID"),
			TokenSecret:       os.Getenv("PROVIDER_TOKEN_SECRET"),
			WebhookSecret:     os.Getenv("PROVIDER_WEBHOOK_SECRET"),
			PlaybackPolicy:    getEnv("PROVIDER_PLAYBACK_POLICY", DefaultPlaybackPolicy),
			SigningKeyID:      os.Getenv("PROVIDER_SIGNING_KEY_ID"),
			SigningKeyPrivate: os.Getenv("PROVIDER_SIGNING_KEY_PRIVATE"),
		},
		Transcoder: TranscoderConfig{
			BinaryPath: getEnv("TRANSCODER_BINARY", "ffmpeg"),
			ProbePath:  getEnv("FFPROBE_BINARY", "ffprobe"),
		},
		Limits: LimitsConfig{
			MaxUploadBytes:         getEnvInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
			MaxMigrationBytes:      getEnvInt64("MAX_MIGRATION_BYTES", DefaultMaxMigrationBytes),
			AnalyticsRetentionDays: getEnvInt("ANALYTICS_RETENTION_DAYS", DefaultRetentionDays),
		},
		API: APIConfig{
			Port:      getEnv("API_PORT", DefaultPort),
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Worker: WorkerConfig{
			MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", DefaultMaxConcurrentJobs),
			MetricsPort:       getEnvInt("METRICS_PORT", DefaultMetricsPort),
		},
		Reconciler: ReconcilerConfig{
			SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", DefaultSyncBatchSize),
			MetricsPort:   getEnvInt("METRICS_PORT", DefaultMetricsPort),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{
				"https://app.brightclass.io",
				"https://api.brightclass.io",
			}),
		},
	}

	return cfg, nil
}

// LoadAPI loads and validates configuration for the API service.
func LoadAPI() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker loads and validates configuration for the transcode worker.
func LoadWorker() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadReconciler loads and validates configuration for the reconciler.
func LoadReconciler() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateReconciler(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateAPI validates configuration required for the API service.
func (c *Config) ValidateAPI() error {
	var errs []string

	if c.AWS.StorageBucket == "" {
		errs = append(errs, "STORAGE_BUCKET is required")
	}
	if c.AWS.SQSQueueURL == "" {
		errs = append(errs, "SQS_QUEUE_URL is required")
	}
	if c.AWS.DynamoDBTable == "" {
		errs = append(errs, "DYNAMODB_TABLE is required")
	}
	if c.Provider.PlaybackPolicy != "public" && c.Provider.PlaybackPolicy != "signed" {
		errs = append(errs, "PROVIDER_PLAYBACK_POLICY must be public or signed")
	}
	if c.IsProduction() {
		if c.API.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required in production")
		} else if len(c.API.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
		if c.Provider.WebhookSecret == "" {
			errs = append(errs, "PROVIDER_WEBHOOK_SECRET is required in production")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateWorker validates configuration required for the transcode worker.
func (c *Config) ValidateWorker() error {
	var errs []string

	if c.AWS.StorageBucket == "" {
		errs = append(errs, "STORAGE_BUCKET is required")
	}
	if c.AWS.SQSQueueURL == "" {
		errs = append(errs, "SQS_QUEUE_URL is required")
	}
	if c.AWS.DynamoDBTable == "" {
		errs = append(errs, "DYNAMODB_TABLE is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateReconciler validates configuration required for the reconciler.
func (c *Config) ValidateReconciler() error {
	var errs []string

	if c.AWS.DynamoDBTable == "" {
		errs = append(errs, "DYNAMODB_TABLE is required")
	}
	if c.Provider.TokenID == "" || c.Provider.TokenSecret == "" {
		errs = append(errs, "PROVIDER_TOKEN_ID and PROVIDER_TOKEN_SECRET are required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "prod" || env == "production"
}

// SignedPlayback returns true if new direct uploads use the signed policy.
func (c *Config) SignedPlayback() bool {
	return c.Provider.PlaybackPolicy == "signed"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
