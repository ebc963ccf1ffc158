package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string `envconfig:"APP_PORT" default:"3000"`
	AppEnv  string `envconfig:"APP_ENV" default:"development"`

	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpointURL string `envconfig:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `envconfig:"AWS_SECRET_ACCESS_KEY"`

	DynamoTables DynamoTables `envconfig:"DYNAMO_TABLE"`

	// Change streams. When StreamsEnabled is false only writes made by this
	// process reach subscribers. Unset, it is on everywhere but development.
	StreamsEnabled     bool          `envconfig:"STREAMS_ENABLED"`
	StreamPollInterval time.Duration `envconfig:"STREAM_POLL_INTERVAL" default:"1s"`
	RedisURL           string        `envconfig:"REDIS_URL"`
	RedisChannel       string        `envconfig:"REDIS_CHANNEL" default:"care-notify:changes"`

	SNSTopicARN   string `envconfig:"SNS_TOPIC_ARN"`
	ArchiveBucket string `envconfig:"ARCHIVE_BUCKET"`

	JWTPrivateKeyPath string        `envconfig:"JWT_PRIVATE_KEY_PATH" default:"./private_key.pem"`
	JWTPublicKeyPath  string        `envconfig:"JWT_PUBLIC_KEY_PATH" default:"./public_key.pem"`
	JWTExpiry         time.Duration `envconfig:"JWT_EXPIRY" default:"168h"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"` // CORS allowed origins

	FeedPageSize              int           `envconfig:"FEED_PAGE_SIZE" default:"20"`
	NotificationRetentionDays int           `envconfig:"NOTIFICATION_RETENTION_DAYS" default:"30"`
	ProcessedKeyRetentionDays int           `envconfig:"PROCESSED_KEY_RETENTION_DAYS" default:"60"`
	CleanupInterval           time.Duration `envconfig:"CLEANUP_INTERVAL" default:"24h"`
	ClinicNameCacheTTL        time.Duration `envconfig:"CLINIC_NAME_CACHE_TTL" default:"10m"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Notifications  string `envconfig:"NOTIFICATIONS" default:"notifications"`
	ProcessedKeys  string `envconfig:"PROCESSED_KEYS" default:"processed_notifications"`
	MedicalHistory string `envconfig:"MEDICAL_HISTORY" default:"medical_history"`
	Appointments   string `envconfig:"APPOINTMENTS" default:"appointments"`
	Referrals      string `envconfig:"REFERRALS" default:"referrals"`
	Clinics        string `envconfig:"CLINICS" default:"clinics"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, set := os.LookupEnv("STREAMS_ENABLED"); !set {
		cfg.StreamsEnabled = !cfg.IsDevelopment()
	}
	if cfg.FeedPageSize <= 0 {
		return nil, fmt.Errorf("load config: FEED_PAGE_SIZE must be positive, got %d", cfg.FeedPageSize)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("load config: CLEANUP_INTERVAL must be positive")
	}
	return &cfg, nil
}

// IsDevelopment reports whether the process runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
