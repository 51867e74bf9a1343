package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// AppEnv is the running environment (development/production).
	AppEnv string
	// DBDriver selects the database backend: "mysql" or "postgres".
	DBDriver string
	// DatabaseDSN is the connection string for the database.
	DatabaseDSN string
	// ControlURL is the optional WebSocket endpoint jobs are received from.
	// When empty the agent runs in one-shot mode.
	ControlURL string
	// AgentKey authenticates the agent against the control endpoint.
	AgentKey string
	// AWSRegion is the AWS region for S3 uploads.
	AWSRegion string
	// S3Bucket is the target S3 bucket name.
	S3Bucket string
	// S3Endpoint is an optional custom endpoint (for non-AWS S3 providers like MinIO/Contabo).
	S3Endpoint string
	// S3PathStyle enables path-style addressing (required for some S3 providers).
	S3PathStyle bool
	// StorageType determines where to save exports: "local" or "s3".
	StorageType string
	// LocalStoragePath is the directory for local exports.
	LocalStoragePath string
	// SMTP settings for email notifications.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	// WorkerCount is the number of concurrent export jobs allowed.
	WorkerCount int
	// MaxDBConcurrency restricts the global number of concurrent DB statements.
	MaxDBConcurrency int64
	// DefaultTimeout is the maximum duration for an export job.
	DefaultTimeout time.Duration
	// LOBChunkSize is the number of bytes requested per large-object fetch.
	LOBChunkSize int64
	// ConfigCompression enables Gzip compression for exports.
	ConfigCompression bool
	// AttachFile enables sending the export as an email attachment (if small enough).
	AttachFile bool
}

func Load() *Config {
	return &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		DBDriver:          getEnv("DB_DRIVER", "mysql"),
		DatabaseDSN:       getEnv("DATABASE_DSN", getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/dbname?parseTime=true")),
		ControlURL:        getEnv("CONTROL_URL", ""),
		AgentKey:          getEnv("AGENT_KEY", ""),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:          getEnv("S3_BUCKET", "my-export-bucket"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3PathStyle:       getEnvBool("S3_PATH_STYLE", false),
		StorageType:       getEnv("STORAGE_TYPE", "local"),
		LocalStoragePath:  getEnv("LOCAL_STORAGE_PATH", "./exports"),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getEnvInt("SMTP_PORT", 587),
		SMTPUser:          getEnv("SMTP_USER", ""),
		SMTPPassword:      getEnv("SMTP_PASS", ""),
		SMTPFrom:          getEnv("SMTP_FROM", "noreply@example.com"),
		WorkerCount:       getEnvInt("WORKER_COUNT", 5),
		MaxDBConcurrency:  int64(getEnvInt("MAX_DB_CONCURRENCY", 3)),
		DefaultTimeout:    getEnvDuration("DEFAULT_TIMEOUT", 15*time.Minute),
		LOBChunkSize:      int64(getEnvInt("LOB_CHUNK_SIZE", 0)),
		ConfigCompression: getEnvBool("COMPRESSION", false),
		AttachFile:        getEnvBool("EMAIL_ATTACH_FILE", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
