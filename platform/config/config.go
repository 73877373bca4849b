// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// JWTConfig provides JWT validation settings for the audit admin surface.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// BitrixConfig provides settings for the Bitrix24 CRM REST client.
type BitrixConfig interface {
	GetBitrixBaseURL() string
	GetBitrixToken() string
	GetBitrixTimeout() time.Duration
	GetBitrixDefaultResponsibleID() int64
}

// JelouConfig provides settings for the Jelou chat API client.
type JelouConfig interface {
	GetJelouBaseURL() string
	GetJelouBotID() string
	GetJelouClientID() string
	GetJelouClientSecret() string
	GetJelouTimeout() time.Duration
}

// HotmartConfig provides settings for the Hotmart webhook endpoint.
type HotmartConfig interface {
	GetHotmartToken() string
}

// PipelineConfig provides settings for the pipeline resolver.
type PipelineConfig interface {
	GetPipelinesFile() string
}

// SchedulerConfig provides settings for asynq scheduling over redis.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MinIOConfig provides settings for the webhook payload archive.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketWebhookArchive() string
	IsMinIOEnabled() bool
}

// AlertConfig provides settings for operational alert emails.
type AlertConfig interface {
	GetAlertsEnabled() bool
	GetAlertSMTPHost() string
	GetAlertSMTPPort() int
	GetAlertSMTPUsername() string
	GetAlertSMTPPassword() string
	GetAlertFromAddress() string
	GetAlertToAddress() string
}

// AuditConfig provides settings for the audit recorder.
type AuditConfig interface {
	GetAuditRetentionDays() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	JWTAccessSecret            string
	CORSAllowAll               bool
	CORSOrigins                []string
	BitrixBaseURL              string
	BitrixToken                string
	BitrixTimeout              time.Duration
	BitrixDefaultResponsibleID int64
	JelouBaseURL               string
	JelouBotID                 string
	JelouClientID              string
	JelouClientSecret          string
	JelouTimeout               time.Duration
	HotmartToken               string
	PipelinesFile              string
	RedisURL                   string
	RedisTLSInsecure           bool
	AsynqQueueName             string
	AsynqConcurrency           int
	MinIOEndpoint              string
	MinIOAccessKey             string
	MinIOSecretKey             string
	MinIOUseSSL                bool
	MinioBucketWebhookArchive  string
	AlertsEnabled              bool
	AlertSMTPHost              string
	AlertSMTPPort              int
	AlertSMTPUsername          string
	AlertSMTPPassword          string
	AlertFromAddress           string
	AlertToAddress             string
	AuditRetentionDays         int
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string        { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool      { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string   { return c.CORSOrigins }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetBitrixBaseURL() string             { return c.BitrixBaseURL }
func (c *Config) GetBitrixToken() string               { return c.BitrixToken }
func (c *Config) GetBitrixTimeout() time.Duration      { return c.BitrixTimeout }
func (c *Config) GetBitrixDefaultResponsibleID() int64 { return c.BitrixDefaultResponsibleID }

func (c *Config) GetJelouBaseURL() string        { return c.JelouBaseURL }
func (c *Config) GetJelouBotID() string          { return c.JelouBotID }
func (c *Config) GetJelouClientID() string       { return c.JelouClientID }
func (c *Config) GetJelouClientSecret() string   { return c.JelouClientSecret }
func (c *Config) GetJelouTimeout() time.Duration { return c.JelouTimeout }

func (c *Config) GetHotmartToken() string  { return c.HotmartToken }
func (c *Config) GetPipelinesFile() string { return c.PipelinesFile }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetMinIOEndpoint() string             { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string            { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string            { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                 { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketWebhookArchive() string { return c.MinioBucketWebhookArchive }
func (c *Config) IsMinIOEnabled() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func (c *Config) GetAlertsEnabled() bool       { return c.AlertsEnabled }
func (c *Config) GetAlertSMTPHost() string     { return c.AlertSMTPHost }
func (c *Config) GetAlertSMTPPort() int        { return c.AlertSMTPPort }
func (c *Config) GetAlertSMTPUsername() string { return c.AlertSMTPUsername }
func (c *Config) GetAlertSMTPPassword() string { return c.AlertSMTPPassword }
func (c *Config) GetAlertFromAddress() string  { return c.AlertFromAddress }
func (c *Config) GetAlertToAddress() string    { return c.AlertToAddress }

func (c *Config) GetAuditRetentionDays() int { return c.AuditRetentionDays }

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from the environment, honoring a local .env file.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:                        getEnv("ENV", "development"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		JWTAccessSecret:            os.Getenv("JWT_ACCESS_SECRET"),
		CORSAllowAll:               getEnvBool("CORS_ALLOW_ALL", false),
		CORSOrigins:                getEnvList("CORS_ORIGINS"),
		BitrixBaseURL:              os.Getenv("BITRIX_BASE_URL"),
		BitrixToken:                os.Getenv("BITRIX_WEBHOOK_TOKEN"),
		BitrixTimeout:              getEnvDuration("BITRIX_TIMEOUT", 15*time.Second),
		BitrixDefaultResponsibleID: getEnvInt64("BITRIX_DEFAULT_RESPONSIBLE_ID", 0),
		JelouBaseURL:               getEnv("JELOU_BASE_URL", "https://api.jelou.ai"),
		JelouBotID:                 os.Getenv("JELOU_BOT_ID"),
		JelouClientID:              os.Getenv("JELOU_CLIENT_ID"),
		JelouClientSecret:          os.Getenv("JELOU_CLIENT_SECRET"),
		JelouTimeout:               getEnvDuration("JELOU_TIMEOUT", 8*time.Second),
		HotmartToken:               os.Getenv("HOTMART_HOTTOK"),
		PipelinesFile:              os.Getenv("PIPELINES_FILE"),
		RedisURL:                   os.Getenv("REDIS_URL"),
		RedisTLSInsecure:           getEnvBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:             getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:           getEnvInt("ASYNQ_CONCURRENCY", 10),
		MinIOEndpoint:              os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:             os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:             os.Getenv("MINIO_SECRET_KEY"),
		MinIOUseSSL:                getEnvBool("MINIO_USE_SSL", false),
		MinioBucketWebhookArchive:  getEnv("MINIO_BUCKET_WEBHOOK_ARCHIVE", "webhook-archive"),
		AlertsEnabled:              getEnvBool("ALERTS_ENABLED", false),
		AlertSMTPHost:              os.Getenv("ALERT_SMTP_HOST"),
		AlertSMTPPort:              getEnvInt("ALERT_SMTP_PORT", 587),
		AlertSMTPUsername:          os.Getenv("ALERT_SMTP_USERNAME"),
		AlertSMTPPassword:          os.Getenv("ALERT_SMTP_PASSWORD"),
		AlertFromAddress:           os.Getenv("ALERT_FROM_ADDRESS"),
		AlertToAddress:             os.Getenv("ALERT_TO_ADDRESS"),
		AuditRetentionDays:         getEnvInt("AUDIT_RETENTION_DAYS", 90),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.BitrixBaseURL == "" || c.BitrixToken == "" {
		return fmt.Errorf("BITRIX_BASE_URL and BITRIX_WEBHOOK_TOKEN are required")
	}
	if c.HotmartToken == "" {
		return fmt.Errorf("HOTMART_HOTTOK is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
