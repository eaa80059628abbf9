// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env           string `mapstructure:"APP_ENV"`
	Port          string `mapstructure:"PORT"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	DBPath     string `mapstructure:"DB_PATH"`
	DBPoolSize int    `mapstructure:"DB_POOL_SIZE"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	TokenTTL             time.Duration `mapstructure:"TOKEN_TTL"`
	CodeTTL              time.Duration `mapstructure:"CODE_TTL"`
	TokenCleanupInterval time.Duration `mapstructure:"TOKEN_CLEANUP_INTERVAL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`

	ModerationAPIKey         string `mapstructure:"MODERATION_API_KEY"`
	ModerationSecretKey      string `mapstructure:"MODERATION_SECRET_KEY"`
	ModerationBaseURL        string `mapstructure:"MODERATION_BASE_URL"`
	ModerationCallbackSecret string `mapstructure:"MODERATION_CALLBACK_SECRET"`
	AMQPURL                  string `mapstructure:"AMQP_URL"`
	ModerationQueue          string `mapstructure:"MODERATION_QUEUE"`

	UploadDir      string `mapstructure:"UPLOAD_DIR"`
	UploadMaxBytes int64  `mapstructure:"UPLOAD_MAX_BYTES"`
	StorageDriver  string `mapstructure:"STORAGE_DRIVER"`
	S3Endpoint     string `mapstructure:"S3_ENDPOINT"`
	S3Region       string `mapstructure:"S3_REGION"`
	S3Bucket       string `mapstructure:"S3_BUCKET"`
	S3AccessKey    string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey    string `mapstructure:"S3_SECRET_KEY"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingExporter string `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string `mapstructure:"OTLP_ENDPOINT"`

	DevBootstrapRoot bool   `mapstructure:"DEV_BOOTSTRAP_ROOT"`
	DevRootAccount   string `mapstructure:"DEV_ROOT_ACCOUNT"`
	DevRootEmail     string `mapstructure:"DEV_ROOT_EMAIL"`
	DevRootPassword  string `mapstructure:"DEV_ROOT_PASSWORD"`
}

const defaultCallbackSecret = "change-me-moderation-callback-secret"

// DefaultMailFrom is the sender used when neither MAIL_FROM nor service_config provides one.
const DefaultMailFrom = "Egaku@egaku.com"

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; environment variables may carry everything.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults(viper.GetViper())

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8000")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "egaku")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_PATH", "egaku.db")
	v.SetDefault("DB_POOL_SIZE", 20)

	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("FEATURE_FLAGS", "summary=on,realtime_reminders=on")

	v.SetDefault("TOKEN_TTL", time.Hour)
	v.SetDefault("CODE_TTL", 5*time.Minute)
	v.SetDefault("TOKEN_CLEANUP_INTERVAL", 10*time.Minute)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 465)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("MAIL_FROM", DefaultMailFrom)

	v.SetDefault("MODERATION_API_KEY", "")
	v.SetDefault("MODERATION_SECRET_KEY", "")
	v.SetDefault("MODERATION_BASE_URL", "https://aip.baidubce.com")
	v.SetDefault("MODERATION_CALLBACK_SECRET", defaultCallbackSecret)
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("MODERATION_QUEUE", "egaku.moderation")

	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("UPLOAD_MAX_BYTES", int64(1024*1024*1024))
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")

	v.SetDefault("DEV_BOOTSTRAP_ROOT", false)
	v.SetDefault("DEV_ROOT_ACCOUNT", "egaku_root")
	v.SetDefault("DEV_ROOT_EMAIL", "root@egaku.local")
	v.SetDefault("DEV_ROOT_PASSWORD", "")
}

// IsProduction reports whether the config targets a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// MailEnabled reports whether an SMTP relay is configured.
func (c *Config) MailEnabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	switch c.DBDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be one of postgres, mysql, sqlite (got %q)", c.DBDriver)
	}

	switch c.StorageDriver {
	case "local":
		if c.UploadDir == "" {
			return errors.New("UPLOAD_DIR is required for local storage")
		}
	case "s3":
		if c.S3Bucket == "" || c.S3Endpoint == "" {
			return errors.New("S3_ENDPOINT and S3_BUCKET are required for s3 storage")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be local or s3 (got %q)", c.StorageDriver)
	}

	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.CodeTTL <= 0 {
		return errors.New("CODE_TTL must be positive")
	}
	if c.DBPoolSize <= 0 {
		c.DBPoolSize = 20
	}

	if c.IsProduction() {
		if c.DBDriver == "sqlite" {
			return errors.New("sqlite is not supported in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.ModerationCallbackSecret == defaultCallbackSecret || len(c.ModerationCallbackSecret) < 32 {
			return errors.New("MODERATION_CALLBACK_SECRET must be changed and at least 32 characters in production")
		}
		if !c.MailEnabled() {
			return errors.New("SMTP_HOST is required in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if !c.MailEnabled() {
		log.Println("WARNING: SMTP_HOST is empty; verification codes will be logged instead of mailed.")
	}

	return nil
}
