package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

// Ticket intake modes.
const (
	IntakeAuthenticated = "authenticated"
	IntakeAnonymous     = "anonymous"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	MinIO        MinIOConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Tickets      TicketConfig
	SMTP         SMTPConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	BodyLimitMB           int
}

// StoreConfig selects the durable store and the reset code store.
type StoreConfig struct {
	Driver         string
	ResetCodeStore string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// MongoConfig holds MongoDB connection values.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// MinIOConfig configures attachment object storage. An empty endpoint disables uploads.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	ResetCodeTTLMinutes   int
	BcryptCost            int
}

// TicketConfig controls ticket intake.
type TicketConfig struct {
	IntakeMode          string
	TokenMaxAttempts    int
	MaxAttachmentSizeMB int
}

// SMTPConfig holds outbound mail server settings. An empty host disables mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NotificationConfig holds notification endpoints and worker sizing.
type NotificationConfig struct {
	EmailFrom      string
	SupportCC      string
	WebhookURL     string
	QueueSize      int
	Workers        int
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			BodyLimitMB:           getEnvAsInt("HTTP_BODY_LIMIT_MB", 12),
		},
		Store: StoreConfig{
			Driver:         strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			ResetCodeStore: strings.ToLower(getEnv("RESET_CODE_STORE", "redis")),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "support_desk"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			Prefix:   getEnv("REDIS_KEY_PREFIX", "support-desk"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "ticket-attachments"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 24*60),
			ResetCodeTTLMinutes:   getEnvAsInt("AUTH_RESET_CODE_TTL_MINUTES", 10),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Tickets: TicketConfig{
			IntakeMode:          strings.ToLower(getEnv("TICKET_INTAKE_MODE", IntakeAuthenticated)),
			TokenMaxAttempts:    getEnvAsInt("TICKET_TOKEN_MAX_ATTEMPTS", 5),
			MaxAttachmentSizeMB: getEnvAsInt("TICKET_MAX_ATTACHMENT_MB", 10),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		Notification: NotificationConfig{
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SupportCC:      os.Getenv("NOTIFY_SUPPORT_CC"),
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:        getEnvAsInt("NOTIFY_WORKERS", 2),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 15),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMongo, StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Store.ResetCodeStore {
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid RESET_CODE_STORE %q", c.Store.ResetCodeStore)
	}
	switch c.Tickets.IntakeMode {
	case IntakeAuthenticated, IntakeAnonymous:
	default:
		return fmt.Errorf("invalid TICKET_INTAKE_MODE %q", c.Tickets.IntakeMode)
	}
	if c.Store.Driver == StoreDriverPostgres && c.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required when STORE_DRIVER=postgres")
	}
	if c.Auth.JWTSecret == "" || (c.App.Env != "development" && c.Auth.JWTSecret == "dev-secret") {
		return errors.New("AUTH_JWT_SECRET must be set outside development")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the bearer credential lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

// ResetCodeTTL returns the one-time code lifetime.
func (a AuthConfig) ResetCodeTTL() time.Duration {
	return time.Duration(a.ResetCodeTTLMinutes) * time.Minute
}

// AnonymousIntake reports whether unauthenticated callers may open tickets.
func (t TicketConfig) AnonymousIntake() bool {
	return t.IntakeMode == IntakeAnonymous
}

// MaxAttachmentBytes returns the per-file upload limit.
func (t TicketConfig) MaxAttachmentBytes() int64 {
	return int64(t.MaxAttachmentSizeMB) << 20
}

// Timeout returns the per-notification delivery timeout.
func (n NotificationConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
