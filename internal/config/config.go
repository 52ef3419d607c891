package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Auth           AuthConfig           `yaml:"auth"`
	CORS           CORSConfig           `yaml:"cors"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	AdminBootstrap AdminBootstrapConfig `yaml:"admin_bootstrap"`
	Email          EmailConfig          `yaml:"email"`
	Uploads        UploadsConfig        `yaml:"uploads"`
	Jobs           JobsConfig           `yaml:"jobs"`
	Broker         BrokerConfig         `yaml:"broker"`
	Logging        LoggingConfig        `yaml:"logging"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Environment    string               `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
	MigrationsPath string        `yaml:"migrations_path"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
	JWTIssuer string        `yaml:"jwt_issuer"`
}

// CORSConfig controls which browser origins may call the API.
// AllowAllOrigins is only honoured outside production.
type CORSConfig struct {
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	PublicPerMinute   int      `yaml:"public_per_minute"`
	LoginPer15Minutes int      `yaml:"login_per_15_minutes"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type AdminBootstrapConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// EmailConfig selects the outbound mail provider. Provider is "smtp" or "resend".
type EmailConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Provider     string        `yaml:"provider"`
	From         string        `yaml:"from"`
	SMTPHost     string        `yaml:"smtp_host"`
	SMTPPort     int           `yaml:"smtp_port"`
	SMTPUser     string        `yaml:"smtp_user"`
	SMTPPassword string        `yaml:"smtp_password"`
	ResendAPIKey string        `yaml:"resend_api_key"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
}

type UploadsConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type JobsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	NotificationMaxAttempts int  `yaml:"notification_max_attempts"`
	MaxWorkers              int  `yaml:"max_workers"`
}

// BrokerConfig enables publishing registration events to RabbitMQ when URL is set.
type BrokerConfig struct {
	URL            string        `yaml:"url"`
	Exchange       string        `yaml:"exchange"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

const minProductionSecretLength = 32

// Load builds the configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables win.
func Load() (Config, error) {
	_ = loadDotEnv()

	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	return godotenv.Load()
}

func fromEnv() Config {
	env := getEnv("ENVIRONMENT", "development")
	return Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", getEnvInt("PORT", 5000)),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:5000"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			QueryTimeout:   getEnvDuration("DATABASE_QUERY_TIMEOUT", 5*time.Second),
			MigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", "internal/storage/postgres/migrations"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
			JWTIssuer: getEnv("JWT_ISSUER", "rsvp"),
		},
		CORS: CORSConfig{
			AllowAllOrigins: env == "development" && getEnvBool("CORS_ALLOW_ALL", true),
			AllowedOrigins:  getEnvList("CORS_ORIGIN", nil),
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   getEnvInt("RATE_LIMIT_PUBLIC", 120),
			LoginPer15Minutes: getEnvInt("RATE_LIMIT_LOGIN", 5),
			TrustedProxyCIDRs: getEnvList("TRUSTED_PROXY_CIDRS", nil),
		},
		AdminBootstrap: AdminBootstrapConfig{
			Name:     getEnv("ADMIN_NAME", "Administrator"),
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Email: EmailConfig{
			Enabled:      getEnvBool("EMAIL_ENABLED", false),
			Provider:     getEnv("EMAIL_PROVIDER", "smtp"),
			From:         getEnv("EMAIL_FROM", "noreply@example.com"),
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", getEnv("EMAIL_USER", "")),
			SMTPPassword: getEnv("SMTP_PASSWORD", getEnv("EMAIL_PASS", "")),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			SendTimeout:  getEnvDuration("EMAIL_SEND_TIMEOUT", 10*time.Second),
		},
		Uploads: UploadsConfig{
			Dir:      getEnv("UPLOADS_DIR", "uploads"),
			MaxBytes: int64(getEnvInt("UPLOADS_MAX_BYTES", 5<<20)),
		},
		Jobs: JobsConfig{
			Enabled:                 getEnvBool("JOBS_ENABLED", true),
			NotificationMaxAttempts: getEnvInt("JOB_RETRY_NOTIFICATION", 5),
			MaxWorkers:              getEnvInt("JOB_MAX_WORKERS", 10),
		},
		Broker: BrokerConfig{
			URL:            getEnv("RABBITMQ_URL", ""),
			Exchange:       getEnv("RABBITMQ_EXCHANGE", "rsvp"),
			PublishTimeout: getEnvDuration("RABBITMQ_PUBLISH_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "rsvp"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: env,
	}
}

// Validate reports the first configuration problem that would prevent the server from starting.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.Auth.JWTSecret) < minProductionSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretLength)
	}
	if c.IsProduction() && len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGIN is required in production")
	}
	if c.Email.Enabled {
		switch c.Email.Provider {
		case "smtp":
			if c.Email.SMTPHost == "" {
				return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER=smtp")
			}
		case "resend":
			if c.Email.ResendAPIKey == "" {
				return fmt.Errorf("RESEND_API_KEY is required when EMAIL_PROVIDER=resend")
			}
		default:
			return fmt.Errorf("unsupported EMAIL_PROVIDER %q (must be smtp or resend)", c.Email.Provider)
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
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

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
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

// getEnvDuration accepts Go duration strings ("5s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
