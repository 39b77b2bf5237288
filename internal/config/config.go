package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Process roles. A worker process runs the same binary but binds the
// worker port and serves only health, metrics, and the queue dashboard.
const (
	RoleMain   = "main"
	RoleWorker = "worker"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Auth           AuthConfig           `yaml:"auth"`
	CORS           CORSConfig           `yaml:"cors"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Email          EmailConfig          `yaml:"email"`
	Jobs           JobsConfig           `yaml:"jobs"`
	Logging        LoggingConfig        `yaml:"logging"`
	Monitoring     MonitoringConfig     `yaml:"monitoring"`
	AdminBootstrap AdminBootstrapConfig `yaml:"admin_bootstrap"`
	Environment    string               `yaml:"environment"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	WorkerPort int    `yaml:"worker_port"`
	Role       string `yaml:"role"`
	BaseURL    string `yaml:"base_url"`
}

// ListenPort returns the port for the configured process role.
func (s ServerConfig) ListenPort() int {
	if s.Role == RoleWorker {
		return s.WorkerPort
	}
	return s.Port
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
}

type AuthConfig struct {
	Secret       string        `yaml:"secret"`
	Issuer       string        `yaml:"issuer"`
	TokenExpiry  time.Duration `yaml:"token_expiry"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

type CORSConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins"`
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
}

type RateLimitConfig struct {
	PublicPerMinute   int      `yaml:"public_per_minute"`
	AdminPerMinute    int      `yaml:"admin_per_minute"`
	LoginPerMinute    int      `yaml:"login_per_minute"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type EmailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	From         string `yaml:"from"`
}

type JobsConfig struct {
	DeliveryMaxAttempts int           `yaml:"delivery_max_attempts"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval"`
	MaxWorkers          int           `yaml:"max_workers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MonitoringConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type AdminBootstrapConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// Load builds configuration from environment variables. When path is
// non-empty the YAML file is read first and env vars override it.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.Secret == "" {
		return Config{}, fmt.Errorf("AUTH_SECRET is required")
	}
	if cfg.Server.Role != RoleMain && cfg.Server.Role != RoleWorker {
		return Config{}, fmt.Errorf("PROCESS_ROLE must be %q or %q, got %q", RoleMain, RoleWorker, cfg.Server.Role)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			WorkerPort: 8081,
			Role:       RoleMain,
			BaseURL:    "http://localhost:8080",
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
		},
		Auth: AuthConfig{
			Issuer:      "verisend",
			TokenExpiry: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute: 60,
			AdminPerMinute:  0,
			LoginPerMinute:  10,
		},
		Email: EmailConfig{
			From: "Verisend <no-reply@verisend.dev>",
		},
		Jobs: JobsConfig{
			DeliveryMaxAttempts: 10,
			CleanupInterval:     time.Hour,
			MaxWorkers:          10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Monitoring: MonitoringConfig{
			Exporter:    "otlp",
			ServiceName: "verisend-server",
			SampleRate:  1.0,
		},
		Environment: "development",
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.WorkerPort = getEnvInt("SERVER_WORKER_PORT", cfg.Server.WorkerPort)
	cfg.Server.Role = getEnv("PROCESS_ROLE", cfg.Server.Role)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)

	cfg.Auth.Secret = getEnv("AUTH_SECRET", cfg.Auth.Secret)
	cfg.Auth.Issuer = getEnv("AUTH_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.TokenExpiry = time.Duration(getEnvInt("AUTH_TOKEN_EXPIRY_HOURS", int(cfg.Auth.TokenExpiry/time.Hour))) * time.Hour
	cfg.Auth.CookieSecure = getEnvBool("AUTH_COOKIE_SECURE", cfg.Auth.CookieSecure)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = splitAndTrim(origins)
	}
	cfg.CORS.AllowAllOrigins = getEnvBool("CORS_ALLOW_ALL_ORIGINS", cfg.CORS.AllowAllOrigins)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.AdminPerMinute = getEnvInt("RATE_LIMIT_ADMIN", cfg.RateLimit.AdminPerMinute)
	cfg.RateLimit.LoginPerMinute = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPerMinute)
	if proxies := os.Getenv("RATE_LIMIT_TRUSTED_PROXIES"); proxies != "" {
		cfg.RateLimit.TrustedProxyCIDRs = splitAndTrim(proxies)
	}

	cfg.Email.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.Email.ResendAPIKey)
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)

	cfg.Jobs.DeliveryMaxAttempts = getEnvInt("JOB_DELIVERY_MAX_ATTEMPTS", cfg.Jobs.DeliveryMaxAttempts)
	cfg.Jobs.CleanupInterval = time.Duration(getEnvInt("JOB_CLEANUP_INTERVAL_MINUTES", int(cfg.Jobs.CleanupInterval/time.Minute))) * time.Minute
	cfg.Jobs.MaxWorkers = getEnvInt("JOB_MAX_WORKERS", cfg.Jobs.MaxWorkers)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Monitoring.Enabled = getEnvBool("MONITORING_ENABLED", cfg.Monitoring.Enabled)
	cfg.Monitoring.Exporter = getEnv("MONITORING_EXPORTER", cfg.Monitoring.Exporter)
	cfg.Monitoring.OTLPEndpoint = getEnv("MONITORING_OTLP_ENDPOINT", cfg.Monitoring.OTLPEndpoint)
	cfg.Monitoring.ServiceName = getEnv("MONITORING_SERVICE_NAME", cfg.Monitoring.ServiceName)
	cfg.Monitoring.SampleRate = getEnvFloat("MONITORING_SAMPLE_RATE", cfg.Monitoring.SampleRate)

	cfg.AdminBootstrap.Username = getEnv("ADMIN_USERNAME", cfg.AdminBootstrap.Username)
	cfg.AdminBootstrap.Password = getEnv("ADMIN_PASSWORD", cfg.AdminBootstrap.Password)
	cfg.AdminBootstrap.Email = getEnv("ADMIN_EMAIL", cfg.AdminBootstrap.Email)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
