package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the notification service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Geo        GeoConfig
	Mail       MailConfig
	Tracking   TrackingConfig
	Analytics  AnalyticsConfig
	CORS       CORSConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
	Migrate  bool
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ClickHouseConfig is only used when Analytics.EventBackend is "clickhouse".
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
}

type AuthConfig struct {
	Enabled     bool
	AdminAPIKey string
	JWTSecret   string
	JWTIssuer   string
	AdminRole   string
}

type RateLimitConfig struct {
	Enabled      bool
	IngestRPS    float64
	IngestBurst  int
	MgmtRPS      float64
	MgmtBurst    int
	PerIPRPS     float64
	PerIPBurst   int
	CleanupEvery time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// GeoConfig configures GeoIP enrichment of tracking events.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
	CacheSize    int
	CacheTTL     time.Duration
}

// MailConfig configures outbound email. SES is used when Region and keys are set,
// otherwise messages are only logged.
type MailConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	FromEmail       string
	FromName        string
	ConfigSet       string
	Sender          string
}

func (m MailConfig) SESEnabled() bool {
	return m.Region != "" && m.AccessKeyID != "" && m.SecretAccessKey != ""
}

// TrackingConfig holds the public URLs embedded in emails.
type TrackingConfig struct {
	APIBase string
	SiteURL string
}

type AnalyticsConfig struct {
	EventBackend string
	CacheTTL     time.Duration
	DefaultDays  int
	MaxDays      int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("NOTIFY_HTTP_ADDR", ":8080"),
			Env:             getEnv("NOTIFY_ENV", "development"),
			ReadTimeout:     getDurationEnv("NOTIFY_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("NOTIFY_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("NOTIFY_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("NOTIFY_DB_ENABLED", true),
			Host:     getEnv("NOTIFY_DB_HOST", "localhost"),
			Port:     getIntEnv("NOTIFY_DB_PORT", 5432),
			User:     getEnv("NOTIFY_DB_USER", "storefront"),
			Password: getEnv("NOTIFY_DB_PASSWORD", "storefront_secret"),
			DBName:   getEnv("NOTIFY_DB_NAME", "storefront"),
			SSLMode:  getEnv("NOTIFY_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("NOTIFY_DB_MAX_CONNS", 20),
			MinConns: getIntEnv("NOTIFY_DB_MIN_CONNS", 2),
			Migrate:  getBoolEnv("NOTIFY_DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("NOTIFY_REDIS_ENABLED", true),
			Addr:     getEnv("NOTIFY_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("NOTIFY_REDIS_PASSWORD", ""),
			DB:       getIntEnv("NOTIFY_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     getSliceEnv("NOTIFY_CLICKHOUSE_ADDR", []string{"localhost:9000"}),
			Database: getEnv("NOTIFY_CLICKHOUSE_DB", "storefront"),
			Username: getEnv("NOTIFY_CLICKHOUSE_USER", "default"),
			Password: getEnv("NOTIFY_CLICKHOUSE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			Enabled:     getBoolEnv("NOTIFY_AUTH_ENABLED", true),
			AdminAPIKey: getEnv("NOTIFY_ADMIN_API_KEY", ""),
			JWTSecret:   getEnv("NOTIFY_JWT_SECRET", ""),
			JWTIssuer:   getEnv("NOTIFY_JWT_ISSUER", ""),
			AdminRole:   getEnv("NOTIFY_ADMIN_ROLE", "admin"),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getBoolEnv("NOTIFY_RATE_LIMIT_ENABLED", true),
			IngestRPS:    getFloatEnv("NOTIFY_RATE_LIMIT_INGEST_RPS", 500),
			IngestBurst:  getIntEnv("NOTIFY_RATE_LIMIT_INGEST_BURST", 100),
			MgmtRPS:      getFloatEnv("NOTIFY_RATE_LIMIT_MGMT_RPS", 50),
			MgmtBurst:    getIntEnv("NOTIFY_RATE_LIMIT_MGMT_BURST", 20),
			PerIPRPS:     getFloatEnv("NOTIFY_RATE_LIMIT_PER_IP_RPS", 20),
			PerIPBurst:   getIntEnv("NOTIFY_RATE_LIMIT_PER_IP_BURST", 40),
			CleanupEvery: getDurationEnv("NOTIFY_RATE_LIMIT_CLEANUP", time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("NOTIFY_LOG_LEVEL", "info"),
			Format: getEnv("NOTIFY_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("NOTIFY_METRICS_ENABLED", true),
			Path:      getEnv("NOTIFY_METRICS_PATH", "/metrics"),
			Namespace: getEnv("NOTIFY_METRICS_NAMESPACE", "storefront_notify"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("NOTIFY_GEO_ENABLED", false),
			DatabasePath: getEnv("NOTIFY_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
			CacheSize:    getIntEnv("NOTIFY_GEO_CACHE_SIZE", 10000),
			CacheTTL:     getDurationEnv("NOTIFY_GEO_CACHE_TTL", time.Hour),
		},
		Mail: MailConfig{
			Region:          getEnv("NOTIFY_SES_REGION", ""),
			AccessKeyID:     getEnv("NOTIFY_SES_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("NOTIFY_SES_SECRET_ACCESS_KEY", ""),
			FromEmail:       getEnv("NOTIFY_MAIL_FROM", "no-reply@localhost"),
			FromName:        getEnv("NOTIFY_MAIL_FROM_NAME", "Loja"),
			ConfigSet:       getEnv("NOTIFY_SES_CONFIG_SET", ""),
			Sender:          getEnv("NOTIFY_DEFAULT_SENDER", "Loja"),
		},
		Tracking: TrackingConfig{
			APIBase: strings.TrimRight(getEnv("NOTIFY_API_BASE", "http://localhost:8080"), "/"),
			SiteURL: strings.TrimRight(getEnv("NOTIFY_SITE_URL", "http://localhost:3000"), "/"),
		},
		Analytics: AnalyticsConfig{
			EventBackend: getEnv("NOTIFY_EVENTS_BACKEND", "postgres"),
			CacheTTL:     getDurationEnv("NOTIFY_ANALYTICS_CACHE_TTL", time.Minute),
			DefaultDays:  getIntEnv("NOTIFY_ANALYTICS_DEFAULT_DAYS", 30),
			MaxDays:      getIntEnv("NOTIFY_ANALYTICS_MAX_DAYS", 180),
		},
		CORS: CORSConfig{
			AllowedOrigins: getSliceEnv("NOTIFY_CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.AdminAPIKey == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("NOTIFY_ADMIN_API_KEY or NOTIFY_JWT_SECRET is required when auth is enabled")
	}
	switch c.Analytics.EventBackend {
	case "postgres", "clickhouse", "memory":
	default:
		return fmt.Errorf("unknown NOTIFY_EVENTS_BACKEND %q", c.Analytics.EventBackend)
	}
	if c.Tracking.APIBase == "" {
		return fmt.Errorf("NOTIFY_API_BASE is required")
	}
	if c.Analytics.DefaultDays < 1 || c.Analytics.MaxDays < c.Analytics.DefaultDays {
		return fmt.Errorf("invalid analytics window: default=%d max=%d", c.Analytics.DefaultDays, c.Analytics.MaxDays)
	}
	if c.RateLimit.CleanupEvery <= 0 {
		return fmt.Errorf("NOTIFY_RATE_LIMIT_CLEANUP must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
