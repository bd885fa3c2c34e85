package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Token store backend constants
const (
	TokenStoreMemory  = "memory"
	TokenStoreRedis   = "redis"
	TokenStoreRueidis = "rueidis"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Log format constants
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

type Config struct {
	// Server settings
	ServerAddr  string
	BaseURL     string
	Environment string

	// Session settings
	SessionSecret string
	SessionMaxAge int // seconds
	SessionSecure bool

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // Database connection string (DSN or path)

	// Token store
	TokenStore    string // "memory", "redis" or "rueidis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// OAuth2 lifetimes
	AuthCodeTTL       time.Duration // default 300s
	AccessTokenTTL    time.Duration // default 3600s
	RefreshTokenTTL   time.Duration // default 30 days
	RefreshCookieName string

	// Bootstrap data
	DefaultAdminPassword string
	DemoClientID         string
	DemoClientSecret     string
	DemoRedirectURIs     []string

	// Rate limiting
	EnableRateLimit bool
	RateLimitStore  string // "memory" or "redis"
	LoginRateLimit  int    // requests per minute
	TokenRateLimit  int    // requests per minute

	// Metrics
	MetricsEnabled bool
	MetricsToken   string // Bearer token for /metrics; empty leaves it open

	// Logging
	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSize    int // megabytes
	LogMaxBackups int
	LogMaxAge     int // days

	// JWT relay proxy
	ProxyAddr          string
	JWTAccessSecret    string
	JWTRefreshSecret   string
	JWTAccessTTL       time.Duration
	JWTRefreshTTL      time.Duration
	WordPressBaseURL   string
	CORSOrigins        []string
	UpstreamTimeout    time.Duration
	UpstreamMaxRetries int
	UpstreamRetryDelay time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "wpgate.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		BaseURL:       getEnv("BASE_URL", "http://localhost:8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionMaxAge: getEnvInt("SESSION_MAX_AGE", 3600),
		SessionSecure: getEnvBool("SESSION_SECURE", false),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		TokenStore:    getEnv("TOKEN_STORE", TokenStoreMemory),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AuthCodeTTL:       getEnvDuration("AUTH_CODE_TTL", 300*time.Second),
		AccessTokenTTL:    getEnvDuration("ACCESS_TOKEN_TTL", 3600*time.Second),
		RefreshTokenTTL:   getEnvDuration("REFRESH_TOKEN_TTL", 720*time.Hour),
		RefreshCookieName: getEnv("REFRESH_COOKIE_NAME", "wp_oauth2_refresh"),

		DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", ""),
		DemoClientID:         getEnv("DEMO_CLIENT_ID", "wp-react-demo"),
		DemoClientSecret:     getEnv("DEMO_CLIENT_SECRET", ""),
		DemoRedirectURIs: getEnvSlice(
			"DEMO_REDIRECT_URIS",
			[]string{"http://localhost:5173/callback"},
		),

		EnableRateLimit: getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:  getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		LoginRateLimit:  getEnvInt("LOGIN_RATE_LIMIT", 5),
		TokenRateLimit:  getEnvInt("TOKEN_RATE_LIMIT", 20),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", LogFormatConsole),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),

		ProxyAddr:          getEnv("PROXY_ADDR", ":3001"),
		JWTAccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
		JWTRefreshSecret:   getEnv("JWT_REFRESH_SECRET", ""),
		JWTAccessTTL:       getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:      getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		WordPressBaseURL:   getEnv("WP_BASE_URL", "http://localhost:8888"),
		CORSOrigins:        getEnvSlice("CORS_ORIGINS", []string{"http://localhost:5173"}),
		UpstreamTimeout:    getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamMaxRetries: getEnvInt("UPSTREAM_MAX_RETRIES", 2),
		UpstreamRetryDelay: getEnvDuration("UPSTREAM_RETRY_DELAY", 500*time.Millisecond),
	}
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	switch c.TokenStore {
	case TokenStoreMemory:
	case TokenStoreRedis, TokenStoreRueidis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when TOKEN_STORE=%s", c.TokenStore)
		}
	default:
		return fmt.Errorf(
			"invalid TOKEN_STORE value: %q (must be %q, %q or %q)",
			c.TokenStore, TokenStoreMemory, TokenStoreRedis, TokenStoreRueidis,
		)
	}

	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		return fmt.Errorf(
			"invalid RATE_LIMIT_STORE value: %q (must be %q or %q)",
			c.RateLimitStore, RateLimitStoreMemory, RateLimitStoreRedis,
		)
	}

	if c.AuthCodeTTL <= 0 {
		return errors.New("AUTH_CODE_TTL must be positive")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL <= 0 {
		return errors.New("REFRESH_TOKEN_TTL must be positive")
	}

	return nil
}

// ValidateProxy checks the settings needed by the JWT relay proxy.
func (c *Config) ValidateProxy() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.WordPressBaseURL == "" {
		return errors.New("WP_BASE_URL is required")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if parts := splitAndTrim(value, ","); len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
