package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Crawl    CrawlConfig
	Session  SessionConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type CrawlConfig struct {
	Sites          []string
	StoreID        string
	SeedFile       string
	MathemBuildID  string
	Concurrency    int
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	RequestTimeout time.Duration
	BatchSize      int
	UserAgent      string
}

type SessionConfig struct {
	TokenTTL     time.Duration
	SolveTimeout time.Duration
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Crawl: CrawlConfig{
			Sites:          getStringSliceOrDefault("CRAWL_SITES", []string{"ica"}),
			StoreID:        getEnvOrDefault("CRAWL_STORE_ID", "1003380"),
			SeedFile:       getEnvOrDefault("CRAWL_SEED_FILE", ""),
			MathemBuildID:  getEnvOrDefault("CRAWL_MATHEM_BUILD_ID", "latest"),
			Concurrency:    getIntOrDefault("CRAWL_CONCURRENCY", 4),
			MinDelay:       getDurationOrDefault("CRAWL_MIN_DELAY", 500*time.Millisecond),
			MaxDelay:       getDurationOrDefault("CRAWL_MAX_DELAY", 2*time.Second),
			MaxRetries:     getIntOrDefault("CRAWL_MAX_RETRIES", 3),
			RequestTimeout: getDurationOrDefault("CRAWL_REQUEST_TIMEOUT", 30*time.Second),
			BatchSize:      getIntOrDefault("CRAWL_BATCH_SIZE", 50),
			UserAgent:      getEnvOrDefault("CRAWL_USER_AGENT", defaultUserAgent),
		},
		Session: SessionConfig{
			TokenTTL:     getDurationOrDefault("SESSION_TOKEN_TTL", 240*time.Second),
			SolveTimeout: getDurationOrDefault("SESSION_SOLVE_TIMEOUT", 60*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "sv-SE,sv;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Stockholm"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "sv-SE"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "matval"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:catalog_products"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate rejects configurations the crawl cannot start with. These are the
// only errors allowed to terminate a run before it begins.
func (c *Config) Validate() error {
	if len(c.Crawl.Sites) == 0 {
		return fmt.Errorf("CRAWL_SITES must name at least one site")
	}

	if c.Crawl.Concurrency < 1 {
		return fmt.Errorf("CRAWL_CONCURRENCY must be at least 1")
	}

	if c.Crawl.MinDelay > c.Crawl.MaxDelay {
		return fmt.Errorf("CRAWL_MIN_DELAY cannot be greater than CRAWL_MAX_DELAY")
	}

	if c.Crawl.MaxRetries < 0 {
		return fmt.Errorf("CRAWL_MAX_RETRIES cannot be negative")
	}

	if c.Crawl.BatchSize < 1 {
		return fmt.Errorf("CRAWL_BATCH_SIZE must be at least 1")
	}

	if c.Session.TokenTTL <= 0 {
		return fmt.Errorf("SESSION_TOKEN_TTL must be positive")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
