// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for our application
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Security  SecurityConfig
	Ledger    LedgerConfig
	Sweeper   SweeperConfig
	Cache     CacheConfig
	Messaging MessagingConfig
	Report    ReportConfig
	Logging   LoggingConfig
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Driver       string // postgres, mysql or sqlite
	Host         string
	Port         string
	Name         string
	User         string
	Password     string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// JWTConfig contains JWT token configuration. Tokens are issued by the
// platform's identity service; this service only validates them.
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	RateLimitPerMinute int
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	TrustedProxies     []string
}

// LedgerConfig controls append retries and reservation limits
type LedgerConfig struct {
	MaxAppendRetries      int
	RetryBackoff          time.Duration
	DefaultReservationTTL time.Duration
	MaxReservationTTL     time.Duration
	DefaultCurrency       string
	VerifyParallelism     int
}

// SweeperConfig controls the reservation expiry sweep
type SweeperConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	LeaseKey  string
}

// CacheConfig contains read cache configuration
type CacheConfig struct {
	ProjectionTTL time.Duration
}

// MessagingConfig contains RabbitMQ configuration
type MessagingConfig struct {
	RabbitURL     string
	ReserveQueue  string
	FulfillQueue  string
	ReleaseQueue  string
	PrefetchCount int
}

// ReportConfig contains trace report rendering configuration
type ReportConfig struct {
	WkhtmltopdfPath string
	CompanyName     string
	CompanyAddress  string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Inventory Ledger"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
		},
		Server: ServerConfig{
			Port:           getEnv("APP_PORT", "8080"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Name:         getEnv("DB_NAME", "inventory_ledger"),
			User:         getEnv("DB_USER", "ledger_user"),
			Password:     getEnv("DB_PASSWORD", "ledger_password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:   getEnv("DB_SQLITE_PATH", "data/ledger.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-in-production"),
			Issuer:            getEnv("JWT_ISSUER", "identity-service"),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRE", 24*time.Hour),
		},
		Security: SecurityConfig{
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 600),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			CORSAllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
			CORSAllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
		},
		Ledger: LedgerConfig{
			MaxAppendRetries:      getEnvAsInt("LEDGER_MAX_APPEND_RETRIES", 5),
			RetryBackoff:          getEnvAsDuration("LEDGER_RETRY_BACKOFF", 10*time.Millisecond),
			DefaultReservationTTL: getEnvAsDuration("RESERVATION_DEFAULT_TTL", 15*time.Minute),
			MaxReservationTTL:     getEnvAsDuration("RESERVATION_MAX_TTL", 24*time.Hour),
			DefaultCurrency:       strings.ToUpper(getEnv("LEDGER_DEFAULT_CURRENCY", "USD")),
			VerifyParallelism:     getEnvAsInt("LEDGER_VERIFY_PARALLELISM", 4),
		},
		Sweeper: SweeperConfig{
			Enabled:   getEnvAsBool("SWEEPER_ENABLED", true),
			Interval:  getEnvAsDuration("SWEEPER_INTERVAL", 15*time.Second),
			BatchSize: getEnvAsInt("SWEEPER_BATCH_SIZE", 200),
			LeaseKey:  getEnv("SWEEPER_LEASE_KEY", "inventory:sweeper:lease"),
		},
		Cache: CacheConfig{
			ProjectionTTL: getEnvAsDuration("PROJECTION_CACHE_TTL", 30*time.Second),
		},
		Messaging: MessagingConfig{
			RabbitURL:     getEnv("RABBITMQ_URL", ""),
			ReserveQueue:  getEnv("RABBITMQ_RESERVE_QUEUE", "inventory.reserve.request"),
			FulfillQueue:  getEnv("RABBITMQ_FULFILL_QUEUE", "inventory.fulfill.request"),
			ReleaseQueue:  getEnv("RABBITMQ_RELEASE_QUEUE", "inventory.release.request"),
			PrefetchCount: getEnvAsInt("RABBITMQ_PREFETCH", 16),
		},
		Report: ReportConfig{
			WkhtmltopdfPath: getEnv("WKHTMLTOPDF_PATH", ""),
			CompanyName:     getEnv("COMPANY_NAME", "Inventory Ledger"),
			CompanyAddress:  getEnv("COMPANY_ADDRESS", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "debug"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate JWT secret
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	// Validate database configuration
	switch c.Database.Driver {
	case "postgres", "mysql":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("DB_SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	// Validate Redis configuration
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}

	// Validate server port
	if c.Server.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}

	// Validate ledger configuration
	if c.Ledger.MaxAppendRetries < 1 {
		return fmt.Errorf("LEDGER_MAX_APPEND_RETRIES must be at least 1")
	}
	if c.Ledger.DefaultReservationTTL <= 0 || c.Ledger.DefaultReservationTTL > c.Ledger.MaxReservationTTL {
		return fmt.Errorf("RESERVATION_DEFAULT_TTL must be positive and not exceed RESERVATION_MAX_TTL")
	}
	if len(c.Ledger.DefaultCurrency) != 3 {
		return fmt.Errorf("LEDGER_DEFAULT_CURRENCY must be a 3-letter code")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("SWEEPER_INTERVAL must be positive")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns the database connection string for the configured driver
func (c *Config) GetDatabaseDSN() string {
	switch c.Database.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			c.Database.User,
			c.Database.Password,
			c.Database.Host,
			c.Database.Port,
			c.Database.Name,
		)
	case "sqlite":
		return c.Database.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	default:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Database.Host,
			c.Database.Port,
			c.Database.User,
			c.Database.Password,
			c.Database.Name,
			c.Database.SSLMode,
		)
	}
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
