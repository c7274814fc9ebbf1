// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Email       EmailConfig
	I18n        I18nConfig
	Validation  ValidationConfig
	Cache       CacheConfig
	Scheduler   SchedulerConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig

	// AdminPassword seeds the default administrator on first start.
	AdminPassword string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey       string
	Issuer          string
	AccessTokenTTL  int // in hours
	RefreshTokenTTL int // in hours
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	// LocalStoragePath is used for licence documents when no bucket is set.
	LocalStoragePath string
	PresignTTL       int // in minutes
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
}

type I18nConfig struct {
	DefaultLocale string
	LocalesPath   string
}

type ValidationConfig struct {
	// CompanyHolderID identifies the operating company's own licences.
	CompanyHolderID      string
	LookupTimeoutSeconds int
	ImpactWorkers        int
	// SerializableWrites runs submission in a SERIALIZABLE transaction.
	SerializableWrites bool
	ConflictRetries    int
}

type CacheConfig struct {
	TTLSeconds int
	KeyPrefix  string
}

type SchedulerConfig struct {
	Enabled            bool
	ExpirySweepSpec    string
	StaleOverrideSpec  string
	StaleOverrideHours int
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "substance_compliance"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			Issuer:          getEnv("JWT_ISSUER", "substance-compliance"),
			AccessTokenTTL:  getEnvAsInt("JWT_ACCESS_TTL", 12),
			RefreshTokenTTL: getEnvAsInt("JWT_REFRESH_TTL", 168),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:           getEnv("AWS_REGION", "eu-west-1"),
			AccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:         getEnv("AWS_S3_BUCKET", ""),
			LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage/licences"),
			PresignTTL:       getEnvAsInt("AWS_PRESIGN_TTL", 15),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "compliance@localhost"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
			LocalesPath:   getEnv("LOCALES_PATH", "./internal/i18n/locales"),
		},
		Validation: ValidationConfig{
			CompanyHolderID:      getEnv("COMPANY_HOLDER_ID", ""),
			LookupTimeoutSeconds: getEnvAsInt("VALIDATION_LOOKUP_TIMEOUT", 5),
			ImpactWorkers:        getEnvAsInt("IMPACT_WORKERS", 4),
			SerializableWrites:   getEnvAsBool("VALIDATION_SERIALIZABLE_WRITES", true),
			ConflictRetries:      getEnvAsInt("VALIDATION_CONFLICT_RETRIES", 3),
		},
		Cache: CacheConfig{
			TTLSeconds: getEnvAsInt("CACHE_TTL", 300),
			KeyPrefix:  getEnv("CACHE_KEY_PREFIX", "compliance"),
		},
		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBool("SCHEDULER_ENABLED", true),
			ExpirySweepSpec:    getEnv("SCHEDULER_EXPIRY_SWEEP", "0 5 0 * * *"),
			StaleOverrideSpec:  getEnv("SCHEDULER_STALE_OVERRIDES", "0 0 7 * * MON-FRI"),
			StaleOverrideHours: getEnvAsInt("STALE_OVERRIDE_HOURS", 48),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},

		AdminPassword: getEnv("ADMIN_INITIAL_PASSWORD", ""),
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Validation.CompanyHolderID != "" {
		if _, err := uuid.Parse(c.Validation.CompanyHolderID); err != nil {
			return fmt.Errorf("COMPANY_HOLDER_ID is not a valid uuid: %w", err)
		}
	} else if c.Environment == "production" {
		return fmt.Errorf("company holder id is required in production")
	}

	if c.Validation.ImpactWorkers < 1 {
		return fmt.Errorf("impact workers must be at least 1")
	}

	return nil
}

// CompanyHolder returns the parsed company holder id, or nil when unset.
func (v ValidationConfig) CompanyHolder() *uuid.UUID {
	if v.CompanyHolderID == "" {
		return nil
	}
	id, err := uuid.Parse(v.CompanyHolderID)
	if err != nil {
		return nil
	}
	return &id
}

func (v ValidationConfig) LookupTimeout() time.Duration {
	return time.Duration(v.LookupTimeoutSeconds) * time.Second
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Helper functions
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
