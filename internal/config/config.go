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
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// CIDR ranges whose X-Forwarded-For / X-Real-IP headers are trusted.
	TrustedProxies []string
}

// IsProduction reports whether the server runs with production hardening.
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	CleanupInterval   time.Duration
}

// SecurityConfig carries the thresholds of the security core.
type SecurityConfig struct {
	// Account lockout
	LockoutThreshold int
	LockoutDuration  time.Duration

	// Activation codes
	ActivationCodeTTL         time.Duration
	ActivationCodeMaxAttempts int
	ActivationResendCooldown  time.Duration

	// Tiered request limiting
	RateLimitWindow        time.Duration
	AnonymousLimit         int
	AuthenticatedLimit     int
	StaffLimit             int
	RateLimitSaturation    int
	CounterBackend         string
	LoginFailureLimit      int
	LoginFailureWindow     time.Duration
	RegisterFailureLimit   int
	RegisterFailureWindow  time.Duration
	EndpointRequestsPerMin int

	AuditQueueSize int
}

type EmailConfig struct {
	AWSRegion         string
	FromAddress       string
	ActivationURLBase string
}

// Counter backends
const (
	CounterBackendMemory   = "memory"
	CounterBackendPostgres = "postgres"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Minute),
		},
		Security: SecurityConfig{
			LockoutThreshold:          getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:           getEnvAsDuration("LOCKOUT_DURATION", 30*time.Minute),
			ActivationCodeTTL:         getEnvAsDuration("ACTIVATION_CODE_TTL", 30*time.Minute),
			ActivationCodeMaxAttempts: getEnvAsInt("ACTIVATION_CODE_MAX_ATTEMPTS", 5),
			ActivationResendCooldown:  getEnvAsDuration("ACTIVATION_RESEND_COOLDOWN", 5*time.Minute),
			RateLimitWindow:           getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			AnonymousLimit:            getEnvAsInt("RATE_LIMIT_ANONYMOUS", 100),
			AuthenticatedLimit:        getEnvAsInt("RATE_LIMIT_AUTHENTICATED", 300),
			StaffLimit:                getEnvAsInt("RATE_LIMIT_STAFF", 1000),
			RateLimitSaturation:       getEnvAsInt("RATE_LIMIT_SATURATION_FACTOR", 10),
			CounterBackend:            strings.ToLower(getEnv("COUNTER_BACKEND", CounterBackendPostgres)),
			LoginFailureLimit:         getEnvAsInt("LOGIN_FAILURE_LIMIT", 5),
			LoginFailureWindow:        getEnvAsDuration("LOGIN_FAILURE_WINDOW", 5*time.Minute),
			RegisterFailureLimit:      getEnvAsInt("REGISTER_FAILURE_LIMIT", 5),
			RegisterFailureWindow:     getEnvAsDuration("REGISTER_FAILURE_WINDOW", 5*time.Minute),
			EndpointRequestsPerMin:    getEnvAsInt("AUTH_ENDPOINT_REQUESTS_PER_MIN", 20),
			AuditQueueSize:            getEnvAsInt("AUDIT_QUEUE_SIZE", 1024),
		},
		Email: EmailConfig{
			AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
			FromAddress:       getEnv("EMAIL_FROM_ADDRESS", "no-reply@bastion.local"),
			ActivationURLBase: getEnv("ACTIVATION_URL_BASE", "http://localhost:8080/activate"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Security.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (s *SecurityConfig) validate() error {
	if s.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be positive")
	}
	if s.ActivationCodeMaxAttempts < 1 {
		return fmt.Errorf("ACTIVATION_CODE_MAX_ATTEMPTS must be positive")
	}
	if s.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if s.AnonymousLimit < 1 || s.AuthenticatedLimit < 1 || s.StaffLimit < 1 {
		return fmt.Errorf("rate limit tiers must be positive")
	}
	switch s.CounterBackend {
	case CounterBackendMemory, CounterBackendPostgres:
	default:
		return fmt.Errorf("COUNTER_BACKEND must be %q or %q (got %q)",
			CounterBackendMemory, CounterBackendPostgres, s.CounterBackend)
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
