package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Identity  IdentityConfig
	Bootstrap BootstrapConfig
	Policy    PolicyConfig
	Chat      ChatConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN                string
	MaxConns           int32
	MinConns           int32
	RunMigrations      bool
	ConnMaxIdleSec     int32
	ConnMaxLifeSec     int32
	OperationTimeoutMS int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines parameters of the local identity provider.
type AuthConfig struct {
	JWTSecret              string
	AccessTokenTTLMinutes  int
	RefreshTokenTTLMinutes int
	BcryptCost             int
}

// IdentityConfig selects and configures the external identity provider.
type IdentityConfig struct {
	// Provider is "keycloak" or "local".
	Provider          string
	ServerURL         string
	Realm             string
	ClientID          string
	ClientSecret      string
	AdminClientID     string
	AdminClientSecret string
	Audience          string
	TimeoutSeconds    int
}

// BootstrapConfig is the synthetic identity of the root super-admin.
type BootstrapConfig struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

// PolicyConfig points at an optional authorization table override.
type PolicyConfig struct {
	File string
}

// ChatConfig tunes real-time delivery.
type ChatConfig struct {
	SendBuffer     int
	RedisFanout    bool
	PingIntervalS  int
	DefaultPageLen int
	MaxPageLen     int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "marketplace-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:                os.Getenv("POSTGRES_DSN"),
			MaxConns:           maxConns,
			MinConns:           minConns,
			RunMigrations:      runMigrations,
			ConnMaxIdleSec:     connMaxIdle,
			ConnMaxLifeSec:     connMaxLife,
			OperationTimeoutMS: getEnvAsInt("POSTGRES_OPERATION_TIMEOUT_MS", 5000),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			RefreshTokenTTLMinutes: getEnvAsInt("AUTH_REFRESH_TOKEN_TTL_MINUTES", 1440),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Identity: IdentityConfig{
			Provider:          getEnv("IDENTITY_PROVIDER", "local"),
			ServerURL:         os.Getenv("KEYCLOAK_SERVER_URL"),
			Realm:             getEnv("KEYCLOAK_REALM", "marketplace"),
			ClientID:          os.Getenv("KEYCLOAK_CLIENT_ID"),
			ClientSecret:      os.Getenv("KEYCLOAK_CLIENT_SECRET"),
			AdminClientID:     os.Getenv("KEYCLOAK_ADMIN_CLIENT_ID"),
			AdminClientSecret: os.Getenv("KEYCLOAK_ADMIN_CLIENT_SECRET"),
			Audience:          getEnv("KEYCLOAK_AUDIENCE", "account"),
			TimeoutSeconds:    getEnvAsInt("KEYCLOAK_TIMEOUT_SECONDS", 10),
		},
		Bootstrap: BootstrapConfig{
			Email:    getEnv("ROOT_USER_EMAIL", "admin@marketplace.local"),
			Password: getEnv("ROOT_USER_PASSWORD", "change-me"),
			Name:     getEnv("ROOT_USER_NAME", "Super Admin"),
			Phone:    getEnv("ROOT_USER_PHONE", "9999999999"),
		},
		Policy: PolicyConfig{
			File: os.Getenv("POLICY_FILE"),
		},
		Chat: ChatConfig{
			SendBuffer:     getEnvAsInt("CHAT_SEND_BUFFER", 256),
			RedisFanout:    getEnvAsBool("CHAT_REDIS_FANOUT", true),
			PingIntervalS:  getEnvAsInt("CHAT_PING_INTERVAL_SECONDS", 30),
			DefaultPageLen: getEnvAsInt("CHAT_PAGE_DEFAULT", 50),
			MaxPageLen:     getEnvAsInt("CHAT_PAGE_MAX", 200),
		},
	}

	if cfg.Identity.Provider != "local" && cfg.Identity.Provider != "keycloak" {
		return nil, fmt.Errorf("invalid IDENTITY_PROVIDER %q", cfg.Identity.Provider)
	}
	if cfg.Identity.Provider == "keycloak" && cfg.Identity.ServerURL == "" {
		return nil, fmt.Errorf("KEYCLOAK_SERVER_URL required for keycloak provider")
	}

	return cfg, nil
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

// OperationTimeout bounds a single store call.
func (p PostgresConfig) OperationTimeout() time.Duration {
	if p.OperationTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.OperationTimeoutMS) * time.Millisecond
}

// Timeout bounds a single call to the identity provider.
func (i IdentityConfig) Timeout() time.Duration {
	if i.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// PingInterval is the websocket keepalive period.
func (c ChatConfig) PingInterval() time.Duration {
	if c.PingIntervalS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PingIntervalS) * time.Second
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
