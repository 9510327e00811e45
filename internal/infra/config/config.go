package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/service"
	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	JWTSecretKey string

	StoreBackend  string
	DatabaseURL   string
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	SessionTTL         time.Duration
	ResetPasswordTTL   time.Duration
	EmailValidationTTL time.Duration

	HTTPAddress      string
	GRPCAddress      string
	AllowedOrigins   []string
	AllowCredentials bool
	// ExposeCodes returns single-use codes in HTTP responses. Only for
	// deployments without an out-of-band delivery channel.
	ExposeCodes bool

	LogLevel string
}

// Load reads configuration from the environment and an optional config.json
// in the working directory. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("SESSION_TTL", "1h")
	v.SetDefault("PASSWORD_RESET_DURATION_MINUTES", 30)
	v.SetDefault("EMAIL_RESET_EXPIRATION_MINUTES", 60)
	v.SetDefault("HTTP_ADDRESS", ":8080")
	v.SetDefault("GRPC_ADDRESS", ":50051")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ALLOW_CREDENTIALS", false)
	v.SetDefault("EXPOSE_CODES", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		JWTSecretKey:     v.GetString("JWT_SECRET_KEY"),
		StoreBackend:     strings.ToLower(v.GetString("STORE_BACKEND")),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		RedisAddress:     v.GetString("REDIS_ADDRESS"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		HTTPAddress:      v.GetString("HTTP_ADDRESS"),
		GRPCAddress:      v.GetString("GRPC_ADDRESS"),
		AllowCredentials: v.GetBool("ALLOW_CREDENTIALS"),
		ExposeCodes:      v.GetBool("EXPOSE_CODES"),
		LogLevel:         v.GetString("LOG_LEVEL"),
	}

	var err error
	if cfg.SessionTTL, err = time.ParseDuration(v.GetString("SESSION_TTL")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}
	cfg.ResetPasswordTTL = time.Duration(v.GetInt("PASSWORD_RESET_DURATION_MINUTES")) * time.Minute
	cfg.EmailValidationTTL = time.Duration(v.GetInt("EMAIL_RESET_EXPIRATION_MINUTES")) * time.Minute

	if cfg.AllowedOrigins, err = parseOrigins(v.GetString("ALLOWED_ORIGINS")); err != nil {
		return nil, fmt.Errorf("ALLOWED_ORIGINS: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY is not set")
	}
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
	case BackendRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is not set")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.ResetPasswordTTL <= 0 {
		return fmt.Errorf("PASSWORD_RESET_DURATION_MINUTES must be positive")
	}
	if c.EmailValidationTTL <= 0 {
		return fmt.Errorf("EMAIL_RESET_EXPIRATION_MINUTES must be positive")
	}
	return nil
}

// Settings projects the values the account core needs.
func (c *Config) Settings() service.Settings {
	return service.Settings{
		Secret:             []byte(c.JWTSecretKey),
		SessionTTL:         c.SessionTTL,
		ResetPasswordTTL:   c.ResetPasswordTTL,
		EmailValidationTTL: c.EmailValidationTTL,
	}
}

// parseOrigins accepts either a JSON array or a comma separated list.
func parseOrigins(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out, nil
}
