package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Token    TokenConfig
	Password PasswordConfig
	CORS     CORSConfig
	Log      LogConfig
	History  HistoryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// KeyPrefix namespaces session-index keys so the instance can share a
	// redis database with other services.
	KeyPrefix string
}

// TokenConfig configures the RS256 token issuer. Keys may be supplied either
// as PEM file paths or inline PEM blobs; inline wins when both are set. When
// neither is set a throwaway pair is generated, which is only acceptable in
// development (restarting the process invalidates every outstanding token).
type TokenConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	PrivateKeyPEM  string
	PublicKeyPEM   string
	Issuer         string
	Audience       []string
	AccessExpiry   time.Duration
	RefreshExpiry  time.Duration
}

// PasswordConfig carries the deployment-wide pepper mixed into every hash.
type PasswordConfig struct {
	Pepper string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// HistoryConfig tunes the asynchronous account-history writer.
type HistoryConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.Token = TokenConfig{
		PrivateKeyPath: v.GetString("TOKEN_PRIVATE_KEY_PATH"),
		PublicKeyPath:  v.GetString("TOKEN_PUBLIC_KEY_PATH"),
		PrivateKeyPEM:  v.GetString("TOKEN_PRIVATE_KEY_PEM"),
		PublicKeyPEM:   v.GetString("TOKEN_PUBLIC_KEY_PEM"),
		Issuer:         v.GetString("TOKEN_ISSUER"),
		Audience:       splitAndTrim(v.GetString("TOKEN_AUDIENCE")),
		AccessExpiry:   parseDuration(v.GetString("ACCESS_TOKEN_EXPIRATION"), 15*time.Minute),
		RefreshExpiry:  parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.Password = PasswordConfig{
		Pepper: v.GetString("PASSWORD_PEPPER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.History = HistoryConfig{
		Workers:    v.GetInt("HISTORY_WORKERS"),
		BufferSize: v.GetInt("HISTORY_BUFFER_SIZE"),
		MaxRetries: v.GetInt("HISTORY_MAX_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "auth_database")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "auth:sessions:")

	v.SetDefault("TOKEN_PRIVATE_KEY_PATH", "")
	v.SetDefault("TOKEN_PUBLIC_KEY_PATH", "")
	v.SetDefault("TOKEN_PRIVATE_KEY_PEM", "")
	v.SetDefault("TOKEN_PUBLIC_KEY_PEM", "")
	v.SetDefault("TOKEN_ISSUER", "kinoplex-auth")
	v.SetDefault("TOKEN_AUDIENCE", "")
	v.SetDefault("ACCESS_TOKEN_EXPIRATION", "15m")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("PASSWORD_PEPPER", "dev_pepper")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("HISTORY_WORKERS", 1)
	v.SetDefault("HISTORY_BUFFER_SIZE", 64)
	v.SetDefault("HISTORY_MAX_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
