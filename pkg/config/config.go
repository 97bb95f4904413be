package config

import (
	"encoding/base64"
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

// Token store backends selectable via TOKEN_STORE_BACKEND.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Env  string
	Port int

	Database DatabaseConfig
	Redis    RedisConfig
	Token    TokenConfig
	Store    StoreConfig
	CORS     CORSConfig
	Log      LogConfig
	Audit    AuditConfig
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
}

// TokenConfig carries the signing material and lifetimes for both token
// kinds: an RSA key pair for short-lived access tokens and a shared secret
// for the longer-lived refresh tokens.
type TokenConfig struct {
	AccessPrivateKey string
	AccessPublicKey  string
	RefreshSecret    string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	RecordTTL        time.Duration
	Issuer           string
}

// StoreConfig selects the refresh-record backend and its eviction cadence.
type StoreConfig struct {
	Backend       string
	SweepInterval time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AuditConfig governs the asynchronous audit trail writer.
type AuditConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Token = TokenConfig{
		AccessPrivateKey: decodeKeyMaterial(v.GetString("ACCESS_TOKEN_PRIVATE_KEY")),
		AccessPublicKey:  decodeKeyMaterial(v.GetString("ACCESS_TOKEN_PUBLIC_KEY")),
		RefreshSecret:    v.GetString("REFRESH_TOKEN_SECRET"),
		AccessTTL:        parseDuration(v.GetString("ACCESS_TOKEN_TTL"), 10*time.Minute),
		RefreshTTL:       parseDuration(v.GetString("REFRESH_TOKEN_TTL"), 24*time.Hour),
		RecordTTL:        parseDuration(v.GetString("REFRESH_RECORD_TTL"), 24*time.Hour),
		Issuer:           v.GetString("TOKEN_ISSUER"),
	}

	cfg.Store = StoreConfig{
		Backend:       strings.ToLower(v.GetString("TOKEN_STORE_BACKEND")),
		SweepInterval: parseDuration(v.GetString("TOKEN_SWEEP_INTERVAL"), time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Audit = AuditConfig{
		Enabled:    v.GetBool("AUDIT_ENABLED"),
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER_SIZE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "auth_service")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ACCESS_TOKEN_PRIVATE_KEY", "")
	v.SetDefault("ACCESS_TOKEN_PUBLIC_KEY", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "dev_refresh_secret")
	v.SetDefault("ACCESS_TOKEN_TTL", "10m")
	v.SetDefault("REFRESH_TOKEN_TTL", "24h")
	v.SetDefault("REFRESH_RECORD_TTL", "24h")
	v.SetDefault("TOKEN_ISSUER", "lillje-consulting-auth-service")

	v.SetDefault("TOKEN_STORE_BACKEND", StorePostgres)
	v.SetDefault("TOKEN_SWEEP_INTERVAL", "1h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("AUDIT_WORKERS", 1)
	v.SetDefault("AUDIT_BUFFER_SIZE", 64)
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

// decodeKeyMaterial accepts PEM either verbatim or base64-wrapped, which is
// how multi-line keys usually survive env-file transport.
func decodeKeyMaterial(raw string) string {
	if raw == "" || strings.Contains(raw, "-----BEGIN") {
		return raw
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return raw
	}
	if strings.Contains(string(decoded), "-----BEGIN") {
		return string(decoded)
	}

	return raw
}
