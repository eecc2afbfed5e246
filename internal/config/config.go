package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const minAuthSecretLen = 32

// Config carries every runtime knob, loaded from environment variables with
// development fallbacks. Production deployments must set AUTH_SECRET and
// usually DATABASE_URL.
type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AuthSecret    string
	TokenTTL      time.Duration
	SummaryTTL    time.Duration
	AllowedOrigin string
}

func Load() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		AuthSecret:    os.Getenv("AUTH_SECRET"),
		TokenTTL:      getEnvDuration("TOKEN_TTL", 12*time.Hour),
		SummaryTTL:    getEnvDuration("SUMMARY_CACHE_TTL", 5*time.Minute),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
	}
}

// ValidateSecurity rejects configurations that would run with a guessable
// signing key. Called from main before the server starts.
func (c Config) ValidateSecurity() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if len(c.AuthSecret) < minAuthSecretLen {
		return fmt.Errorf("AUTH_SECRET must be at least %d characters, got %d", minAuthSecretLen, len(c.AuthSecret))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
