// Package config reads server settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
)

type Config struct {
	Port          string
	DatabaseURL   string
	JWTSecret     []byte
	TokenTTL      time.Duration
	EncryptionKey []byte
	RedisURL      string
	ChangeFeed    string
	WorkspaceTTL  time.Duration
	WriteTimeout  time.Duration
	GoogleSecret  []byte
	LogLevel      string
	Env           string
	Origins       []string
}

func (c Config) Development() bool { return c.Env != "production" }

// Load reads the environment. JWT_SECRET is the only required variable.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{
		Port:        getenv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		ChangeFeed:  getenv("CHANGE_FEED", FeedPostgres),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         getenv("APP_ENV", "development"),
		Origins:     splitList(getenv("ALLOWED_ORIGINS", "*")),
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	c.JWTSecret = []byte(secret)
	if s := os.Getenv("FEDERATED_GOOGLE_SECRET"); s != "" {
		c.GoogleSecret = []byte(s)
	}

	if c.ChangeFeed != FeedPostgres && c.ChangeFeed != FeedRedis {
		return Config{}, fmt.Errorf("CHANGE_FEED must be %q or %q, got %q", FeedPostgres, FeedRedis, c.ChangeFeed)
	}
	if c.ChangeFeed == FeedRedis && c.RedisURL == "" {
		return Config{}, errors.New("CHANGE_FEED=redis needs REDIS_URL")
	}

	if raw := os.Getenv("ENCRYPTION_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("ENCRYPTION_KEY: %w", err)
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
		c.EncryptionKey = key
	}

	var err error
	if c.TokenTTL, err = duration("TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if c.WorkspaceTTL, err = duration("WORKSPACE_TTL", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if c.WriteTimeout, err = duration("WRITE_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
