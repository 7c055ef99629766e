package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the ledger server and client.
type Config struct {
	Addr     string
	Env      string
	LogLevel string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// How long the advisory "committed" root stays cached.
	CommitmentTTL time.Duration

	// Optional ed25519 seed used to sign commitments.
	SigningSeed []byte

	// Base URL the client talks to.
	LedgerURL string
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          getEnv("ADDR", "localhost:9090"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:       getEnv("MONGO_DB", "ticket_ledger"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LedgerURL:     getEnv("LEDGER_URL", "http://localhost:9090"),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	if cfg.CommitmentTTL, err = time.ParseDuration(getEnv("COMMITMENT_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("COMMITMENT_TTL: %w", err)
	}

	if seed := os.Getenv("SIGNING_SEED"); seed != "" {
		if cfg.SigningSeed, err = hex.DecodeString(seed); err != nil {
			return nil, fmt.Errorf("SIGNING_SEED: %w", err)
		}
	}

	// Roots handed to external ledgers must be attributable in production.
	if cfg.Env == "production" && len(cfg.SigningSeed) == 0 {
		return nil, fmt.Errorf("SIGNING_SEED is required in production")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
