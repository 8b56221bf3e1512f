package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string
	// AllowNegativeStock: whether a REDUCE activity may drive a product's
	// on-hand below zero (backorder-style operation). The guard applies to
	// manual reductions and sale debits alike.
	AllowNegativeStock bool
}

func Load() *Config {
	// .env is a local development convenience; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:        getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=pos port=5432 sslmode=disable"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CORSOrigins:        getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		AllowNegativeStock: getEnvBool("ALLOW_NEGATIVE_STOCK", true),
	}

	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET is not set; refusing to start")
	}
	if len(cfg.JWTSecret) < 32 {
		logrus.Fatal("JWT_SECRET must be at least 32 characters")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		logrus.WithField("key", key).Warn("unparsable boolean env var, using default")
	}
	return def
}
