// Package config centralizes the os.Getenv-with-default pattern into a
// single Load(). No configuration framework is introduced; see DESIGN.md
// for why that stays a deliberate stdlib choice.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting for cmd/server.
type Config struct {
	BindAddr string

	DatabaseURL string

	RedisURL      string
	RedisPassword string

	BlobDir string

	BlobMirrorEnabled bool
	S3Endpoint        string
	S3AccessKey       string
	S3SecretKey       string
	S3Bucket          string
	S3Region          string
	S3UseSSL          bool

	KeystorePath string

	SessionTTLSeconds int

	SearchResultLimit int
	WeakPasswordMinLen int

	LogLevel string
}

// Load reads every setting from the environment, applying inline
// defaults where the environment is silent.
func Load() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg := &Config{
		BindAddr:    getEnvDefault("BIND_ADDR", ":8080"),
		DatabaseURL: databaseURL,

		RedisURL:      getEnvDefault("REDIS_URL", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		BlobDir: getEnvDefault("BLOB_DIR", "./data/blobs"),

		BlobMirrorEnabled: os.Getenv("BLOB_MIRROR_ENABLED") == "true",
		S3Endpoint:        getEnvDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:       getEnvDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       getEnvDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:          getEnvDefault("S3_BUCKET", "byteguard-blobs"),
		S3Region:          getEnvDefault("S3_REGION", "us-east-1"),
		S3UseSSL:          os.Getenv("S3_USE_SSL") == "true",

		KeystorePath: getEnvDefault("KEYSTORE_PATH", "./data/keystore.db"),

		SessionTTLSeconds: getEnvIntDefault("SESSION_TTL_SECONDS", 86400),

		SearchResultLimit:  getEnvIntDefault("SEARCH_RESULT_LIMIT", 20),
		WeakPasswordMinLen: getEnvIntDefault("WEAK_PASSWORD_MIN_LEN", 6),

		LogLevel: getEnvDefault("LOGLEVEL", "info"),
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
