// Package config loads runtime configuration from environment variables
// and the governance profile from YAML. Environment variables cover
// deployment wiring (paths, endpoints, backends); the profile covers
// policy parameters that operators version-control alongside the code.
package config

import "os"

// Config holds deployment configuration.
type Config struct {
	LogLevel     string
	DataDir      string // SQLite stores and signing key live here
	ArtifactsDir string // Per-execution evidence written by adapters
	OutDir       string // Audit bundle export target
	ProfilePath  string // Governance profile YAML; empty means defaults
	RedisAddr    string // Empty means in-memory write limiter
	SinkBackend  string // "", "fs", "s3", "gcs"
	SinkDir      string
	SinkBucket   string
	SinkRegion   string
	SinkPrefix   string
	OTLPEndpoint string
	OTelEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		LogLevel:     getenv("SENTINEL_LOG_LEVEL", "INFO"),
		DataDir:      getenv("SENTINEL_DATA_DIR", "data"),
		ArtifactsDir: getenv("SENTINEL_ARTIFACTS_DIR", "artifacts"),
		OutDir:       getenv("SENTINEL_OUT_DIR", "out"),
		ProfilePath:  os.Getenv("SENTINEL_PROFILE"),
		RedisAddr:    os.Getenv("SENTINEL_REDIS_ADDR"),
		SinkBackend:  os.Getenv("SENTINEL_SINK_BACKEND"),
		SinkDir:      getenv("SENTINEL_SINK_DIR", "offsite"),
		SinkBucket:   os.Getenv("SENTINEL_SINK_BUCKET"),
		SinkRegion:   os.Getenv("SENTINEL_SINK_REGION"),
		SinkPrefix:   os.Getenv("SENTINEL_SINK_PREFIX"),
		OTLPEndpoint: getenv("SENTINEL_OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:  os.Getenv("SENTINEL_OTEL_ENABLED") == "true",
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
