// Package config provides configuration for the orchestrator services.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the worker and scheduler.
type Config struct {
	// Database settings
	DatabaseURL    string
	MigrationsPath string

	// Temporal settings
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string

	// Ingestion defaults
	TabularDriver string
	ShapeDriver   string
}

// Load reads configuration from the environment with sensible defaults. A
// .env file in the working directory is honored when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrationsPath: getEnv("PLENARIO_MIGRATIONS_PATH", "./migrations"),

		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "plenario-etl"),

		TabularDriver: getEnv("INGESTION_TABULAR_DRIVER", "static"),
		ShapeDriver:   getEnv("INGESTION_SHAPE_DRIVER", "static"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
