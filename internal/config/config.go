// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for databases (always absolute)
	HistoryDBPath string // SQLite price history; defaults to <DataDir>/history.db
	LogLevel      string
	Port          int
	DevMode       bool

	SolverMaxIterations int
	SolverTolerance     float64
	FrontierPoints      int
	FrontierWorkers     int
	DefaultRiskFreeRate float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ALLOCATOR_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		HistoryDBPath:       getEnv("ALLOCATOR_HISTORY_DB", filepath.Join(absDataDir, "history.db")),
		Port:                getEnvAsInt("ALLOCATOR_PORT", 8080),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		SolverMaxIterations: getEnvAsInt("SOLVER_MAX_ITERATIONS", 1000),
		SolverTolerance:     getEnvAsFloat("SOLVER_TOLERANCE", 1e-9),
		FrontierPoints:      getEnvAsInt("FRONTIER_POINTS", 50),
		FrontierWorkers:     getEnvAsInt("FRONTIER_WORKERS", defaultWorkers()),
		DefaultRiskFreeRate: getEnvAsFloat("DEFAULT_RISK_FREE_RATE", 0.02),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SolverMaxIterations <= 0 {
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must be positive, got %d", c.SolverMaxIterations)
	}
	if !(c.SolverTolerance > 0) {
		return fmt.Errorf("SOLVER_TOLERANCE must be positive, got %v", c.SolverTolerance)
	}
	if c.FrontierPoints < 10 {
		return fmt.Errorf("FRONTIER_POINTS must be at least 10, got %d", c.FrontierPoints)
	}
	if c.FrontierWorkers <= 0 {
		return fmt.Errorf("FRONTIER_WORKERS must be positive, got %d", c.FrontierWorkers)
	}
	if c.DefaultRiskFreeRate < 0 || c.DefaultRiskFreeRate > 0.20 {
		return fmt.Errorf("DEFAULT_RISK_FREE_RATE must be in [0, 0.20], got %v", c.DefaultRiskFreeRate)
	}
	return nil
}

// defaultWorkers uses the logical CPU count, falling back to 1.
func defaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
