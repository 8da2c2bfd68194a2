package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the paths and seed used by the experiment runner.
type Config struct {
	DataDir  string
	DebugDir string
	Seed     uint64
	Image    string
}

// Load reads the configuration from environment variables.
// It attempts to find a .env file in the current or parent directories;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	_ = loadEnvFile()

	cfg := &Config{
		DataDir:  getenv("GRADFLOW_DATA_DIR", "data"),
		DebugDir: getenv("GRADFLOW_DEBUG_DIR", "debug"),
		Seed:     1,
		Image:    os.Getenv("GRADFLOW_IMAGE"),
	}
	if s := os.Getenv("GRADFLOW_SEED"); s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("GRADFLOW_SEED: %w", err)
		}
		cfg.Seed = seed
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadEnvFile looks up to 5 levels up for a .env file.
func loadEnvFile() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return godotenv.Load(envPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil
}
