package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the YAML file. Secrets such as the
// database DSN belong here rather than in the committed config.
const (
	EnvMSSQLDSN   = "HARVESTER_MSSQL_DSN"
	EnvChromePath = "HARVESTER_CHROME_PATH"
	EnvLogLevel   = "HARVESTER_LOG_LEVEL"
)

// LoadEnv reads a dotenv file into the process environment. A missing file
// is not an error. Variables already set are left alone.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not load env file %s: %w", path, err)
	}
	return nil
}

func LoadConfig(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			// Only logged: returning it would mask the decode error.
			log.Printf("Warning: failed to close config file: %v", closeErr)
		}
	}()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return finish(&cfg)
}

// ParseConfig decodes an in-memory YAML document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvMSSQLDSN); v != "" {
		c.Storage.MSSQL.DSN = v
	}
	if v := os.Getenv(EnvChromePath); v != "" {
		c.Rod.ChromePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Observability.LogLevel = v
	}
}
