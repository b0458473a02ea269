package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML file over the defaults and applies environment
// overrides. Tests can override Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)

	// DotEnv lists .env files loaded into the process environment first.
	// Missing files are ignored.
	DotEnv []string
}

// Load reads and parses the configuration file; an empty path uses defaults.
func Load(path string) (*Config, error) {
	return Loader{DotEnv: []string{".env"}}.Load(path)
}

// Load reads, overrides and validates the configuration.
func (l Loader) Load(path string) (*Config, error) {
	for _, file := range l.DotEnv {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (l Loader) applyEnv(c *Config) error {
	overrideString(l.Lookup, "OPENAI_API_KEY", &c.Provider.APIKey)
	overrideString(l.Lookup, "STT_PROVIDER", &c.Provider.Name)
	overrideString(l.Lookup, "STT_LANGUAGE", &c.Provider.Language)
	overrideString(l.Lookup, "STT_SERVER_URL", &c.Client.ServerURL)
	overrideString(l.Lookup, "STT_API_KEY", &c.Client.APIKey)
	overrideString(l.Lookup, "STT_MODE", &c.Client.Mode)
	overrideString(l.Lookup, "STT_LOG_LEVEL", &c.Logging.Level)

	if err := overrideInt(l.Lookup, "PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := overrideInt(l.Lookup, "STT_CHUNK_PERIOD_MS", &c.Client.ChunkPeriodMs); err != nil {
		return err
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	if lookup == nil || target == nil {
		return nil
	}
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return &ValidationError{Field: key, Value: value, Reason: "must be an integer"}
	}
	*target = n
	return nil
}
