// Package config carries the runtime configuration shared by every operadora
// command. Precedence: defaults, then config file, then environment; flags
// are applied last by the command layer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface. Every value has a working
// default, so a bare `operadora serve` runs without any file or flags.
type Config struct {
	Port       int    `json:"port" yaml:"port" toml:"port"`
	DataDir    string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	CSVDir     string `json:"csv_dir" yaml:"csv_dir" toml:"csv_dir"`
	PGPort     int    `json:"pg_port" yaml:"pg_port" toml:"pg_port"`
	PGUser     string `json:"pg_user" yaml:"pg_user" toml:"pg_user"`
	PGPassword string `json:"pg_password" yaml:"pg_password" toml:"pg_password"`
	PGDatabase string `json:"pg_database" yaml:"pg_database" toml:"pg_database"`
	RuntimeDir string `json:"runtime_dir" yaml:"runtime_dir" toml:"runtime_dir"`
}

func Default() Config {
	return Config{
		Port:       8080,
		DataDir:    filepath.Join("data", "operadora"),
		CSVDir:     filepath.Join("data", "csv"),
		PGPort:     5433,
		PGUser:     "operadora",
		PGPassword: "operadora",
		PGDatabase: "operadora",
		RuntimeDir: filepath.Join("data", "pg-runtime"),
	}
}

// Addr is the HTTP listen address for the configured port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoadFile merges a TOML, YAML or JSON config file, chosen by extension,
// over c. Keys absent from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("access config file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse TOML config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
	return nil
}

// ApplyEnv overrides c from the environment. Plain PORT is honored for
// platform compatibility; the OPERADORA_ variables win over it.
func (c *Config) ApplyEnv() error {
	if err := envInt("PORT", &c.Port); err != nil {
		return err
	}
	if err := envInt("OPERADORA_PORT", &c.Port); err != nil {
		return err
	}
	envString("OPERADORA_DATA_DIR", &c.DataDir)
	envString("OPERADORA_CSV_DIR", &c.CSVDir)
	if err := envInt("OPERADORA_PG_PORT", &c.PGPort); err != nil {
		return err
	}
	envString("OPERADORA_PG_USER", &c.PGUser)
	envString("OPERADORA_PG_PASSWORD", &c.PGPassword)
	envString("OPERADORA_PG_DATABASE", &c.PGDatabase)
	envString("OPERADORA_RUNTIME_DIR", &c.RuntimeDir)
	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*dst = n
	return nil
}
