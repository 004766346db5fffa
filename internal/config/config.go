// Package config loads the bootstrap configuration: everything the process
// needs before the database is open. Behavior knobs (lifecycle timing, EPG
// windows, scheduler cadence) live in the settings row and are edited over
// the API; they are not here.
//
// Load order: built-in defaults, then an optional YAML file, then environment
// variables with the EVENTARR_ prefix. A .env file in the working directory
// is folded into the environment first.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search list.
const ConfigPathEnvVar = "EVENTARR_CONFIG"

var defaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/eventarr/config.yaml",
}

// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Data    DataConfig    `koanf:"data"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`
}

type DataConfig struct {
	// Dir holds the SQLite database, XMLTV output, and backups.
	Dir string `koanf:"dir" validate:"required"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

func defaults() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8743},
		Data:    DataConfig{Dir: "./data"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the bootstrap config. Invalid config is fatal by design: the
// caller refuses to start rather than run half-configured.
func Load() (*Config, error) {
	_ = godotenv.Load() // absent .env is fine

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		break
	}

	// EVENTARR_SERVER_PORT=9000 → server.port
	err := k.Load(env.Provider("EVENTARR_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "EVENTARR_")), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func configPaths() []string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return []string{filepath.Clean(p)}
	}
	return defaultConfigPaths
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DBPath is the engine database file inside the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.Data.Dir, "eventarr.db")
}

// EnsureDataDir creates the data dir tree.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.Data.Dir, 0o755)
}
