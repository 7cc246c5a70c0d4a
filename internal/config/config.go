// Package config loads and bootstraps reservoir.toml: process-wide
// immutable configuration built once from file + environment +
// defaults, never reloaded at runtime.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	homedir "github.com/mitchellh/go-homedir"
	"dario.cat/mergo"
)

// Config is the full set of recognised reservoir.toml keys, each
// overridable by the identically-named uppercase environment variable.
type Config struct {
	Neo4jURI      string `toml:"neo4j_uri"`
	Neo4jUser     string `toml:"neo4j_user"`
	Neo4jPassword string `toml:"neo4j_password"`
	ReservoirPort int    `toml:"reservoir_port"`
}

// Defaults returns the built-in defaults.
func Defaults() Config {
	return Config{
		Neo4jURI:      "bolt://localhost:7687",
		Neo4jUser:     "neo4j",
		Neo4jPassword: "password",
		ReservoirPort: 3017,
	}
}

// Dir resolves <user-config>/reservoir, creating it if absent.
func Dir() (string, error) {
	base, err := homedir.Expand("~/.config")
	if err != nil {
		return "", err
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		base = xdg
	}
	dir := filepath.Join(base, "reservoir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Path returns the full path to reservoir.toml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "reservoir.toml"), nil
}

// Load reads reservoir.toml, creating it with defaults on first run,
// then layers environment-variable overrides on top.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults()
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if err := write(path, cfg); err != nil {
			return Config{}, err
		}
	} else {
		fileCfg := Config{}
		if _, err := toml.DecodeFile(path, &fileCfg); err != nil {
			return Config{}, err
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, err
		}
	}

	applyEnvFallbacks(&cfg)
	return cfg, nil
}

func write(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func applyEnvFallbacks(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("NEO4J_URI")); v != "" {
		cfg.Neo4jURI = v
	}
	if v := strings.TrimSpace(os.Getenv("NEO4J_USER")); v != "" {
		cfg.Neo4jUser = v
	}
	if v := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD")); v != "" {
		cfg.Neo4jPassword = v
	}
	if v := strings.TrimSpace(os.Getenv("RESERVOIR_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.ReservoirPort = port
		}
	}
}

// DataDir resolves <data>/reservoir, creating it if absent. Used by
// the local embedding port to cache model weights.
func DataDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		home, herr := homedir.Dir()
		if herr != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "reservoir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// ModelsDir resolves <data>/reservoir/models.
func ModelsDir() (string, error) {
	data, err := DataDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(data, "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Set writes a single key into the on-disk config, for the `config
// --set k=v` CLI command.
func Set(key, value string) error {
	path, err := Path()
	if err != nil {
		return err
	}
	cfg := Defaults()
	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return err
		}
	}
	switch key {
	case "neo4j_uri":
		cfg.Neo4jURI = value
	case "neo4j_user":
		cfg.Neo4jUser = value
	case "neo4j_password":
		cfg.Neo4jPassword = value
	case "reservoir_port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.ReservoirPort = port
	default:
		return os.ErrInvalid
	}
	return write(path, cfg)
}

// Get reads a single key from the effective config (on-disk value or
// default, with environment overrides applied, as Load returns it),
// for the `config --get k` CLI command.
func Get(key string) (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	switch key {
	case "neo4j_uri":
		return cfg.Neo4jURI, nil
	case "neo4j_user":
		return cfg.Neo4jUser, nil
	case "neo4j_password":
		return cfg.Neo4jPassword, nil
	case "reservoir_port":
		return strconv.Itoa(cfg.ReservoirPort), nil
	default:
		return "", os.ErrInvalid
	}
}
