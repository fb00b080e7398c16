package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// DefaultConfigFile is the config filename probed in the audited project
// directory and the working directory.
const DefaultConfigFile = "depsentry.toml"

// Config is the full engine configuration, loaded from a TOML file with
// environment overrides applied on top.
type Config struct {
	Cache      CacheConfig      `toml:"cache"`
	Resolver   ResolverConfig   `toml:"resolver"`
	LLM        LLMConfig        `toml:"llm"`
	Reputation ReputationConfig `toml:"reputation"`
	Output     OutputConfig     `toml:"output"`

	// GitHubToken is read from the environment for registry operations
	// that need authenticated repository access.
	GitHubToken string `toml:"-"`
}

type CacheConfig struct {
	Enabled bool `toml:"enabled"`
	// Backend selects sqlite (default), memory, redis, or null.
	Backend   string `toml:"backend"`
	Directory string `toml:"directory"`
	RedisAddr string `toml:"redis_addr"`
	MaxSizeMB int64  `toml:"max_size_mb"`
}

type ResolverConfig struct {
	MaxDepth int `toml:"max_depth"`
	Workers  int `toml:"workers"`
}

type LLMConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
}

type ReputationConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type OutputConfig struct {
	Directory string `toml:"directory"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Cache: CacheConfig{
			Enabled:   true,
			Backend:   "sqlite",
			Directory: filepath.Join(home, ".depsentry", "cache"),
			MaxSizeMB: 100,
		},
		Resolver:   ResolverConfig{MaxDepth: 10, Workers: 10},
		LLM:        LLMConfig{Enabled: true},
		Reputation: ReputationConfig{Enabled: true, RequestsPerSecond: 10},
		Output:     OutputConfig{Directory: "."},
	}
}

// LoadConfig reads path (or DefaultConfigFile in the working directory when
// path is empty) and applies environment overrides. A missing file is not
// an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	probe := path
	if probe == "" {
		probe = DefaultConfigFile
	}
	if _, err := toml.DecodeFile(probe, &cfg); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("parse config %s: %w", probe, err)
		}
		if path != "" {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment variables over file values. Variables
// override only when set.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("CACHE_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.Enabled = b
		}
	}
	if v, ok := os.LookupEnv("OUTPUT_DIRECTORY"); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := os.LookupEnv("OPENAI_MODEL"); ok && v != "" {
		c.LLM.Model = v
	}
	if os.Getenv("OPENAI_API_KEY") == "" {
		c.LLM.Enabled = false
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHubToken = v
	} else if v := os.Getenv("GITHUB_PAT_TOKEN"); v != "" {
		c.GitHubToken = v
	}
}
