package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/itkpipe/pipeline"
)

// Config is the optional YAML configuration file. Flags given on the
// command line override it.
type Config struct {
	BaseURL     string   `yaml:"base_url"`
	CacheDir    string   `yaml:"cache_dir"`
	NoCache     bool     `yaml:"no_cache"`
	MemoryLimit string   `yaml:"memory_limit"` // 64mb, 256mb, 1gb, 2gb
	MaxWorkers  int      `yaml:"max_workers"`
	Mounts      []string `yaml:"mounts"`
	LogLevel    string   `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		MemoryLimit: "1gb",
		LogLevel:    "warn",
	}
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MemoryLimit != "" {
		if _, ok := parseMemoryLimit(c.MemoryLimit); !ok {
			return fmt.Errorf("memory_limit %q (expected 64mb, 256mb, 1gb or 2gb)", c.MemoryLimit)
		}
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers %d", c.MaxWorkers)
	}
	return nil
}

// applyFlags overrides c with the persistent flags that were set.
func (c *Config) applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		c.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("cache-dir") {
		c.CacheDir, _ = flags.GetString("cache-dir")
	}
	if flags.Changed("no-cache") {
		c.NoCache, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("memory") {
		c.MemoryLimit, _ = flags.GetString("memory")
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Lookup("mount") != nil && flags.Changed("mount") {
		mounts, _ := flags.GetStringSlice("mount")
		c.Mounts = append(c.Mounts, mounts...)
	}
	if flags.Lookup("max-workers") != nil && flags.Changed("max-workers") {
		c.MaxWorkers, _ = flags.GetInt("max-workers")
	}
}

// cacheOptions translates c into module cache options.
func (c Config) cacheOptions() []pipeline.CacheOption {
	var opts []pipeline.CacheOption
	if !c.NoCache {
		opts = append(opts, pipeline.WithDiskCache(c.CacheDir))
	}
	if pages, ok := parseMemoryLimit(c.MemoryLimit); ok && pages > 0 {
		opts = append(opts, pipeline.WithMemoryLimit(pages))
	}
	return opts
}

func parseMemoryLimit(s string) (uint32, bool) {
	switch strings.ToLower(s) {
	case "":
		return 0, true
	case "64mb":
		return pipeline.MemoryLimit64MB, true
	case "256mb":
		return pipeline.MemoryLimit256MB, true
	case "1gb":
		return pipeline.MemoryLimit1GB, true
	case "2gb":
		return pipeline.MemoryLimit2GB, true
	}
	return 0, false
}
