// Package config loads agent configuration from file, environment and defaults.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Loop      LoopConfig      `koanf:"loop"`
	Planner   PlannerConfig   `koanf:"planner"`
	Store     StoreConfig     `koanf:"store"`
	Memory    MemoryConfig    `koanf:"memory"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type LoopConfig struct {
	Enabled          bool          `koanf:"enabled"`
	TriggerInterval  time.Duration `koanf:"trigger_interval"`
	PlanningInterval time.Duration `koanf:"planning_interval"`
}

type PlannerConfig struct {
	AgentID            string        `koanf:"agent_id"`
	StalenessThreshold time.Duration `koanf:"staleness_threshold"`
}

type StoreConfig struct {
	Backend string `koanf:"backend"` // memory, sqlite
	Path    string `koanf:"path"`    // sqlite database file
}

type MemoryConfig struct {
	Backend string `koanf:"backend"` // memory, file
	Dir     string `koanf:"dir"`     // file backend directory
	Window  int    `koanf:"window"`  // recent messages kept in a snapshot
}

// Global k instance
var k = koanf.New(".")

func Load(path string) (*Config, error) {
	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", "stdout")

	k.Set("loop.enabled", true)
	k.Set("loop.trigger_interval", "10s")
	k.Set("loop.planning_interval", "60s")

	k.Set("planner.agent_id", "eliza")
	k.Set("planner.staleness_threshold", "10m")

	k.Set("store.backend", "memory")
	k.Set("store.path", "eliza.db")

	k.Set("memory.backend", "memory")
	k.Set("memory.dir", "conversations")
	k.Set("memory.window", 20)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (ELIZA_LOOP_ENABLED -> loop.enabled)
	if err := k.Load(env.Provider("ELIZA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "ELIZA_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
