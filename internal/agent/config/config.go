// Package config loads the agent's process configuration from
// environment variables, per spec.md §6 ("Environment variables:
// Agent: SERVER_URL, API_KEY, AGENT_NAME, AGENT_LOCATION,
// CHECK_INTERVAL"). Unlike the teacher's YAML file
// (agent/internal/config/config.go), Storm's agent config is entirely
// environment-driven, so no parser library is wired here — see
// DESIGN.md for why gopkg.in/yaml.v3 has no home in this rewrite.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the agent's runtime configuration.
type Config struct {
	ServerURL      string
	APIKey         string
	AgentName      string
	AgentLocation  string
	CheckInterval  time.Duration // informational only, per spec.md §6
	HeartbeatEvery time.Duration
	PollEvery      time.Duration
}

const (
	defaultAgentLocation  = "Unknown"
	defaultHeartbeatEvery = 30 * time.Second
	defaultPollEvery      = 120 * time.Second
)

// LoadFromEnv reads SERVER_URL, API_KEY, AGENT_NAME, AGENT_LOCATION,
// and CHECK_INTERVAL. SERVER_URL and API_KEY are required.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		ServerURL:      os.Getenv("SERVER_URL"),
		APIKey:         os.Getenv("API_KEY"),
		AgentName:      os.Getenv("AGENT_NAME"),
		AgentLocation:  os.Getenv("AGENT_LOCATION"),
		HeartbeatEvery: defaultHeartbeatEvery,
		PollEvery:      defaultPollEvery,
	}

	if cfg.ServerURL == "" {
		return Config{}, fmt.Errorf("SERVER_URL is required")
	}
	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("API_KEY is required")
	}
	if cfg.AgentName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		cfg.AgentName = hostname
	}
	if cfg.AgentLocation == "" {
		cfg.AgentLocation = defaultAgentLocation
	}
	if raw := os.Getenv("CHECK_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.CheckInterval = d
		}
	}

	return cfg, nil
}
