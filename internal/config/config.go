// Package config layers process configuration: built-in defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr  string `yaml:"httpAddr" env:"CLIFFHOP_HTTP_ADDR"`
	ClientDir string `yaml:"clientDir" env:"CLIFFHOP_CLIENT_DIR"`

	// StagePath selects the stage file; empty means the embedded default set.
	StagePath    string `yaml:"stagePath" env:"CLIFFHOP_STAGE_PATH"`
	DatabasePath string `yaml:"databasePath" env:"CLIFFHOP_DB_PATH"`

	KeyframeInterval int `yaml:"keyframeInterval" env:"CLIFFHOP_KEYFRAME_INTERVAL"`
	BufferThreshold  int `yaml:"bufferThreshold" env:"CLIFFHOP_BUFFER_THRESHOLD"`
	CommandCapacity  int `yaml:"commandCapacity" env:"CLIFFHOP_COMMAND_CAPACITY"`
	PerActorLimit    int `yaml:"perActorLimit" env:"CLIFFHOP_PER_ACTOR_LIMIT"`

	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" env:"CLIFFHOP_SESSION_TTL"`
	IdleTimeout   time.Duration `yaml:"idleTimeout" env:"CLIFFHOP_SESSION_IDLE_TIMEOUT"`
	IdleWarning   time.Duration `yaml:"idleWarning" env:"CLIFFHOP_SESSION_IDLE_WARNING"`
	RateLimit     int           `yaml:"rateLimit" env:"CLIFFHOP_SESSION_RATE_LIMIT"`
	VerifiedToken string        `yaml:"verifiedToken" env:"CLIFFHOP_VERIFIED_TOKEN"`
	ProbeInterval time.Duration `yaml:"probeInterval" env:"CLIFFHOP_PROBE_INTERVAL"`
	ProbeTimeout  time.Duration `yaml:"probeTimeout" env:"CLIFFHOP_PROBE_TIMEOUT"`
}

type LogConfig struct {
	Sinks    []string `yaml:"sinks" env:"CLIFFHOP_LOG_SINKS" envSeparator:","`
	JSONPath string   `yaml:"jsonPath" env:"CLIFFHOP_LOG_JSON_PATH"`
	Color    bool     `yaml:"color" env:"CLIFFHOP_LOG_COLOR"`
	Severity string   `yaml:"severity" env:"CLIFFHOP_LOG_SEVERITY"`

	// MuteCategories silences whole event categories below error severity,
	// e.g. "gameplay" to quiet per-player journal noise on busy servers.
	MuteCategories []string `yaml:"muteCategories" env:"CLIFFHOP_LOG_MUTE" envSeparator:","`
}

func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		DatabasePath:     "cliffhop.db",
		KeyframeInterval: 30,
		BufferThreshold:  64 * 1024,
		CommandCapacity:  1024,
		PerActorLimit:    8,
		Session: SessionConfig{
			TTL:           10 * time.Minute,
			IdleTimeout:   60 * time.Second,
			IdleWarning:   45 * time.Second,
			RateLimit:     30,
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  10 * time.Second,
		},
		Log: LogConfig{
			Sinks:    []string{"console"},
			Severity: "info",
		},
	}
}

// Load builds the effective configuration. A missing file path is fine; a
// named file that cannot be read or parsed is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("config: httpAddr is required")
	}
	if c.KeyframeInterval < 0 {
		return fmt.Errorf("config: keyframeInterval must not be negative")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: session ttl must be positive")
	}
	return nil
}
