// Package config loads and validates the omnibot configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for omnibot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Redis     RedisConfig     `json:"redis"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Triage    TriageConfig    `json:"triage"`
	Channels  ChannelsConfig  `json:"channels"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty"`
}

// RedisConfig locates the outbox stream broker.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Stream   string `json:"stream"`
}

type KnowledgeConfig struct {
	DBPath string `json:"dbPath"` // empty disables the sqlite backend
	TopK   int    `json:"topK"`
}

type TriageConfig struct {
	RulesPath     string `json:"rulesPath,omitempty"` // YAML rule table; empty = built-in rules
	MaxConcurrent int    `json:"maxConcurrent"`
	ReplyTimeoutS int    `json:"replyTimeoutSeconds"`
}

type ChannelsConfig struct {
	Web WebConfig `json:"web"`
}

type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// Defaults returns a config with sensible local-development values.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Redis: RedisConfig{
			Addr:   "127.0.0.1:6379",
			Stream: "omni.outbox",
		},
		Knowledge: KnowledgeConfig{
			DBPath: "~/.omnibot/kb.db",
			TopK:   3,
		},
		Triage: TriageConfig{
			MaxConcurrent: 4,
			ReplyTimeoutS: 30,
		},
		Channels: ChannelsConfig{
			Web: WebConfig{
				Enabled: true,
				Host:    "127.0.0.1",
				Port:    8080,
			},
		},
	}
}

// DefaultConfigDir returns ~/.omnibot.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".omnibot"
	}
	return filepath.Join(home, ".omnibot")
}

// DefaultConfigPath returns ~/.omnibot/config.json.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads, env-expands, parses and validates a config file.
func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Knowledge.DBPath = expandPath(cfg.Knowledge.DBPath)
	cfg.Triage.RulesPath = expandPath(cfg.Triage.RulesPath)
	cfg.General.LogFile = expandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Save writes a config as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(expandPath(path), data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints.
func Validate(cfg *Config) error {
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logLevel %q", cfg.General.LogLevel)
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must not be empty")
	}
	if cfg.Redis.Stream == "" {
		return fmt.Errorf("redis.stream must not be empty")
	}
	if cfg.Knowledge.TopK < 0 {
		return fmt.Errorf("knowledge.topK must not be negative")
	}
	if cfg.Triage.MaxConcurrent < 0 {
		return fmt.Errorf("triage.maxConcurrent must not be negative")
	}
	if cfg.Channels.Web.Enabled && (cfg.Channels.Web.Port <= 0 || cfg.Channels.Web.Port > 65535) {
		return fmt.Errorf("channels.web.port %d out of range", cfg.Channels.Web.Port)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset
// or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		if len(groups) >= 3 {
			defaultVal = groups[2]
		}
		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			return defaultVal
		}
		return val
	})
}

// expandPath resolves a leading ~/ against the user home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
