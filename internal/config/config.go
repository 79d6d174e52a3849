// Package config loads Protea's supervisor configuration from a TOML
// file plus environment-supplied secrets, mirroring the layering the
// original Python implementation did with config.toml + .env.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Heartbeat holds liveness-detection tuning.
type Heartbeat struct {
	IntervalSec float64 `mapstructure:"heartbeat_interval_sec"`
	TimeoutSec  float64 `mapstructure:"heartbeat_timeout_sec"`
}

// Resources holds the resource-guard thresholds (§6, supplemented by
// ring0/resource_monitor.py).
type Resources struct {
	MaxCPUPercent    float64 `mapstructure:"max_cpu_percent"`
	MaxMemoryPercent float64 `mapstructure:"max_memory_percent"`
	MaxDiskPercent   float64 `mapstructure:"max_disk_percent"`
}

// Evolution holds the deterministic-parameter seed.
type Evolution struct {
	Seed int64 `mapstructure:"seed"`
}

// Worker holds the location of the mutable worker source tree.
type Worker struct {
	SourcePath string `mapstructure:"source_path"`
}

// Fitness holds the fitness-log storage location.
type Fitness struct {
	DBPath string `mapstructure:"db_path"`
}

// LLM holds language-model client configuration. APIKey is always
// sourced from the environment, never from the TOML file.
type LLM struct {
	APIKey           string `mapstructure:"-"`
	Model            string `mapstructure:"llm_model"`
	MaxTokens        int    `mapstructure:"llm_max_tokens"`
	MaxPromptHistory int    `mapstructure:"max_prompt_history"`
}

// Chat holds the operator chat-bot transport configuration. BotToken
// and ChatID are always sourced from the environment.
type Chat struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"-"`
	ChatID   string `mapstructure:"-"`
}

// Portal holds the read-only web portal's bind configuration.
type Portal struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Config is the full set of recognized Protea options (spec §6).
type Config struct {
	Heartbeat Heartbeat
	Resources Resources
	Evolution Evolution
	Worker    Worker
	Fitness   Fitness
	LLM       LLM
	Chat      Chat
	Portal    Portal
}

// Defaults mirror the original's config.toml defaults and the ranges
// named in spec.md §3/§6.
func Defaults() *Config {
	return &Config{
		Heartbeat: Heartbeat{IntervalSec: 5, TimeoutSec: 6},
		Resources: Resources{MaxCPUPercent: 90, MaxMemoryPercent: 90, MaxDiskPercent: 95},
		Evolution: Evolution{Seed: 42},
		Worker:    Worker{SourcePath: "worker"},
		Fitness:   Fitness{DBPath: "data/fitness.db"},
		LLM: LLM{
			Model:            "claude-sonnet-4-5-20250929",
			MaxTokens:        4096,
			MaxPromptHistory: 10,
		},
		Chat:   Chat{Enabled: false},
		Portal: Portal{Enabled: false, Host: "127.0.0.1", Port: 8888},
	}
}

// Load reads configPath (a TOML file) layered over Defaults(), applies
// a sibling ".env" file (if present) into the process environment, and
// overlays the secret environment variables spec §6 names.
//
// A missing configPath is not an error: defaults apply. A malformed
// config file is fatal, per spec §7.
func Load(configPath string) (*Config, error) {
	if configPath != "" {
		loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env"))
	}

	cfg := Defaults()

	v := viper.New()
	v.SetConfigType("toml")
	flat := map[string]interface{}{
		"heartbeat_interval_sec": cfg.Heartbeat.IntervalSec,
		"heartbeat_timeout_sec":  cfg.Heartbeat.TimeoutSec,
		"max_cpu_percent":        cfg.Resources.MaxCPUPercent,
		"max_memory_percent":     cfg.Resources.MaxMemoryPercent,
		"max_disk_percent":       cfg.Resources.MaxDiskPercent,
	}
	for k, val := range flat {
		v.SetDefault(k, val)
	}
	v.SetDefault("evolution.seed", cfg.Evolution.Seed)
	v.SetDefault("worker.source_path", cfg.Worker.SourcePath)
	v.SetDefault("fitness.db_path", cfg.Fitness.DBPath)
	v.SetDefault("evolution_llm.llm_model", cfg.LLM.Model)
	v.SetDefault("evolution_llm.llm_max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("evolution_llm.max_prompt_history", cfg.LLM.MaxPromptHistory)
	v.SetDefault("chat.enabled", cfg.Chat.Enabled)
	v.SetDefault("portal.enabled", cfg.Portal.Enabled)
	v.SetDefault("portal.host", cfg.Portal.Host)
	v.SetDefault("portal.port", cfg.Portal.Port)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: failed to parse %s: %w", configPath, err)
			}
		}
	}

	cfg.Heartbeat.IntervalSec = v.GetFloat64("heartbeat_interval_sec")
	cfg.Heartbeat.TimeoutSec = v.GetFloat64("heartbeat_timeout_sec")
	cfg.Resources.MaxCPUPercent = v.GetFloat64("max_cpu_percent")
	cfg.Resources.MaxMemoryPercent = v.GetFloat64("max_memory_percent")
	cfg.Resources.MaxDiskPercent = v.GetFloat64("max_disk_percent")
	cfg.Evolution.Seed = v.GetInt64("evolution.seed")
	cfg.Worker.SourcePath = v.GetString("worker.source_path")
	cfg.Fitness.DBPath = v.GetString("fitness.db_path")
	cfg.LLM.Model = v.GetString("evolution_llm.llm_model")
	cfg.LLM.MaxTokens = v.GetInt("evolution_llm.llm_max_tokens")
	cfg.LLM.MaxPromptHistory = v.GetInt("evolution_llm.max_prompt_history")
	cfg.Chat.Enabled = v.GetBool("chat.enabled")
	cfg.Portal.Enabled = v.GetBool("portal.enabled")
	cfg.Portal.Host = v.GetString("portal.host")
	cfg.Portal.Port = v.GetInt("portal.port")

	cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Chat.BotToken = os.Getenv("PROTEA_CHAT_BOT_TOKEN")
	cfg.Chat.ChatID = os.Getenv("PROTEA_CHAT_ID")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration that would make the supervisor
// unable to start (spec §7 Fatal taxonomy).
func (c *Config) Validate() error {
	if c.Worker.SourcePath == "" {
		return fmt.Errorf("config: worker.source_path must not be empty")
	}
	if c.Fitness.DBPath == "" {
		return fmt.Errorf("config: fitness.db_path must not be empty")
	}
	if c.Heartbeat.IntervalSec <= 0 || c.Heartbeat.TimeoutSec <= 0 {
		return fmt.Errorf("config: heartbeat interval/timeout must be positive")
	}
	return nil
}

// loadDotEnv parses a simple KEY=VALUE .env file into the process
// environment, mirroring ring1/config._load_dotenv. Existing
// environment variables take precedence (setenv only if unset).
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == value[len(value)-1] && (value[0] == '"' || value[0] == '\'') {
			value = value[1 : len(value)-1]
		}
		if key == "" || value == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}
