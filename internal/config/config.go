// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) and an optional YAML persona file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Prefix is prepended to every variable name, e.g. AGT_MAX_TOOL_ROUNDS.
const Prefix = "AGT"

// Config holds all settings for the chat engine.
type Config struct {
	// Conversation
	SystemMessage  string `envconfig:"SYSTEM_MESSAGE" default:"You are a helpful assistant."`
	BotName        string `envconfig:"BOT_NAME" default:"Botto"`
	PersonaFile    string `envconfig:"PERSONA_FILE"`
	StoragePath    string `envconfig:"STORAGE_PATH" default:".agent/conversations.snap"` // empty keeps history in memory only
	Timezone       string `envconfig:"TIMEZONE" default:"UTC"`
	MaxMessages    int    `envconfig:"MAX_MESSAGES" default:"21"`
	MaxToolRounds  int    `envconfig:"MAX_TOOL_ROUNDS" default:"1"`
	InjectDateTime bool   `envconfig:"INJECT_DATETIME" default:"false"`

	// Model endpoint
	Provider          string  `envconfig:"PROVIDER" default:"anthropic"` // anthropic or openai
	Model             string  `envconfig:"MODEL"`
	APIKey            string  `envconfig:"API_KEY"`
	OpenAIBaseURL     string  `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	MaxTokens         int     `envconfig:"MAX_TOKENS" default:"1024"`
	TokenBudget       int     `envconfig:"TOKEN_BUDGET" default:"0"`         // 0 disables input budgeting
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"0"` // 0 disables rate limiting

	// Tools
	WorkspaceDir string `envconfig:"WORKSPACE_DIR" default:"."`

	// Observability
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty   bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsAddr string `envconfig:"METRICS_ADDR"` // e.g. :9090; empty disables /metrics
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv reads configuration from the environment only.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PersonaFile != "" {
		p, err := LoadPersona(cfg.PersonaFile)
		if err != nil {
			return nil, err
		}
		p.Apply(&cfg)
	}
	return &cfg, nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown provider %q (want anthropic or openai)", c.Provider)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if c.MaxMessages < 1 {
		return fmt.Errorf("config: MAX_MESSAGES must be at least 1, got %d", c.MaxMessages)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("config: REQUESTS_PER_SECOND must not be negative")
	}
	return nil
}

// Location returns the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Persona overrides the bot's name and system message.
type Persona struct {
	Name          string `yaml:"name"`
	SystemMessage string `yaml:"system_message"`
}

// LoadPersona parses a YAML persona file.
func LoadPersona(path string) (*Persona, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: persona: %w", err)
	}
	var p Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("config: persona %s: %w", path, err)
	}
	return &p, nil
}

// Apply copies the persona's non-empty fields onto cfg.
func (p *Persona) Apply(cfg *Config) {
	if p.Name != "" {
		cfg.BotName = p.Name
	}
	if s := strings.TrimSpace(p.SystemMessage); s != "" {
		cfg.SystemMessage = s
	}
}
