package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig                 `toml:"server"`
	Logging     LoggingConfig                `toml:"logging"`
	LLM         LLMConfig                    `toml:"llm"`
	Claude      ClaudeConfig                 `toml:"claude"`
	Gemini      GeminiConfig                 `toml:"gemini"`
	OpenAI      OpenAIConfig                 `toml:"openai"`
	Analysis    AnalysisConfig               `toml:"analysis"`
	Storage     StorageConfig                `toml:"storage"`
	Session     SessionConfig                `toml:"session"`
	DomainTerms map[string]map[string]string `toml:"domain_terms"` // Extra or overriding domain glossaries, keyed by domain
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Format string   `toml:"format"` // "text" or "json"
	Output []string `toml:"output"` // "stdout", "file"
	File   string   `toml:"file"`   // Log file name inside ./logs (default: dashnote.log)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderOpenAI uses an OpenAI-compatible Responses API
	LLMProviderOpenAI LLMProvider = "openai"
)

// LLMConfig contains settings shared by all providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=claude gemini openai"`
	Timeout         string      `toml:"timeout"`     // Per-invocation timeout for one graph run (default: "3m")
	MaxRetries      int         `toml:"max_retries" validate:"gte=0"` // Retries per collaborator call; 0 means one attempt per graph run (default: 0)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // default: "claude-haiku-4-5"
	MaxTokens   int     `toml:"max_tokens"`  // default: 2048
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between calls (default: "1s")
	Temperature float32 `toml:"temperature"` // default: 0.5
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // default: "gemini-2.5-flash"
	MaxTokens   int     `toml:"max_tokens"`  // default: 2048
	RateLimit   string  `toml:"rate_limit"`  // default: "4s" for 15 RPM
	Temperature float32 `toml:"temperature"` // default: 0.5
}

// OpenAIConfig contains OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`    // Optional gateway URL for compatible endpoints
	Model       string  `toml:"model"`       // default: "gpt-4.1-mini"
	MaxTokens   int     `toml:"max_tokens"`  // default: 2048
	RateLimit   string  `toml:"rate_limit"`  // default: "1s"
	Temperature float32 `toml:"temperature"` // default: 0.5
}

// AnalysisConfig tunes the annotation pipeline
type AnalysisConfig struct {
	ImageMaxBytes        int64   `toml:"image_max_bytes" validate:"gt=0"`                // Images above this are rejected (default: 10MB)
	DataMaxBytes         int64   `toml:"data_max_bytes" validate:"gt=0"`                 // Tabular uploads above this are rejected (default: 20MB)
	PreviewRows          int     `toml:"preview_rows" validate:"min=1,max=100"`          // Rows embedded in outbound requests (default: 100)
	HistoryWindow        int     `toml:"history_window" validate:"min=0"`                // Transcript entries forwarded as context (default: 5)
	SeasonalityThreshold float64 `toml:"seasonality_threshold" validate:"gt=0,lt=1"`     // |lag-1 autocorrelation| above this is seasonal (default: 0.3)
	IQRMultiplier        float64 `toml:"iqr_multiplier" validate:"gt=0"`                 // Tukey fence multiplier (default: 1.5)
	ColumnPolicy         string  `toml:"column_policy" validate:"oneof=strict fallback"`
	ReviewEnabled        bool    `toml:"review_enabled"`                                 // Run the review pass over the draft annotation (default: true)
	NarrativeEnabled     bool    `toml:"narrative_enabled"`                              // Ask the narrative collaborator to interpret the series (default: true)
	DefaultDomain        string  `toml:"default_domain"`                                 // Domain used when inference fails (default: "finance")
	DomainTermsFile      string  `toml:"domain_terms_file"`                              // Optional YAML glossary merged over the built-in terms
	AutoAnnotate         bool    `toml:"auto_annotate"`                                  // Annotate once a session holds both files (default: true)
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Badger     BadgerConfig `toml:"badger"`
	UploadsDir string       `toml:"uploads_dir"` // Session upload directory (default: "./data/uploads")
}

// BadgerConfig contains Badger-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Directory used when in_memory is false
	InMemory       bool   `toml:"in_memory"`        // Keep sessions in memory only (default: true)
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete the on-disk store on startup
}

// SessionConfig controls session expiry
type SessionConfig struct {
	TTL             string `toml:"ttl"`              // Idle sessions older than this are removed (default: "2h")
	CleanupSchedule string `toml:"cleanup_schedule"` // Cron expression for the cleanup job (default: "*/15 * * * *")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
			File:   "dashnote.log",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
			Timeout:         "3m",
			MaxRetries:      0,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   2048,
			RateLimit:   "1s",
			Temperature: 0.5,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			MaxTokens:   2048,
			RateLimit:   "4s",
			Temperature: 0.5,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4.1-mini",
			MaxTokens:   2048,
			RateLimit:   "1s",
			Temperature: 0.5,
		},
		Analysis: AnalysisConfig{
			ImageMaxBytes:        10 * 1024 * 1024,
			DataMaxBytes:         20 * 1024 * 1024,
			PreviewRows:          100,
			HistoryWindow:        5,
			SeasonalityThreshold: 0.3,
			IQRMultiplier:        1.5,
			ColumnPolicy:         "strict",
			ReviewEnabled:        true,
			NarrativeEnabled:     true,
			DefaultDomain:        "finance",
			AutoAnnotate:         true,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:     "./data/sessions",
				InMemory: true,
			},
			UploadsDir: "./data/uploads",
		},
		Session: SessionConfig{
			TTL:             "2h",
			CleanupSchedule: "*/15 * * * *",
		},
	}
}

// LoadFromFile loads configuration from a single file
func LoadFromFile(path string) (*Config, error) {
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with merging.
// Priority: defaults -> file1 -> file2 -> ... -> environment variables
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Later files override earlier ones
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies DASHNOTE_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("DASHNOTE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DASHNOTE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if level := os.Getenv("DASHNOTE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("DASHNOTE_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	if provider := os.Getenv("DASHNOTE_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}
	if timeout := os.Getenv("DASHNOTE_LLM_TIMEOUT"); timeout != "" {
		config.LLM.Timeout = timeout
	}

	if model := os.Getenv("DASHNOTE_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if model := os.Getenv("DASHNOTE_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := os.Getenv("DASHNOTE_OPENAI_MODEL"); model != "" {
		config.OpenAI.Model = model
	}
	if baseURL := os.Getenv("DASHNOTE_OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAI.BaseURL = baseURL
	}

	if policy := os.Getenv("DASHNOTE_COLUMN_POLICY"); policy != "" {
		config.Analysis.ColumnPolicy = policy
	}
	if domain := os.Getenv("DASHNOTE_DEFAULT_DOMAIN"); domain != "" {
		config.Analysis.DefaultDomain = domain
	}
	if review := os.Getenv("DASHNOTE_REVIEW_ENABLED"); review != "" {
		if b, err := strconv.ParseBool(review); err == nil {
			config.Analysis.ReviewEnabled = b
		}
	}

	if uploads := os.Getenv("DASHNOTE_UPLOADS_DIR"); uploads != "" {
		config.Storage.UploadsDir = uploads
	}
	if inMemory := os.Getenv("DASHNOTE_BADGER_IN_MEMORY"); inMemory != "" {
		if b, err := strconv.ParseBool(inMemory); err == nil {
			config.Storage.Badger.InMemory = b
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct tags and the duration and cron fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"llm.timeout":       c.LLM.Timeout,
		"session.ttl":       c.Session.TTL,
		"claude.rate_limit": c.Claude.RateLimit,
		"gemini.rate_limit": c.Gemini.RateLimit,
		"openai.rate_limit": c.OpenAI.RateLimit,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}

	if c.Session.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Session.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid configuration: session.cleanup_schedule: %w", err)
		}
	}
	return nil
}

// ResolveAPIKey resolves an API key with environment variable priority.
// Resolution order: DASHNOTE_* env -> provider env -> config value -> error
func ResolveAPIKey(provider LLMProvider, configFallback string) (string, error) {
	envNames := map[LLMProvider][]string{
		LLMProviderClaude: {"DASHNOTE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		LLMProviderGemini: {"DASHNOTE_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		LLMProviderOpenAI: {"DASHNOTE_OPENAI_API_KEY", "OPENAI_API_KEY", "API_KEY"},
	}

	for _, name := range envNames[provider] {
		if value := os.Getenv(name); value != "" {
			return value, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key for provider '%s' not found in environment or config", provider)
}

// Duration parses a duration string, returning fallback when empty or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
