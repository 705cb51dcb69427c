package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	App           ApplicationConfig   `mapstructure:"app"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Harness       HarnessConfig       `mapstructure:"harness"`
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
	// Embedded-only configuration
	LibSQLDataDir string `mapstructure:"libsql_data_dir"` // Directory for database files
}

// ApplicationConfig stores where artifacts, uploads and the revision journal live.
type ApplicationConfig struct {
	OutputDir      string         `mapstructure:"output_dir"`      // Directory holding the current output slot
	UploadDir      string         `mapstructure:"upload_dir"`      // Directory for recordings and transcripts
	JournalBackend string         `mapstructure:"journal_backend"` // "libsql", "bolt", "none"
	Database       DatabaseConfig `mapstructure:"database"`
	BoltPath       string         `mapstructure:"bolt_path"` // Journal file when journal_backend is "bolt"
}

// LLMConfig stores the completion collaborator configuration.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`      // "openai" (go-openai) or "openai-go"
	BaseURL      string        `mapstructure:"base_url"`      // OpenAI-compatible endpoint
	APIKey       string        `mapstructure:"api_key"`       // Falls back to GROQ_SECRET_ACCESS_KEY / OPENAI_API_KEY
	Model        string        `mapstructure:"model"`         // Model identifier
	Temperature  float32       `mapstructure:"temperature"`   // Sampling temperature
	MaxTokens    int           `mapstructure:"max_tokens"`    // Max output tokens
	JSONResponse bool          `mapstructure:"json_response"` // Ask for a JSON object response
	Timeout      time.Duration `mapstructure:"timeout"`       // Per completion call
	SystemPrompt string        `mapstructure:"system_prompt"` // Pinned system turn
}

// TranscriptionConfig stores the speech-to-text collaborator configuration.
type TranscriptionConfig struct {
	Provider        string        `mapstructure:"provider"` // "http" or "whisper"
	URL             string        `mapstructure:"url"`      // Endpoint for the http provider
	Model           string        `mapstructure:"model"`    // Model for the whisper provider
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheEnabled    bool          `mapstructure:"cache_enabled"`
	CacheCapacity   int           `mapstructure:"cache_capacity"`
	CacheTTLSeconds int           `mapstructure:"cache_ttl_seconds"`
}

// HarnessConfig stores generation engine configurations.
type HarnessConfig struct {
	// History window sent to the model
	MaxHistoryTurns  int `mapstructure:"max_history_turns"`  // 0 means unlimited
	MaxContextTokens int `mapstructure:"max_context_tokens"` // 0 means unlimited

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`     // Enable rate limiting
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`    // Token bucket capacity
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"` // Refill rate

	// Safety and validation
	MaxOutputSize    int      `mapstructure:"max_output_size"`   // Maximum completion size in bytes
	EnableGuardrails bool     `mapstructure:"enable_guardrails"` // Enable output checks
	RedactPatterns   []string `mapstructure:"redact_patterns"`   // Extra patterns masked in error bodies

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"` // Enable structured logging/tracing
}

// ServerConfig stores the HTTP surface configuration.
type ServerConfig struct {
	Addr              string   `mapstructure:"addr"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	MaxUploadBytes    int64    `mapstructure:"max_upload_bytes"`
	ExposeRaw         bool     `mapstructure:"expose_raw"` // Include raw completions in responses
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. llm.api_key becomes LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY", "GROQ_SECRET_ACCESS_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("transcription.url", "TRANSCRIPTION_URL", "COLAB_TRANSCRIPTION_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.output_dir", internal.DefaultOutputDir)
	v.SetDefault("app.upload_dir", internal.DefaultUploadDir)
	v.SetDefault("app.journal_backend", internal.DefaultJournal)
	v.SetDefault("app.database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("app.database.type", internal.DefaultDatabaseType)
	v.SetDefault("app.database.libsql_data_dir", internal.DefaultDatabaseDir)
	v.SetDefault("app.bolt_path", internal.DefaultBoltPath)

	// LLM defaults (Groq, OpenAI-compatible)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", internal.DefaultLLMBaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", internal.DefaultLLMModel)
	v.SetDefault("llm.temperature", 1.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.json_response", true)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.system_prompt", internal.DefaultSystemPrompt)

	v.SetDefault("transcription.provider", "http")
	v.SetDefault("transcription.url", "")
	v.SetDefault("transcription.model", "whisper-large-v3")
	v.SetDefault("transcription.timeout", "30s")
	v.SetDefault("transcription.cache_enabled", true)
	v.SetDefault("transcription.cache_capacity", 128)
	v.SetDefault("transcription.cache_ttl_seconds", 3600) // 1 hour

	v.SetDefault("harness.max_history_turns", 0)
	v.SetDefault("harness.max_context_tokens", 0)
	v.SetDefault("harness.rate_limit_enabled", true)
	v.SetDefault("harness.rate_limit_capacity", 10)
	v.SetDefault("harness.rate_limit_refill_rate", "1s")
	v.SetDefault("harness.max_output_size", 256*1024) // 256KB
	v.SetDefault("harness.enable_guardrails", true)
	v.SetDefault("harness.redact_patterns", []string{})
	v.SetDefault("harness.enable_tracing", true)

	v.SetDefault("server.addr", internal.DefaultServerAddr)
	v.SetDefault("server.allowed_origins", internal.DefaultAllowedOrigins)
	v.SetDefault("server.allowed_extensions", internal.DefaultAllowedExtensions)
	v.SetDefault("server.max_upload_bytes", 25<<20)
	v.SetDefault("server.expose_raw", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects configurations the application cannot start with.
func (c *Config) Validate() error {
	switch c.App.JournalBackend {
	case "libsql", "bolt", "none":
	default:
		return fmt.Errorf("unknown journal backend %q", c.App.JournalBackend)
	}

	switch c.LLM.Provider {
	case "openai", "openai-go":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Transcription.Provider {
	case "http", "whisper":
	default:
		return fmt.Errorf("unknown transcription provider %q", c.Transcription.Provider)
	}

	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}

	return nil
}
