package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	tempDir, err := os.MkdirTemp("", "voxc-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}

	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultOutputDir, cfg.App.OutputDir)
	assert.Equal(suite.T(), internal.DefaultDatabaseDSN, cfg.App.Database.DSN)
	assert.Equal(suite.T(), internal.DefaultDatabaseType, cfg.App.Database.Type)
	assert.Equal(suite.T(), "libsql", cfg.App.JournalBackend)

	assert.Equal(suite.T(), "openai", cfg.LLM.Provider)
	assert.Equal(suite.T(), internal.DefaultLLMBaseURL, cfg.LLM.BaseURL)
	assert.Equal(suite.T(), internal.DefaultLLMModel, cfg.LLM.Model)
	assert.Equal(suite.T(), float32(1.0), cfg.LLM.Temperature)
	assert.Equal(suite.T(), 2048, cfg.LLM.MaxTokens)
	assert.True(suite.T(), cfg.LLM.JSONResponse)
	assert.Equal(suite.T(), 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(suite.T(), internal.DefaultSystemPrompt, cfg.LLM.SystemPrompt)

	assert.Equal(suite.T(), 30*time.Second, cfg.Transcription.Timeout)
	assert.Equal(suite.T(), time.Second, cfg.Harness.RateLimitRefillRate)
	assert.Equal(suite.T(), internal.DefaultAllowedOrigins, cfg.Server.AllowedOrigins)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
app:
  output_dir: "./out"
  journal_backend: "bolt"
  bolt_path: "./journal.bolt"
llm:
  provider: "openai-go"
  model: "llama-3.2-90b-vision-preview"
  temperature: 0.4
  max_tokens: 1024
harness:
  max_history_turns: 6
server:
  addr: ":9000"
  allowed_origins: ["http://example.test"]
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "./out", cfg.App.OutputDir)
	assert.Equal(suite.T(), "bolt", cfg.App.JournalBackend)
	assert.Equal(suite.T(), "./journal.bolt", cfg.App.BoltPath)
	assert.Equal(suite.T(), "openai-go", cfg.LLM.Provider)
	assert.Equal(suite.T(), "llama-3.2-90b-vision-preview", cfg.LLM.Model)
	assert.InDelta(suite.T(), 0.4, cfg.LLM.Temperature, 0.0001)
	assert.Equal(suite.T(), 1024, cfg.LLM.MaxTokens)
	assert.Equal(suite.T(), 6, cfg.Harness.MaxHistoryTurns)
	assert.Equal(suite.T(), ":9000", cfg.Server.Addr)
	assert.Equal(suite.T(), []string{"http://example.test"}, cfg.Server.AllowedOrigins)
}

func (suite *ConfigTestSuite) TestLoadConfigAPIKeyFromEnvironment() {
	suite.T().Setenv("GROQ_SECRET_ACCESS_KEY", "gsk_test")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "gsk_test", cfg.LLM.APIKey)
}

func (suite *ConfigTestSuite) TestLoadConfigEnvironmentOverride() {
	suite.T().Setenv("LLM_MODEL", "llama-3.3-70b-versatile")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "llama-3.3-70b-versatile", cfg.LLM.Model)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
app:
  output_dir: "./out"
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	err := os.WriteFile(configFile, []byte(malformedContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsUnknownBackend() {
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte("app:\n  journal_backend: \"redis\"\n"), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.ErrorContains(suite.T(), err, "unknown journal backend")
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestAppConfigGlobal() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), cfg.App.OutputDir, AppConfig.App.OutputDir)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{
		App:           ApplicationConfig{JournalBackend: "none"},
		LLM:           LLMConfig{Provider: "openai", MaxTokens: 10, Temperature: 1},
		Transcription: TranscriptionConfig{Provider: "http"},
	}
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Temperature = 3
	assert.Error(t, cfg.Validate())

	cfg.LLM.Temperature = 1
	cfg.LLM.MaxTokens = 0
	assert.Error(t, cfg.Validate())

	cfg.LLM.MaxTokens = 10
	cfg.Transcription.Provider = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		cfg, err := LoadConfig("")
		if err != nil {
			b.Fatal(err)
		}
		_ = cfg
	}
}
