// Package config loads process-wide configuration from an optional YAML file
// and environment variables. Configuration is read once at process start and
// is read-only afterwards.
//
// Secrets are not validated eagerly: a missing secret is reported by Require
// on first use, so a misconfigured deployment still answers health checks
// and logs a precise error when the value is actually needed.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrMissing is returned by Require when a required value is empty.
var ErrMissing = errors.New("required configuration value missing")

// Backend names accepted for TRANSCRIBE_BACKEND and ANALYSIS_BACKEND.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// Delivery modes accepted for DELIVERY_MODE.
const (
	// DeliveryAwait holds the HTTP response until every event pipeline has
	// settled. Required on Lambda, where execution freezes after the response.
	DeliveryAwait = "await"
	// DeliveryDetach responds once every acknowledgment reply was attempted
	// and lets the slow tail finish in the background.
	DeliveryDetach = "detach"
)

// Config holds all application configuration.
type Config struct {
	LINE     LINEConfig     `yaml:"line"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
}

// LINEConfig holds Messaging API credentials and endpoints.
type LINEConfig struct {
	ChannelSecret      string        `yaml:"channel_secret" envconfig:"LINE_CHANNEL_SECRET"`
	ChannelAccessToken string        `yaml:"channel_access_token" envconfig:"LINE_CHANNEL_ACCESS_TOKEN"`
	APIBaseURL         string        `yaml:"api_base_url" envconfig:"LINE_API_BASE_URL" default:"https://api.line.me"`
	DataBaseURL        string        `yaml:"data_base_url" envconfig:"LINE_DATA_BASE_URL" default:"https://api-data.line.me"`
	Timeout            time.Duration `yaml:"timeout" envconfig:"LINE_TIMEOUT" default:"30s"`
}

// OpenAIConfig holds the OpenAI-compatible backend settings.
type OpenAIConfig struct {
	APIKey          string        `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	BaseURL         string        `yaml:"base_url" envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	TranscribeModel string        `yaml:"transcribe_model" envconfig:"OPENAI_TRANSCRIBE_MODEL" default:"gpt-4o-transcribe"`
	ChatModel       string        `yaml:"chat_model" envconfig:"OPENAI_CHAT_MODEL" default:"gpt-5.1-mini"`
	Timeout         time.Duration `yaml:"timeout" envconfig:"OPENAI_TIMEOUT" default:"120s"`
}

// GeminiConfig holds the Gemini backend settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key" envconfig:"GEMINI_API_KEY"`
	Model  string `yaml:"model" envconfig:"GEMINI_MODEL" default:"gemini-3-flash-preview"`
}

// PipelineConfig controls backend selection and pipeline behavior.
type PipelineConfig struct {
	TranscribeBackend string        `yaml:"transcribe_backend" envconfig:"TRANSCRIBE_BACKEND" default:"openai"`
	AnalysisBackend   string        `yaml:"analysis_backend" envconfig:"ANALYSIS_BACKEND" default:"openai"`
	Language          string        `yaml:"language" envconfig:"TRANSCRIBE_LANGUAGE" default:"zh"`
	Temperature       float32       `yaml:"temperature" envconfig:"ANALYSIS_TEMPERATURE" default:"0.7"`
	AnalysisTimeout   time.Duration `yaml:"analysis_timeout" envconfig:"ANALYSIS_TIMEOUT" default:"60s"`
	DeliveryMode      string        `yaml:"delivery_mode" envconfig:"DELIVERY_MODE" default:"await"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"2m"`
	MediaMaxBytes     int64         `yaml:"media_max_bytes" envconfig:"MEDIA_MAX_BYTES" default:"0"`
}

// ServerConfig holds the local HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Pipeline.TranscribeBackend = strings.ToLower(strings.TrimSpace(c.Pipeline.TranscribeBackend))
	c.Pipeline.AnalysisBackend = strings.ToLower(strings.TrimSpace(c.Pipeline.AnalysisBackend))
	c.Pipeline.DeliveryMode = strings.ToLower(strings.TrimSpace(c.Pipeline.DeliveryMode))
	c.LINE.APIBaseURL = strings.TrimSuffix(c.LINE.APIBaseURL, "/")
	c.LINE.DataBaseURL = strings.TrimSuffix(c.LINE.DataBaseURL, "/")
	c.OpenAI.BaseURL = strings.TrimSuffix(c.OpenAI.BaseURL, "/")
}

// Validate checks the enumerated settings. Secrets are checked lazily by Require.
func (c *Config) Validate() error {
	if !validBackend(c.Pipeline.TranscribeBackend) {
		return fmt.Errorf("TRANSCRIBE_BACKEND must be %q or %q, got %q",
			BackendOpenAI, BackendGemini, c.Pipeline.TranscribeBackend)
	}
	if !validBackend(c.Pipeline.AnalysisBackend) {
		return fmt.Errorf("ANALYSIS_BACKEND must be %q or %q, got %q",
			BackendOpenAI, BackendGemini, c.Pipeline.AnalysisBackend)
	}
	switch c.Pipeline.DeliveryMode {
	case DeliveryAwait, DeliveryDetach:
	default:
		return fmt.Errorf("DELIVERY_MODE must be %q or %q, got %q",
			DeliveryAwait, DeliveryDetach, c.Pipeline.DeliveryMode)
	}
	if c.Pipeline.MediaMaxBytes < 0 {
		return fmt.Errorf("MEDIA_MAX_BYTES must not be negative")
	}
	return nil
}

// Detach reports whether the slow pipeline tail may outlive the HTTP response.
func (c *Config) Detach() bool {
	return c.Pipeline.DeliveryMode == DeliveryDetach
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Require returns value, or an error wrapping ErrMissing that names the
// setting when value is empty.
func Require(name, value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s: %w", name, ErrMissing)
	}
	return value, nil
}

func validBackend(name string) bool {
	return name == BackendOpenAI || name == BackendGemini
}
