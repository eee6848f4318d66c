// Package config handles loading and hot-reloading configuration from
// YAML, environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// RedisConfig configures the Redis connection shared by the queue,
// cache and result store.
type RedisConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Password string `mapstructure:"password" yaml:"password"`
}

// ProviderConfig configures the AI provider used for vision OCR and
// content analysis. APIKey supports ${ENV_VAR} references.
type ProviderConfig struct {
	Type       string  `mapstructure:"type" yaml:"type"`
	Model      string  `mapstructure:"model" yaml:"model"`
	APIKey     string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string  `mapstructure:"base_url" yaml:"base_url"`
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	TimeoutSec int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries"`
}

// PipelineConfig tunes document extraction.
type PipelineConfig struct {
	MaxPDFPages        int    `mapstructure:"max_pdf_pages" yaml:"max_pdf_pages"`
	TextLayerThreshold int    `mapstructure:"text_layer_threshold" yaml:"text_layer_threshold"`
	RenderDPI          int    `mapstructure:"render_dpi" yaml:"render_dpi"`
	TesseractBin       string `mapstructure:"tesseract_bin" yaml:"tesseract_bin"`
	UploadDir          string `mapstructure:"upload_dir" yaml:"upload_dir"`
}

// QueueConfig tunes job processing.
type QueueConfig struct {
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffBase  time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	Lease        time.Duration `mapstructure:"lease" yaml:"lease"`
	JobTTL       time.Duration `mapstructure:"job_ttl" yaml:"job_ttl"`
	PromoteEvery time.Duration `mapstructure:"promote_every" yaml:"promote_every"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           3000,
			MaxUploadBytes: 10 << 20,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		Provider: ProviderConfig{
			Type:       "gemini",
			Model:      "gemini-1.5-flash",
			APIKey:     "${GEMINI_API_KEY}",
			RateLimit:  2.0,
			TimeoutSec: 60,
			MaxRetries: 2,
		},
		Pipeline: PipelineConfig{
			MaxPDFPages:        10,
			TextLayerThreshold: 50,
			RenderDPI:          144,
			TesseractBin:       "tesseract",
		},
		Queue: QueueConfig{
			Concurrency:  2,
			MaxAttempts:  3,
			BackoffBase:  2 * time.Second,
			Lease:        60 * time.Second,
			JobTTL:       24 * time.Hour,
			PromoteEvery: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Manager owns the loaded configuration and fans out reload
// notifications when the config file changes on disk.
type Manager struct {
	mu       sync.RWMutex
	current  *Config
	watchers []func(*Config)
}

// NewManager loads configuration from defaults, an optional YAML file
// and LUMIO_-prefixed environment variables, in increasing precedence.
// An empty cfgFile searches ./config.yaml and $HOME/.lumio/config.yaml.
func NewManager(cfgFile string) (*Manager, error) {
	def := DefaultConfig()
	for section, value := range map[string]any{
		"server":   def.Server,
		"redis":    def.Redis,
		"provider": def.Provider,
		"pipeline": def.Pipeline,
		"queue":    def.Queue,
		"log":      def.Log,
	} {
		viper.SetDefault(section, value)
	}

	viper.SetEnvPrefix("LUMIO")
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.lumio")
	}

	// A missing file just means defaults plus env.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	m := &Manager{}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) reload() error {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	m.mu.Lock()
	m.current = &cfg
	watchers := append([]func(*Config){}, m.watchers...)
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(&cfg)
	}
	return nil
}

// Get returns the most recently loaded configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a callback invoked after each successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// WatchConfig starts watching the config file for edits. A reload that
// fails to parse keeps the previous configuration.
func (m *Manager) WatchConfig() {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		_ = m.reload()
	})
	viper.WatchConfig()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string. Unset
// variables expand to the empty string.
func ResolveEnvVars(value string) string {
	if !strings.Contains(value, "${") {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// WriteDefault writes the built-in defaults as a commented YAML file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := []byte(`# Lumio configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export GEMINI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
