package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the answerd service configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Engine  EngineConfig  `yaml:"engine"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port              int    `yaml:"port"`
	ReadTimeoutSec    int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec   int    `yaml:"write_timeout_sec"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	ShutdownSec       int    `yaml:"shutdown_timeout_sec"`
	// ContentType of the answer body. The legacy server emitted the
	// non-standard "text/json"; set it here if a client depends on that
	// exact value.
	ContentType string `yaml:"content_type"`
}

// EngineConfig holds answering engine settings.
type EngineConfig struct {
	Driver  string              `yaml:"driver"` // process, openai (default: process)
	Process ProcessEngineConfig `yaml:"process"`
	OpenAI  OpenAIEngineConfig  `yaml:"openai"`
}

// ProcessEngineConfig holds settings for the child-process engine driver.
type ProcessEngineConfig struct {
	Command       string   `yaml:"command"`
	Args          []string `yaml:"args"` // fixed leading arguments (classpath flags, main class)
	DataFile      string   `yaml:"data_file"`
	StopwordsFile string   `yaml:"stopwords_file"`
	TimeoutSec    int      `yaml:"timeout_sec"`
	MaxConcurrent int      `yaml:"max_concurrent"`
}

// OpenAIEngineConfig holds settings for the OpenAI-compatible engine driver.
type OpenAIEngineConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.RequestTimeoutSec <= 0 {
		c.HTTP.RequestTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.ContentType == "" {
		c.HTTP.ContentType = "application/json"
	}
	if c.Engine.Driver == "" {
		c.Engine.Driver = "process"
	}
	if c.Engine.Process.Command == "" {
		c.Engine.Process.Command = "java"
	}
	if c.Engine.Process.TimeoutSec <= 0 {
		c.Engine.Process.TimeoutSec = 30
	}
	if c.Engine.Process.MaxConcurrent <= 0 {
		c.Engine.Process.MaxConcurrent = 4
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "answerd:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Engine.Driver {
	case "process":
		if c.Engine.Process.DataFile == "" {
			return fmt.Errorf("engine.process.data_file is required")
		}
		if c.Engine.Process.StopwordsFile == "" {
			return fmt.Errorf("engine.process.stopwords_file is required")
		}
	case "openai":
		if c.Engine.OpenAI.APIKey == "" {
			return fmt.Errorf("engine.openai.api_key is required")
		}
		if c.Engine.OpenAI.Model == "" {
			return fmt.Errorf("engine.openai.model is required")
		}
	default:
		return fmt.Errorf("engine.driver must be \"process\" or \"openai\", got %q", c.Engine.Driver)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
