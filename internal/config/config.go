// Package config loads runtime settings from an optional YAML file and
// COPILOT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "COPILOT_"
	// FileEnv names the variable holding the YAML config path.
	FileEnv = "COPILOT_CONFIG"
)

type ReasoningBackend string

const (
	BackendHTTP   ReasoningBackend = "http"
	BackendOpenAI ReasoningBackend = "openai"
)

type Config struct {
	StateTable  string `koanf:"state_table"`
	ParamPrefix string `koanf:"param_prefix"`

	CatalogBaseURL    string        `koanf:"catalog_base_url"`
	CatalogCacheTTL   time.Duration `koanf:"catalog_cache_ttl"`
	CatalogCacheKey   string        `koanf:"catalog_cache_key"`
	CatalogTokenParam string        `koanf:"catalog_token_param"`
	RedisAddr         string        `koanf:"redis_addr"`

	ReasoningBackend  ReasoningBackend `koanf:"reasoning_backend"`
	ReasoningBaseURL  string           `koanf:"reasoning_base_url"`
	ReasoningRetries  int              `koanf:"reasoning_retries"`
	OpenAIModel       string           `koanf:"openai_model"`
	OpenAIBaseURL     string           `koanf:"openai_base_url"`
	OpenAITokenParam  string           `koanf:"openai_token_param"`
	OpenAITemperature float32          `koanf:"openai_temperature"`

	LogLevel        string   `koanf:"log_level"`
	CORSOrigins     []string `koanf:"cors_origins"`
	ObjectionCorpus string   `koanf:"objection_corpus"`
	WriterBuffer    int      `koanf:"writer_buffer"`
	ListenAddr      string   `koanf:"listen_addr"`
}

func Default() *Config {
	return &Config{
		CatalogCacheTTL:   5 * time.Minute,
		CatalogTokenParam: "catalog-token",
		ReasoningBackend:  BackendHTTP,
		ReasoningRetries:  2,
		OpenAIModel:       "gpt-4o-mini",
		OpenAITokenParam:  "openai-token",
		OpenAITemperature: 0.4,
		LogLevel:          "info",
		WriterBuffer:      64,
		ListenAddr:        ":8080",
	}
}

// Load starts from Default, overlays the YAML file at path when it exists,
// then COPILOT_* variables (COPILOT_STATE_TABLE -> state_table).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: access %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// FromEnv loads the file named by COPILOT_CONFIG (if any) and validates.
func FromEnv() (*Config, error) {
	cfg, err := Load(os.Getenv(FileEnv))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.StateTable) == "" {
		errs = append(errs, errors.New("state_table is required"))
	}
	if strings.TrimSpace(c.ParamPrefix) == "" {
		errs = append(errs, errors.New("param_prefix is required"))
	}
	if err := requireURL("catalog_base_url", c.CatalogBaseURL); err != nil {
		errs = append(errs, err)
	}
	switch c.ReasoningBackend {
	case BackendHTTP:
		if err := requireURL("reasoning_base_url", c.ReasoningBaseURL); err != nil {
			errs = append(errs, err)
		}
	case BackendOpenAI:
		if strings.TrimSpace(c.OpenAIModel) == "" {
			errs = append(errs, errors.New("openai_model is required for the openai backend"))
		}
		if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
			errs = append(errs, fmt.Errorf("openai_temperature %v must be between 0 and 2", c.OpenAITemperature))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid reasoning_backend %q: must be one of http, openai", c.ReasoningBackend))
	}
	if c.CatalogCacheTTL < 0 {
		errs = append(errs, errors.New("catalog_cache_ttl must be non-negative"))
	}
	if c.ReasoningRetries < 0 {
		errs = append(errs, errors.New("reasoning_retries must be non-negative"))
	}
	if c.WriterBuffer < 0 {
		errs = append(errs, errors.New("writer_buffer must be non-negative"))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("invalid log_level %q", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel returns the configured level, info when unparseable.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParamName joins name onto the parameter prefix.
func (c *Config) ParamName(name string) string {
	return path.Join("/", strings.Trim(c.ParamPrefix, "/"), name)
}

func requireURL(key, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s %q", key, raw)
	}
	return nil
}
