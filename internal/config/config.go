package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/KaramelBytes/dataloom-cli/internal/ai"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	APIKey     string     `mapstructure:"api_key" yaml:"api_key"`
	FileLimits FileLimits `mapstructure:"file_limits" yaml:"file_limits"`
	Analysis   Analysis   `mapstructure:"analysis" yaml:"analysis"`
	LLM        LLM        `mapstructure:"llm" yaml:"llm"`
	Execution  Execution  `mapstructure:"execution" yaml:"execution"`
	UI         UI         `mapstructure:"ui" yaml:"ui"`
	Server     Server     `mapstructure:"server" yaml:"server"`
	Log        Log        `mapstructure:"log" yaml:"log"`
}

type FileLimits struct {
	MaxFileSizeMB         int `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
	SamplingThresholdRows int `mapstructure:"sampling_threshold_rows" yaml:"sampling_threshold_rows"`
	SamplingRows          int `mapstructure:"sampling_rows" yaml:"sampling_rows"`
}

type Analysis struct {
	NumSuggestedQueries int `mapstructure:"num_suggested_queries" yaml:"num_suggested_queries"`
	// MaxLogEntries caps the interaction log; 0 keeps everything.
	MaxLogEntries int `mapstructure:"max_log_entries" yaml:"max_log_entries"`
}

type LLM struct {
	Provider        string  `mapstructure:"provider" yaml:"provider"`
	ModelName       string  `mapstructure:"model_name" yaml:"model_name"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	BaseURL         string  `mapstructure:"base_url" yaml:"base_url"`
	HTTPTimeoutSec  int     `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	OllamaHost      string  `mapstructure:"ollama_host" yaml:"ollama_host"`
}

type Execution struct {
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MaxSteps   uint64 `mapstructure:"max_steps" yaml:"max_steps"`
	DisableSQL bool   `mapstructure:"disable_sql" yaml:"disable_sql"`
}

type UI struct {
	AppTitle      string `mapstructure:"app_title" yaml:"app_title"`
	SidebarHeader string `mapstructure:"sidebar_header" yaml:"sidebar_header"`
}

type Server struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	MaxSessions int    `mapstructure:"max_sessions" yaml:"max_sessions"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// EnvPrefix namespaces environment overrides (DATALOOM_LLM_MODEL_NAME, ...).
const EnvPrefix = "DATALOOM"

// apiKeyEnv lists the environment names accepted for the API key, in order.
var apiKeyEnv = []string{"DATALOOM_API_KEY", "GEMINI_API_KEY"}

// DotEnvFile is read from the working directory when present.
var DotEnvFile = ".env"

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("file_limits.max_file_size_mb", 200)
	v.SetDefault("file_limits.sampling_threshold_rows", 100000)
	v.SetDefault("file_limits.sampling_rows", 50000)
	v.SetDefault("analysis.num_suggested_queries", 5)
	v.SetDefault("analysis.max_log_entries", 0)
	v.SetDefault("llm.provider", ai.ProviderGemini)
	v.SetDefault("llm.model_name", "gemini-1.5-flash")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_output_tokens", 2048)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.http_timeout_sec", 60)
	v.SetDefault("llm.ollama_host", ai.DefaultOllamaHost)
	v.SetDefault("execution.timeout_sec", 10)
	v.SetDefault("execution.max_steps", 50000000)
	v.SetDefault("execution.disable_sql", false)
	v.SetDefault("ui.app_title", "EDA Agent")
	v.SetDefault("ui.sidebar_header", "Settings")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_sessions", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

// DefaultPath is ~/.dataloom/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".dataloom", "config.yaml"), nil
}

// Load reads configuration. Precedence: env > .env (api key only) > config
// file > defaults. A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	return load(cfgFile, true)
}

// LoadFile reads defaults and the config file only, ignoring the
// environment. Use it before Save so overrides are never persisted.
func LoadFile(cfgFile string) (*Config, error) {
	return load(cfgFile, false)
}

func load(cfgFile string, withEnv bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		if err := v.BindEnv(append([]string{"api_key"}, apiKeyEnv...)...); err != nil {
			return nil, fmt.Errorf("bind env: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if withEnv && !apiKeyInEnv() {
		if key := dotEnvAPIKey(DotEnvFile); key != "" {
			v.Set("api_key", key)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	return &c, nil
}

func apiKeyInEnv() bool {
	for _, name := range apiKeyEnv {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// dotEnvAPIKey reads KEY=VALUE pairs through viper's env format and returns
// the first API key alias found.
func dotEnvAPIKey(path string) string {
	if path == "" {
		return ""
	}
	d := viper.New()
	d.SetConfigFile(path)
	d.SetConfigType("env")
	if err := d.ReadInConfig(); err != nil {
		return ""
	}
	for _, name := range apiKeyEnv {
		if s := strings.TrimSpace(d.GetString(strings.ToLower(name))); s != "" {
			return s
		}
	}
	return ""
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.FileLimits.MaxFileSizeMB >= 0, "file_limits.max_file_size_mb must be >= 0")
	check(c.FileLimits.SamplingThresholdRows >= 0, "file_limits.sampling_threshold_rows must be >= 0")
	check(c.FileLimits.SamplingRows > 0, "file_limits.sampling_rows must be > 0")
	check(c.Analysis.NumSuggestedQueries >= 0, "analysis.num_suggested_queries must be >= 0")
	check(c.Analysis.MaxLogEntries >= 0, "analysis.max_log_entries must be >= 0")
	check(slices.Contains(ai.Providers(), c.LLM.Provider), "llm.provider %q is not one of %s", c.LLM.Provider, strings.Join(ai.Providers(), ", "))
	check(c.LLM.ModelName != "", "llm.model_name is required")
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be within [0, 2]")
	check(c.LLM.MaxOutputTokens > 0, "llm.max_output_tokens must be > 0")
	check(c.LLM.HTTPTimeoutSec > 0, "llm.http_timeout_sec must be > 0")
	check(c.Execution.TimeoutSec > 0, "execution.timeout_sec must be > 0")
	check(c.Execution.MaxSteps > 0, "execution.max_steps must be > 0")
	check(c.Server.MaxSessions >= 0, "server.max_sessions must be >= 0")
	check(slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)), "log.level %q is not one of debug, info, warn, error", c.Log.Level)
	return errors.Join(errs...)
}

// Set assigns one dotted key from its string form.
func (c *Config) Set(key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("invalid int for %s: %w", key, err)
		}
		return i, nil
	}
	var err error
	switch key {
	case "api_key":
		c.APIKey = val
	case "file_limits.max_file_size_mb":
		c.FileLimits.MaxFileSizeMB, err = atoi()
	case "file_limits.sampling_threshold_rows":
		c.FileLimits.SamplingThresholdRows, err = atoi()
	case "file_limits.sampling_rows":
		c.FileLimits.SamplingRows, err = atoi()
	case "analysis.num_suggested_queries":
		c.Analysis.NumSuggestedQueries, err = atoi()
	case "analysis.max_log_entries":
		c.Analysis.MaxLogEntries, err = atoi()
	case "llm.provider":
		c.LLM.Provider = strings.ToLower(val)
	case "llm.model_name":
		c.LLM.ModelName = val
	case "llm.temperature":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil {
			return fmt.Errorf("invalid float for %s: %w", key, perr)
		}
		c.LLM.Temperature = f
	case "llm.max_output_tokens":
		c.LLM.MaxOutputTokens, err = atoi()
	case "llm.base_url":
		c.LLM.BaseURL = val
	case "llm.http_timeout_sec":
		c.LLM.HTTPTimeoutSec, err = atoi()
	case "llm.ollama_host":
		c.LLM.OllamaHost = val
	case "execution.timeout_sec":
		c.Execution.TimeoutSec, err = atoi()
	case "execution.max_steps":
		n, perr := strconv.ParseUint(val, 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid uint for %s: %w", key, perr)
		}
		c.Execution.MaxSteps = n
	case "execution.disable_sql":
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("invalid bool for %s: %w", key, perr)
		}
		c.Execution.DisableSQL = b
	case "ui.app_title":
		c.UI.AppTitle = val
	case "ui.sidebar_header":
		c.UI.SidebarHeader = val
	case "server.addr":
		c.Server.Addr = val
	case "server.max_sessions":
		c.Server.MaxSessions, err = atoi()
	case "log.level":
		c.Log.Level = strings.ToLower(val)
	case "log.json":
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("invalid bool for %s: %w", key, perr)
		}
		c.Log.JSON = b
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err != nil {
		return err
	}
	return c.Validate()
}

// Save writes the configuration as YAML. An empty cfgFile selects
// DefaultPath, creating its directory if necessary.
func Save(c *Config, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// The file may hold an API key.
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
