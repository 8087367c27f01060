// Package config provides layered configuration for pmlens.
// Priority (highest to lowest): CLI flags > env vars > project config > user config > system config > defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	pmerrors "github.com/logflow/pmlens/pkg/errors"
	"github.com/logflow/pmlens/pkg/eventlog"
	"github.com/logflow/pmlens/pkg/logging"
	"github.com/logflow/pmlens/pkg/narrative"
	"github.com/logflow/pmlens/pkg/source"
	"github.com/logflow/pmlens/pkg/telemetry"
)

// Config is the root configuration.
type Config struct {
	Version int `yaml:"version"`

	Schema    eventlog.Schema  `yaml:"schema"`
	Analysis  AnalysisConfig   `yaml:"analysis"`
	Narrative NarrativeConfig  `yaml:"narrative"`
	Cache     CacheConfig      `yaml:"cache"`
	Storage   StorageConfig    `yaml:"storage"`
	Server    ServerConfig     `yaml:"server"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Log       logging.Config   `yaml:"log"`
}

// AnalysisConfig controls loading and summarizing.
type AnalysisConfig struct {
	SummaryTopN int    `yaml:"summary_top_n"`
	Decimals    int    `yaml:"decimals"`
	Delimiter   string `yaml:"delimiter"` // "," | ";" | "tab" ...
	Sheet       string `yaml:"sheet"`     // XLSX sheet, empty = first
	Format      string `yaml:"format"`    // csv | xlsx | parquet, empty = detect
	Parallelism int    `yaml:"parallelism"`
}

// NarrativeConfig controls the LLM narrative.
type NarrativeConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// CacheConfig selects the narrative cache.
type CacheConfig struct {
	Backend string                `yaml:"backend"` // none | memory | redis
	TTL     time.Duration         `yaml:"ttl"`
	Redis   narrative.RedisConfig `yaml:"redis"`
}

// StorageConfig configures remote inputs.
type StorageConfig struct {
	S3 source.S3Config `yaml:"s3"`
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port          int           `yaml:"port"`
	Host          string        `yaml:"host"`
	MaxUploadSize string        `yaml:"max_upload_size"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	tel := telemetry.DefaultConfig()

	return &Config{
		Version: 1,
		Schema:  eventlog.DefaultSchema(),
		Analysis: AnalysisConfig{
			SummaryTopN: 15,
			Decimals:    2,
			Delimiter:   ",",
			Parallelism: 4,
		},
		Narrative: NarrativeConfig{
			Enabled:     true,
			Endpoint:    narrative.DefaultEndpoint,
			Model:       narrative.DefaultModel,
			Temperature: narrative.DefaultTemperature,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
			APIKeyEnv:   "OPENAI_API_KEY",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
			Redis:   narrative.DefaultRedisConfig("localhost:6379"),
		},
		Storage: StorageConfig{
			S3: source.DefaultS3Config(),
		},
		Server: ServerConfig{
			Port:          8080,
			Host:          "localhost",
			MaxUploadSize: "100MB",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  5 * time.Minute,
		},
		Telemetry: tel,
		Log:       logging.DefaultConfig(),
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	fail := func(field string, value interface{}, msg string) error {
		return pmerrors.New(pmerrors.CodeConfig, msg).WithContext("field", field).WithContext("value", value)
	}

	for _, col := range c.Schema.Required() {
		if col == "" {
			return fail("schema", c.Schema, "every schema column must be named")
		}
	}
	if c.Analysis.SummaryTopN < 1 {
		return fail("analysis.summary_top_n", c.Analysis.SummaryTopN, "must be at least 1")
	}
	if c.Analysis.Decimals < 0 || c.Analysis.Decimals > 10 {
		return fail("analysis.decimals", c.Analysis.Decimals, "must be between 0 and 10")
	}
	if _, err := c.Analysis.DelimiterByte(); err != nil {
		return fail("analysis.delimiter", c.Analysis.Delimiter, err.Error())
	}
	if c.Analysis.Format != "" && eventlog.ParseFormat(c.Analysis.Format) == eventlog.FormatUnknown {
		return fail("analysis.format", c.Analysis.Format, "must be csv, xlsx or parquet")
	}
	if c.Narrative.Temperature < 0 || c.Narrative.Temperature > 2 {
		return fail("narrative.temperature", c.Narrative.Temperature, "must be between 0 and 2")
	}
	if c.Narrative.MaxRetries < 0 {
		return fail("narrative.max_retries", c.Narrative.MaxRetries, "must not be negative")
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fail("cache.backend", c.Cache.Backend, "must be none, memory or redis")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fail("server.port", c.Server.Port, "must be a valid TCP port")
	}
	if _, err := ParseSize(c.Server.MaxUploadSize); err != nil {
		return fail("server.max_upload_size", c.Server.MaxUploadSize, err.Error())
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fail("telemetry.sampling_ratio", c.Telemetry.SamplingRatio, "must be between 0 and 1")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fail("log.level", c.Log.Level, "must be debug, info, warn or error")
	}
	return nil
}

// DelimiterByte returns the CSV delimiter as a byte.
func (a AnalysisConfig) DelimiterByte() (byte, error) {
	switch strings.ToLower(a.Delimiter) {
	case "", ",":
		return ',', nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	if len(a.Delimiter) != 1 {
		return 0, fmt.Errorf("delimiter must be a single byte, got %q", a.Delimiter)
	}
	return a.Delimiter[0], nil
}

// LoadOptions returns the loader options for this configuration.
func (a AnalysisConfig) LoadOptions() eventlog.Options {
	d, _ := a.DelimiterByte()
	return eventlog.Options{Delimiter: d, Sheet: a.Sheet}
}

// MaxUploadBytes returns Server.MaxUploadSize in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	n, err := ParseSize(s.MaxUploadSize)
	if err != nil {
		return 100 << 20
	}
	return n
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ParseSize parses sizes such as "512KB", "100MB" or "1GB".
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, u := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded

	searchPaths []string
	getenv      func(string) string
}

// NewManager creates a manager searching the standard locations.
func NewManager() *Manager {
	return &Manager{
		config:      Default(),
		searchPaths: defaultPaths(),
		getenv:      os.Getenv,
	}
}

// NewManagerWithPaths creates a manager searching only paths, in order.
func NewManagerWithPaths(paths ...string) *Manager {
	m := NewManager()
	m.searchPaths = paths
	return m
}

// Load loads configuration from all sources in priority order. extra, when
// set, is an explicit file (--config) applied after the search paths and
// must exist.
func (m *Manager) Load(extra string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.searchPaths {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		m.paths = append(m.paths, path)
	}

	if extra != "" {
		if err := m.loadFile(extra); err != nil {
			return err
		}
		m.paths = append(m.paths, extra)
	}

	m.loadEnv()

	return m.config.Validate()
}

// defaultPaths returns config file paths in priority order.
func defaultPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/pmlens/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".pmlens", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".pmlens.yaml"))
	}

	return paths
}

// loadFile decodes a file on top of the current configuration, so only the
// keys present in the file change.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return pmerrors.Wrap(err, pmerrors.CodeConfig, "read config").WithContext("path", path)
	}

	if err := yaml.Unmarshal(data, m.config); err != nil {
		return pmerrors.Wrap(err, pmerrors.CodeConfig, "parse config").WithContext("path", path)
	}
	return nil
}

// loadEnv loads configuration from PMLENS_* environment variables.
func (m *Manager) loadEnv() {
	c := m.config
	str := func(key string, dst *string) {
		if v := m.getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := m.getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v := m.getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("PMLENS_LOG_LEVEL", &c.Log.Level)
	str("PMLENS_LOG_FORMAT", &c.Log.Format)

	num("PMLENS_SUMMARY_TOP_N", &c.Analysis.SummaryTopN)
	str("PMLENS_DELIMITER", &c.Analysis.Delimiter)

	flag("PMLENS_NARRATIVE_ENABLED", &c.Narrative.Enabled)
	str("PMLENS_NARRATIVE_ENDPOINT", &c.Narrative.Endpoint)
	str("PMLENS_NARRATIVE_MODEL", &c.Narrative.Model)

	str("PMLENS_CACHE_BACKEND", &c.Cache.Backend)
	str("PMLENS_REDIS_ADDRESS", &c.Cache.Redis.Address)
	str("PMLENS_REDIS_PASSWORD", &c.Cache.Redis.Password)

	str("PMLENS_S3_REGION", &c.Storage.S3.Region)
	str("PMLENS_S3_ENDPOINT", &c.Storage.S3.Endpoint)
	flag("PMLENS_S3_PATH_STYLE", &c.Storage.S3.UsePathStyle)

	str("PMLENS_HOST", &c.Server.Host)
	num("PMLENS_PORT", &c.Server.Port)

	if v := m.getenv("PMLENS_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

// SearchPaths returns the locations Load looks at.
func (m *Manager) SearchPaths() []string {
	return append([]string(nil), m.searchPaths...)
}

// APIKey returns the narrative API key from the configured env var.
func (m *Manager) APIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config.Narrative.APIKeyEnv == "" {
		return ""
	}
	return m.getenv(m.config.Narrative.APIKeyEnv)
}

// Marshal returns the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}

// Save writes the current config to path, creating parent directories.
func (m *Manager) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
