package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"blobd/internal/models"
)

const (
	DefaultAPIURL         = "http://127.0.0.1:7480"
	DefaultDBFileName     = ".blobd.db"
	DefaultDataDirName    = ".blobd-objects"
	DefaultLogLevel       = "info"
	DefaultConfigFileName = ".blobd.toml"
	yamlConfigFileName    = ".blobd.yaml"

	DefaultMaxUploadBytes   int64 = 100 * 1024 * 1024
	DefaultCompressionLevel       = 6

	DefaultCacheSeconds            = 3600
	DefaultInactivityDays          = 30
	DefaultSweepIntervalSeconds    = 60
	DefaultOrphanIntervalSeconds   = 600
	DefaultBackfillIntervalSeconds = 1800
	DefaultSweepBatchSize          = 500

	DefaultRateLimitMaxRequests    = 120
	DefaultRateLimitWindowSeconds  = 60
	DefaultRateLimitCleanupSeconds = 300
	DefaultFetchTimeoutSeconds     = 30

	configDirEnvKey          = "BLOBD_CONFIG_DIR"
	trustProjectConfigEnvKey = "BLOBD_TRUST_PROJECT_CONFIG"
	apiURLEnvKey             = "BLOBD_API_URL"
	dbPathEnvKey             = "BLOBD_DB"
	dataDirEnvKey            = "BLOBD_DATA_DIR"
	logLevelEnvKey           = "BLOBD_LOG_LEVEL"
	compressionEnvKey        = "BLOBD_COMPRESSION"
	maxTotalBytesEnvKey      = "BLOBD_MAX_TOTAL_BYTES"
)

// StorageConfig controls what is written to the content store.
type StorageConfig struct {
	MaxUploadBytes   int64  `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	MaxTotalBytes    int64  `toml:"max_total_bytes" yaml:"max_total_bytes"`
	Compression      string `toml:"compression" yaml:"compression"`
	CompressionLevel int    `toml:"compression_level" yaml:"compression_level"`
}

// RetentionConfig controls cache lifetimes and the background sweeps.
type RetentionConfig struct {
	DefaultCacheSeconds     int `toml:"default_cache_seconds" yaml:"default_cache_seconds"`
	InactivityDays          int `toml:"inactivity_days" yaml:"inactivity_days"`
	SweepIntervalSeconds    int `toml:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
	OrphanIntervalSeconds   int `toml:"orphan_interval_seconds" yaml:"orphan_interval_seconds"`
	BackfillIntervalSeconds int `toml:"backfill_interval_seconds" yaml:"backfill_interval_seconds"`
	BatchSize               int `toml:"batch_size" yaml:"batch_size"`
}

// RateLimitConfig controls the per-client fixed window limiter.
type RateLimitConfig struct {
	MaxRequests            int `toml:"max_requests" yaml:"max_requests"`
	WindowSeconds          int `toml:"window_seconds" yaml:"window_seconds"`
	CleanupIntervalSeconds int `toml:"cleanup_interval_seconds" yaml:"cleanup_interval_seconds"`
}

// FetchConfig controls URL ingestion.
type FetchConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Config defines runtime configuration for blobd.
type Config struct {
	APIURL                   string          `toml:"api_url" yaml:"api_url"`
	DBPath                   string          `toml:"db_path" yaml:"db_path"`
	DataDir                  string          `toml:"data_dir" yaml:"data_dir"`
	LogLevel                 string          `toml:"log_level" yaml:"log_level"`
	Storage                  StorageConfig   `toml:"storage" yaml:"storage"`
	Retention                RetentionConfig `toml:"retention" yaml:"retention"`
	RateLimit                RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Fetch                    FetchConfig     `toml:"fetch" yaml:"fetch"`
	TrustedProjectConfigPath string          `toml:"-" yaml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			MaxUploadBytes:   DefaultMaxUploadBytes,
			Compression:      string(models.CompressionNone),
			CompressionLevel: DefaultCompressionLevel,
		},
		Retention: RetentionConfig{
			DefaultCacheSeconds:     DefaultCacheSeconds,
			InactivityDays:          DefaultInactivityDays,
			SweepIntervalSeconds:    DefaultSweepIntervalSeconds,
			OrphanIntervalSeconds:   DefaultOrphanIntervalSeconds,
			BackfillIntervalSeconds: DefaultBackfillIntervalSeconds,
			BatchSize:               DefaultSweepBatchSize,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:            DefaultRateLimitMaxRequests,
			WindowSeconds:          DefaultRateLimitWindowSeconds,
			CleanupIntervalSeconds: DefaultRateLimitCleanupSeconds,
		},
		Fetch: FetchConfig{TimeoutSeconds: DefaultFetchTimeoutSeconds},
	}
}

// CompressionAlgorithm returns the parsed storage compression.
func (c *Config) CompressionAlgorithm() (models.CompressionAlgorithm, error) {
	return models.ParseCompressionAlgorithm(c.Storage.Compression)
}

// InactivityWindow returns how long an unread object is kept; zero
// disables inactivity expiry.
func (r RetentionConfig) InactivityWindow() time.Duration {
	if r.InactivityDays <= 0 {
		return 0
	}
	return time.Duration(r.InactivityDays) * 24 * time.Hour
}

func (r RetentionConfig) DefaultCacheMaxAge() time.Duration {
	return time.Duration(r.DefaultCacheSeconds) * time.Second
}

func (r RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalSeconds) * time.Second
}

func (r RetentionConfig) OrphanInterval() time.Duration {
	return time.Duration(r.OrphanIntervalSeconds) * time.Second
}

func (r RetentionConfig) BackfillInterval() time.Duration {
	return time.Duration(r.BackfillIntervalSeconds) * time.Second
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

func (r RateLimitConfig) CleanupInterval() time.Duration {
	return time.Duration(r.CleanupIntervalSeconds) * time.Second
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if isYAMLPath(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return false, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		return true, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

// loadDir loads the first config file found in dir, TOML before YAML.
func loadDir(dir string, cfg *Config) (string, error) {
	for _, name := range []string{DefaultConfigFileName, yamlConfigFileName} {
		path := filepath.Join(dir, name)
		loaded, err := loadFileIfExists(path, cfg)
		if err != nil {
			return "", err
		}
		if loaded {
			return path, nil
		}
	}
	return "", nil
}

// pathInDir returns the existing config file in dir, or the default TOML
// path when there is none.
func pathInDir(dir string) (string, error) {
	for _, name := range []string{DefaultConfigFileName, yamlConfigFileName} {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func overrideConfigDir() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return dir, true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"data_dir",
	"log_level",
	"storage.max_upload_bytes",
	"storage.max_total_bytes",
	"storage.compression",
	"storage.compression_level",
	"retention.default_cache_seconds",
	"retention.inactivity_days",
	"retention.sweep_interval_seconds",
	"retention.orphan_interval_seconds",
	"retention.backfill_interval_seconds",
	"retention.batch_size",
	"rate_limit.max_requests",
	"rate_limit.window_seconds",
	"rate_limit.cleanup_interval_seconds",
	"fetch.timeout_seconds",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "data_dir":
		return c.DataDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "storage.max_upload_bytes":
		return strconv.FormatInt(c.Storage.MaxUploadBytes, 10), nil
	case "storage.max_total_bytes":
		return strconv.FormatInt(c.Storage.MaxTotalBytes, 10), nil
	case "storage.compression":
		return c.Storage.Compression, nil
	case "storage.compression_level":
		return strconv.Itoa(c.Storage.CompressionLevel), nil
	case "retention.default_cache_seconds":
		return strconv.Itoa(c.Retention.DefaultCacheSeconds), nil
	case "retention.inactivity_days":
		return strconv.Itoa(c.Retention.InactivityDays), nil
	case "retention.sweep_interval_seconds":
		return strconv.Itoa(c.Retention.SweepIntervalSeconds), nil
	case "retention.orphan_interval_seconds":
		return strconv.Itoa(c.Retention.OrphanIntervalSeconds), nil
	case "retention.backfill_interval_seconds":
		return strconv.Itoa(c.Retention.BackfillIntervalSeconds), nil
	case "retention.batch_size":
		return strconv.Itoa(c.Retention.BatchSize), nil
	case "rate_limit.max_requests":
		return strconv.Itoa(c.RateLimit.MaxRequests), nil
	case "rate_limit.window_seconds":
		return strconv.Itoa(c.RateLimit.WindowSeconds), nil
	case "rate_limit.cleanup_interval_seconds":
		return strconv.Itoa(c.RateLimit.CleanupIntervalSeconds), nil
	case "fetch.timeout_seconds":
		return strconv.Itoa(c.Fetch.TimeoutSeconds), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if dir, ok := overrideConfigDir(); ok {
		return pathInDir(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return pathInDir(home)
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if dir, ok := overrideConfigDir(); ok {
		return pathInDir(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return pathInDir(cwd)
}

// SetKey reads the config file at path, sets key=value, and writes it
// back in the same format.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if err := decodeMapFile(path, data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAMLPath(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}
	return toml.NewEncoder(f).Encode(data)
}

func decodeMapFile(path string, data map[string]any) error {
	if isYAMLPath(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(raw, &data)
	}
	_, err := toml.DecodeFile(path, &data)
	return err
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if dir, ok := overrideConfigDir(); ok {
		if _, err := loadDir(dir, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if _, err := loadDir(home, &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath, err := loadDir(cwd, &cfg)
				if err != nil {
					return nil, err
				}
				cfg.TrustedProjectConfigPath = projectPath
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	if cfg.DataDir == "" && cfg.DBPath != "" {
		cfg.DataDir = filepath.Join(filepath.Dir(cfg.DBPath), DefaultDataDirName)
	}

	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		c.APIURL = apiURL
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		c.DBPath = dbPath
	}
	if dataDir := os.Getenv(dataDirEnvKey); dataDir != "" {
		c.DataDir = dataDir
	}
	if level := strings.TrimSpace(os.Getenv(logLevelEnvKey)); level != "" {
		c.LogLevel = level
	}
	if compression := strings.TrimSpace(os.Getenv(compressionEnvKey)); compression != "" {
		c.Storage.Compression = compression
	}
	if raw := strings.TrimSpace(os.Getenv(maxTotalBytesEnvKey)); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return fmt.Errorf("invalid %s=%q", maxTotalBytesEnvKey, raw)
		}
		c.Storage.MaxTotalBytes = parsed
	}
	return nil
}

// Validate rejects settings that cannot be normalized away.
func (c *Config) Validate() error {
	if _, err := c.CompressionAlgorithm(); err != nil {
		return err
	}
	if !models.IsValidCompressionLevel(c.Storage.CompressionLevel) {
		return fmt.Errorf("storage.compression_level must be %s", models.CompressionLevelRange())
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "storage.max_upload_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.max_total_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "storage.compression":
		algo, err := models.ParseCompressionAlgorithm(value)
		if err != nil {
			return nil, err
		}
		return string(algo), nil
	case "storage.compression_level":
		parsed, err := strconv.Atoi(value)
		if err != nil || !models.IsValidCompressionLevel(parsed) {
			return nil, fmt.Errorf("%s must be %s", key, models.CompressionLevelRange())
		}
		return parsed, nil
	case "retention.inactivity_days", "rate_limit.max_requests":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "retention.default_cache_seconds",
		"retention.sweep_interval_seconds",
		"retention.orphan_interval_seconds",
		"retention.backfill_interval_seconds",
		"retention.batch_size",
		"rate_limit.window_seconds",
		"rate_limit.cleanup_interval_seconds",
		"fetch.timeout_seconds":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.Storage.Compression) == "" {
		c.Storage.Compression = string(models.CompressionNone)
	}
	c.Storage.Compression = strings.ToLower(strings.TrimSpace(c.Storage.Compression))
	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Storage.MaxTotalBytes < 0 {
		c.Storage.MaxTotalBytes = 0
	}
	if c.Retention.DefaultCacheSeconds <= 0 {
		c.Retention.DefaultCacheSeconds = DefaultCacheSeconds
	}
	if c.Retention.InactivityDays < 0 {
		c.Retention.InactivityDays = 0
	}
	if c.Retention.SweepIntervalSeconds <= 0 {
		c.Retention.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}
	if c.Retention.OrphanIntervalSeconds <= 0 {
		c.Retention.OrphanIntervalSeconds = DefaultOrphanIntervalSeconds
	}
	if c.Retention.BackfillIntervalSeconds <= 0 {
		c.Retention.BackfillIntervalSeconds = DefaultBackfillIntervalSeconds
	}
	if c.Retention.BatchSize <= 0 {
		c.Retention.BatchSize = DefaultSweepBatchSize
	}
	if c.RateLimit.MaxRequests < 0 {
		c.RateLimit.MaxRequests = 0
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = DefaultRateLimitWindowSeconds
	}
	if c.RateLimit.CleanupIntervalSeconds <= 0 {
		c.RateLimit.CleanupIntervalSeconds = DefaultRateLimitCleanupSeconds
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = DefaultFetchTimeoutSeconds
	}
}
