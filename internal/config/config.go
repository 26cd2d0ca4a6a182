// Package config loads the gateway's YAML configuration file, applies
// environment variable overrides, and validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chromegate/prerender/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config is the gateway's complete runtime configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Render  RenderConfig  `yaml:"render"`
	Pool    PoolConfig    `yaml:"pool"`
	CDP     CDPConfig     `yaml:"cdp"`
	Policy  PolicyConfig  `yaml:"policy"`
	Cache   CacheConfig   `yaml:"cache"`
	Breaker BreakerConfig `yaml:"breaker"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP front-door settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RenderConfig contains per-render timing knobs.
type RenderConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SettleWindow time.Duration `yaml:"settle_window"`
	UserAgent    string        `yaml:"user_agent"`
}

// PoolConfig contains page pool sizing and recycling settings.
type PoolConfig struct {
	Concurrency   int `yaml:"concurrency"`
	MaxIterations int `yaml:"max_iterations"`
}

// CDPConfig locates the already-running Chrome instance the gateway drives.
type CDPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PolicyConfig contains the domain allow-list and resource-blocking rules.
type PolicyConfig struct {
	BlockFonts     bool     `yaml:"block_fonts"`
	AllowedDomains []string `yaml:"allowed_domains"`
}

// CacheConfig selects and configures the artifact cache backend.
type CacheConfig struct {
	Backend         string        `yaml:"backend"` // "none", "disk", "object-store"
	TTL             time.Duration `yaml:"ttl"`
	Root            string        `yaml:"root"`             // disk backend
	Bucket          string        `yaml:"bucket"`            // object-store backend
	CredentialsFile string        `yaml:"credentials_file"` // object-store backend
}

// BreakerConfig controls the upstream circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	FailMax      int           `yaml:"fail_max"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// Default values.
const (
	defaultHost = "0.0.0.0"
	defaultPort = 9301

	defaultRenderTimeout      = 30 * time.Second
	defaultPollInterval       = 200 * time.Millisecond
	defaultSettleWindow       = 500 * time.Millisecond
	defaultMaxIterations      = 200
	defaultCDPHost            = "127.0.0.1"
	defaultCDPPort            = 9222
	defaultCacheBackend       = "none"
	defaultCacheTTL           = time.Hour
	defaultBreakerFailMax     = 5
	defaultBreakerResetWindow = 60 * time.Second
	defaultLogLevel           = logger.LevelInfo
	defaultLogFormat          = logger.FormatJSON
)

const (
	minPort = 1
	maxPort = 65535

	minConcurrency = 1
	maxConcurrency = 256
)

var validLogLevels = map[string]bool{
	logger.LevelDebug: true,
	logger.LevelInfo:  true,
	logger.LevelWarn:  true,
	logger.LevelError: true,
}

var validLogFormats = map[string]bool{
	logger.FormatJSON:    true,
	logger.FormatConsole: true,
}

var validCacheBackends = map[string]bool{
	"none":         true,
	"disk":         true,
	"object-store": true,
}

// Load reads configuration from a YAML file, applies environment overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	// BlockFonts defaults to true; it is preset before decoding because a
	// bool field cannot tell an absent key from an explicit false.
	cfg := &Config{Policy: PolicyConfig{BlockFonts: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}

	if c.Render.Timeout == 0 {
		c.Render.Timeout = defaultRenderTimeout
	}
	if c.Render.PollInterval == 0 {
		c.Render.PollInterval = defaultPollInterval
	}
	if c.Render.SettleWindow == 0 {
		c.Render.SettleWindow = defaultSettleWindow
	}

	if c.Pool.Concurrency == 0 {
		c.Pool.Concurrency = 2 * numCPU()
	}
	if c.Pool.MaxIterations == 0 {
		c.Pool.MaxIterations = defaultMaxIterations
	}

	if c.CDP.Host == "" {
		c.CDP.Host = defaultCDPHost
	}
	if c.CDP.Port == 0 {
		c.CDP.Port = defaultCDPPort
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaultCacheTTL
	}

	if c.Breaker.FailMax == 0 {
		c.Breaker.FailMax = defaultBreakerFailMax
	}
	if c.Breaker.ResetTimeout == 0 {
		c.Breaker.ResetTimeout = defaultBreakerResetWindow
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("GATEWAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if concurrency := os.Getenv("GATEWAY_POOL_CONCURRENCY"); concurrency != "" {
		if n, err := strconv.Atoi(concurrency); err == nil {
			c.Pool.Concurrency = n
		}
	}

	if cdpHost := os.Getenv("GATEWAY_CDP_HOST"); cdpHost != "" {
		c.CDP.Host = cdpHost
	}
	if cdpPort := os.Getenv("GATEWAY_CDP_PORT"); cdpPort != "" {
		if p, err := strconv.Atoi(cdpPort); err == nil {
			c.CDP.Port = p
		}
	}

	if domains := os.Getenv("GATEWAY_ALLOWED_DOMAINS"); domains != "" {
		var filtered []string
		for _, d := range strings.Split(domains, ",") {
			if trimmed := strings.TrimSpace(d); trimmed != "" {
				filtered = append(filtered, trimmed)
			}
		}
		c.Policy.AllowedDomains = filtered
	}

	if backend := os.Getenv("GATEWAY_CACHE_BACKEND"); backend != "" {
		c.Cache.Backend = backend
	}
	if bucket := os.Getenv("GATEWAY_CACHE_BUCKET"); bucket != "" {
		c.Cache.Bucket = bucket
	}

	if logLevel := os.Getenv("GATEWAY_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Port < minPort || c.Server.Port > maxPort {
		return fmt.Errorf("invalid server port: %d (must be %d-%d)", c.Server.Port, minPort, maxPort)
	}

	if c.Pool.Concurrency < minConcurrency || c.Pool.Concurrency > maxConcurrency {
		return fmt.Errorf("invalid pool concurrency: %d (must be %d-%d)", c.Pool.Concurrency, minConcurrency, maxConcurrency)
	}

	if c.CDP.Port < minPort || c.CDP.Port > maxPort {
		return fmt.Errorf("invalid cdp port: %d (must be %d-%d)", c.CDP.Port, minPort, maxPort)
	}

	if !validCacheBackends[c.Cache.Backend] {
		return fmt.Errorf("invalid cache backend: %s (must be none, disk, or object-store)", c.Cache.Backend)
	}
	if c.Cache.Backend == "disk" && c.Cache.Root == "" {
		return fmt.Errorf("cache backend disk requires cache.root")
	}
	if c.Cache.Backend == "object-store" && c.Cache.Bucket == "" {
		return fmt.Errorf("cache backend object-store requires cache.bucket")
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// CDPDebugURL returns the devtools HTTP endpoint cdpconn.Dial connects to.
func (c *Config) CDPDebugURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDP.Host, c.CDP.Port)
}
