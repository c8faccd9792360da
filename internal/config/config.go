package config

import (
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	yaml "github.com/goccy/go-yaml"
)

var (
	errConfigPathEmpty            = errors.New("config path is empty")
	errServiceTypeInvalid         = errors.New("discovery.service must be a DNS-SD service type ending in .local.")
	errQuiescenceMustBePositive   = errors.New("discovery.quiescence must be positive")
	errParallelismMustBePositive  = errors.New("fleet.connect_parallelism must be positive")
	errCommandTimeoutMustBePos    = errors.New("fleet.command_timeout must be positive")
	errMaxAttemptsMustBePositive  = errors.New("transfer.max_attempts must be positive")
	errConcurrencyMustBePositive  = errors.New("transfer.concurrency must be positive")
	errStorageDirEmpty            = errors.New("storage.dir cannot be empty")
	errListenMustBeHostPort       = errors.New("http.listen must be host:port or :port")
	errRateLimitMustBeNonNegative = errors.New("http.rate_limit must be non-negative")
)

const (
	defaultServiceType        = "_gopro-web._tcp.local."
	defaultQuiescence         = 2 * time.Second
	defaultConnectParallelism = 4
	defaultCommandTimeout     = 15 * time.Second
	defaultMaxAttempts        = 3
	defaultConcurrency        = 2
	defaultHTTPListen         = "127.0.0.1:47923"
	defaultRateLimit          = 20
	defaultRateBurst          = 40
)

// DiscoveryConfig controls mDNS discovery of cameras.
type DiscoveryConfig struct {
	// Service is the DNS-SD service type advertised by the cameras.
	Service string `yaml:"service"`
	// Quiescence is how long discovery waits after the last advertisement
	// before concluding that no further cameras will answer.
	Quiescence time.Duration `yaml:"quiescence"`
}

// FleetConfig controls camera fan-out behavior.
type FleetConfig struct {
	ConnectParallelism int           `yaml:"connect_parallelism"`
	CommandTimeout     time.Duration `yaml:"command_timeout"`
}

// TransferConfig controls post-session media downloads.
type TransferConfig struct {
	MaxAttempts int  `yaml:"max_attempts"`
	Turbo       bool `yaml:"turbo"`
	// Concurrency bounds how many cameras download at once.
	Concurrency int `yaml:"concurrency"`
}

// StorageConfig controls where session artifacts land.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// HTTPConfig controls the read-only admin/status API.
type HTTPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	RateLimit int    `yaml:"rate_limit"`
	RateBurst int    `yaml:"rate_burst"`
}

// LogConfig mirrors the CLI logging flags for file-based setups.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration document.
type Config struct {
	AppName   string          `yaml:"app_name"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Fleet     FleetConfig     `yaml:"fleet"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`

	Path string `yaml:"-"`

	mu sync.RWMutex
}

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errConfigPathEmpty
	}

	b, err := os.ReadFile(path) //nolint:gosec // config file path comes from the operator
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a config with all defaults applied and the given storage dir.
func Default(storageDir string) *Config {
	cfg := &Config{Storage: StorageConfig{Dir: storageDir}}
	cfg.applyDefaults()

	return cfg
}

func (c *Config) applyDefaults() {
	if c.AppName == "" {
		c.AppName = "camfleet"
	}

	if c.Discovery.Service == "" {
		c.Discovery.Service = defaultServiceType
	}

	if c.Discovery.Quiescence <= 0 {
		c.Discovery.Quiescence = defaultQuiescence
	}

	if c.Fleet.ConnectParallelism <= 0 {
		c.Fleet.ConnectParallelism = defaultConnectParallelism
	}

	if c.Fleet.CommandTimeout <= 0 {
		c.Fleet.CommandTimeout = defaultCommandTimeout
	}

	if c.Transfer.MaxAttempts <= 0 {
		c.Transfer.MaxAttempts = defaultMaxAttempts
	}

	if c.Transfer.Concurrency <= 0 {
		c.Transfer.Concurrency = defaultConcurrency
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = defaultHTTPListen
	}

	if c.HTTP.RateLimit <= 0 {
		c.HTTP.RateLimit = defaultRateLimit
	}

	if c.HTTP.RateBurst <= 0 {
		c.HTTP.RateBurst = defaultRateBurst
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks the config invariants.
func (c *Config) Validate() error {
	if !strings.HasSuffix(c.Discovery.Service, ".local.") {
		return errServiceTypeInvalid
	}

	if c.Discovery.Quiescence <= 0 {
		return errQuiescenceMustBePositive
	}

	if c.Fleet.ConnectParallelism <= 0 {
		return errParallelismMustBePositive
	}

	if c.Fleet.CommandTimeout <= 0 {
		return errCommandTimeoutMustBePos
	}

	if c.Transfer.MaxAttempts <= 0 {
		return errMaxAttemptsMustBePositive
	}

	if c.Transfer.Concurrency <= 0 {
		return errConcurrencyMustBePositive
	}

	if strings.TrimSpace(c.Storage.Dir) == "" {
		return errStorageDirEmpty
	}

	if c.HTTP.Enabled {
		if _, _, err := net.SplitHostPort(c.HTTP.Listen); err != nil {
			return errListenMustBeHostPort
		}

		if c.HTTP.RateLimit < 0 {
			return errRateLimitMustBeNonNegative
		}
	}

	return nil
}

// TransferSettings returns the current transfer knobs. Safe for concurrent
// use with Reload.
func (c *Config) TransferSettings() TransferConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.Transfer
}

// Reload re-reads the file behind this config and applies the transfer
// section. Discovery, fleet and HTTP settings are fixed for the process
// lifetime; the transfer knobs are the only ones safe to change between
// sessions.
func (c *Config) Reload() error {
	fresh, err := Load(c.Path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.Transfer = fresh.Transfer
	c.mu.Unlock()

	return nil
}
