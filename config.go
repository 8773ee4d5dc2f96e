package olakai

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olakai-ai/olakai-sdk-go/internal/logging"
)

// StorageType selects the persistence backend for the batch queue.
type StorageType string

const (
	StorageAuto     StorageType = "auto"
	StorageFile     StorageType = "file"
	StorageMemory   StorageType = "memory"
	StorageDisabled StorageType = "disabled"
)

// defaultStorageKey is the single key under which the persisted queue
// document is stored.
const defaultStorageKey = "olakai-sdk-queue"

// Config is the SDK's immutable-after-construction configuration. Build one
// with Options passed to NewClient.
type Config struct {
	APIKey string

	// Domain derives MonitoringURL/ControlURL when they are not set
	// explicitly.
	Domain        string
	MonitoringURL string
	ControlURL    string

	BatchingEnabled bool
	BatchSize       int
	BatchTimeout    time.Duration
	Retries         int
	Timeout         time.Duration

	StorageEnabled  bool
	StorageType     StorageType
	MaxStorageSize  int64
	StorageFilePath string
	StorageKey      string

	SanitizePatterns []SanitizePattern

	LogLevel logging.Level
	LogWriter io.Writer

	// FailOpenOnControlError: true (the default) means a control-layer
	// failure is logged and the call proceeds with best-effort monitoring;
	// false means the same failure is surfaced to the caller as a
	// BlockedError, fail-closed.
	FailOpenOnControlError bool

	WorkerPoolSize       int
	ShutdownGracePeriod  time.Duration

	// HTTPClient is injectable for testing; defaults to one built from
	// Timeout.
	HTTPClient *http.Client
}

// Option mutates a Config during NewClient. Options are applied in order.
type Option func(*Config)

// WithDomain derives MonitoringURL/ControlURL from domain, unless they've
// been set explicitly by any option (URLs are resolved after all options
// are applied, so option order does not matter here).
func WithDomain(domain string) Option {
	return func(c *Config) { c.Domain = domain }
}

func WithMonitoringURL(url string) Option { return func(c *Config) { c.MonitoringURL = url } }
func WithControlURL(url string) Option    { return func(c *Config) { c.ControlURL = url } }

func WithBatching(enabled bool) Option { return func(c *Config) { c.BatchingEnabled = enabled } }
func WithBatchSize(n int) Option       { return func(c *Config) { c.BatchSize = n } }
func WithBatchTimeout(d time.Duration) Option {
	return func(c *Config) { c.BatchTimeout = d }
}
func WithRetries(n int) Option         { return func(c *Config) { c.Retries = n } }
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

func WithStorage(enabled bool) Option { return func(c *Config) { c.StorageEnabled = enabled } }
func WithStorageType(t StorageType) Option {
	return func(c *Config) { c.StorageType = t }
}
func WithMaxStorageSize(n int64) Option { return func(c *Config) { c.MaxStorageSize = n } }
func WithStorageFilePath(p string) Option {
	return func(c *Config) { c.StorageFilePath = p }
}

func WithSanitizePatterns(patterns ...SanitizePattern) Option {
	return func(c *Config) { c.SanitizePatterns = patterns }
}

func WithLogLevel(level logging.Level) Option { return func(c *Config) { c.LogLevel = level } }
func WithLogWriter(w io.Writer) Option         { return func(c *Config) { c.LogWriter = w } }

func WithFailOpenOnControlError(failOpen bool) Option {
	return func(c *Config) { c.FailOpenOnControlError = failOpen }
}

func WithWorkerPoolSize(n int) Option { return func(c *Config) { c.WorkerPoolSize = n } }
func WithShutdownGracePeriod(d time.Duration) Option {
	return func(c *Config) { c.ShutdownGracePeriod = d }
}

func WithHTTPClient(client *http.Client) Option { return func(c *Config) { c.HTTPClient = client } }

// defaultConfig returns the documented defaults.
func defaultConfig(apiKey, domain string) Config {
	return Config{
		APIKey:                 apiKey,
		Domain:                 domain,
		BatchingEnabled:        false,
		BatchSize:              10,
		BatchTimeout:           300 * time.Millisecond,
		Retries:                3,
		Timeout:                20 * time.Second,
		StorageEnabled:         true,
		StorageType:            StorageAuto,
		MaxStorageSize:         1_000_000,
		StorageKey:             defaultStorageKey,
		LogLevel:               logging.LevelWarning,
		FailOpenOnControlError: true,
		WorkerPoolSize:         4,
		ShutdownGracePeriod:    5 * time.Second,
	}
}

// resolveURLs fills in MonitoringURL/ControlURL from Domain.
func (c *Config) resolveURLs() {
	if c.Domain == "" {
		return
	}
	if c.MonitoringURL == "" {
		c.MonitoringURL = fmt.Sprintf("%s/api/monitoring/prompt", c.Domain)
	}
	if c.ControlURL == "" {
		c.ControlURL = fmt.Sprintf("%s/api/control/prompt", c.Domain)
	}
}

// validate enforces the configuration invariants required for a usable Client.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return &InitializationError{Reason: "APIKey is required"}
	}
	if c.BatchSize < 1 {
		return &InitializationError{Reason: "BatchSize must be >= 1"}
	}
	if c.Retries < 0 {
		return &InitializationError{Reason: "Retries must be >= 0"}
	}
	if c.Timeout <= 0 {
		return &InitializationError{Reason: "Timeout must be > 0"}
	}
	if c.WorkerPoolSize < 4 {
		c.WorkerPoolSize = 4
	}
	if c.StorageKey == "" {
		c.StorageKey = defaultStorageKey
	}
	return nil
}
