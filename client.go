package olakai

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/olakai-ai/olakai-sdk-go/internal/logging"
	"github.com/olakai-ai/olakai-sdk-go/internal/queue"
	"github.com/olakai-ai/olakai-sdk-go/internal/sanitize"
	"github.com/olakai-ai/olakai-sdk-go/internal/storage"
	"github.com/olakai-ai/olakai-sdk-go/internal/transport"
	"github.com/olakai-ai/olakai-sdk-go/internal/workerpool"
)

// Client owns every stateful subsystem: configuration, the batch queue,
// the transport, the logging sink, the middleware registry, and the
// background dispatch pool. Build one with NewClient.
type Client struct {
	cfg              Config
	transport        *transport.Client
	queue            *queue.Manager
	pool             *workerpool.Pool
	logger           *logging.Sink
	sanitizePatterns []sanitize.Pattern

	mu         sync.RWMutex
	middleware []Middleware
}

// NewClient constructs a Client from apiKey/domain plus Options, validates
// the resulting Config, and wires storage, transport, queue, and the
// background worker pool.
func NewClient(apiKey, domain string, opts ...Option) (*Client, error) {
	cfg := defaultConfig(apiKey, domain)
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.resolveURLs()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := logging.New(loggingOptions(cfg)...)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	tc := transport.New(transport.Config{
		APIKey:        cfg.APIKey,
		MonitoringURL: cfg.MonitoringURL,
		ControlURL:    cfg.ControlURL,
		Timeout:       cfg.Timeout,
		Retries:       cfg.Retries,
	}, httpClient, logger)

	adapter := selectStorage(cfg, logger)

	patterns, err := sanitize.Compile(toSanitizeSources(cfg.SanitizePatterns))
	if err != nil {
		return nil, &InitializationError{Reason: err.Error()}
	}

	qm := queue.New(queue.Config{
		BatchSize:      cfg.BatchSize,
		BatchTimeout:   cfg.BatchTimeout,
		Retries:        cfg.Retries,
		StorageEnabled: cfg.StorageEnabled,
		StorageKey:     cfg.StorageKey,
		MaxStorageSize: cfg.MaxStorageSize,
	}, adapter, tc, logger)

	pool := workerpool.New(cfg.WorkerPoolSize, logger)

	return &Client{
		cfg:              cfg,
		transport:        tc,
		queue:            qm,
		pool:             pool,
		logger:           logger,
		sanitizePatterns: patterns,
	}, nil
}

// loggingOptions omits WithWriter entirely when Config.LogWriter is unset,
// so logging.New's os.Stderr default isn't clobbered by a nil io.Writer.
func loggingOptions(cfg Config) []logging.Option {
	opts := []logging.Option{logging.WithLevel(cfg.LogLevel)}
	if cfg.LogWriter != nil {
		opts = append(opts, logging.WithWriter(cfg.LogWriter))
	}
	return opts
}

// selectStorage resolves the configured storage adapter, including the
// auto-detect-then-warn-and-fall-back-to-memory behavior.
func selectStorage(cfg Config, logger *logging.Sink) storage.Adapter {
	if !cfg.StorageEnabled || cfg.StorageType == StorageDisabled {
		return storage.NoOp{}
	}

	switch cfg.StorageType {
	case StorageMemory:
		return storage.NewMemory()
	case StorageFile:
		return newFileStorageOrFallback(cfg, logger)
	default: // StorageAuto, or unset
		if storage.IsReadOnlyEnv() {
			logger.Warning("environment appears read-only, falling back to in-memory queue storage")
			return storage.NewMemory()
		}
		return newFileStorageOrFallback(cfg, logger)
	}
}

func newFileStorageOrFallback(cfg Config, logger *logging.Sink) storage.Adapter {
	f, err := storage.NewFile(cfg.StorageFilePath)
	if err != nil {
		logger.Warning("failed to initialize file storage, falling back to in-memory queue storage", logging.Err(err))
		return storage.NewMemory()
	}
	return f
}

func toSanitizeSources(patterns []SanitizePattern) []sanitize.Source {
	out := make([]sanitize.Source, len(patterns))
	for i, p := range patterns {
		out[i] = sanitize.Source{Regex: p.Regex, Key: p.Key, Replacement: p.Replacement}
	}
	return out
}

// Flush forces an immediate drain attempt of the queue's current head batch.
func (c *Client) Flush(ctx context.Context) { c.queue.Flush(ctx) }

// Size returns the number of batches currently queued.
func (c *Client) Size() int { return c.queue.Size() }

// Clear drops both the in-memory queue and its persisted mirror without
// sending anything.
func (c *Client) Clear() { c.queue.Clear() }

// AddMiddleware registers m, applied in registration order to every
// subsequent Supervise/SuperviseSync call.
func (c *Client) AddMiddleware(m Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, m)
}

// RemoveMiddleware drops every registered Middleware with the given name.
func (c *Client) RemoveMiddleware(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.middleware[:0:0]
	for _, m := range c.middleware {
		if m.Name != name {
			kept = append(kept, m)
		}
	}
	c.middleware = kept
}

func (c *Client) middlewareSnapshot() []Middleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Middleware, len(c.middleware))
	copy(out, c.middleware)
	return out
}

// Close attempts one final flush (bounded by Config.ShutdownGracePeriod),
// then stops the queue controller and the background worker pool.
func (c *Client) Close(ctx context.Context) error {
	flushCtx := ctx
	if c.cfg.ShutdownGracePeriod > 0 {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, c.cfg.ShutdownGracePeriod)
		defer cancel()
	}
	c.queue.Flush(flushCtx)
	c.queue.Close()
	c.pool.Close()
	return nil
}

var (
	defaultClientOnce sync.Once
	defaultClient     *Client
	defaultClientErr  error
)

// Default lazily constructs a process-wide Client from the OLAKAI_API_KEY
// and OLAKAI_DOMAIN environment variables, as a thin convenience shim over
// per-instance construction. It is built once; subsequent calls return the
// same Client (or the same construction error).
func Default() (*Client, error) {
	defaultClientOnce.Do(func() {
		defaultClient, defaultClientErr = NewClient(os.Getenv("OLAKAI_API_KEY"), os.Getenv("OLAKAI_DOMAIN"))
	})
	return defaultClient, defaultClientErr
}
