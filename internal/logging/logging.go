// Package logging provides the SDK's level-filtered logging sink.
//
// Every subsystem (storage, transport, queue, supervisor) logs through a
// *Sink rather than directly against an io.Writer, so the host application
// can supply its own writer (or none) without the core depending on any
// particular logging framework.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	catrate "github.com/joeycumines/go-catrate"
)

// Level mirrors the SDK's four named log levels: debug < info < warning <
// error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// Field is a single structured key/value attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Str builds a string Field.
func Str(key, val string) Field { return Field{Key: key, Value: val} }

// Int builds an int Field.
func Int(key string, val int) Field { return Field{Key: key, Value: val} }

// Err builds an error Field, stored under the conventional "err" key.
func Err(err error) Field { return Field{Key: "err", Value: err} }

// Dur builds a time.Duration Field.
func Dur(key string, d time.Duration) Field { return Field{Key: key, Value: d} }

// Sink is the SDK-wide logging channel. The zero value is not usable; build
// one with New.
type Sink struct {
	logger  *logiface.Logger[*stumpy.Event]
	limiter *catrate.Limiter
}

// Option configures a Sink.
type Option func(*config)

type config struct {
	writer io.Writer
	level  Level
}

// WithWriter overrides the destination for log lines. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writer = w }
}

// WithLevel sets the minimum enabled level. Defaults to LevelWarning.
func WithLevel(level Level) Option {
	return func(c *config) { c.level = level }
}

// New constructs a Sink. Duplicate warning/info lines emitted via the
// *RateLimited methods (storage persistence failures, retry-cleanup drops)
// are deduplicated per category using a catrate.Limiter, so a persistently
// failing storage backend cannot flood the host's log output.
func New(opts ...Option) *Sink {
	c := config{
		writer: os.Stderr,
		level:  LevelWarning,
	}
	for _, o := range opts {
		o(&c)
	}

	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(c.writer)),
		stumpy.L.WithLevel(toLogifaceLevel(c.level)),
	)

	return &Sink{
		logger: logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Minute: 1,
		}),
	}
}

func toLogifaceLevel(l Level) logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarning:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelWarning
	}
}

func (s *Sink) build(level logiface.Level, fields []Field) *logiface.Builder[*stumpy.Event] {
	if s == nil || s.logger == nil {
		return nil
	}
	b := s.logger.Build(level)
	if b == nil {
		return nil
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			b = b.Str(f.Key, v)
		case error:
			b = b.Err(v)
		case int:
			b = b.Int(f.Key, v)
		case time.Duration:
			b = b.Dur(f.Key, v)
		case bool:
			b = b.Bool(f.Key, v)
		default:
			b = b.Any(f.Key, v)
		}
	}
	return b
}

// Debug logs at LevelDebug (and LevelDebug is also used for "verbose").
func (s *Sink) Debug(msg string, fields ...Field) {
	if b := s.build(logiface.LevelDebug, fields); b != nil {
		b.Log(msg)
	}
}

// Info logs at LevelInfo.
func (s *Sink) Info(msg string, fields ...Field) {
	if b := s.build(logiface.LevelInformational, fields); b != nil {
		b.Log(msg)
	}
}

// Warning logs at LevelWarning.
func (s *Sink) Warning(msg string, fields ...Field) {
	if b := s.build(logiface.LevelWarning, fields); b != nil {
		b.Log(msg)
	}
}

// Error logs at LevelError.
func (s *Sink) Error(msg string, fields ...Field) {
	if b := s.build(logiface.LevelError, fields); b != nil {
		b.Log(msg)
	}
}

// InfoRateLimited logs at LevelInfo, at most once per minute per category.
// Intended for high-frequency, repetitive events such as the retry-cleanup
// sweep dropping a batch on every run of a persistently failing send.
func (s *Sink) InfoRateLimited(category, msg string, fields ...Field) {
	if s.allow(category) {
		s.Info(msg, fields...)
	}
}

// WarningRateLimited logs at LevelWarning, at most once per minute per
// category. Intended for storage persistence failures, which would
// otherwise repeat on every queue mutation.
func (s *Sink) WarningRateLimited(category, msg string, fields ...Field) {
	if s.allow(category) {
		s.Warning(msg, fields...)
	}
}

func (s *Sink) allow(category string) bool {
	if s == nil || s.limiter == nil {
		return true
	}
	_, ok := s.limiter.Allow(category)
	return ok
}
