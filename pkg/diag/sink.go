package diag

import (
	"context"
	"log/slog"
	"os"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Sink routes non-fatal diagnostics emitted during an instrumentation pass.
// Warnings always reach the collector so callers (and tests) can inspect
// them; a sink built by New also prints them to stderr, and prints debug
// events there only when it is verbose.
type Sink struct {
	logger    *slog.Logger
	collector *Collector
}

// Collector is a slog.Handler that retains every record it receives.
type Collector struct {
	mu      sync.Mutex
	records []slog.Record
}

func (c *Collector) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

func (c *Collector) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *Collector) WithAttrs(_ []slog.Attr) slog.Handler { return c }
func (c *Collector) WithGroup(_ string) slog.Handler      { return c }

// Messages returns the messages of all collected records
func (c *Collector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]string, len(c.records))
	for i, r := range c.records {
		msgs[i] = r.Message
	}
	return msgs
}

// Len returns the number of collected records
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// New creates a sink that fans out to stderr and an in-memory collector.
// When verbose is false only warnings and errors are printed.
func New(verbose bool) *Sink {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	collector := &Collector{}
	stderr := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	return &Sink{
		logger:    slog.New(slogmulti.Fanout(stderr, collector)),
		collector: collector,
	}
}

// Discard creates a sink that only collects, for use in tests
func Discard() *Sink {
	collector := &Collector{}
	return &Sink{
		logger:    slog.New(collector),
		collector: collector,
	}
}

// Logger returns the underlying logger
func (s *Sink) Logger() *slog.Logger {
	return s.logger
}

// Warnings returns the collected warning messages
func (s *Sink) Warnings() []string {
	return s.collector.Messages()
}

// Warnf records a non-fatal event
func (s *Sink) Warnf(msg string, args ...any) {
	s.logger.Warn(msg, args...)
}

// Debugf records a verbose-only event
func (s *Sink) Debugf(msg string, args ...any) {
	s.logger.Debug(msg, args...)
}
