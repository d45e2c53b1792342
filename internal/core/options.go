package core

import (
	"context"
	"time"

	"rd3/internal/blob"
	"rd3/internal/cluster"
	"rd3/pkg/domain"
)

// Clock abstracts time retrieval so runs can be replayed deterministically.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logger used by the engine. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder receives run measurements.
type MetricsRecorder interface {
	Observe(ctx context.Context, phase string, success bool, d time.Duration)
	Triaged(stream, outcome string, n int)
	Written(table domain.Table, n int)
	FailedChunks(table domain.Table, n int)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}
func (noopMetrics) Triaged(string, string, int)                          {}
func (noopMetrics) Written(domain.Table, int)                            {}
func (noopMetrics) FailedChunks(domain.Table, int)                       {}

// Option customises an Engine.
type Option func(*options)

type options struct {
	clock              Clock
	logger             Logger
	metrics            MetricsRecorder
	artifacts          blob.Store
	cluster            cluster.FS
	clusterRoot        string
	stopFile           string
	dryRun             bool
	phenopacketTimeout time.Duration
	user               string
}

func defaultOptions() options {
	return options{
		clock:              ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:             noopLogger{},
		metrics:            noopMetrics{},
		cluster:            cluster.Local{},
		phenopacketTimeout: cluster.DefaultPhenopacketTimeout,
		user:               "rd3-engine",
	}
}

// WithClock overrides the engine clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink. When it also implements
// TextExporter the metrics are stored with the run artifacts.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithArtifacts sets the store that receives reports and listings.
func WithArtifacts(store blob.Store) Option {
	return func(o *options) { o.artifacts = store }
}

// WithCluster sets the cluster filesystem and the directory holding releases.
func WithCluster(fsys cluster.FS, root string) Option {
	return func(o *options) {
		if fsys != nil {
			o.cluster = fsys
		}
		o.clusterRoot = root
	}
}

// WithStopFile sets the sentinel whose presence cancels a run.
func WithStopFile(path string) Option {
	return func(o *options) { o.stopFile = path }
}

// WithDryRun triages and reports without writing to the catalog.
func WithDryRun(dry bool) Option {
	return func(o *options) { o.dryRun = dry }
}

// WithPhenopacketTimeout bounds each phenopacket read.
func WithPhenopacketTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.phenopacketTimeout = d
		}
	}
}

// WithUser sets the name stamped into createdBy / updatedBy.
func WithUser(user string) Option {
	return func(o *options) {
		if user != "" {
			o.user = user
		}
	}
}
