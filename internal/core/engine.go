// Package core orchestrates ingestion runs: it loads warehouse state through
// the gateway, drives triage, reconciliation, PED and phenopacket ingestion,
// retraction and aggregation, applies the resulting writes in dependency
// order, and stores a report of every run.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"rd3/internal/blob"
	"rd3/internal/gateway"
	"rd3/internal/vocab"
)

// Artifact names below a run's key prefix.
const (
	ReportArtifact     = "report.json"
	StructuralArtifact = "structural_errors.txt"
	WarningsArtifact   = "phenopacket_warnings.txt"
	MetricsArtifact    = "metrics.prom"
)

// Engine runs ingestion commands against one catalog backend. It is not
// safe for concurrent runs.
type Engine struct {
	backend gateway.Backend
	mapper  *vocab.Mapper
	opts    options
}

// NewEngine builds an engine. A nil mapper gets the default vocabulary and
// missing artifacts go to memory.
func NewEngine(backend gateway.Backend, mapper *vocab.Mapper, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if mapper == nil {
		mapper = vocab.New()
	}
	if o.artifacts == nil {
		o.artifacts = blob.NewMemory()
	}
	return &Engine{backend: backend, mapper: mapper, opts: o}
}

// Artifacts returns the store receiving run reports.
func (e *Engine) Artifacts() blob.Store { return e.opts.artifacts }

// run is the state of one command execution.
type run struct {
	e          *Engine
	report     *Report
	prefix     string
	structural []string
	warnings   []string
}

func (e *Engine) start(command string, args ...string) *run {
	now := e.opts.clock.Now().UTC()
	id := uuid.NewString()
	r := &run{
		e: e,
		report: &Report{
			RunID:   id,
			Command: command,
			Args:    args,
			DryRun:  e.opts.dryRun,
			Started: now,
		},
		prefix: fmt.Sprintf("%s/%s-%s", command, now.Format("20060102T150405Z"), id[:8]),
	}
	e.opts.logger.Info("run started", "command", command, "args", strings.Join(args, " "), "run_id", id, "dry_run", e.opts.dryRun)
	return r
}

// phase times fn and records it in the report and metrics.
func (r *run) phase(ctx context.Context, name string, fn func() error) error {
	log := r.e.opts.logger
	log.Info("phase started", "phase", name)
	begin := time.Now()
	err := fn()
	d := time.Since(begin)
	p := Phase{Name: name, Duration: d}
	if err != nil {
		p.Error = err.Error()
		log.Error("phase failed", "phase", name, "duration", d, "error", err)
	} else {
		log.Info("phase finished", "phase", name, "duration", d)
	}
	r.report.Phases = append(r.report.Phases, p)
	r.e.opts.metrics.Observe(ctx, name, err == nil, d)
	return err
}

// checkStop returns ErrCancelled when the stop file exists.
func (r *run) checkStop(where string) error {
	path := r.e.opts.stopFile
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		r.e.opts.logger.Warn("stop file found", "path", path, "at", where)
		return fmt.Errorf("%w (at %s)", ErrCancelled, where)
	}
	return nil
}

func (r *run) structuralError(err error) {
	r.e.opts.logger.Warn("file skipped", "error", err)
	r.structural = append(r.structural, err.Error())
}

// finish stamps the report, stores the artifacts and settles the error
// returned to the caller.
func (e *Engine) finish(ctx context.Context, r *run, err error) (*Report, error) {
	rep := r.report
	if err == nil && len(rep.FailedChunks) > 0 {
		err = fmt.Errorf("%w: %d write chunks failed", ErrIncomplete, len(rep.FailedChunks))
	}
	rep.Structural = r.structural
	rep.Warnings = len(r.warnings)
	switch {
	case err == nil:
		rep.Status = StatusOK
	case errors.Is(err, ErrCancelled):
		rep.Status = StatusCancelled
	case errors.Is(err, ErrIncomplete):
		rep.Status = StatusIncomplete
	default:
		rep.Status = StatusFailed
	}
	if err != nil {
		rep.Error = err.Error()
	}
	rep.Finished = e.opts.clock.Now().UTC()

	// Artifacts are written even when the run was cancelled.
	actx := context.WithoutCancel(ctx)
	if werr := r.writeArtifacts(actx); werr != nil {
		e.opts.logger.Error("store run artifacts", "error", werr)
		if err == nil {
			err = fmt.Errorf("store run artifacts: %w", werr)
		}
	}
	e.opts.logger.Info("run finished", "command", rep.Command, "status", rep.Status, "run_id", rep.RunID)
	return rep, err
}

func (r *run) writeArtifacts(ctx context.Context) error {
	store := r.e.opts.artifacts
	meta := map[string]string{"run-id": r.report.RunID, "command": r.report.Command}
	put := func(name, contentType string, data []byte) error {
		key := r.prefix + "/" + name
		if _, err := store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType, Metadata: meta}); err != nil {
			return err
		}
		r.report.Artifacts = append(r.report.Artifacts, key)
		r.e.opts.logger.Info("artifact written", "location", store.Location(key))
		return nil
	}
	if len(r.structural) > 0 {
		if err := put(StructuralArtifact, "text/plain; charset=utf-8", lines(r.structural)); err != nil {
			return err
		}
	}
	if len(r.warnings) > 0 {
		if err := put(WarningsArtifact, "text/plain; charset=utf-8", lines(r.warnings)); err != nil {
			return err
		}
	}
	if exp, ok := r.e.opts.metrics.(TextExporter); ok {
		var buf bytes.Buffer
		if err := exp.WriteText(&buf); err != nil {
			return err
		}
		if err := put(MetricsArtifact, "text/plain; version=0.0.4", buf.Bytes()); err != nil {
			return err
		}
	}
	r.report.Artifacts = append(r.report.Artifacts, r.prefix+"/"+ReportArtifact)
	data, err := json.MarshalIndent(r.report, "", "  ")
	if err != nil {
		return err
	}
	key := r.prefix + "/" + ReportArtifact
	if _, err := store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: "application/json", Metadata: meta}); err != nil {
		return err
	}
	r.e.opts.logger.Info("artifact written", "location", store.Location(key))
	return nil
}

func lines(values []string) []byte {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
