// Package orchestrator drives the item generator across every quota cell of
// a section: it plans the deficit against the store, generates cell by cell
// (or passage by passage) and reports per-cell diagnostics.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/dedup"
	"github.com/abhisek/qbankgen/internal/itemgen"
	"github.com/abhisek/qbankgen/internal/llm"
	"github.com/abhisek/qbankgen/internal/logger"
	"github.com/abhisek/qbankgen/internal/quota"
	"github.com/abhisek/qbankgen/internal/store"
)

var tracer = otel.Tracer("github.com/abhisek/qbankgen/internal/orchestrator")

// DefaultCellFailureLimit is how many consecutive failed requests end a
// cell.
const DefaultCellFailureLimit = 2

// Config holds orchestrator settings.
type Config struct {
	Generator itemgen.Config

	// CellFailureLimit ends a cell (or passage assignment) after this many
	// consecutive failed requests.
	CellFailureLimit int

	// Concurrency bounds how many sections GenerateProduct runs at once.
	Concurrency int
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Generator:        itemgen.DefaultConfig(),
		CellFailureLimit: DefaultCellFailureLimit,
		Concurrency:      2,
	}
}

// SectionRequest asks for one section in one test mode to be filled.
type SectionRequest struct {
	TestType string
	Section  string
	Mode     bank.TestMode

	Strategy      quota.DifficultyStrategy // nil means balanced
	Options       itemgen.Options
	FailurePolicy FailurePolicy // nil means AnyFailure

	Progress func(Progress)
}

// Orchestrator runs sections against one provider, store and catalog.
type Orchestrator struct {
	provider llm.Provider
	store    bank.ContentStore
	catalog  *blueprint.Catalog
	runs     store.RunRepo
	config   Config
	log      *logger.Logger
}

// New creates an Orchestrator.
func New(provider llm.Provider, st bank.ContentStore, catalog *blueprint.Catalog, cfg Config, log *logger.Logger) *Orchestrator {
	if cfg.CellFailureLimit <= 0 {
		cfg.CellFailureLimit = DefaultCellFailureLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		provider: provider,
		store:    st,
		catalog:  catalog,
		config:   cfg,
		log:      logger.OrNop(log).With("component", "orchestrator"),
	}
}

// RecordRuns makes every section run append a summary to repo.
func (o *Orchestrator) RecordRuns(repo store.RunRepo) {
	o.runs = repo
}

// run is the mutable state of one section run.
type run struct {
	req      SectionRequest
	section  *blueprint.Section
	quota    *quota.Quota
	gen      *itemgen.Generator
	guards   map[string]*dedup.Guard
	cells    []*CellResult
	byKey    map[bank.CellKey]*CellResult
	result   *SectionResult
	progress Progress
}

// GenerateSection fills the deficit of one section in one test mode. The
// error is non-nil only when the request itself is bad or planning could
// not read the store; every generation failure is reported in the result.
func (o *Orchestrator) GenerateSection(ctx context.Context, req SectionRequest) (*SectionResult, error) {
	start := time.Now()
	if req.Strategy == nil {
		req.Strategy = quota.Balanced{}
	}
	if req.FailurePolicy == nil {
		req.FailurePolicy = AnyFailure{}
	}

	ctx, span := tracer.Start(ctx, "orchestrator.GenerateSection", trace.WithAttributes(
		attribute.String("test_type", req.TestType),
		attribute.String("section", req.Section),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	r, err := o.plan(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	log := o.log.With("test_type", req.TestType, "section", req.Section, "mode", req.Mode)
	log.Info("section planned", "cells", len(r.cells), "deficit", r.progress.Deficit, "strategy", req.Strategy.Name())

	r.progress.Phase = PhaseGenerating
	o.emit(r)
	if r.section.Strategy == blueprint.PassageBased {
		o.generatePassages(ctx, r)
	} else {
		o.generateStandalone(ctx, r)
	}

	r.progress.Phase = PhaseReporting
	o.emit(r)
	res := o.report(r, time.Since(start))
	span.SetAttributes(
		attribute.Int("generated", res.Generated),
		attribute.Int("failed", res.Failed),
		attribute.Bool("success", res.Success),
	)
	if !res.Success {
		span.SetStatus(codes.Error, "section run did not meet its failure policy")
	}
	log.Info("section finished",
		"generated", res.Generated, "failed", res.Failed, "passages", res.Passages,
		"cost_usd", res.CostUSD, "elapsed", res.Elapsed, "success", res.Success)

	o.recordRun(ctx, res, start)
	r.progress.Phase = PhaseDone
	o.emit(r)
	return res, nil
}

// generateStandalone works through cells in quota order. Cancellation is
// checked between requests; a request in flight runs to completion.
func (o *Orchestrator) generateStandalone(ctx context.Context, r *run) {
	for _, cr := range r.cells {
		if ctx.Err() != nil {
			r.result.Cancelled = true
			return
		}
		deficit := cr.Remaining
		if deficit == 0 {
			continue
		}
		req := r.request(cr.Cell)
		consecutive := 0
		for cr.Generated < deficit && consecutive < o.config.CellFailureLimit {
			if ctx.Err() != nil {
				r.result.Cancelled = true
				return
			}
			_, err := r.gen.Generate(context.WithoutCancel(ctx), req, r.guards[cr.Cell.SubSkill], r.req.Options)
			if err != nil {
				consecutive++
				o.fail(r, cr, err)
				continue
			}
			consecutive = 0
			o.succeed(r, cr)
		}
	}
}

// request builds the generation request for a cell.
func (r *run) request(cell bank.CellKey) bank.GenerationRequest {
	return bank.GenerationRequest{
		TestType:     cell.TestType,
		Section:      cell.Section,
		SubSkill:     cell.SubSkill,
		Difficulty:   cell.Difficulty,
		Mode:         cell.Mode,
		ResponseType: r.section.ResponseType,
	}
}

func (o *Orchestrator) succeed(r *run, cr *CellResult) {
	cr.Generated++
	cr.Remaining--
	r.progress.Cell = cr.Cell
	r.progress.Generated++
	o.emit(r)
}

func (o *Orchestrator) fail(r *run, cr *CellResult, err error) {
	cr.Failed++
	cr.Reasons = append(cr.Reasons, err.Error())
	r.progress.Cell = cr.Cell
	r.progress.Failed++
	o.log.Warn("request failed", "cell", cr.Cell.String(), "kind", bank.FailureKindOf(err), "error", err)
	o.emit(r)
}

func (o *Orchestrator) emit(r *run) {
	if r.req.Progress == nil {
		return
	}
	u := r.gen.Meter().Snapshot()
	r.progress.Attempts = u.Attempts
	r.progress.CostUSD = u.CostUSD
	r.req.Progress(r.progress)
}

// report aggregates the run into a SectionResult.
func (o *Orchestrator) report(r *run, elapsed time.Duration) *SectionResult {
	res := r.result
	for _, cr := range r.cells {
		res.Cells = append(res.Cells, *cr)
		res.Generated += cr.Generated
		res.Failed += cr.Failed
	}
	u := r.gen.Meter().Snapshot()
	res.Attempts = u.Attempts
	res.InputTokens = u.InputTokens
	res.OutputTokens = u.OutputTokens
	res.CostUSD = u.CostUSD
	res.Elapsed = elapsed
	res.Passages = r.progress.Passages
	res.Success = !res.Cancelled && r.req.FailurePolicy.Success(res.FailedCells(), len(res.Cells))
	return res
}

func (o *Orchestrator) recordRun(ctx context.Context, res *SectionResult, start time.Time) {
	if o.runs == nil {
		return
	}
	rec := &store.RunRecord{
		ID:           res.RunID,
		StartedAt:    start,
		FinishedAt:   start.Add(res.Elapsed),
		TestType:     res.TestType,
		Section:      res.Section,
		Mode:         string(res.Mode),
		Strategy:     res.Strategy,
		Generated:    res.Generated,
		Failed:       res.Failed,
		Passages:     res.Passages,
		Attempts:     res.Attempts,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		CostUSD:      res.CostUSD,
		Success:      res.Success,
		DryRun:       res.DryRun,
		Warnings:     slices.Clone(res.Warnings),
	}
	if err := o.runs.AppendRun(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Warn("failed to record run", "run", res.RunID, "error", err)
	}
}

// newRun validates the request and sets up empty run state.
func (o *Orchestrator) newRun(req SectionRequest) (*run, error) {
	section, err := o.catalog.Section(req.TestType, req.Section)
	if err != nil {
		return nil, err
	}
	modes, err := o.catalog.Modes(req.TestType)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(modes, req.Mode) {
		return nil, fmt.Errorf("test mode %q is not defined for %s (have %v)", req.Mode, req.TestType, modes)
	}
	q, err := quota.Compute(section)
	if err != nil {
		return nil, err
	}

	r := &run{
		req:     req,
		section: section,
		quota:   q,
		gen:     itemgen.New(o.provider, o.store, o.catalog, o.config.Generator, o.log),
		guards:  make(map[string]*dedup.Guard),
		byKey:   make(map[bank.CellKey]*CellResult),
		result: &SectionResult{
			RunID:         uuid.NewString(),
			TestType:      req.TestType,
			Section:       req.Section,
			Mode:          req.Mode,
			Strategy:      req.Strategy.Name(),
			DryRun:        req.Options.SkipStorage,
			Inconsistency: q.Inconsistency,
		},
		progress: Progress{
			Phase:    PhasePlanning,
			TestType: req.TestType,
			Section:  req.Section,
			Mode:     req.Mode,
		},
	}
	if q.Inconsistency != nil {
		r.result.Warnings = append(r.result.Warnings, q.Inconsistency.Error())
		o.log.Warn("configuration inconsistency", "error", q.Inconsistency)
	}
	return r, nil
}
