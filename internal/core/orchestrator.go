package core

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/JonMunkholm/carteras/internal/database"
)

// ProgressFunc receives the overall percentage after every processed unit.
// The snapshot is a private copy.
type ProgressFunc func(percent int, label string, snapshot CommitReport)

// progressDone is the label of the final progress event.
const progressDone = "Completed"

// CommitState carries ids resolved by earlier phases so single-phase runs
// can pick up where a previous run left off. One state belongs to one
// import session and is not safe for concurrent use.
type CommitState struct {
	rc *ResolveContext

	Routes       map[int]int64 // sheet index -> route id
	Populations  map[int]int64 // sheet index -> population id
	Coordinators map[int]int64 // sheet index -> header coordinator id
	Clients      map[RowRef]int64
	Credits      map[RowRef]int64

	Report CommitReport
}

// NewCommitState returns an empty state with a fresh resolve memo.
func NewCommitState() *CommitState {
	return &CommitState{
		rc:           NewResolveContext(),
		Routes:       make(map[int]int64),
		Populations:  make(map[int]int64),
		Coordinators: make(map[int]int64),
		Clients:      make(map[RowRef]int64),
		Credits:      make(map[RowRef]int64),
	}
}

// clearPhase drops the ids phase p produced.
func (s *CommitState) clearPhase(p Phase) {
	switch p {
	case PhasePopulations:
		clear(s.Routes)
		clear(s.Populations)
	case PhaseCoordinators:
		clear(s.Coordinators)
	case PhaseClients:
		clear(s.Clients)
	case PhaseCredits:
		clear(s.Credits)
	}
}

// Clone returns a copy whose id maps can be read while the original keeps
// running. The resolve memo is shared.
func (s *CommitState) Clone() *CommitState {
	return &CommitState{
		rc:           s.rc,
		Routes:       maps.Clone(s.Routes),
		Populations:  maps.Clone(s.Populations),
		Coordinators: maps.Clone(s.Coordinators),
		Clients:      maps.Clone(s.Clients),
		Credits:      maps.Clone(s.Credits),
		Report:       s.Report.Snapshot(),
	}
}

// Orchestrator runs the six commit phases against a store.
type Orchestrator struct {
	store    database.Querier
	resolver *Resolver
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator. A nil logger uses slog.Default.
func NewOrchestrator(store database.Querier, retry RetryPolicy, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		resolver: NewResolver(store, retry),
		logger:   logger,
	}
}

// Commit runs every phase in order over wb and returns the consolidated
// report. Unit failures never abort the run; the only error is
// ErrEmptyWorkbook for a nil or sheetless workbook. A nil state starts
// from scratch.
func (o *Orchestrator) Commit(ctx context.Context, wb *StagedWorkbook, state *CommitState, progress ProgressFunc) (CommitReport, error) {
	if wb == nil || len(wb.Sheets) == 0 {
		return CommitReport{}, ErrEmptyWorkbook
	}
	if state == nil {
		state = NewCommitState()
	}

	state.Report = CommitReport{}
	for _, p := range Phases() {
		state.clearPhase(p)
		state.Report.Steps[p].Total = phaseTable[p].count(wb)
	}

	start := time.Now()
	r := o.newRun(ctx, wb, state, Phases(), progress)
	for _, p := range Phases() {
		o.runPhase(r, p)
	}
	r.report.recomputeGlobalOK()
	r.finish()

	o.logger.Info("commit finished",
		"file", wb.FileName,
		"units", r.report.TotalUnits(),
		"global_ok", r.report.GlobalOK,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return r.report.Snapshot(), nil
}

// RunPhase re-runs a single phase, resetting only that phase's counters and
// messages. It relies on ids earlier phases left in state. Progress is
// phase-local.
func (o *Orchestrator) RunPhase(ctx context.Context, wb *StagedWorkbook, state *CommitState, p Phase, progress ProgressFunc) (PhaseResult, error) {
	if wb == nil || len(wb.Sheets) == 0 {
		return PhaseResult{}, ErrEmptyWorkbook
	}
	if p < 0 || p >= phaseCount {
		return PhaseResult{}, fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	if state == nil {
		state = NewCommitState()
	}

	state.clearPhase(p)
	state.Report.Steps[p].Total = phaseTable[p].count(wb)
	state.Report.resetPhase(p)

	r := o.newRun(ctx, wb, state, []Phase{p}, progress)
	o.runPhase(r, p)
	r.report.recomputeGlobalOK()
	r.finish()

	return PhaseResult{
		Phase:    p,
		Step:     r.report.Steps[p],
		Errors:   nonNil(slices.Clone(r.report.ErrorsByPhase[p])),
		Warnings: nonNil(slices.Clone(r.report.WarningsByPhase[p])),
	}, nil
}

// runPhase executes one phase. A store that fails its ping, or a panic in
// the phase body, aborts the phase without touching the ones after it.
func (o *Orchestrator) runPhase(r *run, p Phase) {
	start := time.Now()
	o.logger.Info("commit phase started", "phase", p.String(), "total", r.report.Steps[p].Total)

	defer func() {
		if v := recover(); v != nil {
			o.logger.Error("commit phase panicked", "phase", p.String(), "panic", v)
			r.abort(p, fmt.Errorf("panic: %v", v))
		}
		s := r.report.Steps[p]
		o.logger.Info("commit phase finished",
			"phase", p.String(),
			"ok", s.OK,
			"skipped", s.Skipped,
			"warn", s.Warn,
			"error", s.Error,
			"aborted", s.Aborted,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	if err := o.store.Ping(r.ctx); err != nil {
		r.abort(p, fmt.Errorf("store unavailable: %w", err))
		return
	}
	phaseTable[p].run(r, p)
}

// run is the mutable state of one Commit or RunPhase call.
type run struct {
	ctx      context.Context
	resolver *Resolver
	logger   *slog.Logger
	wb       *StagedWorkbook
	state    *CommitState
	report   *CommitReport

	scope    []Phase // phases counted by the percentage
	progress ProgressFunc
	lastPct  int
}

func (o *Orchestrator) newRun(ctx context.Context, wb *StagedWorkbook, state *CommitState, scope []Phase, progress ProgressFunc) *run {
	return &run{
		ctx:      ctx,
		resolver: o.resolver,
		logger:   o.logger,
		wb:       wb,
		state:    state,
		report:   &state.Report,
		scope:    scope,
		progress: progress,
	}
}

// eachRow visits every staged row with its sheet index.
func (r *run) eachRow(fn func(i int, sh *StagedSheet, row *StagedRow)) {
	for i := range r.wb.Sheets {
		sh := &r.wb.Sheets[i]
		for j := range sh.Rows {
			fn(i, sh, &sh.Rows[j])
		}
	}
}

func (r *run) ok(p Phase) {
	s := &r.report.Steps[p]
	s.OK++
	s.Done = s.OK
	r.tick(p)
}

func (r *run) fail(p Phase, scope string, err error) {
	r.report.Steps[p].Error++
	r.report.ErrorsByPhase[p] = append(r.report.ErrorsByPhase[p], reportMessage(scope, err))
	r.logger.Debug("commit unit failed", "phase", p.String(), "unit", scope, "error", err)
	r.tick(p)
}

// warn records a warning without completing a unit.
func (r *run) warn(p Phase, scope, msg string) {
	r.report.Steps[p].Warn++
	r.report.WarningsByPhase[p] = append(r.report.WarningsByPhase[p], scope+": "+msg)
}

// skip completes n units at once under a single warning.
func (r *run) skip(p Phase, n int, msg string) {
	s := &r.report.Steps[p]
	s.Skipped += n
	s.Warn++
	r.report.WarningsByPhase[p] = append(r.report.WarningsByPhase[p], msg)
	r.tick(p)
}

// abort folds the units p has left into one error.
func (r *run) abort(p Phase, err error) {
	s := &r.report.Steps[p]
	remaining := max(s.Total-s.processed(), 0)
	s.Error += remaining
	s.Aborted = true
	scope := fmt.Sprintf("%s phase aborted (%d remaining)", p.Label(), remaining)
	r.report.ErrorsByPhase[p] = append(r.report.ErrorsByPhase[p], reportMessage(scope, err))
	r.logger.Warn("commit phase aborted", "phase", p.String(), "remaining", remaining, "error", err)
	r.tick(p)
}

// percent is processed over total units of the run's phases, clamped and
// never lower than a previous value.
func (r *run) percent() int {
	total, done := 0, 0
	for _, p := range r.scope {
		total += r.report.Steps[p].Total
		done += r.report.Steps[p].processed()
	}
	pct := 0
	if total > 0 {
		pct = min(max(done*100/total, 0), 100)
	}
	return max(pct, r.lastPct)
}

func (r *run) tick(p Phase) {
	r.lastPct = r.percent()
	if r.progress != nil {
		r.progress(r.lastPct, p.Label(), r.report.Snapshot())
	}
}

// finish emits the final 100% event.
func (r *run) finish() {
	r.lastPct = 100
	if r.progress != nil {
		r.progress(100, progressDone, r.report.Snapshot())
	}
}
