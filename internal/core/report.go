package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// StepReport holds the counters of one phase. Done equals OK. Skipped
// counts units processed without being created (payments of a row without
// a credit). Error counts failed units; an aborted phase folds its
// remaining units into Error under a single message. Warn counts messages.
type StepReport struct {
	Total   int  `json:"total"`
	Done    int  `json:"done"`
	OK      int  `json:"ok"`
	Skipped int  `json:"skipped"`
	Warn    int  `json:"warn"`
	Error   int  `json:"error"`
	Aborted bool `json:"aborted,omitempty"`
}

// processed returns units handled so far, successful or not.
func (s StepReport) processed() int {
	return s.OK + s.Skipped + s.Error
}

// CommitReport is the consolidated result of a commit.
type CommitReport struct {
	Steps           [phaseCount]StepReport
	ErrorsByPhase   [phaseCount][]string
	WarningsByPhase [phaseCount][]string
	GlobalOK        bool
}

// Step returns the counters of phase p.
func (r *CommitReport) Step(p Phase) StepReport {
	return r.Steps[p]
}

// Errors returns the error messages of phase p.
func (r *CommitReport) Errors(p Phase) []string {
	return r.ErrorsByPhase[p]
}

// Warnings returns the warning messages of phase p.
func (r *CommitReport) Warnings(p Phase) []string {
	return r.WarningsByPhase[p]
}

// resetPhase clears counters and messages of p, keeping its total.
func (r *CommitReport) resetPhase(p Phase) {
	r.Steps[p] = StepReport{Total: r.Steps[p].Total}
	r.ErrorsByPhase[p] = nil
	r.WarningsByPhase[p] = nil
}

// recomputeGlobalOK sets GlobalOK: true iff no phase recorded an error or
// was aborted. Warnings never affect it.
func (r *CommitReport) recomputeGlobalOK() {
	r.GlobalOK = true
	for _, s := range r.Steps {
		if s.Error > 0 || s.Aborted {
			r.GlobalOK = false
			return
		}
	}
}

// Snapshot returns a deep copy safe to hand to progress listeners.
func (r *CommitReport) Snapshot() CommitReport {
	out := *r
	for p := range out.ErrorsByPhase {
		out.ErrorsByPhase[p] = slices.Clone(r.ErrorsByPhase[p])
		out.WarningsByPhase[p] = slices.Clone(r.WarningsByPhase[p])
	}
	return out
}

// TotalUnits returns the sum of all phase totals.
func (r *CommitReport) TotalUnits() int {
	n := 0
	for _, s := range r.Steps {
		n += s.Total
	}
	return n
}

// ProcessedUnits returns the sum of processed units across phases.
func (r *CommitReport) ProcessedUnits() int {
	n := 0
	for _, s := range r.Steps {
		n += s.processed()
	}
	return n
}

// PhaseReport is the JSON form of one phase.
type PhaseReport struct {
	Phase    string   `json:"phase"`
	Label    string   `json:"label"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
	StepReport
}

type commitReportJSON struct {
	Phases   []PhaseReport `json:"phases"`
	GlobalOK bool          `json:"global_ok"`
}

// MarshalJSON renders phases in fixed order, keyed by phase name.
func (r CommitReport) MarshalJSON() ([]byte, error) {
	out := commitReportJSON{GlobalOK: r.GlobalOK, Phases: make([]PhaseReport, 0, phaseCount)}
	for _, p := range Phases() {
		out.Phases = append(out.Phases, PhaseReport{
			Phase:      p.String(),
			Label:      p.Label(),
			Warnings:   nonNil(r.WarningsByPhase[p]),
			Errors:     nonNil(r.ErrorsByPhase[p]),
			StepReport: r.Steps[p],
		})
	}
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// String renders the deterministic plain-text report used for the "copy
// log" export: phases in order, each with counters, then warnings, then
// errors.
func (r CommitReport) String() string {
	var b strings.Builder
	for _, p := range Phases() {
		writeStep(&b, p, r.Steps[p], r.WarningsByPhase[p], r.ErrorsByPhase[p])
	}
	if r.GlobalOK {
		b.WriteString("Result: OK\n")
	} else {
		b.WriteString("Result: FAILED\n")
	}
	return b.String()
}

func writeStep(b *strings.Builder, p Phase, s StepReport, warnings, errs []string) {
	fmt.Fprintf(b, "[%s] total=%d done=%d ok=%d skipped=%d warn=%d error=%d",
		p.Label(), s.Total, s.Done, s.OK, s.Skipped, s.Warn, s.Error)
	if s.Aborted {
		b.WriteString(" (aborted)")
	}
	b.WriteByte('\n')
	for _, w := range warnings {
		fmt.Fprintf(b, "  WARN  %s\n", w)
	}
	for _, e := range errs {
		fmt.Fprintf(b, "  ERROR %s\n", e)
	}
}

// PhaseResult is the outcome of a single-phase run.
type PhaseResult struct {
	Phase    Phase      `json:"-"`
	Step     StepReport `json:"step"`
	Errors   []string   `json:"errors"`
	Warnings []string   `json:"warnings"`
}

// MarshalJSON adds the phase name.
func (r PhaseResult) MarshalJSON() ([]byte, error) {
	type alias PhaseResult
	return json.Marshal(struct {
		Phase string `json:"phase"`
		alias
	}{Phase: r.Phase.String(), alias: alias(r)})
}

// String renders the phase in the same format as CommitReport.String.
func (r PhaseResult) String() string {
	var b strings.Builder
	writeStep(&b, r.Phase, r.Step, r.Warnings, r.Errors)
	return b.String()
}
