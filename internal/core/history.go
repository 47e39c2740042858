package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/carteras/internal/database"
)

// ErrRunNotFound is returned when no import run has the requested id.
var ErrRunNotFound = errors.New("import run not found")

// History paging bounds.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// RunSummary is one row of the import history.
type RunSummary struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  string     `json:"session_id"`
	FileName   string     `json:"file_name"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	GlobalOK   *bool      `json:"global_ok,omitempty"`
}

// Finished reports whether the run recorded its outcome. A run that never
// finished was interrupted by a crash or shutdown.
func (r RunSummary) Finished() bool { return r.FinishedAt != nil }

// RunDetail adds the stored report text to a summary.
type RunDetail struct {
	RunSummary
	Report string `json:"report"`
}

// HistoryOptions pages through import runs, newest first.
type HistoryOptions struct {
	Limit  int
	Offset int
}

// HistoryPage is one page of import runs.
type HistoryPage struct {
	Runs       []RunSummary `json:"runs"`
	TotalCount int64        `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

func (o HistoryOptions) normalized() HistoryOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultHistoryLimit
	}
	o.Limit = min(o.Limit, MaxHistoryLimit)
	o.Offset = max(o.Offset, 0)
	return o
}

// ImportHistory lists recorded commit attempts.
func (s *Service) ImportHistory(ctx context.Context, opts HistoryOptions) (*HistoryPage, error) {
	opts = opts.normalized()

	runs, err := s.store.ListImportRuns(ctx, database.ListImportRunsParams{
		Limit:  int32(opts.Limit),
		Offset: int32(opts.Offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	total, err := s.store.CountImportRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("count import runs: %w", err)
	}

	page := &HistoryPage{
		Runs:       make([]RunSummary, 0, len(runs)),
		TotalCount: total,
		Page:       opts.Offset/opts.Limit + 1,
		PageSize:   opts.Limit,
		TotalPages: int((total + int64(opts.Limit) - 1) / int64(opts.Limit)),
	}
	for _, r := range runs {
		page.Runs = append(page.Runs, summarize(r))
	}
	return page, nil
}

// ImportRun returns a single run with its report text.
func (s *Service) ImportRun(ctx context.Context, id uuid.UUID) (*RunDetail, error) {
	run, err := s.store.GetImportRun(ctx, pgtype.UUID{Bytes: id, Valid: true})
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get import run: %w", err)
	}
	return &RunDetail{RunSummary: summarize(run), Report: run.ReportText.String}, nil
}

func summarize(r database.ImportRun) RunSummary {
	out := RunSummary{
		ID:        uuid.UUID(r.ID.Bytes),
		SessionID: r.SessionID,
		FileName:  r.FileName,
		StartedAt: r.StartedAt,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		out.FinishedAt = &t
	}
	if r.GlobalOK.Valid {
		ok := r.GlobalOK.Bool
		out.GlobalOK = &ok
	}
	return out
}
