package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/JonMunkholm/carteras/internal/database"
)

func TestService_ImportHistory(t *testing.T) {
	store := database.NewMemory()
	svc := newTestService(store)
	ctx := context.Background()

	for _, wb := range []*Workbook{scenarioWorkbook(), oneRowWorkbook()} {
		view, err := svc.CreateSession(ctx, wb)
		if err != nil {
			t.Fatal(err)
		}
		if err := svc.StartCommit(ctx, view.ID); err != nil {
			t.Fatal(err)
		}
		waitFor(t, svc, view.ID)
	}

	all, err := svc.ImportHistory(ctx, HistoryOptions{})
	if err != nil {
		t.Fatalf("ImportHistory: %v", err)
	}
	if all.TotalCount != 2 || len(all.Runs) != 2 || all.PageSize != DefaultHistoryLimit || all.TotalPages != 1 {
		t.Fatalf("page = %+v", all)
	}
	if all.Runs[0].StartedAt.Before(all.Runs[1].StartedAt) {
		t.Error("runs not ordered newest first")
	}
	for _, r := range all.Runs {
		if !r.Finished() || r.GlobalOK == nil || !*r.GlobalOK {
			t.Errorf("run %s not finished cleanly: %+v", r.ID, r)
		}
	}

	tests := []struct {
		name      string
		opts      HistoryOptions
		wantRuns  int
		wantPage  int
		wantPages int
	}{
		{name: "first page", opts: HistoryOptions{Limit: 1}, wantRuns: 1, wantPage: 1, wantPages: 2},
		{name: "second page", opts: HistoryOptions{Limit: 1, Offset: 1}, wantRuns: 1, wantPage: 2, wantPages: 2},
		{name: "past the end", opts: HistoryOptions{Limit: 1, Offset: 5}, wantRuns: 0, wantPage: 6, wantPages: 2},
		{name: "limit capped", opts: HistoryOptions{Limit: MaxHistoryLimit * 2}, wantRuns: 2, wantPage: 1, wantPages: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ImportHistory(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(page.Runs) != tt.wantRuns || page.Page != tt.wantPage || page.TotalPages != tt.wantPages {
				t.Errorf("runs=%d page=%d pages=%d", len(page.Runs), page.Page, page.TotalPages)
			}
			if page.PageSize > MaxHistoryLimit {
				t.Errorf("page size %d exceeds cap", page.PageSize)
			}
		})
	}
}

func TestService_ImportRun(t *testing.T) {
	store := database.NewMemory()
	svc := newTestService(store)
	ctx := context.Background()

	view, _ := svc.CreateSession(ctx, scenarioWorkbook())
	if err := svc.StartCommit(ctx, view.ID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, svc, view.ID)

	runs := store.ImportRuns()
	if len(runs) != 1 {
		t.Fatalf("runs = %d", len(runs))
	}
	detail, err := svc.ImportRun(ctx, uuid.UUID(runs[0].ID.Bytes))
	if err != nil {
		t.Fatalf("ImportRun: %v", err)
	}
	report, _, _ := svc.Report(view.ID)
	if detail.Report != report.String() || detail.FileName != "cartera.xlsx" || detail.SessionID != view.ID.String() {
		t.Errorf("detail = %+v", detail)
	}

	if _, err := svc.ImportRun(ctx, uuid.New()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("unknown run err = %v, want ErrRunNotFound", err)
	}
	if got := MapError(ErrRunNotFound).Code; got != "IMP009" {
		t.Errorf("code = %q, want IMP009", got)
	}
}
