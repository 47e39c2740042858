package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/carteras/internal/core"
)

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	cells := map[string]any{
		"B1": "Norte", "F1": "Centro",
		"Q3": "07/10/2024",
		"A4": "F-1", "B4": "Ana", "H4": 150.0, "K4": 14.0, "Q4": 150.0,
	}
	for ref, v := range cells {
		if err := f.SetCellValue("Sheet1", ref, v); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "cartera.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	path := writeWorkbook(t)

	tests := []struct {
		name     string
		opts     options
		wantCode int
		wantOut  string
	}{
		{
			name:     "dry run text",
			opts:     options{file: path, dryRun: true},
			wantCode: 0,
			wantOut:  "Result: OK",
		},
		{
			name:     "sqlite json",
			opts:     options{file: path, sqlite: filepath.Join(t.TempDir(), "c.db"), format: "json"},
			wantCode: 0,
			wantOut:  `"global_ok": true`,
		},
		{
			name:     "credits without earlier phases fail",
			opts:     options{file: path, dryRun: true, phases: "credits"},
			wantCode: 2,
			wantOut:  "Result: FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code, err := run(context.Background(), tt.opts, &stdout, &stderr)
			if err != nil {
				t.Fatalf("run: %v\n%s", err, stderr.String())
			}
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout missing %q:\n%s", tt.wantOut, stdout.String())
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer

	if code, err := run(ctx, options{}, &out, &out); err == nil || code != 1 {
		t.Errorf("missing -file: code=%d err=%v", code, err)
	}
	if _, err := run(ctx, options{file: "x.xlsx", dryRun: true, phases: "bogus"}, &out, &out); err == nil {
		t.Error("unknown phase accepted")
	}
	if _, err := run(ctx, options{file: filepath.Join(t.TempDir(), "none.xlsx"), dryRun: true}, &out, &out); err == nil {
		t.Error("missing file accepted")
	}
}

func TestParsePhases(t *testing.T) {
	got, err := parsePhases(" Populations, clients ,,payments")
	if err != nil {
		t.Fatal(err)
	}
	want := []core.Phase{core.PhasePopulations, core.PhaseClients, core.PhasePayments}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase %d = %v, want %v", i, got[i], want[i])
		}
	}
}
