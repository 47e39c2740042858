package core

import (
	"math"
	"testing"
	"time"
)

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "trims", input: "  abc  ", want: "abc"},
		{name: "collapses whitespace", input: "ana \t  maria", want: "ana maria"},
		{name: "non-breaking space", input: "ana\u00a0maria", want: "ana maria"},
		{name: "formula prefix", input: `="00123"`, want: "00123"},
		{name: "leading equals", input: "=abc", want: "abc"},
		{name: "quotes", input: `"quoted"`, want: "quoted"},
		{name: "nested artifacts", input: ` =" 'x' " `, want: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanCell(tt.input)
			if got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := CleanCell(got); again != got {
				t.Errorf("CleanCell not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestCellText(t *testing.T) {
	tests := []struct {
		name  string
		input Cell
		want  string
	}{
		{name: "nil", input: nil, want: ""},
		{name: "whole float", input: 14.0, want: "14"},
		{name: "fraction", input: 120.5, want: "120.5"},
		{name: "NaN", input: math.NaN(), want: ""},
		{name: "time", input: time.Date(2024, 7, 16, 13, 0, 0, 0, time.UTC), want: "2024-07-16"},
		{name: "string", input: "  Ana  ", want: "Ana"},
		{name: "unsupported", input: []byte("x"), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CellText(tt.input); got != tt.want {
				t.Errorf("CellText(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name      string
		input     Cell
		wantValid bool
		wantValue string
	}{
		{name: "float", input: 150.0, wantValid: true, wantValue: "150"},
		{name: "plain text", input: "123.45", wantValid: true, wantValue: "123.45"},
		{name: "currency", input: "$1,234.50", wantValid: true, wantValue: "1234.5"},
		{name: "european", input: "1.234,50", wantValid: true, wantValue: "1234.5"},
		{name: "decimal comma", input: "120,50", wantValid: true, wantValue: "120.5"},
		{name: "thousands comma", input: "1,234", wantValid: true, wantValue: "1234"},
		{name: "dotted thousands", input: "1.234.567", wantValid: true, wantValue: "1234567"},
		{name: "accounting negative", input: "(12.00)", wantValid: true, wantValue: "-12"},
		{name: "peso suffix", input: "500 MXN", wantValid: true, wantValue: "500"},
		{name: "empty", input: "", wantValid: false},
		{name: "nil", input: nil, wantValid: false},
		{name: "text", input: "abc", wantValid: false},
		{name: "infinity", input: math.Inf(1), wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDecimal(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToDecimal(%v).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if tt.wantValid && got.Decimal.String() != tt.wantValue {
				t.Errorf("ToDecimal(%v) = %s, want %s", tt.input, got.Decimal, tt.wantValue)
			}
		})
	}
}

func TestToPgInt4(t *testing.T) {
	tests := []struct {
		name      string
		input     Cell
		wantValid bool
		want      int32
	}{
		{name: "float", input: 14.0, wantValid: true, want: 14},
		{name: "text", input: "13", wantValid: true, want: 13},
		{name: "fraction", input: 13.5, wantValid: false},
		{name: "too large", input: 1e12, wantValid: false},
		{name: "garbage", input: "catorce", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgInt4(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToPgInt4(%v).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if tt.wantValid && got.Int32 != tt.want {
				t.Errorf("ToPgInt4(%v) = %d, want %d", tt.input, got.Int32, tt.want)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name  string
		input Cell
		want  string
	}{
		{name: "iso", input: "2024-07-16", want: "2024-07-16"},
		{name: "day first slash", input: "16/07/2024", want: "2024-07-16"},
		{name: "day first unpadded", input: "7/10/2024", want: "2024-10-07"},
		{name: "day first dash", input: "16-07-2024", want: "2024-07-16"},
		{name: "two digit year", input: "16/07/24", want: "2024-07-16"},
		{name: "two digit year past century", input: "16/07/75", want: "1975-07-16"},
		{name: "excel serial float", input: 45489.0, want: "2024-07-16"},
		{name: "excel serial text", input: "45489", want: "2024-07-16"},
		{name: "time value", input: time.Date(2024, 7, 16, 18, 30, 0, 0, time.UTC), want: "2024-07-16"},
		{name: "day month without year", input: "16/07", want: "2024-07-16"},
		{name: "short month name", input: "16 Jul", want: "2024-07-16"},
		{name: "spanish month", input: "16 de julio de 2023", want: "2023-07-16"},
		{name: "spanish abbreviation", input: "3 Dic", want: "2024-12-03"},
		{name: "english order", input: "Jul 16, 2024", want: "2024-07-16"},
		{name: "overflow rejected", input: "31/02", want: ""},
		{name: "month out of range", input: "16/13", want: ""},
		{name: "serial out of range", input: 0.0, want: ""},
		{name: "text", input: "pendiente", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDate(tt.input, testNow); got != tt.want {
				t.Errorf("NormalizeDate(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestToPgText(t *testing.T) {
	if got := ToPgText("   "); got.Valid {
		t.Errorf("ToPgText(blank) should be invalid, got %+v", got)
	}
	if got := ToPgText(" x "); !got.Valid || got.String != "x" {
		t.Errorf("ToPgText(\" x \") = %+v, want valid \"x\"", got)
	}
}

func TestFoldKey(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{a: "María López", b: "MARIA  LOPEZ", same: true},
		{a: "Ñuño", b: "nuno", same: true},
		{a: "Ana", b: "Ana Maria", same: false},
		{a: "", b: "", same: false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			if got := SameName(tt.a, tt.b); got != tt.same {
				t.Errorf("SameName(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}
