package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func TestMemory_NotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetRouteByName(ctx, "NORTE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRouteByName on empty store: got %v, want ErrNotFound", err)
	}
	if _, err := m.GetClientByNationalID(ctx, "X"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetClientByNationalID on empty store: got %v, want ErrNotFound", err)
	}
	if err := m.SetClientGuarantor(ctx, SetClientGuarantorParams{ClientID: 9, GuarantorID: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetClientGuarantor unknown client: got %v, want ErrNotFound", err)
	}
}

func TestMemory_UniqueKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	routeID, err := m.InsertRoute(ctx, "NORTE")
	if err != nil {
		t.Fatalf("InsertRoute: %v", err)
	}
	if _, err := m.InsertRoute(ctx, "NORTE"); !errors.Is(err, ErrUniqueViolation) {
		t.Errorf("duplicate route: got %v, want ErrUniqueViolation", err)
	}

	popID, err := m.InsertPopulation(ctx, InsertPopulationParams{
		Name:    "SAN JUAN",
		RouteID: pgtype.Int8{Int64: routeID, Valid: true},
	})
	if err != nil {
		t.Fatalf("InsertPopulation: %v", err)
	}

	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "client by national id",
			run: func() error {
				arg := InsertClientParams{Name: "ANA", NationalID: pgtype.Text{String: "CURP1", Valid: true}, PopulationID: popID}
				if _, err := m.InsertClient(ctx, arg); err != nil {
					return err
				}
				arg.Name = "OTHER NAME"
				_, err := m.InsertClient(ctx, arg)
				return err
			},
		},
		{
			name: "client by name without national id",
			run: func() error {
				arg := InsertClientParams{Name: "LUIS", PopulationID: popID}
				if _, err := m.InsertClient(ctx, arg); err != nil {
					return err
				}
				_, err := m.InsertClient(ctx, arg)
				return err
			},
		},
		{
			name: "guarantor by name",
			run: func() error {
				if _, err := m.InsertGuarantor(ctx, InsertGuarantorParams{Name: "PEDRO"}); err != nil {
					return err
				}
				_, err := m.InsertGuarantor(ctx, InsertGuarantorParams{Name: "PEDRO"})
				return err
			},
		},
		{
			name: "coordinator per population",
			run: func() error {
				arg := InsertCoordinatorParams{Name: "MARIA", PopulationID: popID}
				if _, err := m.InsertCoordinator(ctx, arg); err != nil {
					return err
				}
				_, err := m.InsertCoordinator(ctx, arg)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, ErrUniqueViolation) {
				t.Errorf("got %v, want ErrUniqueViolation", err)
			}
		})
	}
}

func TestMemory_CreditAndPayment(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	popID, _ := m.InsertPopulation(ctx, InsertPopulationParams{Name: "CENTRO"})
	clientID, _ := m.InsertClient(ctx, InsertClientParams{Name: "ANA", PopulationID: popID})

	if _, err := m.InsertCredit(ctx, InsertCreditParams{PopulationID: popID, ExternalKey: "1"}); err == nil {
		t.Error("credit without subject should fail")
	}

	creditID, err := m.InsertCredit(ctx, InsertCreditParams{
		ClientID:     pgtype.Int8{Int64: clientID, Valid: true},
		PopulationID: popID,
		ExternalKey:  "1",
		TermWeeks:    14,
		Principal:    decimal.NewFromInt(1400),
		WeeklyQuota:  decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("InsertCredit: %v", err)
	}

	got, err := m.GetCreditByKey(ctx, GetCreditByKeyParams{PopulationID: popID, ExternalKey: "1"})
	if err != nil || got.ID != creditID || !got.ClientID.Valid || got.CoordinatorID.Valid {
		t.Errorf("GetCreditByKey = %+v, %v; want client credit %d", got, err, creditID)
	}

	day := time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC)
	if _, err := m.InsertPayment(ctx, InsertPaymentParams{CreditID: creditID, PaidOn: day, Amount: decimal.Zero}); err == nil {
		t.Error("zero payment should fail")
	}
	if _, err := m.InsertPayment(ctx, InsertPaymentParams{CreditID: creditID, PaidOn: day, Amount: decimal.NewFromInt(100)}); err != nil {
		t.Fatalf("InsertPayment: %v", err)
	}
	if got, err := m.GetPaymentByKey(ctx, GetPaymentByKeyParams{CreditID: creditID, PaidOn: day}); err != nil || !got.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("GetPaymentByKey = %+v, %v", got, err)
	}
	if n := len(m.Payments()); n != 1 {
		t.Errorf("Payments() len = %d, want 1", n)
	}
}

func TestMemory_FailOn(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.FailOn = func(op string) error {
		if op == "InsertRoute" {
			return boom
		}
		return nil
	}

	ctx := context.Background()
	if _, err := m.InsertRoute(ctx, "NORTE"); !errors.Is(err, boom) {
		t.Errorf("InsertRoute: got %v, want injected error", err)
	}
	// The store must stay usable after an injected failure.
	if _, err := m.GetRouteByName(ctx, "NORTE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRouteByName: got %v, want ErrNotFound", err)
	}
	if got := m.Calls("InsertRoute"); got != 1 {
		t.Errorf("Calls(InsertRoute) = %d, want 1", got)
	}
}

func TestMemory_ImportRuns(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id := pgtype.UUID{Bytes: [16]byte{1, 2, 3}, Valid: true}

	if err := m.InsertImportRun(ctx, InsertImportRunParams{ID: id, SessionID: "s", FileName: "a.xlsx", StartedAt: time.Now()}); err != nil {
		t.Fatalf("InsertImportRun: %v", err)
	}
	if err := m.FinishImportRun(ctx, FinishImportRunParams{ID: id, GlobalOK: true, ReportText: "ok"}); err != nil {
		t.Fatalf("FinishImportRun: %v", err)
	}

	runs := m.ImportRuns()
	if len(runs) != 1 {
		t.Fatalf("ImportRuns len = %d, want 1", len(runs))
	}
	if !runs[0].GlobalOK.Bool || !runs[0].FinishedAt.Valid || runs[0].ReportText.String != "ok" {
		t.Errorf("run not finished correctly: %+v", runs[0])
	}
}

func TestMemory_ListImportRuns(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()
	for i := range 3 {
		id := pgtype.UUID{Bytes: [16]byte{byte(i + 1)}, Valid: true}
		if err := m.InsertImportRun(ctx, InsertImportRunParams{ID: id, FileName: "f.xlsx", StartedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		params ListImportRunsParams
		want   []byte
	}{
		{name: "all", params: ListImportRunsParams{}, want: []byte{3, 2, 1}},
		{name: "limit", params: ListImportRunsParams{Limit: 2}, want: []byte{3, 2}},
		{name: "offset", params: ListImportRunsParams{Limit: 2, Offset: 2}, want: []byte{1}},
		{name: "past end", params: ListImportRunsParams{Limit: 2, Offset: 9}, want: []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := m.ListImportRuns(ctx, tt.params)
			if err != nil {
				t.Fatal(err)
			}
			if len(runs) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(runs), len(tt.want))
			}
			for i, r := range runs {
				if r.ID.Bytes[0] != tt.want[i] {
					t.Errorf("runs[%d] = %d, want %d", i, r.ID.Bytes[0], tt.want[i])
				}
			}
		})
	}

	if n, _ := m.CountImportRuns(ctx); n != 3 {
		t.Errorf("CountImportRuns = %d", n)
	}
	if _, err := m.GetImportRun(ctx, pgtype.UUID{Bytes: [16]byte{9}, Valid: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetImportRun unknown = %v", err)
	}
}
