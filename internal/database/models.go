package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Route is a collection route grouping several populations.
type Route struct {
	ID   int64
	Name string
}

// Population is one town or neighbourhood served by a route.
type Population struct {
	ID           int64
	Name         string
	Municipality string
	State        string
	RouteID      pgtype.Int8
}

// Coordinator is the group agent responsible for a population.
type Coordinator struct {
	ID           int64
	Name         string
	PopulationID int64
	Phone        pgtype.Text
	Address      pgtype.Text
	Birthdate    pgtype.Date
}

// Client is an individual borrower.
type Client struct {
	ID           int64
	Name         string
	NationalID   pgtype.Text
	Address      pgtype.Text
	PopulationID int64
	GuarantorID  pgtype.Int8
}

// Guarantor backs one or more client credits.
type Guarantor struct {
	ID         int64
	Name       string
	NationalID pgtype.Text
	Address    pgtype.Text
}

// Credit is a loan owned by exactly one subject (client XOR coordinator).
type Credit struct {
	ID               int64
	ClientID         pgtype.Int8
	CoordinatorID    pgtype.Int8
	PopulationID     int64
	RouteID          pgtype.Int8
	ExternalKey      string
	TermWeeks        int32
	Principal        decimal.Decimal
	WeeklyQuota      decimal.Decimal
	TotalDue         decimal.NullDecimal
	OverdueBalance   decimal.NullDecimal
	WeeksOverdue     pgtype.Int4
	Penalty          pgtype.Text
	CollectionDay    pgtype.Text
	Notes            pgtype.Text
	DisbursementDate pgtype.Date
}

// Payment is one weekly installment received for a credit.
type Payment struct {
	ID       int64
	CreditID int64
	PaidOn   time.Time
	Amount   decimal.Decimal
}

// ImportRun records one commit attempt of an import session.
type ImportRun struct {
	ID         pgtype.UUID
	SessionID  string
	FileName   string
	StartedAt  time.Time
	FinishedAt pgtype.Timestamptz
	GlobalOK   pgtype.Bool
	ReportText pgtype.Text
}

type InsertPopulationParams struct {
	Name         string
	Municipality string
	State        string
	RouteID      pgtype.Int8
}

type GetPopulationByKeyParams struct {
	Name         string
	Municipality string
	State        string
}

type GetCoordinatorByKeyParams struct {
	Name         string
	PopulationID int64
}

type InsertCoordinatorParams struct {
	Name         string
	PopulationID int64
	Phone        pgtype.Text
	Address      pgtype.Text
	Birthdate    pgtype.Date
}

type GetClientByNameParams struct {
	Name         string
	PopulationID int64
}

type InsertClientParams struct {
	Name         string
	NationalID   pgtype.Text
	Address      pgtype.Text
	PopulationID int64
}

type SetClientGuarantorParams struct {
	ClientID    int64
	GuarantorID int64
}

type InsertGuarantorParams struct {
	Name       string
	NationalID pgtype.Text
	Address    pgtype.Text
}

type GetCreditByKeyParams struct {
	PopulationID int64
	ExternalKey  string
}

// GetCreditByKeyRow carries the stored borrower so callers can tell a
// repeated row from a key collision between different borrowers.
type GetCreditByKeyRow struct {
	ID            int64
	ClientID      pgtype.Int8
	CoordinatorID pgtype.Int8
}

type InsertCreditParams struct {
	ClientID         pgtype.Int8
	CoordinatorID    pgtype.Int8
	PopulationID     int64
	RouteID          pgtype.Int8
	ExternalKey      string
	TermWeeks        int32
	Principal        decimal.Decimal
	WeeklyQuota      decimal.Decimal
	TotalDue         decimal.NullDecimal
	OverdueBalance   decimal.NullDecimal
	WeeksOverdue     pgtype.Int4
	Penalty          pgtype.Text
	CollectionDay    pgtype.Text
	Notes            pgtype.Text
	DisbursementDate pgtype.Date
}

type GetPaymentByKeyParams struct {
	CreditID int64
	PaidOn   time.Time
}

type GetPaymentByKeyRow struct {
	ID     int64
	Amount decimal.Decimal
}

type InsertPaymentParams struct {
	CreditID int64
	PaidOn   time.Time
	Amount   decimal.Decimal
}

type InsertImportRunParams struct {
	ID        pgtype.UUID
	SessionID string
	FileName  string
	StartedAt time.Time
}

type FinishImportRunParams struct {
	ID         pgtype.UUID
	GlobalOK   bool
	ReportText string
}

// ListImportRunsParams pages through import runs, newest first.
type ListImportRunsParams struct {
	Limit  int32
	Offset int32
}
