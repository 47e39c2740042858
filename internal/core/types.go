// Package core provides the business logic for loan-portfolio workbook imports.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyWorkbook is returned before any phase runs when the workbook
	// is nil or has no sheets.
	ErrEmptyWorkbook = errors.New("empty workbook: no sheets to import")

	// ErrSheetIndex is returned by header edits addressing a missing sheet.
	ErrSheetIndex = errors.New("sheet index out of range")
)

// Cell is one raw workbook value: string, float64, time.Time or nil.
type Cell = any

// Sheet is one tab of the input workbook as a row-major cell grid.
type Sheet struct {
	Name string
	Rows [][]Cell
}

// Workbook is the decoded input file.
type Workbook struct {
	FileName string
	Sheets   []Sheet
}

// HeaderLayout identifies which fixed-position header variant a sheet uses.
// It is kept for diagnostics; nothing downstream branches on it.
type HeaderLayout int

const (
	LayoutA HeaderLayout = iota
	LayoutB
)

func (l HeaderLayout) String() string {
	switch l {
	case LayoutA:
		return "A"
	case LayoutB:
		return "B"
	default:
		return "unknown"
	}
}

func (l HeaderLayout) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// SheetHeader is the canonical per-sheet metadata block.
type SheetHeader struct {
	PopulationNumber    string       `json:"population_number"`
	PopulationName      string       `json:"population_name"`
	RouteName           string       `json:"route_name"`
	Frequency           string       `json:"frequency"`
	CoordinatorName     string       `json:"coordinator_name"`
	CoordinatorPhone    string       `json:"coordinator_phone"`
	CoordinatorAddress  string       `json:"coordinator_address"`
	CoordinatorBirthday string       `json:"coordinator_birthday"` // YYYY-MM-DD when parseable
	Municipality        string       `json:"municipality"`
	State               string       `json:"state"`
	Layout              HeaderLayout `json:"layout"`
}

// Subject is the borrower type of a credit.
type Subject int

const (
	SubjectClient Subject = iota
	SubjectCoordinator
)

func (s Subject) String() string {
	if s == SubjectCoordinator {
		return "coordinator"
	}
	return "client"
}

func (s Subject) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ClassifyRule records which rule produced a row's subject.
type ClassifyRule int

const (
	RuleDefault   ClassifyRule = iota // term gave no signal; defaults to client
	RuleNameMatch                     // client name equals the sheet coordinator
	RuleTerm                          // term in {9,10} or {13,14}
)

func (r ClassifyRule) String() string {
	switch r {
	case RuleNameMatch:
		return "name_match"
	case RuleTerm:
		return "term"
	default:
		return "default"
	}
}

func (r ClassifyRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// StagedPayment is one payment cell of a staged row.
type StagedPayment struct {
	Date   string          `json:"date"` // YYYY-MM-DD
	Amount decimal.Decimal `json:"amount"`
}

// StagedRow is a parsed, not yet committed data row.
type StagedRow struct {
	Line int `json:"line"` // 1-based worksheet row

	Folio               string `json:"folio"`
	ClientName          string `json:"client_name"`
	ClientNationalID    string `json:"client_national_id"`
	ClientAddress       string `json:"client_address"`
	GuarantorName       string `json:"guarantor_name"`
	GuarantorNationalID string `json:"guarantor_national_id"`
	GuarantorAddress    string `json:"guarantor_address"`

	WeeklyQuota      decimal.NullDecimal `json:"weekly_quota"`
	Penalty          string              `json:"penalty"`
	TotalDue         decimal.NullDecimal `json:"total_due"`
	TermWeeks        pgtype.Int4         `json:"term_weeks"`
	WeeksOverdue     pgtype.Int4         `json:"weeks_overdue"`
	OverdueBalance   decimal.NullDecimal `json:"overdue_balance"`
	CollectionDay    string              `json:"collection_day"`
	Notes            string              `json:"notes"`
	DisbursementDate string              `json:"disbursement_date"` // YYYY-MM-DD or empty

	Payments []StagedPayment `json:"payments"`

	// DuplicateOf is the line of an earlier row in the same sheet with the
	// same folio, or 0.
	DuplicateOf int `json:"duplicate_of,omitempty"`

	Subject Subject      `json:"subject"`
	Rule    ClassifyRule `json:"rule"`
}

// StagedSheet is one sheet after header normalization and row extraction.
type StagedSheet struct {
	Name               string      `json:"name"`
	Header             SheetHeader `json:"header"`
	Rows               []StagedRow `json:"rows"`
	IsCoordinatorSheet bool        `json:"is_coordinator_sheet"`
}

// StagedWorkbook is the in-memory result of staging, mutated by header
// edits and consumed by commit attempts.
type StagedWorkbook struct {
	FileName string        `json:"file_name"`
	Sheets   []StagedSheet `json:"sheets"`
}

// RowRef addresses one staged row across the workbook.
type RowRef struct {
	Sheet int
	Line  int
}

// Clock returns the current time. Staging uses it for missing-year defaults.
type Clock func() time.Time
