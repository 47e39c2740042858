package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/carteras/internal/database"
)

// Phase is one ordered step of a commit.
type Phase int

const (
	PhasePopulations Phase = iota
	PhaseCoordinators
	PhaseClients
	PhaseGuarantors
	PhaseCredits
	PhasePayments

	phaseCount
)

// ErrUnknownPhase is returned by ParsePhase for an unrecognized name.
var ErrUnknownPhase = errors.New("unknown phase")

var phaseNames = [phaseCount]string{
	"populations",
	"coordinators",
	"clients",
	"guarantors",
	"credits",
	"payments",
}

var phaseLabels = [phaseCount]string{
	"Populations",
	"Coordinators",
	"Clients",
	"Guarantors",
	"Credits",
	"Payments",
}

// String returns the wire name of p.
func (p Phase) String() string {
	if p < 0 || p >= phaseCount {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Label returns the display name of p.
func (p Phase) Label() string {
	if p < 0 || p >= phaseCount {
		return p.String()
	}
	return phaseLabels[p]
}

// ParsePhase maps a wire name (case-insensitive) to its Phase.
func ParsePhase(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range phaseNames {
		if name == s {
			return Phase(p), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// Phases returns every phase in execution order.
func Phases() []Phase {
	out := make([]Phase, phaseCount)
	for i := range out {
		out[i] = Phase(i)
	}
	return out
}

// phaseSpec binds a phase to its unit counter and runner.
type phaseSpec struct {
	count func(wb *StagedWorkbook) int
	run   func(r *run, p Phase)
}

// phaseTable is indexed by Phase; the array length makes a missing phase a
// compile error.
var phaseTable = [phaseCount]phaseSpec{
	PhasePopulations:  {count: countSheets, run: runPopulations},
	PhaseCoordinators: {count: countCoordinatorSheets, run: runCoordinators},
	PhaseClients:      {count: countClientRows, run: runClients},
	PhaseGuarantors:   {count: countGuarantorRows, run: runGuarantors},
	PhaseCredits:      {count: countRows, run: runCredits},
	PhasePayments:     {count: countPaymentLines, run: runPayments},
}

func countSheets(wb *StagedWorkbook) int {
	return len(wb.Sheets)
}

func countCoordinatorSheets(wb *StagedWorkbook) int {
	n := 0
	for _, sh := range wb.Sheets {
		if sh.Header.CoordinatorName != "" {
			n++
		}
	}
	return n
}

func countClientRows(wb *StagedWorkbook) int {
	return countRowsWhere(wb, func(row StagedRow) bool { return row.Subject == SubjectClient })
}

func countGuarantorRows(wb *StagedWorkbook) int {
	return countRowsWhere(wb, func(row StagedRow) bool { return row.GuarantorName != "" })
}

func countRows(wb *StagedWorkbook) int {
	return wb.RowCount()
}

func countPaymentLines(wb *StagedWorkbook) int {
	n := 0
	for _, sh := range wb.Sheets {
		for _, row := range sh.Rows {
			n += len(row.Payments)
		}
	}
	return n
}

func countRowsWhere(wb *StagedWorkbook, keep func(StagedRow) bool) int {
	n := 0
	for _, sh := range wb.Sheets {
		for _, row := range sh.Rows {
			if keep(row) {
				n++
			}
		}
	}
	return n
}

func sheetScope(sh *StagedSheet) string {
	return fmt.Sprintf("sheet %q", sh.Name)
}

func rowScope(sh *StagedSheet, row *StagedRow) string {
	return fmt.Sprintf("sheet %q row %d", sh.Name, row.Line)
}

// errNoPopulation is the dependent failure of rows and sheets whose
// population did not resolve.
var errNoPopulation = errors.New("population not resolved")

// Populations: one unit per sheet.
func runPopulations(r *run, p Phase) {
	for i := range r.wb.Sheets {
		sh := &r.wb.Sheets[i]
		scope := sheetScope(sh)

		var routeID pgtype.Int8
		if sh.Header.RouteName != "" {
			id, err := r.resolver.EnsureRoute(r.ctx, r.state.rc, sh.Header.RouteName)
			if err != nil {
				r.fail(p, scope, err)
				continue
			}
			r.state.Routes[i] = id
			routeID = pgtype.Int8{Int64: id, Valid: true}
		}

		id, err := r.resolver.EnsurePopulation(r.ctx, r.state.rc, PopulationInput{
			Name:         sh.PopulationName(),
			Municipality: sh.Header.Municipality,
			State:        sh.Header.State,
			RouteID:      routeID,
		})
		if err != nil {
			r.fail(p, scope, err)
			continue
		}
		r.state.Populations[i] = id
		r.ok(p)
	}
}

// Coordinators: one unit per sheet that names a coordinator.
func runCoordinators(r *run, p Phase) {
	for i := range r.wb.Sheets {
		sh := &r.wb.Sheets[i]
		if sh.Header.CoordinatorName == "" {
			continue
		}
		scope := sheetScope(sh)

		popID, ok := r.state.Populations[i]
		if !ok {
			r.fail(p, scope, errNoPopulation)
			continue
		}
		id, err := r.resolver.EnsureCoordinator(r.ctx, r.state.rc, CoordinatorInput{
			Name:         sh.Header.CoordinatorName,
			PopulationID: popID,
			Phone:        sh.Header.CoordinatorPhone,
			Address:      sh.Header.CoordinatorAddress,
			Birthdate:    sh.Header.CoordinatorBirthday,
		})
		if err != nil {
			r.fail(p, scope, err)
			continue
		}
		r.state.Coordinators[i] = id
		r.ok(p)
	}
}

// Clients: one unit per row classified as a client.
func runClients(r *run, p Phase) {
	r.eachRow(func(i int, sh *StagedSheet, row *StagedRow) {
		if row.Subject != SubjectClient {
			return
		}
		scope := rowScope(sh, row)

		popID, ok := r.state.Populations[i]
		if !ok {
			r.fail(p, scope, errNoPopulation)
			return
		}
		id, err := r.resolver.EnsureClient(r.ctx, r.state.rc, ClientInput{
			Name:         row.ClientName,
			NationalID:   row.ClientNationalID,
			Address:      row.ClientAddress,
			PopulationID: popID,
		})
		if err != nil {
			r.fail(p, scope, err)
			return
		}
		r.state.Clients[RowRef{Sheet: i, Line: row.Line}] = id
		r.ok(p)
	})
}

// Guarantors: one unit per row naming a guarantor. The guarantor is created
// even when the row's client did not resolve; only the link is skipped.
func runGuarantors(r *run, p Phase) {
	r.eachRow(func(i int, sh *StagedSheet, row *StagedRow) {
		if row.GuarantorName == "" {
			return
		}
		scope := rowScope(sh, row)

		gID, err := r.resolver.EnsureGuarantor(r.ctx, r.state.rc, GuarantorInput{
			Name:       row.GuarantorName,
			NationalID: row.GuarantorNationalID,
			Address:    row.GuarantorAddress,
		})
		if err != nil {
			r.fail(p, scope, err)
			return
		}

		clientID, ok := r.state.Clients[RowRef{Sheet: i, Line: row.Line}]
		switch {
		case ok:
			if err := r.resolver.LinkGuarantor(r.ctx, clientID, gID); err != nil {
				r.fail(p, scope, err)
				return
			}
		case row.Subject == SubjectClient:
			r.warn(p, scope, "guarantor not linked: client not resolved")
		}
		r.ok(p)
	})
}

// Credits: one unit per row.
func runCredits(r *run, p Phase) {
	r.eachRow(func(i int, sh *StagedSheet, row *StagedRow) {
		scope := rowScope(sh, row)

		if row.DuplicateOf != 0 {
			r.warn(p, scope, fmt.Sprintf("folio %s repeats row %d", row.Folio, row.DuplicateOf))
		}
		if err := validationErr(ValidateStagedRow(*row)); err != nil {
			r.fail(p, scope, err)
			return
		}
		popID, ok := r.state.Populations[i]
		if !ok {
			r.fail(p, scope, errNoPopulation)
			return
		}

		ref := RowRef{Sheet: i, Line: row.Line}
		arg := database.InsertCreditParams{
			PopulationID:     popID,
			ExternalKey:      creditExternalKey(sh, row),
			TermWeeks:        row.TermWeeks.Int32,
			Principal:        creditPrincipal(row),
			WeeklyQuota:      row.WeeklyQuota.Decimal,
			TotalDue:         row.TotalDue,
			OverdueBalance:   row.OverdueBalance,
			WeeksOverdue:     row.WeeksOverdue,
			Penalty:          ToPgText(row.Penalty),
			CollectionDay:    ToPgText(row.CollectionDay),
			Notes:            ToPgText(row.Notes),
			DisbursementDate: isoToPgDate(row.DisbursementDate),
		}
		if id, ok := r.state.Routes[i]; ok {
			arg.RouteID = pgtype.Int8{Int64: id, Valid: true}
		}

		subject, err := r.creditSubject(i, sh, row, popID)
		if err != nil {
			r.fail(p, scope, err)
			return
		}
		if row.Subject == SubjectCoordinator {
			arg.CoordinatorID = subject
		} else {
			arg.ClientID = subject
		}

		id, err := r.resolver.EnsureCredit(r.ctx, r.state.rc, arg)
		if err != nil {
			r.fail(p, scope, err)
			return
		}
		r.state.Credits[ref] = id
		r.ok(p)
	})
}

// creditSubject resolves the borrower id of a credit row.
func (r *run) creditSubject(i int, sh *StagedSheet, row *StagedRow, popID int64) (pgtype.Int8, error) {
	if row.Subject == SubjectClient {
		id, ok := r.state.Clients[RowRef{Sheet: i, Line: row.Line}]
		if !ok {
			return pgtype.Int8{}, errors.New("client not resolved")
		}
		return pgtype.Int8{Int64: id, Valid: true}, nil
	}

	if row.Rule == RuleNameMatch {
		id, ok := r.state.Coordinators[i]
		if !ok {
			return pgtype.Int8{}, errors.New("coordinator not resolved")
		}
		return pgtype.Int8{Int64: id, Valid: true}, nil
	}

	// Term-classified coordinator rows name their own coordinator.
	id, err := r.resolver.EnsureCoordinator(r.ctx, r.state.rc, CoordinatorInput{
		Name:         row.ClientName,
		PopulationID: popID,
		Address:      row.ClientAddress,
	})
	if err != nil {
		return pgtype.Int8{}, err
	}
	return pgtype.Int8{Int64: id, Valid: true}, nil
}

// creditExternalKey is the folio, or "SHEET#LINE" when the row has none.
func creditExternalKey(sh *StagedSheet, row *StagedRow) string {
	if row.Folio != "" {
		return NormalizeKey(row.Folio)
	}
	return fmt.Sprintf("%s#%d", NormalizeKey(sh.Name), row.Line)
}

// creditPrincipal is the total due when present, otherwise quota times term.
func creditPrincipal(row *StagedRow) decimal.Decimal {
	if row.TotalDue.Valid && row.TotalDue.Decimal.IsPositive() {
		return row.TotalDue.Decimal
	}
	return row.WeeklyQuota.Decimal.Mul(decimal.NewFromInt32(row.TermWeeks.Int32))
}

// Payments: one unit per payment line. A row without a credit is reported
// once and all its lines count as skipped.
func runPayments(r *run, p Phase) {
	r.eachRow(func(i int, sh *StagedSheet, row *StagedRow) {
		if len(row.Payments) == 0 {
			return
		}
		scope := rowScope(sh, row)

		creditID, ok := r.state.Credits[RowRef{Sheet: i, Line: row.Line}]
		if !ok {
			n := len(row.Payments)
			r.skip(p, n, fmt.Sprintf("%s: %d payments skipped (%d): no associated credit", scope, n, n))
			return
		}

		for _, pay := range row.Payments {
			paidOn, err := time.Parse(isoDate, pay.Date)
			if err != nil {
				r.fail(p, fmt.Sprintf("%s payment %s", scope, pay.Date), fmt.Errorf("invalid date: %w", err))
				continue
			}
			if _, err := r.resolver.EnsurePayment(r.ctx, creditID, paidOn, pay.Amount); err != nil {
				r.fail(p, fmt.Sprintf("%s payment %s", scope, pay.Date), err)
				continue
			}
			r.ok(p)
		}
	})
}
