package core

// rows.go turns the data area of a sheet into staged rows.
//
// Grid contract:
//   - rows 1-2 hold the header block (see header.go)
//   - row 3 holds the payment dates above the payment columns
//   - data rows start at row 4
//   - columns A..P are the fixed credit fields, payment columns start at Q

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	paymentDateRow  = 2 // zero-based index of row 3
	firstDataRow    = 3 // zero-based index of row 4
	fixedColumns    = 16
	firstPaymentCol = fixedColumns
)

// Fixed column positions (zero-based).
const (
	colFolio = iota
	colClientName
	colClientNationalID
	colClientAddress
	colGuarantorName
	colGuarantorNationalID
	colGuarantorAddress
	colWeeklyQuota
	colPenalty
	colTotalDue
	colTermWeeks
	colWeeksOverdue
	colOverdueBalance
	colCollectionDay
	colNotes
	colDisbursementDate
)

// paymentColumn binds a grid column to its payment date.
type paymentColumn struct {
	index int
	date  string
}

// paymentColumns returns the payment columns of a grid in order. Columns
// whose date cell does not parse are skipped; a repeated date keeps its
// first column.
func paymentColumns(rows [][]Cell, now time.Time) []paymentColumn {
	if len(rows) <= paymentDateRow {
		return nil
	}
	dateRow := rows[paymentDateRow]

	var cols []paymentColumn
	seen := make(map[string]bool)
	for i := firstPaymentCol; i < len(dateRow); i++ {
		date := NormalizeDate(dateRow[i], now)
		if date == "" || seen[date] {
			continue
		}
		seen[date] = true
		cols = append(cols, paymentColumn{index: i, date: date})
	}
	return cols
}

// ExtractRows converts the data area of a grid into staged rows. Subjects
// are left at their zero value; see ClassifyRows.
func ExtractRows(rows [][]Cell, now time.Time) []StagedRow {
	if len(rows) <= firstDataRow {
		return nil
	}
	payCols := paymentColumns(rows, now)

	var out []StagedRow
	for i := firstDataRow; i < len(rows); i++ {
		raw := rows[i]
		if fixedCellsEmpty(raw) {
			continue
		}
		row := stageRow(raw, now)
		row.Line = i + 1
		row.Payments = extractPayments(raw, payCols)
		out = append(out, row)
	}
	return out
}

func cell(raw []Cell, i int) Cell {
	if i < 0 || i >= len(raw) {
		return nil
	}
	return raw[i]
}

func fixedCellsEmpty(raw []Cell) bool {
	for i := 0; i < fixedColumns; i++ {
		if CellText(cell(raw, i)) != "" {
			return false
		}
	}
	return true
}

func stageRow(raw []Cell, now time.Time) StagedRow {
	text := func(i int) string { return CellText(cell(raw, i)) }

	return StagedRow{
		Folio:               text(colFolio),
		ClientName:          NormalizeKey(text(colClientName)),
		ClientNationalID:    NormalizeKey(text(colClientNationalID)),
		ClientAddress:       text(colClientAddress),
		GuarantorName:       NormalizeKey(text(colGuarantorName)),
		GuarantorNationalID: NormalizeKey(text(colGuarantorNationalID)),
		GuarantorAddress:    text(colGuarantorAddress),
		WeeklyQuota:         ToDecimal(cell(raw, colWeeklyQuota)),
		Penalty:             text(colPenalty),
		TotalDue:            ToDecimal(cell(raw, colTotalDue)),
		TermWeeks:           ToPgInt4(cell(raw, colTermWeeks)),
		WeeksOverdue:        ToPgInt4(cell(raw, colWeeksOverdue)),
		OverdueBalance:      ToDecimal(cell(raw, colOverdueBalance)),
		CollectionDay:       text(colCollectionDay),
		Notes:               text(colNotes),
		DisbursementDate:    NormalizeDate(cell(raw, colDisbursementDate), now),
	}
}

func extractPayments(raw []Cell, cols []paymentColumn) []StagedPayment {
	var out []StagedPayment
	for _, pc := range cols {
		amount := ToDecimal(cell(raw, pc.index))
		if !amount.Valid || !amount.Decimal.GreaterThan(decimal.Zero) {
			continue
		}
		out = append(out, StagedPayment{Date: pc.date, Amount: amount.Decimal})
	}
	return out
}
