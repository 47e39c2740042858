package core

import (
	"time"
)

// testNow is the clock used across core tests.
var testNow = time.Date(2024, time.October, 14, 9, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// headerA builds the two header rows of a layout A sheet.
func headerA(route, popNumber, popName, frequency, coordinator, phone, address string, birthday Cell) [][]Cell {
	r1 := make([]Cell, 13)
	r1[1], r1[4], r1[5], r1[8] = route, popNumber, popName, frequency
	r2 := make([]Cell, 13)
	r2[1], r2[5], r2[8], r2[12] = coordinator, phone, address, birthday
	return [][]Cell{r1, r2}
}

// headerB builds the two header rows of a layout B sheet.
func headerB(route, popNumber, popName, frequency, coordinator, phone, address string, day, month Cell) [][]Cell {
	r1 := make([]Cell, 12)
	r1[0], r1[2], r1[7], r1[10] = popNumber, popName, route, frequency
	r2 := make([]Cell, 12)
	r2[2], r2[4], r2[7], r2[10], r2[11] = coordinator, phone, address, day, month
	return [][]Cell{r1, r2}
}

// dateRow builds row 3 with payment dates starting at the first payment column.
func dateRow(dates ...Cell) []Cell {
	return append(make([]Cell, fixedColumns), dates...)
}

// testRow is the fixed part of a data row.
type testRow struct {
	folio      string
	client     string
	nationalID string
	guarantor  string
	quota      Cell
	total      Cell
	term       Cell
	disbursed  Cell
}

func (r testRow) cells(payments ...Cell) []Cell {
	raw := make([]Cell, fixedColumns)
	raw[colFolio] = r.folio
	raw[colClientName] = r.client
	raw[colClientNationalID] = r.nationalID
	raw[colGuarantorName] = r.guarantor
	raw[colWeeklyQuota] = r.quota
	raw[colTotalDue] = r.total
	raw[colTermWeeks] = r.term
	raw[colDisbursementDate] = r.disbursed
	return append(raw, payments...)
}

// sheet assembles a grid from header rows, the date row and data rows.
func sheet(name string, header [][]Cell, dates []Cell, rows ...[]Cell) Sheet {
	grid := append([][]Cell{}, header...)
	grid = append(grid, dates)
	grid = append(grid, rows...)
	return Sheet{Name: name, Rows: grid}
}

// scenarioWorkbook is the two-sheet reference workbook: three client rows
// with two payments each, and one coordinator row without payments.
func scenarioWorkbook() *Workbook {
	s1 := sheet("Centro",
		headerA("RUTA: Norte", "12", "Centro", "Semanal", "", "", "", nil),
		dateRow("07/10/2024", "14/10/2024"),
		testRow{folio: "F-1", client: "Ana Pérez", quota: 150.0, term: 14.0}.cells(150.0, 150.0),
		testRow{folio: "F-2", client: "Luis Gómez", nationalID: "GOLU800101", quota: 200.0, term: 14.0}.cells(200.0, 200.0),
		testRow{folio: "F-3", client: "Rosa Díaz", quota: "$120.50", term: "14", total: 1687.0}.cells(120.5, "120,50"),
	)
	s2 := sheet("San Juan",
		headerA("Norte", "13", "San Juan", "Semanal", "Coord: María López", "555-0101", "Calle 5", "16 Jul"),
		dateRow("07/10/2024"),
		testRow{folio: "C-1", client: "Maria Lopez", quota: 500.0, term: 10.0}.cells(),
	)
	return &Workbook{FileName: "cartera.xlsx", Sheets: []Sheet{s1, s2}}
}

// stage stages wb with the test clock or panics.
func stage(wb *Workbook) *StagedWorkbook {
	staged, err := StageWorkbook(wb, StageOptions{Now: testClock, DefaultMunicipality: "Oaxaca", DefaultState: "OAX"})
	if err != nil {
		panic(err)
	}
	return staged
}
