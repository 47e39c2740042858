package core

// header.go resolves the fixed-position metadata block at the top of each
// sheet into a SheetHeader.
//
// Two legacy layouts exist and neither carries a marker, so selection is an
// explicit strategy over their anchor cells (see selectLayout). Layout A is
// the historic default.

import (
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// headerLayout maps header fields to A1 cell references.
type headerLayout struct {
	layout HeaderLayout

	populationNumber string
	populationName   string
	route            string
	frequency        string
	coordinatorName  string
	phone            string
	address          string
	birthday         string
	birthMonth       string // optional second cell holding the month
}

// anchors are the cells that must be populated for a layout to apply.
func (l headerLayout) anchors() []string {
	return []string{l.route, l.populationName}
}

var (
	layoutA = headerLayout{
		layout:           LayoutA,
		populationNumber: "E1",
		populationName:   "F1",
		route:            "B1",
		frequency:        "I1",
		coordinatorName:  "B2",
		phone:            "F2",
		address:          "I2",
		birthday:         "M2",
	}
	layoutB = headerLayout{
		layout:           LayoutB,
		populationNumber: "A1",
		populationName:   "C1",
		route:            "H1",
		frequency:        "K1",
		coordinatorName:  "C2",
		phone:            "E2",
		address:          "H2",
		birthday:         "K2",
		birthMonth:       "L2",
	}
)

// labelPrefixes are stripped from header cells when followed by ':' or '.'.
// Compared after accent folding and uppercasing.
var labelPrefixes = setOf(
	"RUTA", "POBLACION", "POB", "LOCALIDAD",
	"NO", "NUM", "NUMERO",
	"COORD", "COORDINADOR", "COORDINADORA",
	"TEL", "TELEFONO", "CEL", "CELULAR",
	"DOMICILIO", "DIRECCION", "DIR",
	"CUMPLEANOS", "CUMPLE", "FECHA DE NACIMIENTO",
	"FRECUENCIA", "PAGO",
)

func setOf(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// cellAt returns the cell at an A1 reference, or nil outside the grid.
func cellAt(rows [][]Cell, ref string) Cell {
	if ref == "" {
		return nil
	}
	col, row, err := excelize.CellNameToCoordinates(ref)
	if err != nil || row < 1 || row > len(rows) {
		return nil
	}
	r := rows[row-1]
	if col < 1 || col > len(r) {
		return nil
	}
	return r[col-1]
}

func anchorsEmpty(rows [][]Cell, l headerLayout) bool {
	for _, ref := range l.anchors() {
		if stripLabels(CellText(cellAt(rows, ref))) != "" {
			return false
		}
	}
	return true
}

// DetectLayout selects the header layout of a grid. Layout A is used unless
// all of A's anchors are empty while some of B's are populated.
func DetectLayout(rows [][]Cell) HeaderLayout {
	return selectLayout(rows).layout
}

func selectLayout(rows [][]Cell) headerLayout {
	if anchorsEmpty(rows, layoutA) && !anchorsEmpty(rows, layoutB) {
		return layoutB
	}
	return layoutA
}

// ExtractHeader reads the raw header block of a grid and normalizes it.
func ExtractHeader(rows [][]Cell, now time.Time) SheetHeader {
	l := selectLayout(rows)

	text := func(ref string) string { return CellText(cellAt(rows, ref)) }

	h := SheetHeader{
		PopulationNumber:   text(l.populationNumber),
		PopulationName:     text(l.populationName),
		RouteName:          text(l.route),
		Frequency:          text(l.frequency),
		CoordinatorName:    text(l.coordinatorName),
		CoordinatorPhone:   text(l.phone),
		CoordinatorAddress: text(l.address),
		Layout:             l.layout,
	}

	month := ""
	if l.birthMonth != "" {
		month = text(l.birthMonth)
	}
	if month != "" {
		h.CoordinatorBirthday = joinDayMonth(text(l.birthday), month)
	} else {
		h.CoordinatorBirthday = headerDate(cellAt(rows, l.birthday), now)
	}

	return NormalizeHeaderAt(h, now)
}

// headerDate converts a date-typed or serial birthday cell directly. Small
// numbers are day-of-month entries, not serials. Text is left for
// normalization.
func headerDate(c Cell, now time.Time) string {
	switch v := c.(type) {
	case time.Time:
		return FormatDate(ToPgDate(v, now))
	case float64:
		if v > 366 {
			if d := ToPgDate(v, now); d.Valid {
				return FormatDate(d)
			}
		}
	}
	return CellText(c)
}

func joinDayMonth(day, month string) string {
	day, month = stripLabels(day), stripLabels(month)
	switch {
	case day == "":
		return ""
	case month == "":
		return day
	case strings.IndexFunc(month, func(r rune) bool { return r < '0' || r > '9' }) >= 0:
		return day + " " + month
	default:
		return day + "/" + month
	}
}

// NormalizeHeader canonicalizes a header using the current year for
// birthdays without one.
func NormalizeHeader(h SheetHeader) SheetHeader {
	return NormalizeHeaderAt(h, time.Now())
}

// NormalizeHeaderAt trims and collapses whitespace, uppercases names, strips
// label prefixes and canonicalizes the birthday to YYYY-MM-DD. It is
// idempotent: NormalizeHeaderAt(NormalizeHeaderAt(h, t), t) == NormalizeHeaderAt(h, t).
func NormalizeHeaderAt(h SheetHeader, now time.Time) SheetHeader {
	h.PopulationNumber = stripLabels(h.PopulationNumber)
	h.PopulationName = strings.ToUpper(stripLabels(h.PopulationName))
	h.RouteName = strings.ToUpper(stripLabels(h.RouteName))
	h.Frequency = strings.ToUpper(stripLabels(h.Frequency))
	h.CoordinatorName = strings.ToUpper(stripLabels(h.CoordinatorName))
	h.CoordinatorPhone = stripLabels(h.CoordinatorPhone)
	h.CoordinatorAddress = strings.ToUpper(stripLabels(h.CoordinatorAddress))
	h.Municipality = NormalizeKey(h.Municipality)
	h.State = NormalizeKey(h.State)

	birthday := stripLabels(h.CoordinatorBirthday)
	if !isDigits(birthday) {
		if d := ToPgDate(birthday, now); d.Valid {
			birthday = FormatDate(d)
		}
	}
	h.CoordinatorBirthday = birthday

	return h
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// stripLabels cleans s and removes any number of leading "LABEL:" prefixes.
// Punctuation left behind by labels such as "Coord.:" goes with the label.
func stripLabels(s string) string {
	s = CleanCell(s)
	for {
		i := strings.IndexAny(s, ":.")
		if i <= 0 {
			return s
		}
		if !labelPrefixes[FoldKey(s[:i])] {
			return s
		}
		s = CleanCell(strings.TrimLeft(s[i+1:], ":. "))
	}
}
