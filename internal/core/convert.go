package core

// convert.go provides type conversion for raw workbook cells.
//
// These functions handle the messy reality of hand-maintained spreadsheets:
//   - Cells arrive as text, numbers or dates depending on how they were typed
//   - Mexican (1,234.50) and European (1.234,50) number formatting
//   - Day-first dates, Excel serials, and month names in Spanish or English
//   - Excel formula prefixes (="value") and stray whitespace
//
// Conversions return pgtype / decimal.NullDecimal values with Valid=false for
// empty or invalid input, so callers treat "unparseable" and "absent" alike.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const isoDate = "2006-01-02"

// numericRegex validates that a string is a plain decimal after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted: years that
// would land more than this many years in the future go to the previous century.
const TwoDigitYearPivot = 20

// Excel serials accepted as dates: 1900-01-01 .. 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

var dayFirstLayouts = []string{
	"2006-01-02", "2006/01/02",
	"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006", "2.1.2006", "02.01.2006",
	"2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00",
}

var twoDigitYearLayouts = []string{
	"2/1/06", "02/01/06", "2-1-06", "02-01-06",
}

var monthNames = map[string]time.Month{
	"ene": time.January, "enero": time.January, "jan": time.January, "january": time.January,
	"feb": time.February, "febrero": time.February, "february": time.February,
	"mar": time.March, "marzo": time.March, "march": time.March,
	"abr": time.April, "abril": time.April, "apr": time.April, "april": time.April,
	"may": time.May, "mayo": time.May,
	"jun": time.June, "junio": time.June, "june": time.June,
	"jul": time.July, "julio": time.July, "july": time.July,
	"ago": time.August, "agosto": time.August, "aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "septiembre": time.September, "setiembre": time.September, "september": time.September,
	"oct": time.October, "octubre": time.October, "october": time.October,
	"nov": time.November, "noviembre": time.November, "november": time.November,
	"dic": time.December, "diciembre": time.December, "dec": time.December, "december": time.December,
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// CleanCell removes common spreadsheet artifacts from a text value:
//   - Excel formula prefix (="...")
//   - surrounding quotes
//   - runs of whitespace, including non-breaking spaces
func CleanCell(s string) string {
	for {
		prev := s
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
			s = s[2 : len(s)-1]
		} else {
			s = strings.TrimLeft(s, "=")
		}
		s = strings.Trim(s, `"'`)
		s = strings.Join(strings.Fields(s), " ")
		if s == prev {
			return s
		}
	}
}

// CellText renders any cell as cleaned text. Numbers print without a
// trailing ".0"; dates print as YYYY-MM-DD.
func CellText(c Cell) string {
	switch v := c.(type) {
	case nil:
		return ""
	case string:
		return CleanCell(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case time.Time:
		return v.Format(isoDate)
	default:
		return ""
	}
}

// ToDecimal converts a cell to a money amount.
// Accepts "$1,234.50", "1.234,50", "(12.00)" and plain floats; NaN and
// infinities are rejected.
func ToDecimal(c Cell) decimal.NullDecimal {
	switch v := c.(type) {
	case nil:
		return decimal.NullDecimal{}
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(v))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(v))
	case string:
		return parseDecimalText(v)
	default:
		return decimal.NullDecimal{}
	}
}

func parseDecimalText(s string) decimal.NullDecimal {
	s = CleanCell(s)
	if s == "" {
		return decimal.NullDecimal{}
	}

	// Accounting negative "(123.45)"
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "MXN", "", "mxn", "", " ", "").Replace(s)
	s = normalizeSeparators(s)
	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// normalizeSeparators rewrites thousands/decimal separators to a plain
// dot-decimal string. The last separator wins as decimal point when both
// kinds appear; a lone comma followed by exactly three digits is a
// thousands separator.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// 1.234,50
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		// 1,234.50
		return strings.ReplaceAll(s, ",", "")

	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			// 12,5
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")

	case strings.Count(s, ".") > 1:
		// 1.234.567
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// ToPgInt4 converts a cell holding a whole number.
// Fractional or unparseable values return invalid.
func ToPgInt4(c Cell) pgtype.Int4 {
	d := ToDecimal(c)
	if !d.Valid || !d.Decimal.Equal(d.Decimal.Truncate(0)) {
		return pgtype.Int4{Valid: false}
	}
	n := d.Decimal.IntPart()
	if n > math.MaxInt32 || n < math.MinInt32 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(n), Valid: true}
}

// ToPgDate converts a cell to a calendar date.
// now supplies the year for day/month-only input and the two-digit pivot.
func ToPgDate(c Cell, now time.Time) pgtype.Date {
	switch v := c.(type) {
	case nil:
		return pgtype.Date{Valid: false}
	case time.Time:
		return dateOnly(v)
	case float64:
		return serialDate(v)
	case int:
		return serialDate(float64(v))
	case int64:
		return serialDate(float64(v))
	case string:
		return parseDateText(v, now)
	default:
		return pgtype.Date{Valid: false}
	}
}

// FormatDate renders a date as YYYY-MM-DD, or "" when invalid.
func FormatDate(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(isoDate)
}

// NormalizeDate is ToPgDate followed by FormatDate.
func NormalizeDate(c Cell, now time.Time) string {
	return FormatDate(ToPgDate(c, now))
}

func dateOnly(t time.Time) pgtype.Date {
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func serialDate(f float64) pgtype.Date {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < minExcelSerial || f > maxExcelSerial {
		return pgtype.Date{Valid: false}
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return pgtype.Date{Valid: false}
	}
	return dateOnly(t)
}

func parseDateText(s string, now time.Time) pgtype.Date {
	s = CleanCell(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}

	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t)
		}
	}

	pivot := now.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return dateOnly(t)
		}
	}

	// A bare number is an Excel serial typed as text.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return serialDate(f)
	}

	return parseDateTokens(s, now)
}

// parseDateTokens handles "16/07", "16 Jul", "16-jul-24", "16 de julio de 2024"
// and "Jul 16, 2024".
func parseDateTokens(s string, now time.Time) pgtype.Date {
	fields := strings.FieldsFunc(strings.ToLower(FoldAccents(s)), func(r rune) bool {
		return r == ' ' || r == '/' || r == '-' || r == '.' || r == ','
	})

	var nums []int
	month := time.Month(0)
	for _, f := range fields {
		if f == "de" || f == "del" {
			continue
		}
		if m, ok := monthNames[f]; ok && month == 0 {
			month = m
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return pgtype.Date{Valid: false}
		}
		nums = append(nums, n)
	}

	var day, year int
	switch {
	case month != 0 && len(nums) == 1:
		day, year = nums[0], now.Year()
	case month != 0 && len(nums) == 2:
		day, year = nums[0], nums[1]
	case month == 0 && len(nums) == 2:
		// Day/month pair without year.
		if nums[1] < 1 || nums[1] > 12 {
			return pgtype.Date{Valid: false}
		}
		day, month, year = nums[0], time.Month(nums[1]), now.Year()
	default:
		return pgtype.Date{Valid: false}
	}

	if year < 100 {
		year += 2000
		if year > now.Year()+TwoDigitYearPivot {
			year -= 100
		}
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject overflow such as 31 Feb.
	if t.Day() != day || t.Month() != month {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}
