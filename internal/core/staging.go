package core

import (
	"fmt"
	"slices"
	"time"
)

// StageOptions configures workbook staging.
type StageOptions struct {
	// Now supplies the year for dates without one. Defaults to time.Now.
	Now Clock

	// Population natural-key parts applied when a sheet does not set them.
	DefaultMunicipality string
	DefaultState        string
}

func (o StageOptions) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// StageWorkbook normalizes every sheet header, extracts and classifies its
// rows. Returns ErrEmptyWorkbook when wb is nil or has no sheets.
func StageWorkbook(wb *Workbook, opts StageOptions) (*StagedWorkbook, error) {
	if wb == nil || len(wb.Sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}

	now := opts.now()
	staged := &StagedWorkbook{
		FileName: wb.FileName,
		Sheets:   make([]StagedSheet, 0, len(wb.Sheets)),
	}
	for _, sh := range wb.Sheets {
		staged.Sheets = append(staged.Sheets, stageSheet(sh, opts, now))
	}
	return staged, nil
}

func stageSheet(sh Sheet, opts StageOptions, now time.Time) StagedSheet {
	header := ExtractHeader(sh.Rows, now)
	if header.Municipality == "" {
		header.Municipality = NormalizeKey(opts.DefaultMunicipality)
	}
	if header.State == "" {
		header.State = NormalizeKey(opts.DefaultState)
	}

	staged := StagedSheet{
		Name:   CleanCell(sh.Name),
		Header: header,
		Rows:   ExtractRows(sh.Rows, now),
	}
	flagDuplicateFolios(staged.Rows)
	staged.reclassify()
	return staged
}

// flagDuplicateFolios points every repeated folio at the first row using it.
// Rows without a folio are keyed by line and never collide.
func flagDuplicateFolios(rows []StagedRow) {
	first := make(map[string]int, len(rows))
	for i := range rows {
		key := NormalizeKey(rows[i].Folio)
		if key == "" {
			continue
		}
		if line, ok := first[key]; ok {
			rows[i].DuplicateOf = line
			continue
		}
		first[key] = rows[i].Line
	}
}

// reclassify recomputes every row's subject and the sheet flag from the
// current header.
func (s *StagedSheet) reclassify() {
	ClassifyRows(s.Rows, s.Header.CoordinatorName)
	s.IsCoordinatorSheet = IsCoordinatorSheet(s.Rows, s.Header.CoordinatorName)
}

// EditHeader applies an operator correction to sheet i, then re-normalizes
// the header and re-classifies the sheet's rows.
func (w *StagedWorkbook) EditHeader(i int, edit func(*SheetHeader)) error {
	return w.EditHeaderAt(i, edit, time.Now())
}

// EditHeaderAt is EditHeader with an explicit clock value.
func (w *StagedWorkbook) EditHeaderAt(i int, edit func(*SheetHeader), now time.Time) error {
	if i < 0 || i >= len(w.Sheets) {
		return fmt.Errorf("%w: %d of %d", ErrSheetIndex, i, len(w.Sheets))
	}
	sh := &w.Sheets[i]
	h := sh.Header
	edit(&h)
	layout := sh.Header.Layout
	sh.Header = NormalizeHeaderAt(h, now)
	sh.Header.Layout = layout
	sh.reclassify()
	return nil
}

// PopulationName is the population a sheet commits into: the header name,
// falling back to the sheet tab name.
func (s *StagedSheet) PopulationName() string {
	if s.Header.PopulationName != "" {
		return s.Header.PopulationName
	}
	return NormalizeKey(s.Name)
}

// RowCount returns the number of staged rows across all sheets.
func (w *StagedWorkbook) RowCount() int {
	n := 0
	for _, s := range w.Sheets {
		n += len(s.Rows)
	}
	return n
}

// HeaderPatch is a partial header edit; nil fields are left unchanged.
type HeaderPatch struct {
	PopulationNumber    *string `json:"population_number"`
	PopulationName      *string `json:"population_name"`
	RouteName           *string `json:"route_name"`
	Frequency           *string `json:"frequency"`
	CoordinatorName     *string `json:"coordinator_name"`
	CoordinatorPhone    *string `json:"coordinator_phone"`
	CoordinatorAddress  *string `json:"coordinator_address"`
	CoordinatorBirthday *string `json:"coordinator_birthday"`
	Municipality        *string `json:"municipality"`
	State               *string `json:"state"`
}

// Apply copies the set fields of p onto h.
func (p HeaderPatch) Apply(h *SheetHeader) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&h.PopulationNumber, p.PopulationNumber)
	set(&h.PopulationName, p.PopulationName)
	set(&h.RouteName, p.RouteName)
	set(&h.Frequency, p.Frequency)
	set(&h.CoordinatorName, p.CoordinatorName)
	set(&h.CoordinatorPhone, p.CoordinatorPhone)
	set(&h.CoordinatorAddress, p.CoordinatorAddress)
	set(&h.CoordinatorBirthday, p.CoordinatorBirthday)
	set(&h.Municipality, p.Municipality)
	set(&h.State, p.State)
}

// Clone returns a copy that later header edits on w do not affect.
func (w *StagedWorkbook) Clone() *StagedWorkbook {
	out := &StagedWorkbook{FileName: w.FileName, Sheets: make([]StagedSheet, len(w.Sheets))}
	for i, sh := range w.Sheets {
		sh.Rows = slices.Clone(sh.Rows)
		out.Sheets[i] = sh
	}
	return out
}
