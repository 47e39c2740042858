package core

// Terms that identify the subject of a credit. Coordinator group credits
// run 9-10 weeks, individual client credits 13-14.
var (
	coordinatorTerms = map[int32]bool{9: true, 10: true}
	clientTerms      = map[int32]bool{13: true, 14: true}
)

// ClassifyRow decides the subject of a row. First match wins:
//  1. the client name equals the sheet coordinator name (case/accent-insensitive)
//  2. term in {9,10} is a coordinator, {13,14} a client
//  3. anything else defaults to client
func ClassifyRow(row StagedRow, coordinatorName string) (Subject, ClassifyRule) {
	if SameName(row.ClientName, coordinatorName) {
		return SubjectCoordinator, RuleNameMatch
	}
	if row.TermWeeks.Valid {
		switch {
		case coordinatorTerms[row.TermWeeks.Int32]:
			return SubjectCoordinator, RuleTerm
		case clientTerms[row.TermWeeks.Int32]:
			return SubjectClient, RuleTerm
		}
	}
	return SubjectClient, RuleDefault
}

// ClassifyRows sets Subject and Rule on every row in place.
func ClassifyRows(rows []StagedRow, coordinatorName string) {
	for i := range rows {
		rows[i].Subject, rows[i].Rule = ClassifyRow(rows[i], coordinatorName)
	}
}

// IsCoordinatorSheet reports whether a sheet looks like a coordinator
// sheet: some row matches the coordinator by name, or a strict majority of
// rows is classified coordinator by term. It is informational and never
// overrides a row's own classification.
func IsCoordinatorSheet(rows []StagedRow, coordinatorName string) bool {
	if len(rows) == 0 {
		return false
	}
	byTerm := 0
	for _, r := range rows {
		subject, rule := ClassifyRow(r, coordinatorName)
		if rule == RuleNameMatch {
			return true
		}
		if subject == SubjectCoordinator && rule == RuleTerm {
			byTerm++
		}
	}
	return byTerm*2 > len(rows)
}
