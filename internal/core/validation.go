package core

// validation.go checks staged rows before the Credits phase turns them into
// credits. The same checks feed the staged preview so operators can fix
// data before committing.

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidateStagedRow returns every problem that prevents a credit from being
// created for row. An empty result means the row is valid.
func ValidateStagedRow(row StagedRow) []ValidationError {
	var errs []ValidationError

	if row.ClientName == "" {
		errs = append(errs, ValidationError{Field: "client_name", Message: "required field is empty"})
	}

	switch {
	case !row.TermWeeks.Valid:
		errs = append(errs, ValidationError{Field: "term_weeks", Message: "required field is empty or invalid number"})
	case row.TermWeeks.Int32 <= 0:
		errs = append(errs, ValidationError{
			Field:   "term_weeks",
			Value:   fmt.Sprint(row.TermWeeks.Int32),
			Message: "invalid number: term must be positive",
		})
	}

	switch {
	case !row.WeeklyQuota.Valid:
		errs = append(errs, ValidationError{Field: "weekly_quota", Message: "required field is empty or invalid number"})
	case !row.WeeklyQuota.Decimal.IsPositive():
		errs = append(errs, ValidationError{
			Field:   "weekly_quota",
			Value:   row.WeeklyQuota.Decimal.String(),
			Message: "invalid number: quota must be positive",
		})
	}

	return errs
}

// validationErr joins row validation errors into one error, or nil.
func validationErr(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return errors.New(strings.Join(parts, "; "))
}
