package contract

import (
	"fmt"
	"strings"
)

// FieldViolation is a single failed constraint.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError reports structured data that failed its contract.
// It is never produced for data that default-filling can repair.
type ValidationError struct {
	// Contract is the name of the shape being checked (e.g. "Blueprint")
	Contract   string           `json:"contract"`
	Violations []FieldViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("%s: validation failed", e.Contract)
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", v.Field, v.Rule, v.Message))
	}
	return fmt.Sprintf("%s: %s", e.Contract, strings.Join(parts, "; "))
}

// Field returns the first offending field name.
func (e *ValidationError) Field() string {
	if len(e.Violations) == 0 {
		return ""
	}
	return e.Violations[0].Field
}

// Rule returns the first violated constraint.
func (e *ValidationError) Rule() string {
	if len(e.Violations) == 0 {
		return ""
	}
	return e.Violations[0].Rule
}

// Defaulter is implemented by contracts whose defaults depend on other fields.
// It runs after `default` tags have been applied.
type Defaulter interface {
	SetDefaults()
}
