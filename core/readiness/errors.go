package readiness

import (
	"errors"
	"fmt"
)

var (
	// errors
	ErrNotFound             = errors.New("not found")
	ErrNoCriteriaConfigured = errors.New("no active readiness criteria configured")
	ErrMetricsUnavailable   = errors.New("cell metrics unavailable")
	ErrCriteriaExist        = errors.New("tenant already has readiness criteria")
)

// InvalidCriterionError reports a stored criterion whose type has no normalization rule.
// such criteria are skipped by the evaluator.
type InvalidCriterionError struct {
	CriterionID  string
	Name         string
	CriteriaType CriteriaType
}

func (err InvalidCriterionError) Error() string {
	return fmt.Sprintf("criterion %s (%q): unknown criteria type %q", err.CriterionID, err.Name, err.CriteriaType)
}
