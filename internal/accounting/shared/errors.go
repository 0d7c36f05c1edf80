package shared

import (
	"errors"
	"strings"
)

// Aggregate names used to scope rule violations.
const (
	AggregateAccount      = "account"
	AggregateJournalEntry = "journal_entry"
	AggregateFiscalYear   = "fiscal_year"
	AggregateFiscalPeriod = "fiscal_period"
	AggregateInventory    = "inventory"
	AggregateDocument     = "document"
)

// RuleViolation is a domain-level rejection of an operation that would break
// a stated invariant. It is never a transient infrastructure failure, so
// callers must not retry-and-resubmit it blindly.
type RuleViolation struct {
	Aggregate string
	Reason    string
}

func (v *RuleViolation) Error() string {
	return v.Aggregate + ": " + v.Reason
}

// Violation builds a RuleViolation for the given aggregate.
func Violation(aggregate, reason string) error {
	return &RuleViolation{Aggregate: aggregate, Reason: reason}
}

// IsViolation reports whether err (or anything it wraps) is a domain rule
// violation rather than an infrastructure failure.
func IsViolation(err error) bool {
	var v *RuleViolation
	if errors.As(err, &v) {
		return true
	}
	var agg Violations
	return errors.As(err, &agg)
}

// IsNotFound reports whether err is a violation describing a missing record.
func IsNotFound(err error) bool {
	var v *RuleViolation
	return errors.As(err, &v) && strings.HasSuffix(v.Reason, "not found")
}

// Violations aggregates every rule failure found by a collect-all validation
// pass, so a caller can present a complete report instead of the first hit.
type Violations []error

func (v Violations) Error() string {
	msgs := make([]string, 0, len(v))
	for _, err := range v {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual violations to errors.Is/As.
func (v Violations) Unwrap() []error { return v }
