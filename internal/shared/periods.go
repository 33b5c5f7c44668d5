package shared

import "errors"

// Period statuses reused outside accounting module.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("accounting: period transition invalid")

// ValidatePeriodTransition allows open -> closed and closed -> open only.
func ValidatePeriodTransition(current, target string) error {
	switch {
	case current == PeriodStatusOpen && target == PeriodStatusClosed:
		return nil
	case current == PeriodStatusClosed && target == PeriodStatusOpen:
		return nil
	}
	return ErrInvalidPeriodTransition
}
