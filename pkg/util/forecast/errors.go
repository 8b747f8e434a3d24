package forecast

import "fmt"

// InsufficientDataError is returned when a bracket has too few entrants to
// forecast. Callers should treat it as "forecasting unavailable".
type InsufficientDataError struct {
	Minimum int
	Actual  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: bracket simulation needs at least %d entrants, got %d", e.Minimum, e.Actual)
}

// ValidationError reports an input that was rejected rather than clamped
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
