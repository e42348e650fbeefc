package notifications

import (
	"context"
	"errors"

	"github.com/albapepper/morningcast/internal/push"
	"github.com/albapepper/morningcast/internal/timezone"
	"github.com/albapepper/morningcast/internal/weather"
)

// Error classes for per-user failures.
const (
	ClassNotFound     = "not_found"
	ClassUnresolvable = "unresolvable"
	ClassRejected     = "rejected"
	ClassTimeout      = "timeout"
	ClassTransient    = "transient"
)

// Classify maps a stage error onto the failure taxonomy. Anything that is
// not a known permanent condition is transient.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, weather.ErrLocationNotFound):
		return ClassNotFound
	case errors.Is(err, timezone.ErrUnresolvable):
		return ClassUnresolvable
	case errors.Is(err, push.ErrRejected):
		return ClassRejected
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	default:
		return ClassTransient
	}
}
