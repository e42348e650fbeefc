// Package notifications runs the morning weather notification job.
//
// Pipeline per user: eligibility → geocode → local time → window test →
// [sent-marker] → weather → compose → dispatch. A failure at any stage skips
// that user for this run; only a failure to read the user directory aborts
// the run. The Scheduler fires a run on a cron cadence whose geometry keeps
// every user in-window at most once per local day.
package notifications

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// Morning window, local time: [07:30, 08:00).
	windowHour        = 7
	windowStartMinute = 30
	windowEndMinute   = 60

	// DefaultSchedule fires at minute 30 of every hour.
	DefaultSchedule = "30 * * * *"

	defaultConcurrency = 4
	defaultCallTimeout = 10 * time.Second
	snapshotAttempts   = 3
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Status is the end state of one user's evaluation.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Stage names the pipeline step an outcome was decided at.
type Stage string

const (
	StageEligibility Stage = "eligibility"
	StageGeocode     Stage = "geocode"
	StageTimezone    Stage = "timezone"
	StageWindow      Stage = "window"
	StageMarker      Stage = "marker"
	StageWeather     Stage = "weather"
	StageDispatch    Stage = "dispatch"
)

// Skip reasons.
const (
	ReasonIneligible  = "ineligible"
	ReasonOutOfWindow = "out_of_window"
	ReasonAlreadySent = "already_sent"
	ReasonPanic       = "panic"
)

// Outcome is what happened to one user in one run.
type Outcome struct {
	UserID   int64
	Username string
	Status   Status
	Stage    Stage
	Reason   string // skip reason or error class
	Code     int    // weather condition code, when fetched
	Zone     string // resolved IANA zone, when known
	Err      error
}

// RunResult summarizes one run.
type RunResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Users     int
	Delivered int
	Skipped   int
	Failed    int
	Outcomes  []Outcome
}

func (r *RunResult) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusDelivered:
		r.Delivered++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

// FailuresByStage counts failed outcomes per stage.
func (r RunResult) FailuresByStage() map[Stage]int {
	out := make(map[Stage]int)
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out[o.Stage]++
		}
	}
	return out
}

// Summary returns a one-line run summary.
func (r RunResult) Summary() string {
	s := fmt.Sprintf("run=%s users=%d delivered=%d skipped=%d failed=%d duration=%s",
		r.RunID, r.Users, r.Delivered, r.Skipped, r.Failed, r.Duration.Round(time.Millisecond))
	if r.Failed == 0 {
		return s
	}
	var parts []string
	for _, st := range []Stage{StageGeocode, StageTimezone, StageMarker, StageWeather, StageDispatch, StageEligibility} {
		if n := r.FailuresByStage()[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", st, n))
		}
	}
	return s + " failures=" + strings.Join(parts, ",")
}
