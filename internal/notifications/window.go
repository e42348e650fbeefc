package notifications

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/albapepper/morningcast/internal/timezone"
)

// InWindow reports whether m falls in the morning window [07:30, 08:00).
func InWindow(m timezone.LocalMoment) bool {
	return m.Hour == windowHour && m.Minute >= windowStartMinute && m.Minute < windowEndMinute
}

// --------------------------------------------------------------------------
// Schedule alignment
// --------------------------------------------------------------------------

const (
	minOffset    = -12 * 60
	maxOffset    = 14 * 60
	offsetStride = 15
)

// Alignment is how a cron spec interacts with the morning window across
// quarter-hour UTC offsets.
type Alignment struct {
	Spec          string
	FiringsPerDay int
	// Hits maps a UTC offset in minutes to the number of firings per day
	// observed in-window at that offset.
	Hits map[int]int
}

// Gaps returns offsets that are never evaluated in-window.
func (a Alignment) Gaps() []int {
	return a.offsetsWhere(func(n int) bool { return n == 0 })
}

// Duplicates returns offsets evaluated in-window more than once a day.
func (a Alignment) Duplicates() []int {
	return a.offsetsWhere(func(n int) bool { return n > 1 })
}

func (a Alignment) offsetsWhere(keep func(int) bool) []int {
	var out []int
	for off := minOffset; off <= maxOffset; off += offsetStride {
		if keep(a.Hits[off]) {
			out = append(out, off)
		}
	}
	return out
}

// FormatOffset renders minutes east of UTC as ±HH:MM.
func FormatOffset(minutes int) string {
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%02d:%02d", sign, minutes/60, minutes%60)
}

// CheckAlignment walks the 1440 minutes of one UTC day, finds every minute
// the spec fires, and counts in-window observations for each quarter-hour
// offset. It fails when some offset would be notified twice a day or when
// no whole-hour offset is ever notified.
func CheckAlignment(spec string) (Alignment, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Alignment{}, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	a := Alignment{Spec: spec, Hits: make(map[int]int)}
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for minute := 0; minute < 24*60; minute++ {
		t := day.Add(time.Duration(minute) * time.Minute)
		if !sched.Next(t.Add(-time.Second)).Equal(t) {
			continue
		}
		a.FiringsPerDay++
		for off := minOffset; off <= maxOffset; off += offsetStride {
			local := t.Add(time.Duration(off) * time.Minute)
			m := timezone.LocalMoment{Hour: local.Hour(), Minute: local.Minute()}
			if InWindow(m) {
				a.Hits[off]++
			}
		}
	}

	if a.FiringsPerDay == 0 {
		return a, errors.New("schedule never fires")
	}
	if d := a.Duplicates(); len(d) > 0 {
		return a, fmt.Errorf("schedule %q evaluates %d offsets in-window more than once a day (e.g. %s)",
			spec, len(d), FormatOffset(d[0]))
	}
	for off := minOffset; off <= maxOffset; off += 60 {
		if a.Hits[off] > 0 {
			return a, nil
		}
	}
	return a, fmt.Errorf("schedule %q never fires inside the morning window", spec)
}
