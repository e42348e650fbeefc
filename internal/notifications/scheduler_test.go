package notifications

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type stubRunner struct {
	runs atomic.Int32
	err  error
}

func (r *stubRunner) Run(ctx context.Context) (RunResult, error) {
	r.runs.Add(1)
	return RunResult{RunID: "stub", Users: 2, Delivered: 1, Skipped: 1}, r.err
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	if _, err := NewScheduler("every morning", &stubRunner{}, nil); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestSchedulerRunNowRecordsLast(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	s, err := NewScheduler("", runner, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s.spec != DefaultSchedule {
		t.Fatalf("spec = %q, want default", s.spec)
	}

	res, err := s.RunNow(context.Background())
	if err != nil || res.RunID != "stub" {
		t.Fatalf("RunNow = %+v, %v", res, err)
	}
	last, lastErr := s.Last()
	if last.RunID != "stub" || lastErr != nil {
		t.Fatalf("Last = %+v, %v", last, lastErr)
	}

	runner.err = errors.New("directory down")
	if _, err := s.RunNow(context.Background()); err == nil {
		t.Fatal("expected error from RunNow")
	}
	if _, lastErr := s.Last(); lastErr == nil {
		t.Fatal("Last did not record the error")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(DefaultSchedule, &stubRunner{}, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if !s.Next().IsZero() {
		t.Fatal("Next should be zero before Start")
	}

	s.Start()
	s.Start() // idempotent
	next := s.Next()
	if next.IsZero() || next.Minute() != 30 || next.Location() != time.UTC {
		t.Fatalf("Next = %v, want a UTC :30 firing", next)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
