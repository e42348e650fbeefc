package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/albapepper/morningcast/internal/push"
	"github.com/albapepper/morningcast/internal/timezone"
	"github.com/albapepper/morningcast/internal/users"
	"github.com/albapepper/morningcast/internal/weather"
)

// ZoneClock resolves coordinates to a local wall-clock reading.
// *timezone.Resolver satisfies it.
type ZoneClock interface {
	LocalNow(lat, lon float64, now time.Time) (timezone.LocalMoment, error)
}

// Recorder receives run and outcome telemetry. *metrics.Collector
// satisfies it.
type Recorder interface {
	RunFinished(result string, d time.Duration, users int)
	UserOutcome(status, stage, reason string)
}

type nopRecorder struct{}

func (nopRecorder) RunFinished(string, time.Duration, int) {}
func (nopRecorder) UserOutcome(string, string, string)     {}

// Deps are the collaborators of a Pipeline. Marker and Recorder are optional.
type Deps struct {
	Directory users.Directory
	Geocoder  weather.Geocoder
	Weather   weather.ConditionFetcher
	Zones     ZoneClock
	Sender    push.Sender
	Marker    Marker
	Recorder  Recorder
	Logger    *slog.Logger
}

// Options tune a Pipeline. Zero values take defaults.
type Options struct {
	Concurrency      int
	CallTimeout      time.Duration
	SnapshotAttempts uint
	Now              func() time.Time
}

// Pipeline evaluates every user in the directory once per Run.
type Pipeline struct {
	dir      users.Directory
	geocoder weather.Geocoder
	weather  weather.ConditionFetcher
	zones    ZoneClock
	sender   push.Sender
	marker   Marker
	recorder Recorder
	logger   *slog.Logger

	concurrency      int
	callTimeout      time.Duration
	snapshotAttempts uint
	now              func() time.Time
}

// NewPipeline wires a pipeline.
func NewPipeline(d Deps, o Options) *Pipeline {
	p := &Pipeline{
		dir:              d.Directory,
		geocoder:         d.Geocoder,
		weather:          d.Weather,
		zones:            d.Zones,
		sender:           d.Sender,
		marker:           d.Marker,
		recorder:         d.Recorder,
		logger:           d.Logger,
		concurrency:      o.Concurrency,
		callTimeout:      o.CallTimeout,
		snapshotAttempts: o.SnapshotAttempts,
		now:              o.Now,
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.concurrency < 1 {
		p.concurrency = defaultConcurrency
	}
	if p.callTimeout <= 0 {
		p.callTimeout = defaultCallTimeout
	}
	if p.snapshotAttempts == 0 {
		p.snapshotAttempts = snapshotAttempts
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run snapshots the directory and evaluates every user with bounded
// concurrency. The returned error is non-nil only when the directory could
// not be read; per-user failures are reported in the result.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	result := RunResult{RunID: ulid.Make().String(), StartedAt: p.now().UTC()}
	logger := p.logger.With("run_id", result.RunID)
	start := time.Now()

	list, err := p.snapshot(ctx, logger)
	if err != nil {
		result.Duration = time.Since(start)
		p.recorder.RunFinished("aborted", result.Duration, 0)
		logger.Error("Morning run aborted", "error", err)
		return result, fmt.Errorf("snapshot user directory: %w", err)
	}
	result.Users = len(list)
	logger.Info("Morning run started", "users", len(list), "concurrency", p.concurrency)

	outcomes := make([]Outcome, len(list))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, u := range list {
		g.Go(func() error {
			outcomes[i] = p.evaluate(ctx, logger, u)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		result.add(o)
		p.recorder.UserOutcome(string(o.Status), string(o.Stage), o.Reason)
	}
	result.Duration = time.Since(start)
	p.recorder.RunFinished("completed", result.Duration, result.Users)

	logger.Info("Morning run finished", "summary", result.Summary())
	return result, nil
}

func (p *Pipeline) snapshot(ctx context.Context, logger *slog.Logger) ([]users.User, error) {
	var list []users.User
	err := retry.Do(
		func() error {
			var err error
			list, err = p.dir.ListUsers(ctx)
			return err
		},
		retry.Attempts(p.snapshotAttempts),
		retry.Delay(500*time.Millisecond),
		retry.MaxJitter(250*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying user directory read", "attempt", n+1, "error", err)
		}),
	)
	return list, err
}

// evaluate runs the per-user pipeline. It never panics.
func (p *Pipeline) evaluate(ctx context.Context, runLogger *slog.Logger, u users.User) (o Outcome) {
	o = Outcome{UserID: u.ID, Username: u.Username}
	stage := StageEligibility
	logger := runLogger.With("user_id", u.ID)

	defer func() {
		if r := recover(); r != nil {
			o.Status, o.Stage, o.Reason = StatusFailed, stage, ReasonPanic
			o.Err = fmt.Errorf("panic: %v", r)
			logger.Error("User evaluation panicked", "stage", stage, "panic", r)
		}
	}()

	fail := func(err error) Outcome {
		o.Status, o.Stage, o.Reason, o.Err = StatusFailed, stage, Classify(err), err
		logger.Warn("User evaluation failed", "stage", stage, "class", o.Reason, "error", err)
		return o
	}
	skip := func(reason string) Outcome {
		o.Status, o.Stage, o.Reason = StatusSkipped, stage, reason
		logger.Debug("User not notified", "stage", stage, "reason", reason)
		return o
	}

	if !u.Eligible() {
		return skip(ReasonIneligible)
	}

	stage = StageGeocode
	var coord weather.Coordinate
	err := p.call(ctx, func(ctx context.Context) (err error) {
		coord, err = p.geocoder.Geocode(ctx, u.Location)
		return err
	})
	if err != nil {
		return fail(err)
	}

	stage = StageTimezone
	local, err := p.zones.LocalNow(coord.Lat, coord.Lon, p.now())
	if err != nil {
		return fail(err)
	}
	o.Zone = local.Zone

	stage = StageWindow
	if !InWindow(local) {
		return skip(ReasonOutOfWindow)
	}

	claimed := false
	if p.marker != nil {
		stage = StageMarker
		var ok bool
		err := p.call(ctx, func(ctx context.Context) (err error) {
			ok, err = p.marker.Claim(ctx, u.ID, local.Date())
			return err
		})
		switch {
		case err != nil:
			logger.Warn("Sent-marker unavailable, sending without dedup", "error", err)
		case !ok:
			return skip(ReasonAlreadySent)
		default:
			claimed = true
		}
	}
	release := func() {
		if !claimed {
			return
		}
		if err := p.call(context.WithoutCancel(ctx), func(ctx context.Context) error {
			return p.marker.Release(ctx, u.ID, local.Date())
		}); err != nil {
			logger.Warn("Failed to release sent-marker", "error", err)
		}
	}

	stage = StageWeather
	err = p.call(ctx, func(ctx context.Context) (err error) {
		o.Code, err = p.weather.CurrentCondition(ctx, u.Location)
		return err
	})
	if err != nil {
		release()
		return fail(err)
	}

	stage = StageDispatch
	msg := withData(Compose(o.Code, u.Username), o.Code, local.Zone)
	err = p.call(ctx, func(ctx context.Context) error {
		return p.sender.Send(ctx, u.Token, msg)
	})
	if err != nil {
		release()
		return fail(err)
	}

	o.Status = StatusDelivered
	o.Stage = stage
	logger.Info("Morning notification sent",
		"zone", local.Zone,
		"local_time", fmt.Sprintf("%02d:%02d", local.Hour, local.Minute),
		"condition", o.Code)
	return o
}

// call bounds one external call by the per-call timeout.
func (p *Pipeline) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return fn(cctx)
}
