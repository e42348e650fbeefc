// Package timezone maps coordinates to an IANA zone with the tzf boundary
// dataset and reports the local wall-clock time there. Zone rules come from
// the embedded tzdata so results do not depend on the host.
package timezone

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"
)

// ErrUnresolvable means no zone covers the coordinate.
var ErrUnresolvable = errors.New("timezone unresolvable")

// The boundary dataset covers international waters with nautical Etc/GMT±N
// zones. Those are open ocean and count as unresolvable.
const oceanZonePrefix = "Etc/"

// Finder looks up the zone name for a point. An empty result means none.
// tzf.F satisfies it.
type Finder interface {
	GetTimezoneName(lng float64, lat float64) string
}

// LocalMoment is a wall-clock reading in a resolved zone.
type LocalMoment struct {
	Zone   string
	Time   time.Time
	Hour   int
	Minute int
}

// Date returns the local calendar date as YYYY-MM-DD.
func (m LocalMoment) Date() string {
	return m.Time.Format("2006-01-02")
}

// Resolver resolves coordinates to local time.
type Resolver struct {
	finder Finder
}

// NewResolver loads the default tzf finder.
func NewResolver() (*Resolver, error) {
	f, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("load timezone finder: %w", err)
	}
	return &Resolver{finder: f}, nil
}

// NewResolverWithFinder uses a caller-supplied finder.
func NewResolverWithFinder(f Finder) *Resolver {
	return &Resolver{finder: f}
}

// Zone returns the IANA zone name covering lat/lon. Open ocean is
// ErrUnresolvable.
func (r *Resolver) Zone(lat, lon float64) (string, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("coordinate (%.4f, %.4f) out of range: %w", lat, lon, ErrUnresolvable)
	}
	name := r.finder.GetTimezoneName(lon, lat)
	if name == "" || strings.HasPrefix(name, oceanZonePrefix) {
		return "", fmt.Errorf("no zone at (%.4f, %.4f): %w", lat, lon, ErrUnresolvable)
	}
	return name, nil
}

// LocalNow returns the wall-clock time at lat/lon for the instant now.
func (r *Resolver) LocalNow(lat, lon float64, now time.Time) (LocalMoment, error) {
	zone, err := r.Zone(lat, lon)
	if err != nil {
		return LocalMoment{}, err
	}
	return MomentIn(zone, now)
}

// MomentIn converts now into the named zone.
func MomentIn(zone string, now time.Time) (LocalMoment, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return LocalMoment{}, fmt.Errorf("load zone %q: %w", zone, ErrUnresolvable)
	}
	t := now.In(loc)
	return LocalMoment{Zone: zone, Time: t, Hour: t.Hour(), Minute: t.Minute()}, nil
}
