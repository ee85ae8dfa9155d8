package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	naturaldate "github.com/tj/go-naturaldate"
)

// Parse failure reasons surfaced to callers.
const (
	ReasonUnparseable   = "unparseable"
	ReasonInPast        = "in the past"
	ReasonInvalidFormat = "invalid format"
)

// ParseError reports a rejected delay specification. It is surfaced to the
// caller as a bad request, never silently defaulted.
type ParseError struct {
	Reason string
	Spec   any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("schedule: delay spec %v: %s", e.Spec, e.Reason)
}

func newParseError(reason string, spec any) *ParseError {
	return &ParseError{Reason: reason, Spec: spec}
}

// Resolution is an absolute fire time plus the non-negative delay until it.
type Resolution struct {
	FireAt time.Time
	Delay  time.Duration
}

// Resolver converts a user-supplied delay specification into an absolute,
// timezone-correct fire time. The specification is either a positive number of
// whole minutes or a natural-language expression ("tomorrow at 5pm")
// evaluated against the wall clock of the reference zone, never the zone the
// process happens to run in.
type Resolver struct {
	loc *time.Location
	now func() time.Time
}

// NewResolver builds a resolver anchored to the named reference zone.
func NewResolver(timeZone string) (*Resolver, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("schedule: load zone %q: %w", timeZone, err)
	}
	return &Resolver{loc: loc, now: time.Now}, nil
}

// Zone returns the reference zone identifier.
func (r *Resolver) Zone() string {
	return r.loc.String()
}

// Resolve evaluates the delay specification against "now" in the reference
// zone. Numeric values are whole minutes from now; strings that are not
// numeric are parsed as natural-language time with forward bias, so an
// ambiguous "Friday" is always the next one. A resolved instant at or before
// now is rejected rather than clamped.
func (r *Resolver) Resolve(spec any) (Resolution, error) {
	now := r.now().In(r.loc)

	switch v := spec.(type) {
	case float64:
		return r.resolveMinutes(now, v, spec)
	case int:
		return r.resolveMinutes(now, float64(v), spec)
	case int64:
		return r.resolveMinutes(now, float64(v), spec)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return Resolution{}, newParseError(ReasonInvalidFormat, spec)
		}
		if minutes, err := strconv.ParseFloat(s, 64); err == nil && minutes > 0 {
			return r.resolveMinutes(now, minutes, spec)
		}
		return r.resolveNatural(now, s, spec)
	default:
		return Resolution{}, newParseError(ReasonInvalidFormat, spec)
	}
}

func (r *Resolver) resolveMinutes(now time.Time, minutes float64, spec any) (Resolution, error) {
	if minutes <= 0 {
		return Resolution{}, newParseError(ReasonInvalidFormat, spec)
	}
	delay := time.Duration(minutes * float64(time.Minute))
	return Resolution{FireAt: now.Add(delay), Delay: delay}, nil
}

func (r *Resolver) resolveNatural(now time.Time, expr string, spec any) (Resolution, error) {
	fireAt, err := naturaldate.Parse(expr, now, naturaldate.WithDirection(naturaldate.Future))
	if err != nil {
		return Resolution{}, newParseError(ReasonUnparseable, spec)
	}
	// Parse hands back the reference time untouched when the input contains
	// no date expression at all.
	if fireAt.Equal(now) {
		return Resolution{}, newParseError(ReasonUnparseable, spec)
	}
	// A bare time of day that already passed today rolls to tomorrow.
	if !fireAt.After(now) && now.Sub(fireAt) < 24*time.Hour {
		fireAt = fireAt.AddDate(0, 0, 1)
	}
	if !fireAt.After(now) {
		return Resolution{}, newParseError(ReasonInPast, spec)
	}
	return Resolution{FireAt: fireAt, Delay: fireAt.Sub(now)}, nil
}

// DateContext is the same-day calling context injected into call template
// variables. It must be computed at dispatch time, not at schedule time.
type DateContext struct {
	Day      string `json:"today_day"`
	Date     string `json:"today_date"`
	ISO      string `json:"today_iso"`
	TimeZone string `json:"timezone"`
}

// DateContext captures "today" in the reference zone.
func (r *Resolver) DateContext() DateContext {
	now := r.now().In(r.loc)
	return DateContext{
		Day:      now.Format("Monday"),
		Date:     now.Format("2006-01-02"),
		ISO:      now.UTC().Format(time.RFC3339),
		TimeZone: r.loc.String(),
	}
}
