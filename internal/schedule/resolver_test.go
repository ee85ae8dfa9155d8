package schedule

import (
	"errors"
	"testing"
	"time"
)

func fixedResolver(t *testing.T, zone string, now time.Time) *Resolver {
	t.Helper()
	r, err := NewResolver(zone)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	r.now = func() time.Time { return now }
	return r
}

func parseReason(t *testing.T, err error) string {
	t.Helper()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	return perr.Reason
}

func TestResolveNumericMinutes(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(t, "UTC", now)

	for _, minutes := range []float64{1, 5, 30, 90} {
		res, err := r.Resolve(minutes)
		if err != nil {
			t.Fatalf("resolve %v minutes: %v", minutes, err)
		}
		wantDelay := time.Duration(minutes) * time.Minute
		if res.Delay != wantDelay {
			t.Errorf("delay for %v minutes = %v, want %v", minutes, res.Delay, wantDelay)
		}
		if !res.FireAt.Equal(now.Add(wantDelay)) {
			t.Errorf("fireAt for %v minutes = %v, want %v", minutes, res.FireAt, now.Add(wantDelay))
		}
	}
}

func TestResolveNumericString(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(t, "UTC", now)

	res, err := r.Resolve("30")
	if err != nil {
		t.Fatalf("resolve numeric string: %v", err)
	}
	if res.Delay != 30*time.Minute {
		t.Errorf("delay = %v, want 30m", res.Delay)
	}
}

func TestResolveInvalidFormat(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(t, "UTC", now)

	for _, spec := range []any{nil, true, "", "   ", float64(0), float64(-5), []string{"x"}} {
		_, err := r.Resolve(spec)
		if err == nil {
			t.Fatalf("expected error for spec %v", spec)
		}
		if reason := parseReason(t, err); reason != ReasonInvalidFormat {
			t.Errorf("spec %v: reason = %q, want %q", spec, reason, ReasonInvalidFormat)
		}
	}
}

func TestResolveUnparseable(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(t, "UTC", now)

	_, err := r.Resolve("purple elephants dancing")
	if err == nil {
		t.Fatal("expected error for nonsense input")
	}
	if reason := parseReason(t, err); reason != ReasonUnparseable {
		t.Errorf("reason = %q, want %q", reason, ReasonUnparseable)
	}
}

func TestResolvePastRejected(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(t, "UTC", now)

	for _, spec := range []string{"yesterday", "3 days ago"} {
		_, err := r.Resolve(spec)
		if err == nil {
			t.Fatalf("expected error for past spec %q", spec)
		}
		if reason := parseReason(t, err); reason != ReasonInPast {
			t.Errorf("spec %q: reason = %q, want %q", spec, reason, ReasonInPast)
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := fixedResolver(t, "UTC", now)

	first, err := r.Resolve("tomorrow at 9am")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve("tomorrow at 9am")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !first.FireAt.Equal(second.FireAt) {
		t.Errorf("fireAt not deterministic: %v vs %v", first.FireAt, second.FireAt)
	}
}

func TestResolveUsesReferenceZoneWallClock(t *testing.T) {
	// Reference clock reads 20:00 UTC; the target zone is hours behind, so
	// "tomorrow at 9am" must mean 09:00 on the target zone's wall clock.
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	now := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	r := fixedResolver(t, "America/Los_Angeles", now)

	res, err := r.Resolve("tomorrow at 9am")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	want := time.Date(2024, 1, 2, 9, 0, 0, 0, loc)
	if !res.FireAt.Equal(want) {
		t.Errorf("fireAt = %v, want %v", res.FireAt, want)
	}
	if res.Delay <= 0 {
		t.Errorf("delay = %v, want positive", res.Delay)
	}
}

func TestResolveForwardBiasNeverNegative(t *testing.T) {
	// 8pm local: a bare "at 5pm" has already passed today and must resolve
	// to tomorrow, never to a negative delay.
	now := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	r := fixedResolver(t, "UTC", now)

	res, err := r.Resolve("at 5pm")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Delay <= 0 {
		t.Fatalf("delay = %v, want positive", res.Delay)
	}
	if res.FireAt.Day() != 2 || res.FireAt.Hour() != 17 {
		t.Errorf("fireAt = %v, want Jan 2 17:00", res.FireAt)
	}
}

func TestDateContext(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	now := time.Date(2024, 1, 2, 3, 30, 0, 0, time.UTC) // Jan 1 19:30 in LA
	r := fixedResolver(t, "America/Los_Angeles", now)

	ctx := r.DateContext()
	if ctx.Day != "Monday" {
		t.Errorf("day = %q, want Monday", ctx.Day)
	}
	if ctx.Date != "2024-01-01" {
		t.Errorf("date = %q, want 2024-01-01", ctx.Date)
	}
	if ctx.TimeZone != loc.String() {
		t.Errorf("timezone = %q, want %q", ctx.TimeZone, loc.String())
	}
}
