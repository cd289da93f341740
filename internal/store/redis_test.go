package store

import (
	"fmt"
	"testing"
	"time"
)

func TestRedisRetentionBounds(t *testing.T) {
	now := time.UnixMilli(200_000_000)
	cutoff := now.Add(-24 * time.Hour).UnixMilli()

	if got := retentionCutoff(now); got != cutoff {
		t.Fatalf("expected cutoff %d, got %d", cutoff, got)
	}
	if got, want := expiredBound(now), fmt.Sprintf("(%d", cutoff); got != want {
		t.Fatalf("expected trim bound %q, got %q", want, got)
	}

	r := historyRange(now, 0, 50)
	if r.Min != fmt.Sprintf("%d", cutoff) {
		t.Fatalf("history must start at the retention cutoff, got min %q", r.Min)
	}
	if r.Max != "+inf" || r.Count != 50 {
		t.Fatalf("unexpected newest range: %+v", r)
	}

	r = historyRange(now, 150_000_000, 10)
	if r.Max != "(150000000" {
		t.Fatalf("expected exclusive before bound, got %q", r.Max)
	}
	if r.Min != fmt.Sprintf("%d", cutoff) {
		t.Fatalf("paged history must still honor retention, got min %q", r.Min)
	}
}
