package clock

import (
	"context"
	"testing"
	"time"
)

// TestSpokenTime checks the natural-speech rendering: zero-padded fields
// lose their leading zero and AM/PM is spelled letter by letter.
func TestSpokenTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{
			"morning with padded hour and minute",
			time.Date(2026, time.January, 5, 8, 5, 0, 0, time.UTC),
			"Monday January 5 2026 at 8 5 A M",
		},
		{
			"afternoon",
			time.Date(2026, time.August, 25, 15, 30, 0, 0, time.UTC),
			"Tuesday August 25 2026 at 3 30 P M",
		},
		{
			"noon keeps twelve",
			time.Date(2026, time.August, 25, 12, 0, 0, 0, time.UTC),
			"Tuesday August 25 2026 at 12 0 P M",
		},
		{
			"past midnight",
			time.Date(2026, time.August, 25, 0, 7, 0, 0, time.UTC),
			"Tuesday August 25 2026 at 12 7 A M",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := spokenTime(tt.in); got != tt.want {
				t.Errorf("spokenTime(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTools_Registration(t *testing.T) {
	t.Parallel()

	ts := Tools()
	if len(ts) != 1 {
		t.Fatalf("Tools() returned %d tools, want 1", len(ts))
	}

	tool := ts[0]
	if tool.Name != "get_current_time" {
		t.Errorf("got name %q, want get_current_time", tool.Name)
	}
	if len(tool.Aliases) != 3 {
		t.Errorf("got %d aliases, want 3", len(tool.Aliases))
	}

	out := tool.Run(context.Background(), nil)
	if out == "" {
		t.Error("expected a non-empty spoken time")
	}
}
