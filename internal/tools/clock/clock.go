// Package clock provides the built-in date and time tool.
//
// One tool is exported via [Tools]:
//   - "get_current_time" — speaks the current local date and time.
package clock

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/tools"
)

// leadingZero matches a zero-padded two-digit token so "08 05" reads as
// "8 5" instead of "zero eight zero five".
var leadingZero = regexp.MustCompile(`\b0(\d)\b`)

// meridiem spaces out AM/PM so the synthesizer spells the letters instead
// of guessing a word.
var meridiem = strings.NewReplacer("AM", "A M", "PM", "P M")

// spokenTime renders t the way it should be read aloud, e.g.
// "Monday January 5 2026 at 8 5 A M".
func spokenTime(t time.Time) string {
	text := t.Format("Monday January 02 2006 at 03 04 PM")
	text = leadingZero.ReplaceAllString(text, "$1")
	return meridiem.Replace(text)
}

// Tools returns the built-in clock tools.
func Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "get_current_time",
			Aliases:     []string{"time", "what_time_is_it", "get_time"},
			Description: "Get the current date and time",
			// TODO: resolve the location argument to a time zone instead of
			// ignoring it.
			Run: func(_ context.Context, _ map[string]string) string {
				return spokenTime(time.Now())
			},
		},
	}
}
