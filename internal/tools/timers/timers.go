// Package timers provides countdown timer tools backed by scheduled
// cancellable tasks.
//
// Three tools are exported via [NewTools]:
//   - "start_countdown"  — parses a spoken duration and starts a timer.
//   - "cancel_timer"     — cancels a running timer by id.
//   - "get_timer_status" — reports remaining time for one or all timers.
//
// An expired timer rings an alarm three times through the playback path.
// The alarm sound comes from a configured WAV file ([LoadAlarm]) or the
// built-in tone ([FallbackTone]).
package timers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/auricle/internal/tools"
)

var (
	errNoValue = errors.New("No valid duration value found")
	errNoUnit  = errors.New("Unknown duration unit")
)

// digits matches the first run of decimal digits in a duration phrase.
var digits = regexp.MustCompile(`\d+`)

// numberWords maps spoken number words to their values. Duration phrases
// rarely go beyond two digits, so the table stops at hundred.
var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred": 100,
}

// wordToNum converts a single token to an integer: plain digits, a number
// word, or a hyphenated compound like "twenty-five".
func wordToNum(word string) (int, bool) {
	if n, err := strconv.Atoi(word); err == nil {
		return n, true
	}
	if n, ok := numberWords[word]; ok {
		return n, true
	}
	if tens, rest, ok := strings.Cut(word, "-"); ok {
		t, okT := numberWords[tens]
		r, okR := numberWords[rest]
		if okT && okR && t >= 20 && t%10 == 0 && r < 10 {
			return t + r, true
		}
	}
	return 0, false
}

// parseSeconds turns a spoken duration like "ten minutes" or "2 hours"
// into whole seconds. Number tokens and unit tokens may appear in any
// order; when several number tokens occur, the last one wins.
func parseSeconds(duration string) (int, error) {
	duration = strings.ToLower(duration)

	value := -1
	var unit strings.Builder
	for _, word := range strings.Fields(duration) {
		if n, ok := wordToNum(word); ok {
			value = n
			continue
		}
		unit.WriteString(word)
		unit.WriteByte(' ')
	}

	if value < 0 {
		m := digits.FindString(duration)
		if m == "" {
			return 0, errNoValue
		}
		value, _ = strconv.Atoi(m)
	}

	u := unit.String()
	switch {
	case strings.Contains(u, "hour"):
		return value * 3600, nil
	case strings.Contains(u, "minute"):
		return value * 60, nil
	case strings.Contains(u, "second"):
		return value, nil
	}
	return 0, errNoUnit
}

// startMessage renders the confirmation sentence for a new countdown,
// reporting the dominant unit only.
func startMessage(seconds int) string {
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("Timer started for %d %s", seconds/3600, plural(seconds/3600, "hour"))
	case seconds >= 60:
		return fmt.Sprintf("Timer started for %d %s", seconds/60, plural(seconds/60, "minute"))
	default:
		return fmt.Sprintf("Timer started for %d %s", seconds, plural(seconds, "second"))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

// formatRemaining renders a remaining-time figure for status queries.
func formatRemaining(remaining int) string {
	switch {
	case remaining >= 3600:
		return fmt.Sprintf("%d hours %d minutes %d seconds",
			remaining/3600, (remaining%3600)/60, remaining%60)
	case remaining >= 60:
		return fmt.Sprintf("%d minutes %d seconds", remaining/60, remaining%60)
	default:
		return fmt.Sprintf("%d seconds", remaining)
	}
}

// countdown is one scheduled timer.
type countdown struct {
	duration time.Duration
	started  time.Time
	timer    *time.Timer
}

// Manager owns the active countdowns. All methods are safe for concurrent
// use; expiry callbacks run on their own goroutines.
type Manager struct {
	mu     sync.Mutex
	active map[string]*countdown
	ring   func(context.Context)

	now   func() time.Time
	pause time.Duration
}

// NewManager creates a Manager. ring plays the alarm sound once and may be
// nil to expire timers silently.
func NewManager(ring func(context.Context)) *Manager {
	return &Manager{
		active: make(map[string]*countdown),
		ring:   ring,
		now:    time.Now,
		pause:  time.Second,
	}
}

// nextID returns the first free "timer_N" id. Numbering restarts from 1
// once all timers are gone.
func (m *Manager) nextID() string {
	n := len(m.active) + 1
	for {
		id := fmt.Sprintf("timer_%d", n)
		if _, ok := m.active[id]; !ok {
			return id
		}
		n++
	}
}

// Start parses the spoken duration, schedules a countdown, and returns the
// confirmation sentence.
func (m *Manager) Start(duration string) string {
	seconds, err := parseSeconds(duration)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}

	m.mu.Lock()
	id := m.nextID()
	cd := &countdown{
		duration: time.Duration(seconds) * time.Second,
		started:  m.now(),
	}
	cd.timer = time.AfterFunc(cd.duration, func() { m.expire(id) })
	m.active[id] = cd
	m.mu.Unlock()

	slog.Info("timers: countdown started", "timer", id, "seconds", seconds)
	return startMessage(seconds)
}

// Cancel stops the named countdown.
func (m *Manager) Cancel(id string) string {
	m.mu.Lock()
	cd, ok := m.active[id]
	if ok {
		cd.timer.Stop()
		delete(m.active, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Sprintf("Timer %s not found", id)
	}
	slog.Info("timers: countdown cancelled", "timer", id)
	return fmt.Sprintf("Timer %s cancelled", id)
}

// Status reports the remaining time of one timer, or of all timers when id
// is empty.
func (m *Manager) Status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.active) == 0 {
		return "No active timers"
	}

	if id != "" {
		cd, ok := m.active[id]
		if !ok {
			return fmt.Sprintf("Timer %s not found", id)
		}
		return fmt.Sprintf("Timer %s has %s remaining", id, formatRemaining(m.remaining(cd)))
	}

	ids := make([]string, 0, len(m.active))
	for tid := range m.active {
		ids = append(ids, tid)
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, tid := range ids {
		lines = append(lines, fmt.Sprintf("%s: %s", tid, formatRemaining(m.remaining(m.active[tid]))))
	}
	return "Timer status:\n" + strings.Join(lines, "\n")
}

// remaining computes whole seconds left on a countdown, floored at zero.
// Caller holds m.mu.
func (m *Manager) remaining(cd *countdown) int {
	left := cd.duration - m.now().Sub(cd.started)
	if left < 0 {
		left = 0
	}
	return int(left / time.Second)
}

// Stop cancels every pending countdown. An alarm already ringing finishes
// its remaining repeats.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cd := range m.active {
		cd.timer.Stop()
		delete(m.active, id)
	}
}

// expire removes a finished countdown and rings the alarm three times with
// a pause after each ring.
func (m *Manager) expire(id string) {
	m.mu.Lock()
	_, ok := m.active[id]
	delete(m.active, id)
	ring := m.ring
	pause := m.pause
	m.mu.Unlock()

	if !ok {
		return
	}
	slog.Info("timers: countdown finished", "timer", id)
	if ring == nil {
		return
	}
	for range 3 {
		ring(context.Background())
		time.Sleep(pause)
	}
}

// NewTools returns the countdown tools backed by m.
func NewTools(m *Manager) []tools.Tool {
	return []tools.Tool{
		{
			Name:        "start_countdown",
			Aliases:     []string{"timer", "countdown", "set_timer", "start_timer"},
			Description: "Start a countdown timer for specified duration",
			Run: func(_ context.Context, args map[string]string) string {
				return m.Start(args["duration"])
			},
		},
		{
			Name:        "cancel_timer",
			Aliases:     []string{"stop_timer", "end_timer"},
			Description: "Cancel an active timer",
			Run: func(_ context.Context, args map[string]string) string {
				return m.Cancel(args["timer_id"])
			},
		},
		{
			Name:        "get_timer_status",
			Aliases:     []string{"timer_status", "check_timer", "show_timers", "get_timers", "list_timers"},
			Description: "Get the status of a timer or all timers including time remaining",
			Run: func(_ context.Context, args map[string]string) string {
				return m.Status(args["timer_id"])
			},
		},
	}
}
