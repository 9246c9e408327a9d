package intent

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Pattern pairs a compiled regex with the tool call it produces on a match.
type Pattern struct {
	// Name is a human-readable label for logging.
	Name string

	// Regex is the compiled pattern, tested against the whole normalized
	// prompt. Positional groups are passed to Build as matches[1],
	// matches[2], etc.
	Regex *regexp.Regexp

	// Build turns the full submatch slice from Regex.FindStringSubmatch
	// into a dispatchable call.
	Build func(matches []string) Call
}

// Matcher is the fast path of intent classification: a prompt that matches
// one of its patterns is dispatched directly, skipping the model entirely.
//
// Patterns are tried in order and the first match wins, so narrower
// patterns must precede broader ones. Custom patterns loaded from
// configuration are tried before the built-in set and may be swapped at
// runtime; all methods are safe for concurrent use.
type Matcher struct {
	mu     sync.RWMutex
	custom []Pattern
	base   []Pattern
}

// NewMatcher creates a Matcher with the built-in pattern set and no custom
// patterns.
func NewMatcher() *Matcher {
	return &Matcher{base: defaultPatterns()}
}

// Match tests text against the custom and then the built-in patterns.
// Leading/trailing whitespace and trailing punctuation are stripped before
// matching, so "What time is it?" and "what time is it" hit the same
// pattern. Returns the built call and true on a hit, or a zero Call and
// false when no pattern matches or text is empty.
func (m *Matcher) Match(text string) (Call, bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimRight(trimmed, " ?!.,")
	if trimmed == "" {
		return Call{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range [][]Pattern{m.custom, m.base} {
		for _, pat := range p {
			matches := pat.Regex.FindStringSubmatch(trimmed)
			if matches == nil {
				continue
			}
			call := pat.Build(matches)
			slog.Debug("intent: fast path matched",
				"pattern", pat.Name,
				"tool", call.Tool,
			)
			return call, true
		}
	}
	return Call{}, false
}

// SetCustom replaces the custom pattern set. Passing nil removes all custom
// patterns. Called by the config watcher on reload.
func (m *Matcher) SetCustom(patterns []Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custom = patterns
}

// groupRef locates $1..$99 capture-group references in argument templates.
var groupRef = regexp.MustCompile(`\$(\d+)`)

// CompilePattern builds a Pattern from a configuration rule. expr must be a
// valid regular expression; args values may reference capture groups as $1,
// $2, and so on. References beyond the group count expand to the empty
// string.
func CompilePattern(name, expr, tool string, args map[string]string) (Pattern, error) {
	if name == "" {
		return Pattern{}, fmt.Errorf("intent: pattern has no name")
	}
	if tool == "" {
		return Pattern{}, fmt.Errorf("intent: pattern %q names no tool", name)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("intent: compile pattern %q: %w", name, err)
	}

	templates := make(map[string]string, len(args))
	for k, v := range args {
		templates[k] = v
	}

	return Pattern{
		Name:  name,
		Regex: re,
		Build: func(matches []string) Call {
			built := make(map[string]string, len(templates))
			for k, tmpl := range templates {
				built[k] = expandGroups(tmpl, matches)
			}
			return Call{Tool: tool, Args: built}
		},
	}, nil
}

// expandGroups substitutes $N references in tmpl with the corresponding
// submatches.
func expandGroups(tmpl string, matches []string) string {
	return groupRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		n, err := strconv.Atoi(ref[1:])
		if err != nil || n < 0 || n >= len(matches) {
			return ""
		}
		return matches[n]
	})
}

// defaultPatterns returns the built-in fast-path patterns. The set covers
// the phrasings short enough that a model round-trip would dominate the
// response time; everything else falls through to model classification.
func defaultPatterns() []Pattern {
	noArgs := func(tool string) func([]string) Call {
		return func([]string) Call {
			return Call{Tool: tool, Args: map[string]string{}}
		}
	}

	return []Pattern{
		{
			Name:  "current-time",
			Regex: regexp.MustCompile(`(?i)^what time is it(?: right now| now)?$`),
			Build: noArgs("get_current_time"),
		},
		{
			Name:  "current-time-alt",
			Regex: regexp.MustCompile(`(?i)^(?:what(?:'s| is) the time|tell me the time)(?: right now| now)?$`),
			Build: noArgs("get_current_time"),
		},
		{
			Name:  "weather-today",
			Regex: regexp.MustCompile(`(?i)^what(?:'s| is) the (?:weather|forecast)(?: like)?(?: (?:today|for today|tomorrow|for tomorrow))?$`),
			Build: noArgs("get_weather_forecast"),
		},
		{
			Name:  "weather-at",
			Regex: regexp.MustCompile(`(?i)^what(?:'s| is) the (?:weather|forecast)(?: like)? (?:in|for|at) (.+)$`),
			Build: func(m []string) Call {
				return Call{
					Tool: "get_weather_forecast",
					Args: map[string]string{"location": m[1]},
				}
			},
		},
		{
			Name:  "timer-start",
			Regex: regexp.MustCompile(`(?i)^(?:set|start) a timer for (.+)$`),
			Build: func(m []string) Call {
				return Call{
					Tool: "start_countdown",
					Args: map[string]string{"duration": m[1]},
				}
			},
		},
		{
			Name:  "timer-start-alt",
			Regex: regexp.MustCompile(`(?i)^(?:set|start) a (.+?) timer$`),
			Build: func(m []string) Call {
				return Call{
					Tool: "start_countdown",
					Args: map[string]string{"duration": m[1]},
				}
			},
		},
		{
			Name:  "timer-status",
			Regex: regexp.MustCompile(`(?i)^how (?:much time|long) is (?:left|remaining)(?: on (?:the )?timers?)?$`),
			Build: noArgs("get_timer_status"),
		},
		{
			Name:  "timer-list",
			Regex: regexp.MustCompile(`(?i)^(?:list|show) (?:my |the )?(?:active )?timers$`),
			Build: noArgs("get_timer_status"),
		},
		{
			Name:  "lights-on",
			Regex: regexp.MustCompile(`(?i)^(?:turn on (?:the )?lights?|turn (?:the )?lights? on)$`),
			Build: noArgs("turn_on_lights"),
		},
		{
			Name:  "lights-off",
			Regex: regexp.MustCompile(`(?i)^(?:turn off (?:the )?lights?|turn (?:the )?lights? off)$`),
			Build: noArgs("turn_off_lights"),
		},
		{
			Name:  "lights-on-at",
			Regex: regexp.MustCompile(`(?i)^turn on (?:the )?(.+?) lights?$`),
			Build: func(m []string) Call {
				return Call{
					Tool: "turn_on_lights",
					Args: map[string]string{"location": m[1]},
				}
			},
		},
		{
			Name:  "lights-off-at",
			Regex: regexp.MustCompile(`(?i)^turn off (?:the )?(.+?) lights?$`),
			Build: func(m []string) Call {
				return Call{
					Tool: "turn_off_lights",
					Args: map[string]string{"location": m[1]},
				}
			},
		},
		{
			Name:  "lights-dim",
			Regex: regexp.MustCompile(`(?i)^(?:set|dim|brighten) (?:the )?lights? to (\d+)(?: percent|%)?$`),
			Build: func(m []string) Call {
				return Call{
					Tool: "set_brightness",
					Args: map[string]string{"percent": m[1]},
				}
			},
		},
		{
			Name:  "lights-dim-at",
			Regex: regexp.MustCompile(`(?i)^(?:set|dim|brighten) (?:the )?(.+?) lights? to (\d+)(?: percent|%)?$`),
			Build: func(m []string) Call {
				return Call{
					Tool: "set_brightness",
					Args: map[string]string{"location": m[1], "percent": m[2]},
				}
			},
		},
	}
}
