package assistant

import (
	"strings"
	"sync"
)

// WakeDetector finds the activation phrase in transcribed text and extracts
// the command spoken after it. The phrase can be swapped at runtime (config
// reload), so reads and writes are guarded.
type WakeDetector struct {
	mu   sync.RWMutex
	word string
}

// NewWakeDetector returns a detector for the given activation phrase.
// The phrase is lowercased; matching is case-insensitive.
func NewWakeDetector(word string) *WakeDetector {
	d := &WakeDetector{}
	d.SetWakeword(word)
	return d
}

// SetWakeword replaces the activation phrase.
func (d *WakeDetector) SetWakeword(word string) {
	d.mu.Lock()
	d.word = strings.ToLower(strings.TrimSpace(word))
	d.mu.Unlock()
}

// Wakeword returns the current activation phrase, lowercased.
func (d *WakeDetector) Wakeword() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.word
}

// Detect reports whether text contains the activation phrase and extracts
// the command: everything after the first occurrence, lowercased, with
// leading and trailing ",. " characters trimmed and quote characters
// removed. An empty command after trimming reports ok=false — hearing the
// bare wakeword alone does not start an interaction.
func (d *WakeDetector) Detect(text string) (prompt string, ok bool) {
	word := d.Wakeword()
	if word == "" {
		return "", false
	}

	lower := strings.ToLower(text)
	idx := strings.Index(lower, word)
	if idx < 0 {
		return "", false
	}

	rest := lower[idx+len(word):]
	rest = strings.Trim(rest, ",. ")
	rest = strings.ReplaceAll(rest, `"`, "")
	if rest == "" {
		return "", false
	}
	return rest, true
}
