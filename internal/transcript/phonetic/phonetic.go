// Package phonetic matches misheard device names against the registry using
// Double Metaphone codes and Jaro-Winkler similarity, implementing
// [transcript.PhoneticMatcher].
//
// A name becomes a candidate when any word of the spoken phrase shares a
// metaphone code with any word of the name; candidates are then ranked by
// Jaro-Winkler similarity on the full strings and the best one above the
// phonetic threshold wins. Phrases with no phonetic overlap at all get one
// more chance: plain string similarity against every name under a stricter
// fuzzy threshold, which catches typo-like transcription errors that happen
// to change the phonetics.
//
// Comparison is always whole phrase against whole name, spaced and
// space-stripped, so "sealing fan" aligns with "ceiling fan" and a glued
// "desklamp" still aligns with "desk lamp" — but "the desk" never outranks
// the real window for "desk lamp" during n-gram scanning.
package phonetic

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticMin = 0.70
	defaultFuzzyMin    = 0.85
)

// Matcher resolves spoken phrases to registered device names. It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticMin float64
	fuzzyMin    float64
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity a phonetically
// overlapping name must reach to be accepted. Default 0.70.
func WithPhoneticThreshold(min float64) Option {
	return func(m *Matcher) { m.phoneticMin = min }
}

// WithFuzzyThreshold sets the minimum similarity for the fallback pass over
// names with no phonetic overlap. Default 0.85.
func WithFuzzyThreshold(min float64) Option {
	return func(m *Matcher) { m.fuzzyMin = min }
}

// New builds a [Matcher] with the default thresholds, then applies opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{phoneticMin: defaultPhoneticMin, fuzzyMin: defaultFuzzyMin}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match resolves phrase to the closest of names. phrase may be a single
// word or a space-separated n-gram.
//
// Return values follow the [transcript.PhoneticMatcher] contract: when
// matched is false, corrected equals phrase unchanged and confidence is 0.
// A phonetically overlapping name always beats a merely similar one,
// whatever their scores.
func (m *Matcher) Match(phrase string, names []string) (corrected string, confidence float64, matched bool) {
	spoken := strings.ToLower(strings.TrimSpace(phrase))
	if spoken == "" || len(names) == 0 {
		return phrase, 0, false
	}
	spokenCodes := metaphoneCodes(spoken)

	var (
		phonName, fuzzName   string
		phonScore, fuzzScore float64
	)
	for _, name := range names {
		known := strings.ToLower(strings.TrimSpace(name))
		if known == "" {
			continue
		}
		score := similarity(spoken, known)
		if sharesCode(spokenCodes, metaphoneCodes(known)) {
			if score >= m.phoneticMin && score > phonScore {
				phonName, phonScore = name, score
			}
		} else if score >= m.fuzzyMin && score > fuzzScore {
			fuzzName, fuzzScore = name, score
		}
	}

	switch {
	case phonName != "":
		return phonName, phonScore, true
	case fuzzName != "":
		return fuzzName, fuzzScore, true
	}
	return phrase, 0, false
}

// metaphoneCodes returns the Double Metaphone codes of every word in s.
// Words too short or vowel-only may contribute nothing.
func metaphoneCodes(s string) []string {
	var codes []string
	for _, word := range strings.Fields(s) {
		primary, secondary := matchr.DoubleMetaphone(word)
		if primary != "" {
			codes = append(codes, primary)
		}
		if secondary != "" && secondary != primary {
			codes = append(codes, secondary)
		}
	}
	return codes
}

// sharesCode reports whether the two code lists have a code in common.
// The lists are a handful of entries each, so a linear scan is fine.
func sharesCode(a, b []string) bool {
	for _, code := range a {
		if slices.Contains(b, code) {
			return true
		}
	}
	return false
}

// similarity is the Jaro-Winkler score of a and b, taking the better of the
// spaced and space-stripped comparisons so glued or split compounds still
// align.
func similarity(a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if sa, sb := squash(a), squash(b); sa != a || sb != b {
		if s := matchr.JaroWinkler(sa, sb, false); s > score {
			score = s
		}
	}
	return score
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}
