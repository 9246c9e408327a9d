// Package transcript corrects device names that speech-to-text mishears.
//
// Spoken device names are the vocabulary a general-purpose STT model gets
// wrong most often — "desk lamp" comes back as "dezk lamp", "ceiling fan" as
// "sealing fan". The [Corrector] scans the transcript with n-gram windows and
// replaces windows that phonetically align with a registered device name, so
// downstream intent patterns and tool handlers see the canonical spelling.
//
// Each [Correction] records the substitution and its confidence, so callers
// can log, display, or audit what was changed.
package transcript

import "strings"

// Correction captures a single n-gram substitution made by the corrector.
type Correction struct {
	// Original is the window as produced by the STT provider.
	Original string

	// Corrected is the device name that replaced it.
	Corrected string

	// Confidence is the matcher's confidence in this substitution (0.0–1.0).
	Confidence float64

	// Method describes which matching strategy produced this substitution.
	// Currently always "phonetic".
	Method string
}

// PhoneticMatcher resolves a word or phrase to a known device name based on
// pronunciation similarity. It is designed to be fast enough for real-time
// use — no network calls, no model round-trips.
//
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match attempts to find the name from names that is most phonetically
	// similar to phrase. The comparison is whole-phrase against whole-name:
	// implementations must not accept a phrase because one of its tokens
	// resembles one token of a name.
	//
	// Return values:
	//   corrected  — the best-matching name from names.
	//   confidence — similarity score in [0.0, 1.0] where 1.0 is a perfect match.
	//   matched    — true when a sufficiently similar name was found.
	//
	// When matched is false, corrected must equal phrase unchanged and
	// confidence must be 0. Implementations define their own similarity
	// threshold for deciding when a match is "sufficient".
	Match(phrase string, names []string) (corrected string, confidence float64, matched bool)
}

// Corrector applies phonetic device-name correction to transcript text.
//
// The vocabulary is pulled through a function on every [Corrector.Apply]
// call, so a corrector wired to a device registry always sees the registry's
// current contents even across config reloads.
//
// Corrector is safe for concurrent use as long as matcher and names are.
type Corrector struct {
	matcher PhoneticMatcher
	names   func() []string
}

// NewCorrector returns a Corrector that matches transcript windows against
// the vocabulary returned by names.
func NewCorrector(matcher PhoneticMatcher, names func() []string) *Corrector {
	return &Corrector{matcher: matcher, names: names}
}

// Apply scans text and replaces n-gram windows that phonetically match a
// known device name. It returns the corrected text and the list of
// substitutions applied; the list is nil when nothing changed.
//
// The algorithm:
//  1. Tokenise the text into whitespace-separated words.
//  2. Determine the maximum number of words in any vocabulary name.
//  3. At each token position, try n-gram windows from that maximum down
//     to 1. Accept the longest matching window so multi-word names take
//     precedence over partial single-word matches.
//  4. Append matched names (or unmatched tokens) to the output and advance
//     the cursor by the number of tokens consumed.
//
// A window that already equals its matched name (ignoring case) is emitted
// in the name's registered spelling but not recorded as a correction.
func (c *Corrector) Apply(text string) (string, []Correction) {
	names := c.names()
	if len(names) == 0 {
		return text, nil
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	maxNameWords := maxWordCount(names)

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		// Clamp window size to remaining tokens.
		maxN := maxNameWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			name, conf, ok := c.matcher.Match(window, names)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(name)...)
			if !strings.EqualFold(window, name) {
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  name,
					Confidence: conf,
					Method:     "phonetic",
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// maxWordCount returns the maximum number of whitespace-separated words in
// any name. Returns 1 when names is empty.
func maxWordCount(names []string) int {
	max := 1
	for _, n := range names {
		if c := len(strings.Fields(n)); c > max {
			max = c
		}
	}
	return max
}
