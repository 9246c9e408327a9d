package assistant

import "math/rand/v2"

// ThinkingPhrases are spoken before a chat generation starts, masking the
// model's latency with a natural acknowledgement.
var ThinkingPhrases = []string{
	"Okay, let me think about that.",
	"Just a second.",
	"Got it, let me think.",
	"Let's see.",
}

// FallbackPhrases are spoken when an interaction produced no answer, so an
// internal failure is audible instead of silent.
var FallbackPhrases = []string{
	"Sorry, can you repeat that",
	"I don't understand",
	"Sorry, I didn't hear you properly",
	"Can you say that again?",
}

func thinkingPhrase() string {
	return ThinkingPhrases[rand.IntN(len(ThinkingPhrases))]
}

func fallbackPhrase() string {
	return FallbackPhrases[rand.IntN(len(FallbackPhrases))]
}
