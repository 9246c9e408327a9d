package llm

import "encoding/json"

// Request carries everything the model needs to produce one completion.
// UserPrompt must be non-empty; everything else is optional.
type Request struct {
	// SystemPrompt is a high-priority instruction injected before the user
	// prompt. Providers map it to their native system role.
	SystemPrompt string

	// UserPrompt is the user-facing input, typically a transcribed
	// utterance or a question composed from one.
	UserPrompt string

	// Grammar, when non-nil, requests JSON output matching the schema.
	Grammar *Grammar

	// Temperature controls output randomness. Zero means use the provider
	// default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means use the
	// provider default.
	MaxTokens int
}

// Grammar is a JSON-schema output constraint. Backends with native
// structured-output support (OpenAI response_format) enforce it server-side;
// the rest receive it as a trailing system-prompt instruction, which smaller
// models occasionally ignore.
type Grammar struct {
	// Name labels the schema for backends that require one.
	Name string

	// Schema is the JSON-schema document.
	Schema map[string]any
}

// SchemaJSON renders the schema as compact JSON for prompt embedding.
func (g *Grammar) SchemaJSON() string {
	b, err := json.Marshal(g.Schema)
	if err != nil {
		return "{}"
	}
	return string(b)
}
