// Package llm defines the Provider interface for language-model backends.
//
// A provider wraps a remote or local model API (OpenAI, or anything reachable
// through any-llm-go such as Ollama, llama.cpp, or Anthropic) behind a single
// blocking call: hand it a prompt, get the finished reply back. The assistant
// loop calls it at most twice per interaction — once with a grammar to
// classify the utterance as a tool intent, once without for free-form chat —
// so the surface stays deliberately small.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Provider generates text completions.
type Provider interface {
	// Generate produces one completion for req and blocks until the full
	// reply is available or ctx is cancelled. When req.Grammar is non-nil
	// the backend is asked to emit JSON matching the schema; backends
	// without native structured output fall back to instructing the model
	// through the prompt, so callers must still validate the reply before
	// trusting its shape.
	Generate(ctx context.Context, req Request) (string, error)
}
