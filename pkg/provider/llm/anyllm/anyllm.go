// Package anyllm adapts github.com/mozilla-ai/any-llm-go to the llm.Provider
// interface, giving one construction path for every chat backend the daemon
// can talk to — cloud APIs and local inference servers alike.
//
//	p, err := anyllm.New("ollama", "qwen3:4b")
//	p, err := anyllm.NewAnthropic("claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
//
// any-llm-go exposes no structured-output parameter, so grammar-constrained
// requests ride in as prompt text: the JSON schema is appended to the system
// prompt and the caller validates the reply. A model that ignores the
// instruction produces a parse failure upstream, not an error here.
package anyllm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// backendFactories maps a lowercased backend name to its any-llm-go
// constructor. The closures exist because each provider package returns its
// own concrete type.
var backendFactories = map[string]func(...anyllmlib.Option) (anyllmlib.Provider, error){
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Provider implements llm.Provider on top of an any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
	metrics *observe.Metrics
}

// New opens the named backend and returns a Provider speaking the given
// model. backendName is matched case-insensitively against the keys of
// [backendFactories]; model is passed through to the backend verbatim
// (e.g. "qwen3:4b", "gpt-4o").
//
// opts configure the backend, typically anyllmlib.WithAPIKey or
// anyllmlib.WithBaseURL. Cloud backends without an explicit key read their
// usual environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...);
// local backends such as ollama and llamacpp need none.
func New(backendName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backend name must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	name := strings.ToLower(backendName)
	factory, ok := backendFactories[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q (known: %s)", backendName, strings.Join(backendNames(), ", "))
	}
	backend, err := factory(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}

	return &Provider{
		backend: backend,
		name:    name,
		model:   model,
		metrics: observe.DefaultMetrics(),
	}, nil
}

func backendNames() []string {
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Per-backend constructors, equivalent to calling [New] with the backend
// name spelled out. Cloud backends fall back to their usual API key
// environment variable when no WithAPIKey option is given.

// NewOpenAI connects to OpenAI (OPENAI_API_KEY).
func NewOpenAI(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("openai", model, opts...)
}

// NewAnthropic connects to Anthropic (ANTHROPIC_API_KEY).
func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, opts...)
}

// NewGemini connects to Google Gemini (GEMINI_API_KEY or GOOGLE_API_KEY).
func NewGemini(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("gemini", model, opts...)
}

// NewOllama connects to a local Ollama server, http://localhost:11434 by default.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// NewDeepSeek connects to DeepSeek (DEEPSEEK_API_KEY).
func NewDeepSeek(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("deepseek", model, opts...)
}

// NewMistral connects to Mistral AI (MISTRAL_API_KEY).
func NewMistral(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("mistral", model, opts...)
}

// NewGroq connects to Groq (GROQ_API_KEY).
func NewGroq(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("groq", model, opts...)
}

// NewLlamaCpp connects to a llama.cpp server, http://127.0.0.1:8080/v1 by default.
func NewLlamaCpp(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("llamacpp", model, opts...)
}

// NewLlamaFile connects to a llamafile server on its default port.
func NewLlamaFile(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("llamafile", model, opts...)
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (string, error) {
	if req.UserPrompt == "" {
		return "", fmt.Errorf("anyllm: user prompt must not be empty")
	}

	start := time.Now()
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	switch {
	case err != nil:
		p.metrics.RecordProviderError(ctx, p.name, "llm")
		return "", fmt.Errorf("anyllm: completion: %w", err)
	case len(resp.Choices) == 0:
		p.metrics.RecordProviderError(ctx, p.name, "llm")
		return "", fmt.Errorf("anyllm: backend returned no choices")
	}

	p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	p.metrics.RecordProviderRequest(ctx, p.name, "llm", "ok")
	return resp.Choices[0].Message.ContentString(), nil
}

// buildParams maps an llm.Request onto any-llm-go completion params. Zero
// sampling values stay unset so the backend keeps its own defaults.
func (p *Provider) buildParams(req llm.Request) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{Model: p.model}

	if system := systemPrompt(req); system != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: system,
		})
	}
	params.Messages = append(params.Messages, anyllmlib.Message{
		Role:    "user",
		Content: req.UserPrompt,
	})

	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}

	return params
}

// systemPrompt folds the grammar instruction into the request's system
// prompt when a grammar is set.
func systemPrompt(req llm.Request) string {
	if req.Grammar == nil {
		return req.SystemPrompt
	}
	var b strings.Builder
	if req.SystemPrompt != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Respond with a single JSON object that conforms to this JSON schema, and nothing else:\n")
	b.WriteString(req.Grammar.SchemaJSON())
	return b.String()
}
