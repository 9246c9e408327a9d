// Package openai provides an LLM provider backed by the OpenAI API.
//
// Unlike the any-llm backends, OpenAI enforces grammar constraints natively:
// a non-nil [llm.Request.Grammar] is sent as a response_format JSON schema
// rather than a prompt instruction.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client  oai.Client
	model   string
	metrics *observe.Metrics
}

// settings accumulates SDK request options from the functional options.
type settings struct {
	extra []option.RequestOption
}

// Option adjusts how the client talks to the API.
type Option func(*settings)

// WithBaseURL overrides the default API base URL. Point it at any
// OpenAI-compatible server (llama.cpp, vLLM, a corporate proxy).
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.extra = append(s.extra, option.WithBaseURL(url))
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(s *settings) {
		s.extra = append(s.extra, option.WithOrganization(org))
	}
}

// WithTimeout caps each HTTP request at d. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d <= 0 {
			return
		}
		s.extra = append(s.extra, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// New constructs a Provider speaking the given model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.extra...)

	return &Provider{
		client:  oai.NewClient(reqOpts...),
		model:   model,
		metrics: observe.DefaultMetrics(),
	}, nil
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (string, error) {
	if req.UserPrompt == "" {
		return "", fmt.Errorf("openai: user prompt must not be empty")
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	switch {
	case err != nil:
		p.metrics.RecordProviderError(ctx, "openai", "llm")
		return "", fmt.Errorf("openai: chat completion: %w", err)
	case len(resp.Choices) == 0:
		p.metrics.RecordProviderError(ctx, "openai", "llm")
		return "", fmt.Errorf("openai: response carried no choices")
	}

	p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	p.metrics.RecordProviderRequest(ctx, "openai", "llm", "ok")
	return resp.Choices[0].Message.Content, nil
}

// buildParams maps an llm.Request onto OpenAI SDK params. Zero sampling
// values stay unset so the API keeps its own defaults.
func (p *Provider) buildParams(req llm.Request) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model)}

	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.SystemPrompt))
	}
	params.Messages = append(params.Messages, oai.UserMessage(req.UserPrompt))

	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	if req.Grammar != nil {
		name := req.Grammar.Name
		if name == "" {
			name = "response"
		}
		// Strict mode stays unset: it would reject schemas that allow
		// additionalProperties, which the open-ended intent argument map
		// needs.
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.Grammar.Schema,
				},
			},
		}
	}

	return params
}
