package resilience

import (
	"context"

	"github.com/MrWong99/auricle/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// multiple model backends. Each backend has its own circuit breaker; when
// the primary fails or its breaker is open, the next healthy fallback
// answers instead.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional model provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Status reports the breaker state of every registered backend.
func (f *LLMFallback) Status() []EntryStatus {
	return f.group.Status()
}

// Generate sends the request to the first healthy backend and returns its
// completion. A grammar-constrained request stays grammar-constrained on
// every fallback, so intent parsing behaves the same regardless of which
// backend answered.
func (f *LLMFallback) Generate(ctx context.Context, req llm.Request) (string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (string, error) {
		return p.Generate(ctx, req)
	})
}
