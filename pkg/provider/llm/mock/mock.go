// Package mock is a scriptable in-memory llm.Provider for tests.
//
// Use Provider in unit tests to verify the prompts the assistant sends and to
// feed controlled replies without a live model. Configure fields before use;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{Responses: []string{
//	    `{"tool": "get_current_time", "args": {}}`,
//	    "It is half past nine.",
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/auricle/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of llm.Provider.
// The zero value returns empty replies and nil errors.
type Provider struct {
	mu sync.Mutex

	// Responses are returned one per Generate call, in order. When the
	// script is exhausted, Response is returned instead.
	Responses []string

	// Response is the reply returned once Responses runs out.
	Response string

	// GenerateErr, if non-nil, is returned by every Generate call.
	GenerateErr error

	// Requests records every request passed to Generate, in order.
	Requests []llm.Request

	next int
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.GenerateErr != nil {
		return "", p.GenerateErr
	}
	if p.next < len(p.Responses) {
		r := p.Responses[p.next]
		p.next++
		return r, nil
	}
	return p.Response, nil
}

// CallCount returns how many times Generate has been called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Reset clears recorded requests and rewinds the response script.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = nil
	p.next = 0
}
