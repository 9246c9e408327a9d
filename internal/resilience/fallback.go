package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed reports that a [FallbackGroup] ran out of candidates: every
// registered provider either returned an error or was skipped because its
// circuit breaker is open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig carries the breaker settings applied to every provider in a
// [FallbackGroup]. Each registration stamps its own entry name onto a copy,
// so entries share thresholds but trip independently.
type FallbackConfig struct {
	Breaker BreakerConfig
}

// fallbackEntry is one registered provider together with the breaker that
// guards it.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered chain of interchangeable providers. Calls
// go to the first entry whose breaker admits them; a failure moves on to the
// next entry in registration order.
//
// Register every entry during assembly. Once registration is done, Execute
// and ExecuteWithResult may be called from any goroutine.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry. Chain
// further providers behind it with [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.register(primaryName, primary)
	return fg
}

// AddFallback appends a provider to the end of the chain.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.register(name, fallback)
}

func (fg *FallbackGroup[T]) register(name string, value T) {
	cfg := fg.cfg.Breaker
	cfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cfg),
	})
}

// EntryStatus describes one entry of a [FallbackGroup] for status surfaces
// such as readiness checks and the control socket.
type EntryStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Status reports the name and breaker state of every entry in chain order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	statuses := make([]EntryStatus, len(fg.entries))
	for i, e := range fg.entries {
		statuses[i] = EntryStatus{Name: e.name, State: e.breaker.State().String()}
	}
	return statuses
}

// Execute runs fn against the chain, stopping at the first entry that
// succeeds. Entries with an open breaker are skipped. When no entry
// succeeds the returned error wraps [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. Go has no method-level type parameters, which forces the result
// type onto a package-level function.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for _, e := range fg.entries {
		var out R
		err := e.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(e.value)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, circuit open", "provider", e.name)
		} else {
			slog.Warn("provider failed, moving down the chain", "provider", e.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
