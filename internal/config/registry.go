package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/llm"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when the
// requested provider name has no factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factoryTable holds the named constructors for one provider kind. The kind
// label only shows up in error messages.
type factoryTable[P any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]func(ProviderEntry) (P, error)
}

func newFactoryTable[P any](kind string) *factoryTable[P] {
	return &factoryTable[P]{
		kind:      kind,
		factories: make(map[string]func(ProviderEntry) (P, error)),
	}
}

func (t *factoryTable[P]) register(name string, factory func(ProviderEntry) (P, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factories[name] = factory
}

func (t *factoryTable[P]) create(entry ProviderEntry) (P, error) {
	t.mu.RLock()
	factory, ok := t.factories[entry.Name]
	t.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, t.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to their constructor functions, one table per
// provider kind. It is safe for concurrent use.
type Registry struct {
	stt   *factoryTable[stt.Provider]
	tts   *factoryTable[tts.Provider]
	llm   *factoryTable[llm.Provider]
	audio *factoryTable[audio.Platform]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   newFactoryTable[stt.Provider]("stt"),
		tts:   newFactoryTable[tts.Provider]("tts"),
		llm:   newFactoryTable[llm.Provider]("llm"),
		audio: newFactoryTable[audio.Platform]("audio"),
	}
}

// RegisterSTT registers a transcription provider factory under name.
// Registering the same name again replaces the earlier factory.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterTTS registers a synthesis provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.tts.register(name, factory)
}

// RegisterLLM registers a model provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Platform, error)) {
	r.audio.register(name, factory)
}

// CreateSTT instantiates the transcription provider registered under
// entry.Name. The error wraps [ErrProviderNotRegistered] when the name is
// unknown.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateTTS instantiates the synthesis provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(entry)
}

// CreateLLM instantiates the model provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateAudio instantiates the audio platform registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Platform, error) {
	return r.audio.create(entry)
}
