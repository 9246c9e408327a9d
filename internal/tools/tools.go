// Package tools defines the shared [Tool] type used by all voice-assistant
// tool packages and the [Registry] that dispatches structured intents to
// them. Each sub-package exports a constructor returning a slice of [Tool]
// values; the app registers only the tools whose integration is configured,
// so removing a config section disables its tools entirely.
//
// Tools speak their results: every Run returns the sentence to say out
// loud, and failures come back as "Error: ..." strings rather than error
// values, because the only user interface is the speaker.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/intent"
	"github.com/MrWong99/auricle/internal/observe"
)

// ErrUnknownTool reports a dispatch against a name no registered tool
// carries.
var ErrUnknownTool = errors.New("unknown tool")

// Tool represents one voice-invocable action ready for registration with
// the [Registry].
type Tool struct {
	// Name is the canonical tool name offered to the model in the intent
	// grammar, e.g. "get_current_time".
	Name string

	// Aliases are alternative names accepted at dispatch time. Models and
	// fast-path patterns drift toward natural phrasings; aliases catch the
	// common ones without widening the grammar enum.
	Aliases []string

	// Description is one sentence for the tool catalog embedded in the
	// intent system prompt.
	Description string

	// Run executes the tool with the intent's named arguments and returns
	// the text to speak. Implementations must be safe for concurrent use,
	// must respect context cancellation on network calls, and must report
	// failures as spoken "Error: ..." text instead of panicking.
	Run func(ctx context.Context, args map[string]string) string
}

// Registry holds the closed set of tools enabled by configuration and
// resolves dispatch names against it.
//
// The set is fixed after construction, so Dispatch needs no locking and is
// safe for concurrent use.
type Registry struct {
	byName  map[string]Tool
	byAlias map[string]Tool
	names   []string
	metrics *observe.Metrics
}

// NewRegistry creates a Registry containing the given tools.
//
// Collisions resolve deterministically regardless of registration order: a
// duplicate canonical name keeps the first registration, a duplicate alias
// keeps the first registration, and a canonical name always shadows any
// alias spelled the same way (the Hue tools alias "turn_on" while Home
// Assistant owns it as a canonical name; with both enabled the canonical
// one wins).
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{
		byName:  make(map[string]Tool),
		byAlias: make(map[string]Tool),
		metrics: observe.DefaultMetrics(),
	}
	for _, t := range ts {
		r.register(t)
	}
	sort.Strings(r.names)
	return r
}

func (r *Registry) register(t Tool) {
	if t.Name == "" || t.Run == nil {
		slog.Warn("tools: skipping registration with no name or handler")
		return
	}
	if _, ok := r.byName[t.Name]; ok {
		slog.Warn("tools: duplicate tool name, keeping first registration",
			"tool", t.Name)
		return
	}
	r.byName[t.Name] = t
	r.names = append(r.names, t.Name)

	for _, a := range t.Aliases {
		if _, ok := r.byAlias[a]; ok {
			slog.Warn("tools: duplicate alias, keeping first registration",
				"alias", a, "tool", t.Name)
			continue
		}
		r.byAlias[a] = t
	}
}

// Names returns the canonical tool names in sorted order. This is the
// vocabulary handed to the intent grammar.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	return len(r.byName)
}

// Catalog renders one "- name: description" line per tool, sorted by name,
// for embedding in the intent system prompt.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for i, name := range r.names {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", name, r.byName[name].Description)
	}
	return b.String()
}

// Resolve maps a dispatch name to its tool. Canonical names are checked
// before aliases. The returned error wraps [ErrUnknownTool].
func (r *Registry) Resolve(name string) (Tool, error) {
	if t, ok := r.byName[name]; ok {
		return t, nil
	}
	if t, ok := r.byAlias[name]; ok {
		return t, nil
	}
	return Tool{}, fmt.Errorf("tools: %w: %q", ErrUnknownTool, name)
}

// Dispatch resolves and runs the tool named by call, returning the text to
// speak. An unknown name degrades to spoken error text rather than an
// error return, so a hallucinated tool name ends the interaction with an
// explanation instead of silence.
func (r *Registry) Dispatch(ctx context.Context, call intent.Call) string {
	tool, err := r.Resolve(call.Tool)
	if err != nil {
		slog.Warn("tools: dispatch of unknown tool", "tool", call.Tool)
		r.metrics.RecordToolCall(ctx, call.Tool, "unknown")
		return fmt.Sprintf("Error: Unknown tool '%s'", call.Tool)
	}

	slog.Info("tools: dispatching", "tool", tool.Name, "args", call.Args)
	start := time.Now()
	result := tool.Run(ctx, call.Args)
	r.metrics.ToolDuration.Record(ctx, time.Since(start).Seconds())

	status := "ok"
	if strings.HasPrefix(result, "Error:") {
		status = "error"
	}
	r.metrics.RecordToolCall(ctx, tool.Name, status)
	return result
}
