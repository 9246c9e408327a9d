// Package intent turns recognized speech into structured tool calls.
//
// Two producers feed the tool registry with the same [Call] record: the
// fast-path [Matcher] applies anchored regular expressions to common
// phrasings without a model round-trip, and [Parse] decodes the JSON object
// a grammar-constrained model emits. [GrammarFor] builds that grammar from
// the registry's tool vocabulary.
//
// The package validates shape only (a non-empty tool name, scalar argument
// values). Whether the named tool exists is decided at dispatch time by the
// registry, so a hallucinated name degrades into spoken error text instead
// of a crash.
package intent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/auricle/pkg/provider/llm"
)

// Call is one structured tool invocation: which tool to run and its named
// string arguments. Args is never nil after [Parse] or a [Matcher] hit.
type Call struct {
	// Tool is the tool name to dispatch, e.g. "get_current_time".
	Tool string `json:"tool"`

	// Args holds the tool's named arguments. All values are strings; the
	// individual tools parse numbers and durations themselves.
	Args map[string]string `json:"args"`
}

// rawCall mirrors the wire shape of a model-produced intent before argument
// values are normalized to strings.
type rawCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Parse decodes a model-produced JSON intent into a [Call].
//
// Models frequently emit numbers and booleans where the schema asks for
// strings ("percent": 40 instead of "40"), so scalar argument values of any
// JSON type are accepted and converted. Null values are dropped. Nested
// objects or arrays, invalid JSON, and a missing or empty tool name are
// errors; the caller degrades those into the no-intent conversational path.
func Parse(raw string) (Call, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Call{}, fmt.Errorf("intent: empty model output")
	}

	var rc rawCall
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return Call{}, fmt.Errorf("intent: parse model output: %w", err)
	}
	if rc.Tool == "" {
		return Call{}, fmt.Errorf("intent: model output names no tool")
	}

	call := Call{
		Tool: rc.Tool,
		Args: make(map[string]string, len(rc.Args)),
	}
	for key, val := range rc.Args {
		switch v := val.(type) {
		case string:
			call.Args[key] = v
		case float64:
			call.Args[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			call.Args[key] = strconv.FormatBool(v)
		case nil:
			// Explicit null means "not provided".
		default:
			return Call{}, fmt.Errorf("intent: argument %q is not a scalar value", key)
		}
	}
	return call, nil
}

// GrammarFor builds the JSON-schema grammar that constrains a model's intent
// output to a {"tool": ..., "args": {...}} object. names is the tool
// vocabulary to offer as the enum for the tool field; with an empty
// vocabulary the tool field accepts any string.
//
// The args object stays open (any string-valued keys) because each tool
// defines its own argument names and the schema is shared across all of
// them.
func GrammarFor(names []string) *llm.Grammar {
	tool := map[string]any{"type": "string"}
	if len(names) > 0 {
		tool["enum"] = names
	}
	return &llm.Grammar{
		Name: "intent",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tool": tool,
				"args": map[string]any{
					"type":                 "object",
					"additionalProperties": map[string]any{"type": "string"},
				},
			},
			"required": []string{"tool", "args"},
		},
	}
}
