package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Corrective results fed back to the model instead of failing the turn.
const (
	unknownToolFormat      = "Tool %s does not exist, please answer the last question again."
	invalidArgumentsFormat = "Tool %s was called with invalid arguments: %s. Please correct the arguments and try again."
)

// UnknownToolResult is the sentinel returned for a tool name that is not registered.
func UnknownToolResult(name string) string {
	return fmt.Sprintf(unknownToolFormat, name)
}

// InvalidArgumentsResult is the corrective result for undecodable or invalid arguments.
func InvalidArgumentsResult(name, reason string) string {
	return fmt.Sprintf(invalidArgumentsFormat, name, reason)
}

type binding struct {
	def  ToolDefinition
	impl Tool
}

// Outcome is the result of an asynchronous invocation.
type Outcome struct {
	Result string
	Err    error
}

// Registry maps tool names to definitions and implementations.
// Registration order is preserved so the advertised tool list is stable.
type Registry struct {
	mu    sync.RWMutex
	tools *orderedmap.OrderedMap[string, binding]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: orderedmap.New[string, binding]()}
}

// Register binds def.Name to impl. A later registration under the same name
// replaces the earlier one and keeps its position.
func (r *Registry) Register(def ToolDefinition, impl Tool) error {
	if strings.TrimSpace(def.Name) == "" {
		return errors.New("tools: tool name is empty")
	}
	if impl == nil {
		return fmt.Errorf("tools: %s: implementation is nil", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools.Set(def.Name, binding{def: def, impl: impl})
	return nil
}

// Definitions returns the registered definitions in registration order, or nil
// when nothing is registered. Callers omit tool advertisement entirely on nil.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tools.Len() == 0 {
		return nil
	}
	out := make([]ToolDefinition, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.def)
	}
	return out
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (ToolDefinition, bool) {
	b, ok := r.get(name)
	return b.def, ok
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.Len()
}

func (r *Registry) get(name string) (binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.Get(name)
}

// Invoke runs the tool registered under name. An unknown name returns the
// UnknownToolResult sentinel and no error. Errors from the implementation are
// returned unchanged.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	b, ok := r.get(name)
	if !ok {
		return UnknownToolResult(name), nil
	}
	if args == nil {
		args = map[string]any{}
	}
	return b.impl.Invoke(ctx, args)
}

// InvokeAsync runs Invoke on its own goroutine. The channel receives exactly
// one Outcome. A panicking implementation is reported as an error.
func (r *Registry) InvokeAsync(ctx context.Context, name string, args map[string]any) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- Outcome{Err: fmt.Errorf("tools: %s panicked: %v", name, p)}
			}
		}()
		res, err := r.Invoke(ctx, name, args)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}

// Call decodes rawArgs (a JSON object) and validates it against the tool's
// definition before invoking it. Decode and validation failures produce a
// corrective result rather than an error.
func (r *Registry) Call(ctx context.Context, name, rawArgs string) (string, error) {
	b, ok := r.get(name)
	if !ok {
		return UnknownToolResult(name), nil
	}
	args, err := DecodeArguments(rawArgs)
	if err != nil {
		return InvalidArgumentsResult(name, err.Error()), nil
	}
	if err := Validate(b.def, args); err != nil {
		return InvalidArgumentsResult(name, err.Error()), nil
	}
	return b.impl.Invoke(ctx, args)
}

// DecodeArguments parses a JSON argument object. Empty input decodes to an
// empty map; numbers are kept as json.Number.
func DecodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %v", err)
	}
	if dec.More() {
		return nil, errors.New("arguments contain trailing data")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
