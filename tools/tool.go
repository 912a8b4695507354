package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is an executable capability. args holds the model's decoded arguments.
// Implementations may block; they should honour ctx.
type Tool interface {
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// ToolFunc adapts a plain function to Tool.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

func (f ToolFunc) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// Typed adapts a function taking a struct to Tool; args are decoded into T
// through their JSON representation.
func Typed[T any](fn func(ctx context.Context, in T) (string, error)) Tool {
	return ToolFunc(func(ctx context.Context, args map[string]any) (string, error) {
		var in T
		b, err := json.Marshal(args)
		if err != nil {
			return "", fmt.Errorf("encode arguments: %w", err)
		}
		if err := json.Unmarshal(b, &in); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
		return fn(ctx, in)
	})
}
