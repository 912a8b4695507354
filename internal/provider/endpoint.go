package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/petasbytes/go-toolchat/memory"
	"github.com/petasbytes/go-toolchat/tools"
)

// FinishReason says why the model stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// ToolChoice controls whether the model may call tools on this request.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ChatRequest is one request to a chat model. A nil Tools slice means no
// tools are advertised and ToolChoice is not sent.
type ChatRequest struct {
	Messages   []memory.Message
	Tools      []tools.ToolDefinition
	ToolChoice ToolChoice
}

// ChatResult is the model's reply. ToolCalls is only meaningful when
// FinishReason is FinishToolCalls.
type ChatResult struct {
	FinishReason FinishReason
	Content      string
	ToolCalls    []memory.ToolCall
}

// Endpoint is a chat-completion model that can request tool calls.
type Endpoint interface {
	Send(ctx context.Context, req ChatRequest) (ChatResult, error)
}

// Error is returned by endpoints for any failed request. Message is the
// provider's human readable explanation when one was sent.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider: status %d: %s", e.StatusCode, e.Message)
	}
	return "provider: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// MessageOf returns the text to show a user for err: the provider's own
// message when err is an *Error, otherwise err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}
