package runner_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/petasbytes/go-toolchat/internal/provider"
	"github.com/petasbytes/go-toolchat/memory"
	"github.com/petasbytes/go-toolchat/tools"
)

// step is one scripted endpoint reply.
type step struct {
	res provider.ChatResult
	err error
}

func text(s string) step {
	return step{res: provider.ChatResult{FinishReason: provider.FinishStop, Content: s}}
}

func calls(cs ...memory.ToolCall) step {
	return step{res: provider.ChatResult{FinishReason: provider.FinishToolCalls, ToolCalls: cs}}
}

func fail(err error) step { return step{err: err} }

// scriptedEndpoint replays steps in order and records every request.
type scriptedEndpoint struct {
	mu       sync.Mutex
	steps    []step
	requests []provider.ChatRequest
	hook     func(ctx context.Context, req provider.ChatRequest)
}

func (s *scriptedEndpoint) Send(ctx context.Context, req provider.ChatRequest) (provider.ChatResult, error) {
	if s.hook != nil {
		s.hook(ctx, req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req.Messages = append([]memory.Message(nil), req.Messages...)
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return provider.ChatResult{}, errors.New("script exhausted")
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.res, st.err
}

func (s *scriptedEndpoint) sent() []provider.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.ChatRequest(nil), s.requests...)
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	st, err := memory.NewStore(memory.Options{SystemMessage: "You are a test bot."})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st
}

type echoInput struct {
	Text string `json:"text"`
}

// echoRegistry registers an echo tool and counts its invocations.
func echoRegistry(t *testing.T, count *int) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	var mu sync.Mutex
	err := r.Register(tools.DefinitionFor[echoInput]("echo", "Echo the text back."),
		tools.Typed(func(_ context.Context, in echoInput) (string, error) {
			if count != nil {
				mu.Lock()
				*count++
				mu.Unlock()
			}
			return in.Text, nil
		}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func roles(msgs []memory.Message) []memory.Role {
	out := make([]memory.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func mkdir(path string) error { return os.Mkdir(path, 0o755) }

type failingTool struct{}

func (failingTool) Invoke(context.Context, map[string]any) (string, error) {
	return "", errors.New("boom")
}
