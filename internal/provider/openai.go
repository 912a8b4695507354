package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/petasbytes/go-toolchat/memory"
	"github.com/petasbytes/go-toolchat/tools"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
	completionsPath      = "/chat/completions"
)

// OpenAI talks to any chat-completions compatible endpoint.
type OpenAI struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
}

// NewOpenAI returns a chat-completions endpoint. client may be nil.
func NewOpenAI(client *http.Client, baseURL, apiKey, model string, maxTokens int) *OpenAI {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
	}
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string      `json:"type"`
	Function chatFuncDef `json:"function"`
}

type chatFuncDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []chatTool    `json:"tools,omitempty"`
	ToolChoice ToolChoice    `json:"tool_choice,omitempty"`
	MaxTokens  int           `json:"max_tokens,omitempty"`
}

func (o *OpenAI) Send(ctx context.Context, req ChatRequest) (ChatResult, error) {
	payload := chatRequest{
		Model:     o.model,
		Messages:  make([]chatMessage, 0, len(req.Messages)),
		MaxTokens: o.maxTokens,
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, toChatMessage(m))
	}
	if len(req.Tools) > 0 {
		payload.Tools = chatTools(req.Tools)
		payload.ToolChoice = req.ToolChoice
		if payload.ToolChoice == "" {
			payload.ToolChoice = ToolChoiceAuto
		}
	}

	resp, err := o.doRequest(ctx, payload)
	if err != nil {
		return ChatResult{}, &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResult{}, &Error{StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return ChatResult{}, readAPIError(resp, body)
	}
	return parseCompletion(body)
}

func (o *OpenAI) doRequest(ctx context.Context, payload chatRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+completionsPath, &buf)
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	return o.client.Do(req)
}

func parseCompletion(body []byte) (ChatResult, error) {
	choice := gjson.GetBytes(body, "choices.0")
	if !choice.Exists() {
		return ChatResult{}, &Error{Message: "response has no choices"}
	}
	res := ChatResult{
		FinishReason: FinishReason(choice.Get("finish_reason").String()),
		Content:      choice.Get("message.content").String(),
	}
	choice.Get("message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		res.ToolCalls = append(res.ToolCalls, memory.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		})
		return true
	})
	if res.FinishReason == "" {
		res.FinishReason = FinishStop
	}
	return res, nil
}

func readAPIError(resp *http.Response, body []byte) error {
	body = bytes.TrimSpace(body)
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = string(body)
	}
	if msg == "" {
		msg = resp.Status
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}

func toChatMessage(m memory.Message) chatMessage {
	out := chatMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       chatName(m.Name),
		ToolCallID: m.ToolCallID,
	}
	if m.Role == memory.RoleTool || m.Role == memory.RoleSystem {
		out.Name = ""
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, chatToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: chatFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
		})
	}
	return out
}

func chatTools(defs []tools.ToolDefinition) []chatTool {
	out := make([]chatTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, chatTool{
			Type: "function",
			Function: chatFuncDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema(),
			},
		})
	}
	return out
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// chatName maps a speaker name onto the characters the API accepts.
func chatName(name string) string {
	name = invalidNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
