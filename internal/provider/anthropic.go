package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"

	"github.com/petasbytes/go-toolchat/memory"
	"github.com/petasbytes/go-toolchat/tools"
)

const DefaultModel = anthropic.ModelClaude3_7SonnetLatest

// APIVersion is sent as the anthropic-version header on every request.
const APIVersion = "2023-06-01"

const defaultMaxTokens = 1024

// Anthropic adapts the Anthropic Messages API to Endpoint.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropic returns an Anthropic endpoint. An empty apiKey falls back to
// ANTHROPIC_API_KEY, an empty model to DefaultModel. SDK retries are disabled:
// a failed request is reported to the caller, never repeated.
func NewAnthropic(apiKey, model string, maxTokens int64, opts ...option.RequestOption) *Anthropic {
	base := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHeader("anthropic-version", APIVersion),
	}
	if apiKey != "" {
		base = append(base, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = string(DefaultModel)
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(append(base, opts...)...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}
}

func (a *Anthropic) Send(ctx context.Context, req ChatRequest) (ChatResult, error) {
	system, msgs := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
		if req.ToolChoice == ToolChoiceNone {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		} else {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return ChatResult{}, anthropicError(err)
	}

	var (
		res  ChatResult
		text []string
	)
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, v.Text)
		case anthropic.ToolUseBlock:
			res.ToolCalls = append(res.ToolCalls, memory.ToolCall{
				ID:        v.ID,
				Name:      v.Name,
				Arguments: v.JSON.Input.Raw(),
			})
		}
	}
	res.Content = strings.Join(text, "\n")
	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		res.FinishReason = FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		res.FinishReason = FinishLength
	default:
		res.FinishReason = FinishStop
	}
	return res, nil
}

func anthropicTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, t := range defs {
		props := make(map[string]any, len(t.Parameters))
		for name, p := range t.Parameters {
			props[name] = p
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   t.Required,
			},
		}})
	}
	return out
}

// toAnthropicMessages splits out the system text and maps the rest onto
// Messages API turns:
//   - tool results become tool_result blocks in a user turn; consecutive
//     results share one turn
//   - tool calls become tool_use blocks
//   - a speaker name is prefixed to user text, the API has no name field
//   - leading non-user turns are dropped since the API requires a user turn first
func toAnthropicMessages(msgs []memory.Message) (string, []anthropic.MessageParam) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(msgs))
	lastIsResults := false
	for _, m := range msgs {
		switch m.Role {
		case memory.RoleSystem:
			if m.Content != "" {
				system = append(system, m.Content)
			}
			continue
		case memory.RoleUser:
			text := m.Content
			if m.Name != "" {
				text = m.Name + ": " + text
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			lastIsResults = false
		case memory.RoleTool:
			block := anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)
			if lastIsResults {
				last := &out[len(out)-1]
				last.Content = append(last.Content, block)
				continue
			}
			if len(out) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(block))
			lastIsResults = true
		case memory.RoleAssistant:
			if len(out) == 0 {
				continue
			}
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			lastIsResults = false
		}
	}
	return strings.Join(system, "\n\n"), out
}

// anthropicError converts SDK errors to *Error, preferring the message from
// the API error envelope.
func anthropicError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		msg := gjson.Get(apierr.RawJSON(), "error.message").String()
		if msg == "" {
			msg = apierr.Error()
		}
		return &Error{StatusCode: apierr.StatusCode, Message: msg, Err: err}
	}
	return &Error{Message: err.Error(), Err: err}
}
