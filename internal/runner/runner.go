package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/petasbytes/go-toolchat/internal/metrics"
	"github.com/petasbytes/go-toolchat/internal/provider"
	"github.com/petasbytes/go-toolchat/internal/telemetry"
	"github.com/petasbytes/go-toolchat/internal/windowing"
	"github.com/petasbytes/go-toolchat/memory"
	"github.com/petasbytes/go-toolchat/tools"
)

const (
	// DefaultMaxToolRounds applies when a request asks for fewer than one round.
	DefaultMaxToolRounds = 1
	// NoResponse stands in for an empty final answer.
	NoResponse = "No response"

	toolFailedFormat  = "Tool %s failed: %v. Please answer the last question again."
	toolSkippedFormat = "Tool %s was not run: the tool call limit for this turn was reached."
)

// ErrTurnTooLong reports that the tool calls of one turn no longer fit in the
// conversation's bounded window alongside the prompt that started it.
var ErrTurnTooLong = errors.New("runner: tool calls of this turn no longer fit in the conversation window")

// Request is one user turn.
type Request struct {
	Prompt         string
	Speaker        string
	ConversationID string
	MaxToolRounds  int
	InjectDateTime bool
}

// Result is the outcome of a turn. On failure Message carries the provider's
// explanation.
type Result struct {
	Success bool
	Message string
}

type Runner struct {
	endpoint provider.Endpoint
	store    *memory.Store
	registry *tools.Registry

	limiter *rate.Limiter
	budget  int
	counter windowing.TokenCounter
	metrics *metrics.Recorder
	log     zerolog.Logger

	locks turnLocks
}

type Option func(*Runner)

// WithLimiter waits on l before every endpoint request.
func WithLimiter(l *rate.Limiter) Option { return func(r *Runner) { r.limiter = l } }

// WithTokenBudget caps the estimated input size of every request; n <= 0 means unlimited.
func WithTokenBudget(n int) Option { return func(r *Runner) { r.budget = n } }

// WithCounter replaces the heuristic token estimator.
func WithCounter(c windowing.TokenCounter) Option { return func(r *Runner) { r.counter = c } }

func WithMetrics(m *metrics.Recorder) Option { return func(r *Runner) { r.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(r *Runner) { r.log = l } }

// New returns a Runner. A nil registry behaves as an empty one.
func New(endpoint provider.Endpoint, store *memory.Store, registry *tools.Registry, opts ...Option) *Runner {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	r := &Runner{
		endpoint: endpoint,
		store:    store,
		registry: registry,
		counter:  windowing.HeuristicCounter{},
		log:      *telemetry.Logger(),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With().Str("component", "runner").Logger()
	return r
}

// Respond runs one turn to completion. It never returns a transport error:
// failures are reported as Result{Success: false}.
func (r *Runner) Respond(ctx context.Context, req Request) (res Result) {
	id := req.ConversationID
	if id == "" {
		id = memory.DefaultConversationID
	}
	maxRounds := req.MaxToolRounds
	if maxRounds < 1 {
		maxRounds = DefaultMaxToolRounds
	}

	// Get turnID from context if present, else generate once for this call.
	turnID, ok := telemetry.TurnIDFromContext(ctx)
	if !ok {
		turnID = telemetry.NewTurnID()
		ctx = telemetry.WithTurnID(ctx, turnID)
	}
	ctx = telemetry.WithConversationID(ctx, id)
	log := r.log.With().Str("conversation_id", id).Str("turn_id", turnID).Logger()

	unlock, err := r.locks.acquire(ctx, id)
	if err != nil {
		return Result{Message: provider.MessageOf(err)}
	}
	defer unlock()

	t := &turn{
		Runner:   r,
		ctx:      ctx,
		log:      log,
		id:       id,
		turnID:   turnID,
		inject:   req.InjectDateTime,
		maxRound: maxRounds,
	}
	start := time.Now()
	defer func() {
		r.metrics.RecordTurn(res.Success, t.rounds)
		telemetry.Emit("turn_complete", map[string]any{
			"turn_id":     turnID,
			"success":     res.Success,
			"tool_rounds": t.rounds,
			"requests":    t.requests,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		log.Debug().Bool("success", res.Success).Int("round", t.rounds).Msg("turn complete")
	}()

	telemetry.EmitLocalFeatures(ctx, req.Prompt, r.store.Messages(id))
	return t.run(memory.UserMessage(req.Prompt, req.Speaker))
}

// turn is the state of one Respond call.
type turn struct {
	*Runner
	ctx      context.Context
	log      zerolog.Logger
	id       string
	turnID   string
	inject   bool
	maxRound int

	rounds   int // tool calls executed
	requests int
	stored   int // messages appended by this turn
}

func (t *turn) run(prompt memory.Message) Result {
	window, err := t.add(prompt)
	if err != nil {
		return Result{Message: err.Error()}
	}

	choice := provider.ToolChoiceAuto
	for {
		reply, err := t.send(window, choice)
		if err != nil {
			t.log.Warn().Err(err).Msg("model request failed")
			return Result{Message: provider.MessageOf(err)}
		}

		if reply.FinishReason == provider.FinishToolCalls && len(reply.ToolCalls) > 0 && choice != provider.ToolChoiceNone {
			if window, err = t.answerCalls(reply.ToolCalls); err != nil {
				return Result{Message: err.Error()}
			}
			if t.rounds >= t.maxRound {
				choice = provider.ToolChoiceNone
			}
			continue
		}

		answer := reply.Content
		if answer == "" {
			answer = NoResponse
		}
		if _, err := t.add(memory.AssistantMessage(answer, "")); err != nil {
			return Result{Message: err.Error()}
		}
		return Result{Success: true, Message: answer}
	}
}

// answerCalls stores the assistant's tool-call turn followed by one result
// per call. Calls past the round budget are answered without running.
//
// Everything this turn stores must stay inside the store's bounded window,
// otherwise FIFO eviction drops the prompt being answered. Calls beyond the
// remaining room are discarded before anything is stored; room is kept for
// the tool-call turn itself and the final answer.
func (t *turn) answerCalls(calls []memory.ToolCall) ([]memory.Message, error) {
	room := t.store.MaxMessages() - t.stored - 2
	if room < 1 {
		return nil, ErrTurnTooLong
	}
	if len(calls) > room {
		t.log.Warn().Int("requested", len(calls)).Int("kept", room).Msg("discarding tool calls that do not fit in the conversation window")
		calls = calls[:room]
	}
	calls = append([]memory.ToolCall(nil), calls...)
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}
	window, err := t.add(memory.ToolCallMessage(calls, ""))
	if err != nil {
		return nil, err
	}
	for _, call := range calls {
		var content string
		if t.rounds < t.maxRound {
			content = t.execTool(call)
			t.rounds++
		} else {
			content = fmt.Sprintf(toolSkippedFormat, call.Name)
			t.metrics.RecordTool(metricToolName(t.registry, call.Name), metrics.OutcomeSkipped)
		}
		if window, err = t.add(memory.ToolResultMessage(call.ID, content, "")); err != nil {
			return nil, err
		}
	}
	return window, nil
}

// send prepares the window and performs one endpoint request.
func (t *turn) send(msgs []memory.Message, choice provider.ToolChoice) (provider.ChatResult, error) {
	if err := t.ctx.Err(); err != nil {
		return provider.ChatResult{}, err
	}

	window, stats := windowing.PrepareSendWindow(msgs, t.budget, t.counter)
	telemetry.Emit("window_prepared", map[string]any{
		"turn_id":            t.turnID,
		"budget":             stats.Budget,
		"total_estimated":    stats.Total,
		"included_groups":    stats.IncludedGroups,
		"skipped_groups":     stats.SkippedGroups,
		"orphan_groups":      stats.OrphanGroups,
		"over_budget_newest": stats.OverBudgetNewest,
	})
	t.log.Debug().
		Int("budget", stats.Budget).
		Int("est_total", stats.Total).
		Int("groups_in", stats.IncludedGroups).
		Int("groups_skip", stats.SkippedGroups).
		Int("orphans", stats.OrphanGroups).
		Msg("window prepared")

	// The newest group is the message just stored; if it cannot fit, no
	// request can succeed.
	if stats.OverBudgetNewest {
		return provider.ChatResult{}, fmt.Errorf("windowing: newest message exceeds the token budget of %d", t.budget)
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(t.ctx); err != nil {
			return provider.ChatResult{}, err
		}
	}

	req := provider.ChatRequest{
		Messages:   window,
		Tools:      t.registry.Definitions(),
		ToolChoice: choice,
	}
	seq := t.requests
	t.requests++
	telemetry.PersistPayload(t.turnID, seq, "request", req)

	start := time.Now()
	res, err := t.endpoint.Send(t.ctx, req)
	t.metrics.RecordEndpoint(err, time.Since(start))
	if err != nil {
		return provider.ChatResult{}, err
	}
	telemetry.PersistPayload(t.turnID, seq, "response", res)
	return res, nil
}

// execTool runs one call and returns the text stored as its result. Tool
// failures never end the turn; they become a corrective result.
func (t *turn) execTool(call memory.ToolCall) (out string) {
	start := time.Now()
	_, known := t.registry.Lookup(call.Name)

	// Helper to emit a tool_exec event; raw arguments and results are never logged.
	emit := func(outputSize int, errStr string) {
		fields := map[string]any{
			"tool_name":   metricToolName(t.registry, call.Name),
			"duration_ms": time.Since(start).Milliseconds(),
			"input_size":  len(call.Arguments),
			"output_size": outputSize,
			"turn_id":     t.turnID,
		}
		if errStr != "" {
			fields["error"] = errStr
		} else {
			fields["error"] = nil
		}
		telemetry.Emit("tool_exec", fields)
	}

	res, err := t.callTool(call)
	switch {
	case !known:
		emit(0, "tool not found")
		t.metrics.RecordTool(metricToolName(t.registry, call.Name), metrics.OutcomeUnknown)
		t.log.Warn().Str("tool", call.Name).Int("round", t.rounds+1).Msg("model called an unknown tool")
		return res
	case err != nil:
		emit(0, "tool error")
		t.metrics.RecordTool(call.Name, metrics.OutcomeError)
		t.log.Warn().Err(err).Str("tool", call.Name).Int("round", t.rounds+1).Msg("tool failed")
		return fmt.Sprintf(toolFailedFormat, call.Name, err)
	}
	emit(len(res), "")
	t.metrics.RecordTool(call.Name, metrics.OutcomeSuccess)
	t.log.Debug().Str("tool", call.Name).Int("round", t.rounds+1).Msg("tool executed")
	return res
}

func (t *turn) callTool(call memory.ToolCall) (res string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.registry.Call(t.ctx, call.Name, call.Arguments)
}

// add stores msg. A snapshot failure is logged and otherwise ignored so the
// turn can finish; the in-memory history is still correct.
func (t *turn) add(msg memory.Message) ([]memory.Message, error) {
	window, err := t.store.AddMessage(msg, t.id, t.inject)
	if errors.Is(err, memory.ErrPersist) {
		t.log.Warn().Err(err).Msg("conversation not persisted")
		err = nil
	}
	if err == nil {
		t.stored++
	}
	return window, err
}

// metricToolName keeps label cardinality bounded: names the model invents
// are reported as "unknown".
func metricToolName(reg *tools.Registry, name string) string {
	if _, ok := reg.Lookup(name); ok {
		return name
	}
	return "unknown"
}

// UpdateSystemMessage replaces the system preamble for all conversations.
func (r *Runner) UpdateSystemMessage(text string) { r.store.UpdateSystemMessage(text) }

// RegisterTool adds or replaces a tool.
func (r *Runner) RegisterTool(def tools.ToolDefinition, impl tools.Tool) error {
	return r.registry.Register(def, impl)
}

func (r *Runner) Transcript(conversationID string) string {
	return r.store.Transcript(defaultID(conversationID))
}

func (r *Runner) TruncatedTranscript(conversationID string) string {
	return r.store.TruncatedTranscript(defaultID(conversationID))
}

// Clear forgets a conversation. It waits for any turn in progress on it.
func (r *Runner) Clear(ctx context.Context, conversationID string) error {
	id := defaultID(conversationID)
	unlock, err := r.locks.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	return r.store.Clear(id)
}

func defaultID(id string) string {
	if id == "" {
		return memory.DefaultConversationID
	}
	return id
}
