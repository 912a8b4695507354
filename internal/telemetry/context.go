package telemetry

import "context"

type ctxKey int

const (
	turnIDKey ctxKey = iota
	conversationIDKey
)

// WithTurnID returns a child context carrying the turn ID used to correlate
// events of one Respond call.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey, id)
}

// TurnIDFromContext returns the turn ID from ctx. An empty ID counts as absent.
func TurnIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, turnIDKey)
}

// WithConversationID returns a child context carrying the conversation ID.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

func ConversationIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, conversationIDKey)
}

func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(key).(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
