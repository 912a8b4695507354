package telemetry

import (
	"context"

	"github.com/petasbytes/go-toolchat/internal/metrics"
	"github.com/petasbytes/go-toolchat/memory"
)

// EmitLocalFeatures records size features of the prompt and of the stored
// history it joins, never the text itself. Only active in calibration mode
// with observation on.
func EmitLocalFeatures(ctx context.Context, prompt string, history []memory.Message) {
	if !(CalibrationModeEnabled() && ObserveEnabled()) {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	conversationID, _ := ConversationIDFromContext(ctx)
	f := metrics.CountFeatures(prompt)
	h := metrics.CountHistory(history)
	Emit("local_features", map[string]any{
		"turn_id":          turnID,
		"conversation_id":  conversationID,
		"features_version": "2",
		"user": map[string]any{
			"bytes": f.Bytes,
			"runes": f.Runes,
			"words": f.Words,
			"lines": f.Lines,
		},
		"history": map[string]any{
			"messages":     h.Messages,
			"tool_calls":   h.ToolCalls,
			"tool_results": h.ToolResults,
			"runes":        h.Runes,
		},
	})
}
