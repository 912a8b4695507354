package windowing

import (
	"os"

	"github.com/petasbytes/go-toolchat/internal/telemetry"
	"github.com/petasbytes/go-toolchat/memory"
)

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
	// GroupOrphan marks messages no provider accepts: tool results whose call
	// was evicted, or a tool-call turn missing some of its results.
	GroupOrphan
)

func (k GroupKind) String() string {
	switch k {
	case GroupPair:
		return "pair"
	case GroupOrphan:
		return "orphan"
	default:
		return "singleton"
	}
}

// Group describes a contiguous span of messages [Start, End) in the original slice.
type Group struct {
	Kind  GroupKind
	Start int // inclusive index into msgs
	End   int // exclusive index into msgs
}

// GroupBlocks groups messages into atomic units that preserve tool-call pairs.
// Invariants:
//   - A pair is an assistant message with tool calls followed immediately by
//     one tool message per call id, in any order.
//   - Parallel completeness: every call id must be answered and no tool
//     message may answer an id the assistant did not issue.
//   - A tool message outside a pair is an orphan, as is an assistant whose
//     results are incomplete (together with the partial results).
func GroupBlocks(msgs []memory.Message) []Group {
	groups := make([]Group, 0, len(msgs))
	for i := 0; i < len(msgs); {
		m := msgs[i]
		switch {
		case m.Role == memory.RoleAssistant && m.HasToolCalls():
			j := i + 1
			for j < len(msgs) && msgs[j].Role == memory.RoleTool {
				j++
			}
			if reason := pairDefect(m, msgs[i+1:j]); reason != "" {
				vlogf("orphan tool-call turn", "reason", reason, "idx", i)
				groups = append(groups, Group{Kind: GroupOrphan, Start: i, End: j})
			} else {
				groups = append(groups, Group{Kind: GroupPair, Start: i, End: j})
			}
			i = j
		case m.Role == memory.RoleTool:
			vlogf("orphan tool result", "reason", "no_preceding_call", "idx", i)
			groups = append(groups, Group{Kind: GroupOrphan, Start: i, End: i + 1})
			i++
		default:
			groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
			i++
		}
	}
	return groups
}

// pairDefect returns "" when results answer exactly the calls of call.
func pairDefect(call memory.Message, results []memory.Message) string {
	want := make(map[string]struct{}, len(call.ToolCalls))
	for _, tc := range call.ToolCalls {
		want[tc.ID] = struct{}{}
	}
	have := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, ok := want[r.ToolCallID]; !ok {
			return "extra_results"
		}
		if _, dup := have[r.ToolCallID]; dup {
			return "duplicate_results"
		}
		have[r.ToolCallID] = struct{}{}
	}
	if len(have) != len(want) {
		return "missing_results"
	}
	return ""
}

// verbose logging when AGT_VERBOSE_WINDOW_LOGS=1
var verbose = os.Getenv("AGT_VERBOSE_WINDOW_LOGS") == "1"

func vlogf(msg string, kv ...any) {
	if verbose {
		telemetry.Logger().Info().Str("component", "windowing").Fields(kv).Msg(msg)
	}
}
