package windowing_test

import (
	"github.com/petasbytes/go-toolchat/internal/windowing"
	"github.com/petasbytes/go-toolchat/memory"
)

// System message constructor
func Sys(text string) memory.Message {
	return memory.Message{Role: memory.RoleSystem, Content: text}
}

// User message constructor
func User(text string) memory.Message {
	return memory.UserMessage(text, "")
}

// Assistant text constructor
func Asst(text string) memory.Message {
	return memory.AssistantMessage(text, "")
}

// Assistant tool-call constructor; arguments are left empty so only ids matter.
func Calls(ids ...string) memory.Message {
	calls := make([]memory.ToolCall, len(ids))
	for i, id := range ids {
		calls[i] = memory.ToolCall{ID: id}
	}
	return memory.ToolCallMessage(calls, "")
}

// Tool-result constructor
func TR(id, content string) memory.Message {
	return memory.ToolResultMessage(id, content, "")
}

// groupsEqual is a small utility used by grouping tests.
func groupsEqual(got, want []windowing.Group) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i].Kind != want[i].Kind || got[i].Start != want[i].Start || got[i].End != want[i].End {
			return false
		}
	}
	return true
}
