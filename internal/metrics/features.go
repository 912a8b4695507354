package metrics

import (
	"strings"
	"unicode/utf8"

	"github.com/petasbytes/go-toolchat/memory"
)

// Features are size measurements of a prompt. They never include the text.
type Features struct {
	Bytes int
	Runes int
	Words int
	Lines int
}

// CountFeatures measures s. Lines is 0 for "" and otherwise 1 plus the number of newlines.
func CountFeatures(s string) Features {
	f := Features{Bytes: len(s), Runes: utf8.RuneCountInString(s), Words: len(strings.Fields(s))}
	if s != "" {
		f.Lines = 1 + strings.Count(s, "\n")
	}
	return f
}

// HistoryFeatures describe the stored conversation a prompt arrives into.
type HistoryFeatures struct {
	Messages    int
	ToolCalls   int
	ToolResults int
	Runes       int
}

// CountHistory measures msgs by role and content size.
func CountHistory(msgs []memory.Message) HistoryFeatures {
	var h HistoryFeatures
	for _, m := range msgs {
		h.Messages++
		h.ToolCalls += len(m.ToolCalls)
		if m.Role == memory.RoleTool {
			h.ToolResults++
		}
		h.Runes += utf8.RuneCountInString(m.Content)
	}
	return h
}
