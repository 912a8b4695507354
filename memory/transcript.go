package memory

import "strings"

// transcriptBudget is the character cap for TruncatedTranscript.
const transcriptBudget = 4000

// Transcript renders the stored messages of conversationID as
// "{name}: {content}" lines, oldest first. Unknown ids render as "".
func (s *Store) Transcript(conversationID string) string {
	msgs := s.Messages(conversationID)
	if len(msgs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Name+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// TruncatedTranscript is Transcript limited to its last 4000 characters.
func (s *Store) TruncatedTranscript(conversationID string) string {
	return lastRunes(s.Transcript(conversationID), transcriptBudget)
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
