package memory_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/petasbytes/go-toolchat/memory"
)

func TestTranscript_Lines(t *testing.T) {
	s := newStore(t, memory.Options{SystemMessage: "sys"})
	_, _ = s.AddMessage(memory.UserMessage("Where is Alaska?", "Steve"), "g1", false)
	_, _ = s.AddMessage(memory.AssistantMessage("Alaska is a U.S. state.", ""), "g1", false)

	want := "Steve: Where is Alaska?\nBotto: Alaska is a U.S. state."
	if got := s.Transcript("g1"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTranscript_UnknownConversationIsEmpty(t *testing.T) {
	s := newStore(t, memory.Options{})
	if got := s.Transcript("nope"); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := s.TruncatedTranscript("nope"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncatedTranscript_KeepsNewestCharacters(t *testing.T) {
	s := newStore(t, memory.Options{})
	long := strings.Repeat("é", 3000)
	_, _ = s.AddMessage(memory.UserMessage(long, "old"), "c", false)
	_, _ = s.AddMessage(memory.UserMessage(long, "new"), "c", false)

	got := s.TruncatedTranscript("c")
	if n := utf8.RuneCountInString(got); n != 4000 {
		t.Fatalf("rune count: got %d want 4000", n)
	}
	if !strings.HasSuffix(got, s.Transcript("c")[len(s.Transcript("c"))-10:]) {
		t.Fatal("truncated transcript must end with the newest content")
	}
	if strings.Contains(got, "old:") {
		t.Fatal("oldest speaker label should be dropped first")
	}
	if !strings.Contains(got, "new: ") {
		t.Fatal("newest speaker label missing")
	}
}

func TestTruncatedTranscript_ShortTranscriptUnchanged(t *testing.T) {
	s := newStore(t, memory.Options{})
	_, _ = s.AddMessage(memory.UserMessage("short", "u"), "c", false)
	if s.TruncatedTranscript("c") != s.Transcript("c") {
		t.Fatal("short transcript should not be truncated")
	}
}
