package memory_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/petasbytes/go-toolchat/memory"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "state", "chat_history.snap")

	s1 := newStore(t, memory.Options{SystemMessage: "sys", Path: p})
	call := memory.ToolCall{ID: "call_1", Name: "echo", Arguments: `{"text":"hi"}`}
	msgs := []memory.Message{
		memory.UserMessage("say hi", "Steve"),
		memory.ToolCallMessage([]memory.ToolCall{call}, ""),
		memory.ToolResultMessage("call_1", "hi", ""),
		memory.AssistantMessage("hi", ""),
	}
	for _, m := range msgs {
		if _, err := s1.AddMessage(m, "g1", false); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := s1.AddMessage(memory.UserMessage("other", "Tim"), "g2", false); err != nil {
		t.Fatalf("add: %v", err)
	}

	s2 := newStore(t, memory.Options{SystemMessage: "sys", Path: p})
	if !reflect.DeepEqual(s1.Messages("g1"), s2.Messages("g1")) {
		t.Fatalf("g1 mismatch after reload:\n got %+v\nwant %+v", s2.Messages("g1"), s1.Messages("g1"))
	}
	if s2.Transcript("g2") != "Tim: other" {
		t.Fatalf("g2 transcript after reload: %q", s2.Transcript("g2"))
	}
}

func TestSnapshot_MissingFileStartsEmpty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "does-not-exist.snap")
	s := newStore(t, memory.Options{Path: p})
	if got := s.Conversations(); len(got) != 0 {
		t.Fatalf("expected empty store, got %v", got)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("constructing a store must not create the snapshot, err=%v", err)
	}
}

func TestSnapshot_ClearIsPersisted(t *testing.T) {
	p := filepath.Join(t.TempDir(), "h.snap")
	s1 := newStore(t, memory.Options{Path: p})
	_, _ = s1.AddMessage(memory.UserMessage("a", "u"), "c", false)
	if err := s1.Clear("c"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	s2 := newStore(t, memory.Options{Path: p})
	if got := s2.Transcript("c"); got != "" {
		t.Fatalf("expected cleared conversation after reload, got %q", got)
	}
}

func TestSnapshot_ReloadWithSmallerCapEvictsOldest(t *testing.T) {
	p := filepath.Join(t.TempDir(), "h.snap")
	s1 := newStore(t, memory.Options{Path: p, MaxMessages: 10})
	for _, c := range []string{"1", "2", "3", "4"} {
		_, _ = s1.AddMessage(memory.UserMessage(c, "u"), "c", false)
	}
	s2 := newStore(t, memory.Options{Path: p, MaxMessages: 2})
	if got := s2.Transcript("c"); got != "u: 3\nu: 4" {
		t.Fatalf("got %q", got)
	}
}

func TestSnapshot_CorruptionIsSurfaced(t *testing.T) {
	cases := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"garbage", func([]byte) []byte { return []byte("{oops") }},
		{"flipped payload byte", func(b []byte) []byte {
			b[len(b)-1] ^= 0xff
			return b
		}},
		{"future version", func(b []byte) []byte {
			b[8] = 99
			return b
		}},
		{"truncated", func(b []byte) []byte { return b[:20] }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "h.snap")
			s := newStore(t, memory.Options{Path: p})
			if _, err := s.AddMessage(memory.UserMessage("hello", "u"), "c", false); err != nil {
				t.Fatalf("add: %v", err)
			}
			b, err := os.ReadFile(p)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if err := os.WriteFile(p, tc.mangle(b), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err = memory.NewStore(memory.Options{Path: p})
			if !errors.Is(err, memory.ErrCorruptSnapshot) {
				t.Fatalf("want ErrCorruptSnapshot, got %v", err)
			}
		})
	}
}

func TestSnapshot_WriteFailureReturnsWindowAndErrPersist(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "h.snap")
	s := newStore(t, memory.Options{Path: p})

	// Make the directory read-only so the temp file cannot be created.
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	window, err := s.AddMessage(memory.UserMessage("hi", "u"), "c", false)
	if !errors.Is(err, memory.ErrPersist) {
		t.Fatalf("want ErrPersist, got %v", err)
	}
	if len(window) != 2 || window[1].Content != "hi" {
		t.Fatalf("window should still be returned, got %+v", window)
	}
}

func TestSnapshot_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "h.snap")
	s := newStore(t, memory.Options{Path: p})
	for i := 0; i < 5; i++ {
		_, _ = s.AddMessage(memory.UserMessage("x", "u"), "c", false)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "h.snap" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files: %v", names)
	}
}
