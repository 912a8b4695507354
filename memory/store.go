package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrPersist wraps snapshot write failures. The in-memory mutation has already
// been applied when it is returned.
var ErrPersist = errors.New("memory: persist snapshot")

// isoLayout renders ISO-8601 with microseconds and a numeric offset, e.g.
// 2024-05-01T09:30:00.123456+00:00.
const isoLayout = "2006-01-02T15:04:05.999999-07:00"

// Options configures a Store.
type Options struct {
	SystemMessage string
	// MaxMessages caps each conversation (default 21).
	MaxMessages int
	// Path is the snapshot file. Empty keeps the store in memory only.
	Path string
	// Location is used when injecting the date and time (default UTC).
	Location *time.Location
	// BotName labels assistant and tool turns that arrive without a name.
	BotName string
	// Now overrides the clock, for tests.
	Now    func() time.Time
	Logger *zerolog.Logger
}

// Store owns every conversation plus the process-wide system preamble.
type Store struct {
	mu       sync.RWMutex // guards convs and preamble
	convs    map[string]*conversation
	preamble string

	snapMu sync.Mutex // serializes snapshot capture + write

	max     int
	path    string
	loc     *time.Location
	botName string
	now     func() time.Time
	log     zerolog.Logger
}

// NewStore builds a store and, when opts.Path is set, restores the last snapshot.
// A missing snapshot starts an empty store; a damaged one returns ErrCorruptSnapshot.
func NewStore(opts Options) (*Store, error) {
	s := &Store{
		convs:    make(map[string]*conversation),
		preamble: opts.SystemMessage,
		max:      opts.MaxMessages,
		path:     opts.Path,
		loc:      opts.Location,
		botName:  opts.BotName,
		now:      opts.Now,
		log:      zerolog.Nop(),
	}
	if s.max <= 0 {
		s.max = DefaultMaxMessages
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.botName == "" {
		s.botName = DefaultBotName
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "memory").Logger()
	}

	if s.path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("memory: create snapshot dir: %w", err)
	}
	snap, err := loadSnapshot(s.path)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		s.log.Debug().Str("path", s.path).Msg("no snapshot found; starting empty")
		return s, nil
	}
	total := 0
	for id, msgs := range snap.Conversations {
		c := newConversation(s.max)
		for _, m := range msgs {
			c.append(m)
		}
		s.convs[id] = c
		total += c.msgs.Len()
	}
	s.log.Info().Str("path", s.path).Int("conversations", len(s.convs)).Int("messages", total).Msg("snapshot restored")
	return s, nil
}

// MaxMessages returns the per-conversation capacity.
func (s *Store) MaxMessages() int { return s.max }

func conversationKey(id string) string {
	if id == "" {
		return DefaultConversationID
	}
	return id
}

// BotName returns the label used for assistant and tool turns.
func (s *Store) BotName() string { return s.botName }

// UpdateSystemMessage replaces the preamble for every read from now on.
// History already handed out is unaffected.
func (s *Store) UpdateSystemMessage(text string) {
	s.mu.Lock()
	s.preamble = text
	s.mu.Unlock()
}

// SystemMessage returns the current preamble.
func (s *Store) SystemMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preamble
}

// AddMessage appends msg to the named conversation, creating it if needed,
// persists the store when durable, and returns the materialized window:
// the synthesized system message followed by the stored messages.
//
// If the snapshot cannot be written the window is still returned together
// with an error wrapping ErrPersist.
func (s *Store) AddMessage(msg Message, conversationID string, injectDateTime bool) ([]Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.Role == RoleSystem {
		return nil, fmt.Errorf("%w: system messages are synthesized, not stored", ErrInvalidMessage)
	}
	conversationID = conversationKey(conversationID)
	if msg.Name == "" && (msg.Role == RoleAssistant || msg.Role == RoleTool) {
		msg.Name = s.botName
	}

	c := s.conversation(conversationID, true)
	c.mu.Lock()
	c.append(msg.clone())
	stored := c.messages()
	c.mu.Unlock()

	window := s.materialize(stored, injectDateTime)
	if err := s.persist(); err != nil {
		return window, err
	}
	return window, nil
}

// Window returns the materialized window for conversationID without mutating it.
func (s *Store) Window(conversationID string, injectDateTime bool) []Message {
	var stored []Message
	if c := s.conversation(conversationKey(conversationID), false); c != nil {
		c.mu.Lock()
		stored = c.messages()
		c.mu.Unlock()
	}
	return s.materialize(stored, injectDateTime)
}

// Messages returns the stored (non-system) messages for conversationID, oldest first.
// An empty id means DefaultConversationID, as everywhere in Store.
func (s *Store) Messages(conversationID string) []Message {
	c := s.conversation(conversationKey(conversationID), false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages()
}

// Clear removes all messages for conversationID and persists.
func (s *Store) Clear(conversationID string) error {
	c := s.conversation(conversationKey(conversationID), false)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.clear()
	c.mu.Unlock()
	return s.persist()
}

// Conversations lists known conversation ids in sorted order.
func (s *Store) Conversations() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (s *Store) conversation(id string, create bool) *conversation {
	s.mu.RLock()
	c, ok := s.convs[id]
	s.mu.RUnlock()
	if ok || !create {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.convs[id]; !ok {
		c = newConversation(s.max)
		s.convs[id] = c
	}
	return c
}

func (s *Store) materialize(stored []Message, injectDateTime bool) []Message {
	content := s.SystemMessage()
	if injectDateTime {
		now := s.now().In(s.loc).Format(isoLayout)
		content = fmt.Sprintf("The date and time is %s. %s", now, content)
	}
	window := make([]Message, 0, len(stored)+1)
	window = append(window, Message{Role: RoleSystem, Content: content, Name: SystemName})
	return append(window, stored...)
}

// persist writes the whole store as one snapshot. Capture happens under snapMu
// so a later snapshot is never overwritten by an earlier one.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	snap := s.capture()
	if err := writeSnapshot(s.path, snap); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("snapshot write failed")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) capture() *snapshot {
	s.mu.RLock()
	convs := make(map[string]*conversation, len(s.convs))
	for id, c := range s.convs {
		convs[id] = c
	}
	s.mu.RUnlock()

	snap := &snapshot{Version: snapshotVersion, Conversations: make(map[string][]Message, len(convs))}
	for id, c := range convs {
		c.mu.Lock()
		snap.Conversations[id] = c.messages()
		c.mu.Unlock()
	}
	return snap
}
