package memory

import (
	"sync"

	list "github.com/bahlo/generic-list-go"
)

// conversation is a bounded FIFO of non-system messages.
// Appends and evictions are O(1); mu serializes mutations to one id.
type conversation struct {
	mu   sync.Mutex
	max  int
	msgs *list.List[Message]
}

func newConversation(max int) *conversation {
	return &conversation{max: max, msgs: list.New[Message]()}
}

// append adds m at the back and evicts from the front once over capacity.
// Caller holds c.mu.
func (c *conversation) append(m Message) {
	c.msgs.PushBack(m)
	for c.msgs.Len() > c.max {
		c.msgs.Remove(c.msgs.Front())
	}
}

// messages returns a copy of the stored sequence, oldest first. Caller holds c.mu.
func (c *conversation) messages() []Message {
	out := make([]Message, 0, c.msgs.Len())
	for e := c.msgs.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.clone())
	}
	return out
}

// clear drops every message. Caller holds c.mu.
func (c *conversation) clear() {
	c.msgs.Init()
}
