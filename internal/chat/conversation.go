package chat

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConversationClosed is returned by Append once the conversation is sealed.
var ErrConversationClosed = errors.New("conversation closed")

// Entry is one line of the conversation.
type Entry struct {
	ID        string
	Text      string
	IsUser    bool
	CreatedAt time.Time
}

// Conversation is an ordered, append-only sequence of entries.
type Conversation struct {
	mu      sync.RWMutex
	entries []Entry
	sealed  bool
	now     func() time.Time
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{now: time.Now}
}

// Append adds an entry at the end of the conversation. Text is stored as is.
func (c *Conversation) Append(text string, isUser bool) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return Entry{}, ErrConversationClosed
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Text:      text,
		IsUser:    isUser,
		CreatedAt: c.now(),
	}
	c.entries = append(c.entries, entry)
	return entry, nil
}

// Entries returns a copy of the entries in insertion order.
func (c *Conversation) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.entries)
}

// Len returns the number of entries.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Seal forbids any further Append. Existing entries stay readable.
func (c *Conversation) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
}

// Sealed reports whether Seal has been called.
func (c *Conversation) Sealed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sealed
}
