package entities

import (
	"strings"
	"time"
)

const (
	// DefaultConversationTitle is used until a user message seeds the title
	DefaultConversationTitle = "New conversation"

	// MaxTitleLength is the rune length a derived title is truncated to
	MaxTitleLength = 50
)

// Conversation represents a chat conversation
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"` // Chronological
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Model     string    `json:"model,omitempty"`
}

// NewConversation creates an empty conversation. A non-empty seed becomes the title.
func NewConversation(seed, model string, at time.Time) Conversation {
	title := DefaultConversationTitle
	if strings.TrimSpace(seed) != "" {
		title = DeriveTitle(seed)
	}
	return Conversation{
		ID:        generateID(),
		Title:     title,
		Messages:  make([]Message, 0),
		CreatedAt: at,
		UpdatedAt: at,
		Model:     model,
	}
}

// DeriveTitle builds a conversation title from the first user message
func DeriveTitle(content string) string {
	clean := strings.ReplaceAll(strings.TrimSpace(content), "\n", " ")
	runes := []rune(clean)
	if len(runes) <= MaxTitleLength {
		return clean
	}
	return string(runes[:MaxTitleLength]) + "..."
}

// Append adds a message, bumps UpdatedAt and derives the title when the
// first message comes from the user.
func (c *Conversation) Append(msg Message) {
	if len(c.Messages) == 0 && msg.IsFromUser() {
		c.Title = DeriveTitle(msg.Content)
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
}

// Clone returns a deep copy of the conversation
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	return out
}

// MessageCount returns the number of messages in the conversation
func (c Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages
func (c Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// LastMessage returns the content of the newest message, or "" for an empty conversation
func (c Conversation) LastMessage() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

// Matches reports whether the lowercased query occurs in the title or any message
func (c Conversation) Matches(lowerQuery string) bool {
	if strings.Contains(strings.ToLower(c.Title), lowerQuery) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), lowerQuery) {
			return true
		}
	}
	return false
}

// TrimmedTo returns a copy holding only the most recent n messages
func (c Conversation) TrimmedTo(n int) Conversation {
	out := c.Clone()
	if len(out.Messages) > n {
		out.Messages = out.Messages[len(out.Messages)-n:]
	}
	return out
}
