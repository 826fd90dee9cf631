package entities

import (
	"time"
)

// MessageRole represents the author of a message in a conversation
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ProviderModelRole is the name the model API uses for assistant turns
const ProviderModelRole = "model"

// ParseRole validates a role string received from the boundary
func ParseRole(role string) (MessageRole, bool) {
	switch MessageRole(role) {
	case RoleUser, RoleAssistant:
		return MessageRole(role), true
	default:
		return "", false
	}
}

// Message represents a single chat message. Messages are never edited once created.
type Message struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Model     string      `json:"model,omitempty"`
}

// NewMessage creates a new message with generated ID and the given timestamp
func NewMessage(role MessageRole, content, model string, at time.Time) Message {
	return Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: at,
		Model:     model,
	}
}

// IsFromUser returns true if the message is from a user
func (m Message) IsFromUser() bool {
	return m.Role == RoleUser
}

// IsFromAssistant returns true if the message is from an assistant
func (m Message) IsFromAssistant() bool {
	return m.Role == RoleAssistant
}

// Part is a single text part of a provider turn
type Part struct {
	Text string `json:"text"`
}

// Turn is one entry of the alternating-turn history the model API expects
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// ToTurn maps a message into the provider turn shape, renaming the assistant role
func (m Message) ToTurn() Turn {
	role := string(m.Role)
	if m.Role == RoleAssistant {
		role = ProviderModelRole
	}
	return Turn{
		Role:  role,
		Parts: []Part{{Text: m.Content}},
	}
}

// Text concatenates the text parts of a turn
func (t Turn) Text() string {
	if len(t.Parts) == 1 {
		return t.Parts[0].Text
	}
	var out string
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}
