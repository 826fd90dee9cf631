package entities

import (
	"github.com/google/uuid"
)

// generateID creates a unique identifier for messages and conversations
func generateID() string {
	return uuid.NewString()
}

// CloneConversations deep-copies a conversation slice, preserving nil
func CloneConversations(in []Conversation) []Conversation {
	if in == nil {
		return nil
	}
	out := make([]Conversation, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
