package entities

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"short", "Hello", "Hello"},
		{"trimmed", "  Hello there  ", "Hello there"},
		{"newlines", "line one\nline two", "line one line two"},
		{"exactly_fifty", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"truncated", strings.Repeat("b", 51), strings.Repeat("b", 50) + "..."},
		{"multibyte", strings.Repeat("ñ", 60), strings.Repeat("ñ", 50) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveTitle(tt.content))
		})
	}
}

func TestConversation_AppendDerivesTitleOnlyFromFirstUserMessage(t *testing.T) {
	now := time.Now()
	conv := NewConversation("", "gemini-2.5-flash", now)
	assert.Equal(t, DefaultConversationTitle, conv.Title)

	conv.Append(NewMessage(RoleUser, "What is Go?", "", now.Add(time.Second)))
	assert.Equal(t, "What is Go?", conv.Title)
	assert.Equal(t, now.Add(time.Second), conv.UpdatedAt)

	conv.Append(NewMessage(RoleUser, "Something else", "", now.Add(2*time.Second)))
	assert.Equal(t, "What is Go?", conv.Title, "title must not change after the first message")
}

func TestConversation_BlankFirstUserMessageSetsTitle(t *testing.T) {
	now := time.Now()
	conv := NewConversation("", "", now)
	conv.Append(NewMessage(RoleUser, "   ", "", now))
	conv.Append(NewMessage(RoleUser, "A real question", "", now))

	assert.Empty(t, conv.Title, "the first user message fixes the title even when blank")
}

func TestConversation_AssistantFirstKeepsDefaultTitle(t *testing.T) {
	now := time.Now()
	conv := NewConversation("", "", now)
	conv.Append(NewMessage(RoleAssistant, "Hi, how can I help?", "", now))
	conv.Append(NewMessage(RoleUser, "Tell me a joke", "", now))

	assert.Equal(t, DefaultConversationTitle, conv.Title)
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation("seed", "", time.Now())
	conv.Append(NewMessage(RoleUser, "one", "", time.Now()))

	clone := conv.Clone()
	clone.Messages[0].Content = "mutated"
	clone.Messages = append(clone.Messages, NewMessage(RoleUser, "two", "", time.Now()))

	assert.Equal(t, "one", conv.Messages[0].Content)
	assert.Len(t, conv.Messages, 1)
}

func TestConversation_TrimmedTo(t *testing.T) {
	conv := NewConversation("", "", time.Now())
	for i := 0; i < 60; i++ {
		conv.Append(NewMessage(RoleUser, strings.Repeat("x", i+1), "", time.Now()))
	}

	trimmed := conv.TrimmedTo(50)
	assert.Len(t, trimmed.Messages, 50)
	assert.Equal(t, conv.Messages[10].ID, trimmed.Messages[0].ID)
	assert.Len(t, conv.Messages, 60, "original must be untouched")
}

func TestConversation_Matches(t *testing.T) {
	conv := NewConversation("Recipes", "", time.Now())
	conv.Append(NewMessage(RoleAssistant, "Use SAFFRON sparingly", "", time.Now()))

	assert.True(t, conv.Matches("recipes"))
	assert.True(t, conv.Matches("saffron"))
	assert.False(t, conv.Matches("pasta"))
}

func TestMessage_ToTurn(t *testing.T) {
	user := NewMessage(RoleUser, "hi", "", time.Now())
	assistant := NewMessage(RoleAssistant, "hello", "", time.Now())

	assert.Equal(t, Turn{Role: "user", Parts: []Part{{Text: "hi"}}}, user.ToTurn())
	assert.Equal(t, Turn{Role: ProviderModelRole, Parts: []Part{{Text: "hello"}}}, assistant.ToTurn())
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("assistant")
	assert.True(t, ok)
	assert.Equal(t, RoleAssistant, role)

	_, ok = ParseRole("system")
	assert.False(t, ok)
}
