package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/username/deskchat/internal/domain/entities"
	"github.com/username/deskchat/internal/pkg/configutil"
	"github.com/username/deskchat/internal/pkg/constants"
)

// ExportBundle is the payload produced by ExportAllData
type ExportBundle struct {
	ExportDate         time.Time               `json:"exportDate"`
	TotalConversations int                     `json:"totalConversations"`
	TotalMessages      int                     `json:"totalMessages"`
	Conversations      []entities.Conversation `json:"conversations"`
}

// ExportConversation renders one conversation as json, txt or md
func (s *ChatStore) ExportConversation(id, format string) (string, error) {
	if format == "" {
		format = constants.ExportFormatJSON
	}
	if err := configutil.NewValidator().OneOf("format", format, constants.ExportFormats).Result(); err != nil {
		return "", err
	}

	st := s.GetState()
	idx := st.indexOf(id)
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	conv := st.Conversations[idx]

	switch format {
	case constants.ExportFormatText:
		return conversationToText(conv), nil
	case constants.ExportFormatMarkdown:
		return conversationToMarkdown(conv), nil
	default:
		data, err := json.MarshalIndent(conv, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode conversation: %w", err)
		}
		return string(data), nil
	}
}

// ExportAllData bundles every conversation with summary counts
func (s *ChatStore) ExportAllData() (string, error) {
	st := s.GetState()
	bundle := ExportBundle{
		ExportDate:         s.now().UTC(),
		TotalConversations: len(st.Conversations),
		TotalMessages:      st.TotalMessages,
		Conversations:      st.Conversations,
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	return string(data), nil
}

func exportTime(t time.Time) string {
	return t.Local().Format(constants.ExportTimestampLayout)
}

func senderName(role entities.MessageRole) string {
	if role == entities.RoleUser {
		return "User"
	}
	return "Assistant"
}

func conversationToText(c entities.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation: %s\nDate: %s\n%s\n\n",
		c.Title, exportTime(c.CreatedAt), strings.Repeat("=", constants.ExportSeparatorWidth))

	for i, m := range c.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s:\n%s\n", exportTime(m.Timestamp), senderName(m.Role), m.Content)
	}
	return b.String()
}

func conversationToMarkdown(c entities.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n**Date:** %s\n\n---\n\n", c.Title, exportTime(c.CreatedAt))

	for i, m := range c.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## **%s**\n*%s*\n\n%s\n\n---\n", senderName(m.Role), exportTime(m.Timestamp), m.Content)
	}
	return b.String()
}
