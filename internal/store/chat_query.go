package store

import (
	"math"
	"strings"
	"time"

	"github.com/username/deskchat/internal/domain/entities"
)

// ConversationSummary is a conversation plus list-view fields
type ConversationSummary struct {
	entities.Conversation
	MessageCount int    `json:"messageCount"`
	LastMessage  string `json:"lastMessage"`
}

func summarize(c entities.Conversation) ConversationSummary {
	return ConversationSummary{
		Conversation: c,
		MessageCount: c.MessageCount(),
		LastMessage:  c.LastMessage(),
	}
}

// Stats summarizes the conversation list
type Stats struct {
	TotalConversations             int        `json:"totalConversations"`
	TotalMessages                  int        `json:"totalMessages"`
	AverageMessagesPerConversation int        `json:"averageMessagesPerConversation"`
	OldestConversation             *time.Time `json:"oldestConversation"`
	NewestConversation             *time.Time `json:"newestConversation"`
}

// StorageInfo reports how much the history occupies
type StorageInfo struct {
	TotalConversations int        `json:"totalConversations"`
	TotalMessages      int        `json:"totalMessages"`
	EstimatedSizeMB    float64    `json:"estimatedSizeMB"`
	EstimatedTokens    int        `json:"estimatedTokens,omitempty"`
	OldestDate         *time.Time `json:"oldestDate"`
	NewestDate         *time.Time `json:"newestDate"`
}

func filterConversationIDs(conversations []entities.Conversation, query string) []string {
	ids := make([]string, 0, len(conversations))
	if strings.TrimSpace(query) == "" {
		for _, c := range conversations {
			ids = append(ids, c.ID)
		}
		return ids
	}

	lower := strings.ToLower(query)
	for _, c := range conversations {
		if c.Matches(lower) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// GetAllConversations lists every conversation, most recently updated first
func (s *ChatStore) GetAllConversations() []ConversationSummary {
	conversations := s.GetState().Conversations
	out := make([]ConversationSummary, len(conversations))
	for i, c := range conversations {
		out[i] = summarize(c)
	}
	return out
}

// SearchConversations filters by case-insensitive substring over titles and
// message bodies. The query is remembered and re-applied whenever the list
// changes. A blank query matches everything.
func (s *ChatStore) SearchConversations(query string) []ConversationSummary {
	s.SetState(func(st *ChatState) {
		st.SearchQuery = query
		st.FilteredConversationIDs = filterConversationIDs(st.Conversations, query)
	})
	return s.FilteredConversations()
}

// FilteredConversations resolves the stored search projection
func (s *ChatStore) FilteredConversations() []ConversationSummary {
	st := s.GetState()
	byID := make(map[string]entities.Conversation, len(st.Conversations))
	for _, c := range st.Conversations {
		byID[c.ID] = c
	}
	out := make([]ConversationSummary, 0, len(st.FilteredConversationIDs))
	for _, id := range st.FilteredConversationIDs {
		if c, ok := byID[id]; ok {
			out = append(out, summarize(c))
		}
	}
	return out
}

func dateRange(conversations []entities.Conversation) (oldest, newest *time.Time) {
	if len(conversations) == 0 {
		return nil, nil
	}
	o, n := conversations[0].CreatedAt, conversations[0].UpdatedAt
	for _, c := range conversations[1:] {
		if c.CreatedAt.Before(o) {
			o = c.CreatedAt
		}
		if c.UpdatedAt.After(n) {
			n = c.UpdatedAt
		}
	}
	return &o, &n
}

// GetStats returns conversation counts and the covered date range
func (s *ChatStore) GetStats() Stats {
	st := s.GetState()
	stats := Stats{
		TotalConversations: len(st.Conversations),
		TotalMessages:      st.TotalMessages,
	}
	if n := len(st.Conversations); n > 0 {
		stats.AverageMessagesPerConversation = int(math.Round(float64(st.TotalMessages) / float64(n)))
	}
	stats.OldestConversation, stats.NewestConversation = dateRange(st.Conversations)
	return stats
}

// GetStorageInfo estimates the serialized size of the history
func (s *ChatStore) GetStorageInfo() StorageInfo {
	st := s.GetState()
	sizes := make([]int, len(st.Conversations))
	for i, c := range st.Conversations {
		sizes[i] = conversationSize(c)
	}

	info := StorageInfo{
		TotalConversations: len(st.Conversations),
		TotalMessages:      st.TotalMessages,
		EstimatedSizeMB:    bytesToMB(listSize(sizes)),
	}
	info.OldestDate, info.NewestDate = dateRange(st.Conversations)

	if s.tokens != nil {
		for _, c := range st.Conversations {
			info.EstimatedTokens += s.tokens.CountConversationTokens(c)
		}
	}
	return info
}

// GetAPIHistory maps the current conversation into provider turns
func (s *ChatStore) GetAPIHistory() []entities.Turn {
	conv, ok := s.CurrentConversation()
	if !ok {
		return []entities.Turn{}
	}
	turns := make([]entities.Turn, len(conv.Messages))
	for i, m := range conv.Messages {
		turns[i] = m.ToTurn()
	}
	return turns
}
