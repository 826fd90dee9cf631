package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/username/deskchat/internal/domain/entities"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
)

// Chat state keys
const (
	KeyCurrentConversation   Key = "currentConversationId"
	KeyConversations         Key = "conversations"
	KeyIsProcessing          Key = "isProcessing"
	KeyLastMessageID         Key = "lastMessageId"
	KeyTotalMessages         Key = "totalMessages"
	KeySearchQuery           Key = "searchQuery"
	KeyFilteredConversations Key = "filteredConversationIds"
	KeyCurrentModel          Key = "currentModel"
	KeyMaxConversations      Key = "maxConversations"
)

var chatKeys = []Key{
	KeyCurrentConversation, KeyConversations, KeyIsProcessing, KeyLastMessageID,
	KeyTotalMessages, KeySearchQuery, KeyFilteredConversations, KeyCurrentModel,
	KeyMaxConversations,
}

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidRole          = errors.New("invalid message role")
)

// ChatState holds the conversation list and the current-conversation pointer
type ChatState struct {
	CurrentConversationID   string                  `json:"currentConversationId"`
	Conversations           []entities.Conversation `json:"conversations"` // most recently updated first
	IsProcessing            bool                    `json:"isProcessing"`
	LastMessageID           string                  `json:"lastMessageId"`
	TotalMessages           int                     `json:"totalMessages"`
	SearchQuery             string                  `json:"searchQuery"`
	FilteredConversationIDs []string                `json:"filteredConversationIds"`
	CurrentModel            string                  `json:"currentModel"`
	MaxConversations        int                     `json:"maxConversations"`
}

// DefaultChatState returns an empty chat state
func DefaultChatState() ChatState {
	return ChatState{
		Conversations:           []entities.Conversation{},
		FilteredConversationIDs: []string{},
		CurrentModel:            constants.DefaultModel,
		MaxConversations:        constants.DefaultMaxConversations,
	}
}

func (s ChatState) Clone() ChatState {
	out := s
	out.Conversations = entities.CloneConversations(s.Conversations)
	if s.FilteredConversationIDs != nil {
		out.FilteredConversationIDs = append([]string{}, s.FilteredConversationIDs...)
	}
	return out
}

func (s ChatState) Keys() []Key { return chatKeys }

func (s ChatState) Field(key Key) (any, bool) {
	switch key {
	case KeyCurrentConversation:
		return s.CurrentConversationID, true
	case KeyConversations:
		return entities.CloneConversations(s.Conversations), true
	case KeyIsProcessing:
		return s.IsProcessing, true
	case KeyLastMessageID:
		return s.LastMessageID, true
	case KeyTotalMessages:
		return s.TotalMessages, true
	case KeySearchQuery:
		return s.SearchQuery, true
	case KeyFilteredConversations:
		if s.FilteredConversationIDs == nil {
			return []string(nil), true
		}
		return append([]string{}, s.FilteredConversationIDs...), true
	case KeyCurrentModel:
		return s.CurrentModel, true
	case KeyMaxConversations:
		return s.MaxConversations, true
	}
	return nil, false
}

func (s *ChatState) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.Conversations {
		if s.Conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// listChanged recomputes everything derived from the conversation list
func (s *ChatState) listChanged() {
	if s.indexOf(s.CurrentConversationID) < 0 {
		s.CurrentConversationID = ""
	}
	total := 0
	for _, c := range s.Conversations {
		total += len(c.Messages)
	}
	s.TotalMessages = total
	s.FilteredConversationIDs = filterConversationIDs(s.Conversations, s.SearchQuery)
}

// PolicyProvider supplies the retention policy the chat store enforces
type PolicyProvider interface {
	PrivacySettings() PrivacySettings
	ShouldRunAutoCleanup() bool
}

// TokenCounter estimates token counts for storage reporting
type TokenCounter interface {
	CountConversationTokens(conv entities.Conversation) int
}

// ChatStore owns conversation history, persisted to
// <dataDir>/chat-data/conversations.json
type ChatStore struct {
	*Base[ChatState]

	path   string
	policy PolicyProvider
	opMu   sync.Mutex
	now    func() time.Time
	tokens TokenCounter
}

// ChatOption customizes a ChatStore
type ChatOption func(*ChatStore)

// WithChatClock overrides the clock used for timestamps and cleanup ages
func WithChatClock(now func() time.Time) ChatOption {
	return func(s *ChatStore) { s.now = now }
}

// WithTokenCounter enables token estimates in storage info
func WithTokenCounter(tc TokenCounter) ChatOption {
	return func(s *ChatStore) { s.tokens = tc }
}

// NewChatStore creates the chat history store reading policy from policy
func NewChatStore(dataDir string, policy PolicyProvider, logger *logutil.Logger, opts ...ChatOption) *ChatStore {
	s := &ChatStore{
		path:   filepath.Join(dataDir, constants.ChatDataDir, constants.ConversationsFileName),
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Base = NewBase(constants.StoreChat, DefaultChatState, s.load, logger)
	return s
}

// Path returns the conversations file location
func (s *ChatStore) Path() string {
	return s.path
}

func (s *ChatStore) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var loaded []entities.Conversation
	found, err := readJSON(s.path, &loaded)
	if !found {
		s.Logger().Info("No saved conversations found")
		return nil
	}
	if err != nil {
		s.Logger().Warn("Failed to load conversations, starting empty", logutil.Fields{"error": err})
		s.Reset()
		return nil
	}

	conversations := dedupeConversations(loaded)
	s.SetState(func(st *ChatState) {
		st.Conversations = conversations
		st.listChanged()
	})
	s.Logger().Info("Conversations loaded", logutil.Fields{"count": len(conversations)})
	return nil
}

func dedupeConversations(in []entities.Conversation) []entities.Conversation {
	seen := make(map[string]bool, len(in))
	out := make([]entities.Conversation, 0, len(in))
	for _, c := range in {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Messages == nil {
			c.Messages = []entities.Message{}
		}
		out = append(out, c)
	}
	return out
}

// Save writes the conversation list, keeping only the newest 50 messages of
// each conversation in the file. In-memory conversations are not trimmed.
func (s *ChatStore) Save(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.save(ctx)
}

func (s *ChatStore) save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conversations := s.GetState().Conversations
	persisted := make([]entities.Conversation, len(conversations))
	for i, c := range conversations {
		persisted[i] = c.TrimmedTo(constants.MaxPersistedMessages)
	}
	if err := writeJSON(s.path, persisted); err != nil {
		s.Logger().Error("Failed to save conversations", logutil.Fields{"error": err})
		return fmt.Errorf("failed to save chat: %w", err)
	}
	s.Logger().Debug("Conversations saved", logutil.Fields{"count": len(persisted)})
	return nil
}

// newConversationLocked prepends a fresh conversation, makes it current and
// applies the conversation cap
func newConversationLocked(st *ChatState, seed string, at time.Time) entities.Conversation {
	conv := entities.NewConversation(seed, st.CurrentModel, at)
	st.Conversations = append([]entities.Conversation{conv}, st.Conversations...)
	if st.MaxConversations > 0 && len(st.Conversations) > st.MaxConversations {
		st.Conversations = st.Conversations[:st.MaxConversations]
	}
	st.CurrentConversationID = conv.ID
	st.listChanged()
	return conv
}

// CreateConversation starts a new current conversation titled from firstMessage
func (s *ChatStore) CreateConversation(ctx context.Context, firstMessage string) (string, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := s.now()
	var id string
	s.SetState(func(st *ChatState) {
		id = newConversationLocked(st, firstMessage, now).ID
	})
	return id, s.save(ctx)
}

// AddMessage appends a message to the current conversation, creating one when
// none is current, and moves that conversation to the head of the list.
// In incognito mode nothing is recorded and IncognitoMessageID is returned.
func (s *ChatStore) AddMessage(ctx context.Context, content string, role entities.MessageRole, model string) (string, error) {
	if _, ok := entities.ParseRole(string(role)); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if s.policy != nil && s.policy.PrivacySettings().IncognitoMode {
		s.Logger().Debug("Incognito mode active, message not recorded")
		return constants.IncognitoMessageID, nil
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := s.now()
	var msg entities.Message
	s.SetState(func(st *ChatState) {
		idx := st.indexOf(st.CurrentConversationID)
		if idx < 0 {
			seed := ""
			if role == entities.RoleUser {
				seed = content
			}
			newConversationLocked(st, seed, now)
			idx = 0
		}

		if model == "" {
			model = st.CurrentModel
		}
		msg = entities.NewMessage(role, content, model, now)

		conv := st.Conversations[idx]
		conv.Append(msg)

		reordered := make([]entities.Conversation, 0, len(st.Conversations))
		reordered = append(reordered, conv)
		reordered = append(reordered, st.Conversations[:idx]...)
		reordered = append(reordered, st.Conversations[idx+1:]...)
		st.Conversations = reordered

		st.CurrentConversationID = conv.ID
		st.LastMessageID = msg.ID
		st.listChanged()
	})

	if err := s.save(ctx); err != nil {
		return msg.ID, err
	}
	return msg.ID, nil
}

// SetCurrentConversation points the store at an existing conversation
func (s *ChatStore) SetCurrentConversation(id string) bool {
	found := false
	s.SetState(func(st *ChatState) {
		if st.indexOf(id) >= 0 {
			st.CurrentConversationID = id
			found = true
		}
	})
	return found
}

// LoadConversation returns a conversation and makes it current
func (s *ChatStore) LoadConversation(id string) (entities.Conversation, bool) {
	var conv entities.Conversation
	found := false
	s.SetState(func(st *ChatState) {
		if idx := st.indexOf(id); idx >= 0 {
			st.CurrentConversationID = id
			conv = st.Conversations[idx].Clone()
			found = true
		}
	})
	return conv, found
}

// CurrentConversation returns the current conversation, if any
func (s *ChatStore) CurrentConversation() (entities.Conversation, bool) {
	st := s.GetState()
	idx := st.indexOf(st.CurrentConversationID)
	if idx < 0 {
		return entities.Conversation{}, false
	}
	return st.Conversations[idx], true
}

// ClearCurrentConversation drops the current-conversation pointer so the next
// message starts a new chat
func (s *ChatStore) ClearCurrentConversation() {
	s.SetState(func(st *ChatState) { st.CurrentConversationID = "" })
}

// RenameConversation overwrites a title. It does not reorder the list.
func (s *ChatStore) RenameConversation(ctx context.Context, id, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = entities.DefaultConversationTitle
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	found := false
	s.SetState(func(st *ChatState) {
		if idx := st.indexOf(id); idx >= 0 {
			st.Conversations[idx].Title = title
			st.listChanged()
			found = true
		}
	})
	if !found {
		return false, nil
	}
	return true, s.save(ctx)
}

// DeleteConversation removes a conversation; false means it did not exist
func (s *ChatStore) DeleteConversation(ctx context.Context, id string) (bool, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	found := false
	s.SetState(func(st *ChatState) {
		idx := st.indexOf(id)
		if idx < 0 {
			return
		}
		st.Conversations = append(st.Conversations[:idx:idx], st.Conversations[idx+1:]...)
		st.listChanged()
		found = true
	})
	if !found {
		return false, nil
	}
	return true, s.save(ctx)
}

// ClearAllData removes every conversation and resets the search
func (s *ChatStore) ClearAllData(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.SetState(func(st *ChatState) {
		st.Conversations = []entities.Conversation{}
		st.CurrentConversationID = ""
		st.SearchQuery = ""
		st.LastMessageID = ""
		st.listChanged()
	})
	if err := s.save(ctx); err != nil {
		return err
	}
	s.Logger().Info("All chat data cleared")
	return nil
}

// SetProcessing flags an in-flight generation. Not persisted.
func (s *ChatStore) SetProcessing(processing bool) {
	s.SetState(func(st *ChatState) { st.IsProcessing = processing })
}

// SetCurrentModel sets the model stamped on new messages. Not persisted.
func (s *ChatStore) SetCurrentModel(model string) {
	s.SetState(func(st *ChatState) { st.CurrentModel = model })
}

// NeedsCleanup reports whether scheduled cleanup is due
func (s *ChatStore) NeedsCleanup() bool {
	return s.policy != nil && s.policy.ShouldRunAutoCleanup()
}
