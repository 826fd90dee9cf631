package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/deskchat/internal/domain/entities"
	"github.com/username/deskchat/internal/domain/metrics"
	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/domain/services"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/httputil"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Generate(ctx context.Context, request *ports.GenerateRequest) (*ports.GenerateResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &ports.GenerateResponse{Text: g.reply}, nil
}

func (g *stubGenerator) Ping(ctx context.Context) error { return g.err }

type memoryJournal struct {
	mu     sync.Mutex
	events []ports.Event
}

func (j *memoryJournal) Record(ctx context.Context, eventType string, payload map[string]any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ports.Event{EventType: eventType, Payload: payload, CreatedAt: time.Now()})
	return nil
}

func (j *memoryJournal) Events(ctx context.Context, eventType string, limit int) ([]ports.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := []ports.Event{}
	for i := len(j.events) - 1; i >= 0 && len(out) < limit; i-- {
		if eventType == "" || j.events[i].EventType == eventType {
			out = append(out, j.events[i])
		}
	}
	return out, nil
}

func (j *memoryJournal) Ping(ctx context.Context) error    { return nil }
func (j *memoryJournal) Migrate(ctx context.Context) error { return nil }
func (j *memoryJournal) Close() error                      { return nil }

func (j *memoryJournal) types() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, e := range j.events {
		out = append(out, e.EventType)
	}
	return out
}

type testServer struct {
	router    *gin.Engine
	settings  *store.ConfigStore
	chat      *store.ChatStore
	ui        *store.UIStore
	generator *stubGenerator
	journal   *memoryJournal
}

func newTestServer(t *testing.T, initialize bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	logger := logutil.NewNopLogger()

	registry := store.NewRegistry()
	settings := store.Register(registry, constants.StoreConfig,
		store.NewConfigStore(dir, logger, store.WithEnvLookup(func(string) string { return "" })))
	chat := store.Register(registry, constants.StoreChat, store.NewChatStore(dir, settings, logger))
	ui := store.Register(registry, constants.StoreUI, store.NewUIStore(dir, logger))
	if initialize {
		require.NoError(t, registry.InitializeAll(context.Background()))
	}

	collector := metrics.NewCollector()
	generator := &stubGenerator{reply: "hello back"}
	journal := &memoryJournal{}
	assistant := services.NewAssistantService(generator, chat, settings, collector, services.AssistantConfig{}, logger, ui)
	cleanup := services.NewCleanupService(chat, settings, collector, time.Hour, logger, services.WithCleanupJournal(journal))

	handlers := NewAPIHandlers(Dependencies{
		Registry:  registry,
		Settings:  settings,
		Chat:      chat,
		UI:        ui,
		Assistant: assistant,
		Cleanup:   cleanup,
		Journal:   journal,
		Metrics:   collector,
		Logger:    logger,
	})
	router := gin.New()
	handlers.SetupRoutes(router, httputil.DefaultMiddlewareConfig)

	return &testServer{
		router: router, settings: settings, chat: chat, ui: ui,
		generator: generator, journal: journal,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Meta    json.RawMessage `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &out))
	return out
}

func TestHandleHealth(t *testing.T) {
	t.Run("initialized", func(t *testing.T) {
		s := newTestServer(t, true)
		w := s.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(constants.HeaderRequestID))
	})

	t.Run("uninitialized stores", func(t *testing.T) {
		s := newTestServer(t, false)
		w := s.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "store_chat")
	})
}

func TestConfig_APIKeyIsRedacted(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodPut, "/api/v1/config/api-key", map[string]string{"apiKey": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	cfg := decodeData[map[string]any](t, s.do(t, http.MethodGet, "/api/v1/config", nil))
	assert.Equal(t, "", cfg["apiKey"])
	assert.Equal(t, true, cfg["hasApiKey"])

	key := decodeData[map[string]string](t, s.do(t, http.MethodGet, "/api/v1/config/api-key", nil))
	assert.Equal(t, "secret", key["apiKey"])

	state := s.do(t, http.MethodGet, "/api/v1/state", nil)
	assert.NotContains(t, state.Body.String(), "secret")
}

func TestConfig_Validation(t *testing.T) {
	s := newTestServer(t, true)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"valid theme", "/api/v1/config/theme", map[string]string{"theme": "dark"}, http.StatusOK},
		{"unknown theme", "/api/v1/config/theme", map[string]string{"theme": "purple"}, http.StatusBadRequest},
		{"missing theme", "/api/v1/config/theme", map[string]string{}, http.StatusBadRequest},
		{"retention", "/api/v1/privacy/retention", map[string]int{"days": 14}, http.StatusOK},
		{"retention zero", "/api/v1/privacy/retention", map[string]int{"days": 0}, http.StatusBadRequest},
		{"retention missing", "/api/v1/privacy/retention", map[string]int{}, http.StatusBadRequest},
		{"incognito false", "/api/v1/privacy/incognito", map[string]bool{"enabled": false}, http.StatusOK},
		{"auto cleanup", "/api/v1/privacy/auto-cleanup", map[string]any{"enabled": true, "schedule": "daily"}, http.StatusOK},
		{"malformed body", "/api/v1/privacy/incognito", "{", http.StatusBadRequest},
		{"model", "/api/v1/config/model", map[string]any{"model": "gemini-2.5-pro", "temperature": 0.2}, http.StatusOK},
		{"model temperature", "/api/v1/config/model", map[string]any{"model": "gemini-2.5-pro", "temperature": 3}, http.StatusBadRequest},
		{"model missing", "/api/v1/config/model", map[string]any{"maxTokens": 256}, http.StatusBadRequest},
		{"window size", "/api/v1/config/window-size", map[string]int{"width": 800, "height": 600}, http.StatusOK},
		{"window size zero", "/api/v1/config/window-size", map[string]int{"width": 0, "height": 600}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	privacy := s.settings.PrivacySettings()
	assert.Equal(t, 14, privacy.DataRetentionDays)
	assert.True(t, privacy.AutoCleanup)
}

func TestConfig_ImportRejectsInvalidJSON(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodPost, "/api/v1/config/import", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/config/import", map[string]any{"theme": "dark"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dark", s.settings.GetState().Theme)
	assert.Contains(t, s.journal.types(), ports.EventSettingsImported)
}

func TestConversations_Lifecycle(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "What is Go?", "role": "user"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	list := s.do(t, http.MethodGet, "/api/v1/conversations", nil)
	summaries := decodeData[[]store.ConversationSummary](t, list)
	require.Len(t, summaries, 1)
	id := summaries[0].ID
	assert.Equal(t, "What is Go?", summaries[0].Title)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/conversations/"+id, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/conversations/current", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/conversations/missing", nil).Code)

	w = s.do(t, http.MethodPut, "/api/v1/conversations/"+id+"/title", map[string]string{"title": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	conv, ok := s.chat.LoadConversation(id)
	require.True(t, ok)
	assert.Equal(t, "Renamed", conv.Title)

	search := decodeData[[]store.ConversationSummary](t, s.do(t, http.MethodGet, "/api/v1/conversations?q=renamed", nil))
	assert.Len(t, search, 1)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/v1/conversations/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/v1/conversations/"+id, nil).Code)
	assert.Equal(t, []string{ports.EventConversationDeleted}, s.journal.types())
}

func TestConversations_NewClearsCurrent(t *testing.T) {
	s := newTestServer(t, true)
	_, err := s.chat.AddMessage(context.Background(), "hi", entities.RoleUser, "")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/conversations/new", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/conversations/current", nil).Code)
}

func TestAddMessage_InvalidRole(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodPost, "/api/v1/messages", map[string]string{"content": "x", "role": "system"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.chat.GetState().Conversations)
}

func TestExportConversation_Formats(t *testing.T) {
	s := newTestServer(t, true)
	_, err := s.chat.AddMessage(context.Background(), "export me", entities.RoleUser, "")
	require.NoError(t, err)
	conv, ok := s.chat.CurrentConversation()
	require.True(t, ok)

	tests := []struct {
		format      string
		status      int
		contentType string
		contains    string
	}{
		{"json", http.StatusOK, constants.ContentTypeJSON, `"export me"`},
		{"txt", http.StatusOK, constants.ContentTypeText, "export me"},
		{"md", http.StatusOK, constants.ContentTypeMarkdown, "# export me"},
		{"pdf", http.StatusBadRequest, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/export?format="+tt.format, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			assert.Equal(t, tt.contentType, w.Header().Get(constants.HeaderContentType))
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}

	w := s.do(t, http.MethodGet, "/api/v1/conversations/missing/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		s := newTestServer(t, true)
		w := s.do(t, http.MethodPost, "/api/v1/chat", map[string]string{"prompt": "hi"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, s.chat.GetState().Conversations)
	})

	t.Run("empty prompt", func(t *testing.T) {
		s := newTestServer(t, true)
		require.NoError(t, s.settings.SetAPIKey(context.Background(), "k"))
		w := s.do(t, http.MethodPost, "/api/v1/chat", map[string]string{"prompt": "  "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("success", func(t *testing.T) {
		s := newTestServer(t, true)
		require.NoError(t, s.settings.SetAPIKey(context.Background(), "k"))

		w := s.do(t, http.MethodPost, "/api/v1/chat", map[string]string{"prompt": "hi"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		result := decodeData[services.SendResult](t, w)
		assert.Equal(t, "hello back", result.Reply)
		conv, ok := s.chat.CurrentConversation()
		require.True(t, ok)
		assert.Len(t, conv.Messages, 2)
		assert.False(t, s.chat.GetState().IsProcessing)
		assert.False(t, s.ui.GetState().IsProcessing)
	})

	t.Run("generation failure keeps error reply", func(t *testing.T) {
		s := newTestServer(t, true)
		require.NoError(t, s.settings.SetAPIKey(context.Background(), "k"))
		s.generator.err = errors.New("quota exceeded")

		w := s.do(t, http.MethodPost, "/api/v1/chat", map[string]string{"prompt": "hi"})
		require.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, decode(t, w).Error, "quota exceeded")

		conv, ok := s.chat.CurrentConversation()
		require.True(t, ok)
		require.Len(t, conv.Messages, 2)
		assert.True(t, strings.HasPrefix(conv.Messages[1].Content, "Error: "))
	})

	t.Run("image data url", func(t *testing.T) {
		s := newTestServer(t, true)
		require.NoError(t, s.settings.SetAPIKey(context.Background(), "k"))

		w := s.do(t, http.MethodPost, "/api/v1/chat", map[string]any{
			"image": map[string]string{"data": "data:image/jpeg;base64,aGVsbG8="},
		})
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodPost, "/api/v1/chat", map[string]any{
			"prompt": "hi",
			"image":  map[string]string{"data": "%%%"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDecodeImage(t *testing.T) {
	img, err := decodeImage("", "data:image/webp;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MIMEType)
	assert.Equal(t, []byte("hello"), img.Data)

	img, err = decodeImage("", "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = decodeImage("", "data:image/png;base64")
	assert.Error(t, err)
}

func TestSetProcessing(t *testing.T) {
	s := newTestServer(t, true)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/v1/processing", map[string]bool{"processing": true}).Code)
	assert.True(t, s.chat.GetState().IsProcessing)
	assert.True(t, s.ui.GetState().IsProcessing)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/v1/processing", map[string]any{}).Code)
}

func TestDataManagement(t *testing.T) {
	s := newTestServer(t, true)
	_, err := s.chat.AddMessage(context.Background(), "keep me", entities.RoleUser, "")
	require.NoError(t, err)

	stats := decodeData[store.Stats](t, s.do(t, http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, 1, stats.TotalConversations)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/storage", nil).Code)

	export := s.do(t, http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, export.Code)
	assert.Contains(t, export.Body.String(), "keep me")

	// Auto cleanup is off by default so a manual run deletes nothing
	cleanup := decodeData[store.CleanupResult](t, s.do(t, http.MethodPost, "/api/v1/cleanup", nil))
	assert.Zero(t, cleanup.DeletedConversations)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/v1/data", nil).Code)
	assert.Empty(t, s.chat.GetState().Conversations)
	assert.Equal(t, []string{ports.EventDataExported, ports.EventDataCleared}, s.journal.types())

	journal := decodeData[[]ports.Event](t, s.do(t, http.MethodGet, "/api/v1/journal?type="+ports.EventDataCleared, nil))
	require.Len(t, journal, 1)
	assert.EqualValues(t, 1, journal[0].Payload["conversations"])
}

func TestUIHandlers(t *testing.T) {
	s := newTestServer(t, true)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"theme", http.MethodPut, "/api/v1/ui/theme", map[string]string{"theme": "dark"}, http.StatusOK},
		{"unknown preset", http.MethodPut, "/api/v1/ui/preset", map[string]string{"name": "neon"}, http.StatusNotFound},
		{"known preset", http.MethodPut, "/api/v1/ui/preset", map[string]string{"name": "ocean"}, http.StatusOK},
		{"create preset", http.MethodPost, "/api/v1/ui/presets", map[string]any{"name": "mine", "colors": map[string]string{"primary": "#123456"}}, http.StatusCreated},
		{"create preset without name", http.MethodPost, "/api/v1/ui/presets", map[string]any{"colors": map[string]string{}}, http.StatusBadRequest},
		{"delete builtin preset", http.MethodDelete, "/api/v1/ui/presets/default", nil, http.StatusBadRequest},
		{"delete missing preset", http.MethodDelete, "/api/v1/ui/presets/none", nil, http.StatusNotFound},
		{"delete user preset", http.MethodDelete, "/api/v1/ui/presets/mine", nil, http.StatusOK},
		{"custom colors", http.MethodPut, "/api/v1/ui/colors", map[string]string{"accent": "#ff0000"}, http.StatusOK},
		{"window", http.MethodPut, "/api/v1/ui/window", map[string]any{"isExpanded": true, "width": 900}, http.StatusOK},
		{"flags", http.MethodPut, "/api/v1/ui/flags", map[string]bool{"settingsOpen": true}, http.StatusOK},
		{"transparency", http.MethodPut, "/api/v1/ui/transparency", map[string]any{"enabled": true, "level": 250}, http.StatusOK},
		{"display", http.MethodPut, "/api/v1/ui/display", map[string]any{"fontSize": 40, "compactMode": true}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	st := s.ui.GetState()
	assert.Equal(t, constants.ThemeDark, st.Theme)
	assert.True(t, st.CustomColors)
	assert.Equal(t, "#ff0000", st.Colors.Accent)
	assert.True(t, st.WindowState.IsExpanded)
	assert.Equal(t, 900, st.WindowState.Width)
	assert.True(t, st.IsSettingsOpen)
	assert.Equal(t, constants.MaxTransparencyLevel, st.Transparency.Level)
	assert.Equal(t, constants.MaxFontSize, st.FontSize)
	assert.True(t, st.CompactMode)
	assert.NotContains(t, st.ColorPresets, "mine")

	css := decodeData[map[string]string](t, s.do(t, http.MethodGet, "/api/v1/ui/css", nil))
	assert.Equal(t, "#ff0000", css["--color-accent"])
}

func TestUIHandlers_ExportImportReset(t *testing.T) {
	s := newTestServer(t, true)
	require.NoError(t, s.ui.SetFontSize(context.Background(), 20))

	export := s.do(t, http.MethodGet, "/api/v1/ui/export", nil)
	require.Equal(t, http.StatusOK, export.Code)
	body := export.Body.String()

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/ui/reset", nil).Code)
	assert.NotEqual(t, 20, s.ui.GetState().FontSize)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/ui/import", body).Code)
	assert.Equal(t, 20, s.ui.GetState().FontSize)
	assert.Equal(t, []string{ports.EventSettingsImported}, s.journal.types())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/ui/import", "{oops").Code)
}

func TestDiagnostics(t *testing.T) {
	s := newTestServer(t, true)
	s.chat.SetProcessing(true)

	health := decodeData[map[string]any](t, s.do(t, http.MethodGet, "/api/v1/system/health", nil))
	assert.Equal(t, "healthy", health["journal"])
	assert.Equal(t, "disabled", health["nats"])
	assert.Equal(t, "healthy", health["generator"])

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/system/metrics", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/system/metrics?name=message", nil).Code)

	conns := decodeData[map[string]any](t, s.do(t, http.MethodGet, "/api/v1/system/connections", nil))
	assert.EqualValues(t, 0, conns["websocket"])

	state := decodeData[map[string]json.RawMessage](t, s.do(t, http.MethodGet, "/api/v1/state", nil))
	assert.Contains(t, state, constants.StoreConfig)
	assert.Contains(t, state, constants.StoreChat)
	assert.Contains(t, state, constants.StoreUI)
}
