package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/username/deskchat/internal/adapters/websocket"
	"github.com/username/deskchat/internal/domain/metrics"
	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/domain/services"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/httputil"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
)

// Dependencies wires the handlers to the stores and services. Journal,
// Messaging and Hub are optional.
type Dependencies struct {
	Registry  *store.Registry
	Settings  *store.ConfigStore
	Chat      *store.ChatStore
	UI        *store.UIStore
	Assistant *services.AssistantService
	Cleanup   *services.CleanupService
	Journal   ports.JournalPort
	Messaging ports.MessagingPort
	Metrics   *metrics.Collector
	Hub       *websocket.Hub
	Logger    *logutil.Logger
}

// APIHandlers contains all HTTP API handlers
type APIHandlers struct {
	registry  *store.Registry
	settings  *store.ConfigStore
	chat      *store.ChatStore
	ui        *store.UIStore
	assistant *services.AssistantService
	cleanup   *services.CleanupService
	journal   ports.JournalPort
	messaging ports.MessagingPort
	metrics   *metrics.Collector
	hub       *websocket.Hub
	logger    *logutil.FieldLogger
	started   time.Time
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(deps Dependencies) *APIHandlers {
	logger := deps.Logger
	if logger == nil {
		logger = logutil.Global()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &APIHandlers{
		registry:  deps.Registry,
		settings:  deps.Settings,
		chat:      deps.Chat,
		ui:        deps.UI,
		assistant: deps.Assistant,
		cleanup:   deps.Cleanup,
		journal:   deps.Journal,
		messaging: deps.Messaging,
		metrics:   collector,
		hub:       deps.Hub,
		logger:    logger.WithFields(logutil.Fields{"component": "http"}),
		started:   time.Now(),
	}
}

// SetupRoutes configures all API routes
func (h *APIHandlers) SetupRoutes(r *gin.Engine, config httputil.MiddlewareConfig) {
	r.Use(httputil.RequestIDMiddleware())
	r.Use(httputil.CORSMiddleware(config))
	r.Use(httputil.TimeoutMiddleware(config.Timeouts))

	r.GET("/health", h.handleHealth)
	if h.hub != nil {
		r.GET("/ws", h.hub.HandleWebSocket)
	}

	api := r.Group("/api/" + constants.APIVersion)
	{
		// Configuration
		api.GET("/config", h.getConfig)
		api.GET("/config/api-key", h.getAPIKey)
		api.PUT("/config/api-key", h.setAPIKey)
		api.PUT("/config/theme", h.setConfigTheme)
		api.PUT("/config/model", h.setModelConfig)
		api.PUT("/config/window-size", h.setWindowSize)
		api.PUT("/config/window-position", h.setWindowPosition)
		api.PUT("/config/shortcuts", h.setShortcuts)
		api.PUT("/config/auto-hide", h.setAutoHide)
		api.GET("/config/export", h.exportConfig)
		api.POST("/config/import", h.importConfig)
		api.POST("/config/reset", h.resetConfig)

		// Privacy
		api.GET("/privacy", h.getPrivacySettings)
		api.PUT("/privacy/incognito", h.setIncognitoMode)
		api.PUT("/privacy/retention", h.setDataRetention)
		api.PUT("/privacy/auto-cleanup", h.setAutoCleanup)
		api.PUT("/privacy/max-storage", h.setMaxStorageSize)
		api.PUT("/privacy/keep-recent", h.setKeepRecentDays)

		// Conversations
		api.GET("/conversations", h.listConversations)
		api.POST("/conversations", h.createConversation)
		api.POST("/conversations/new", h.newConversation)
		api.GET("/conversations/current", h.getCurrentConversation)
		api.GET("/conversations/:id", h.loadConversation)
		api.PUT("/conversations/:id/title", h.renameConversation)
		api.DELETE("/conversations/:id", h.deleteConversation)
		api.GET("/conversations/:id/export", h.exportConversation)

		// Messages and generation
		api.POST("/messages", h.addMessage)
		api.GET("/history", h.getAPIHistory)
		api.POST("/chat", h.sendChat)
		api.PUT("/processing", h.setProcessing)

		// Data management
		api.POST("/cleanup", h.runCleanup)
		api.DELETE("/data", h.clearAllData)
		api.GET("/storage", h.getStorageInfo)
		api.GET("/stats", h.getStats)
		api.GET("/export", h.exportAllData)

		// UI preferences
		api.GET("/ui", h.getUIState)
		api.PUT("/ui/theme", h.setUITheme)
		api.PUT("/ui/preset", h.setColorPreset)
		api.POST("/ui/presets", h.createColorPreset)
		api.DELETE("/ui/presets/:name", h.deleteColorPreset)
		api.PUT("/ui/colors", h.setCustomColors)
		api.PUT("/ui/window", h.setWindowState)
		api.PUT("/ui/flags", h.setUIFlags)
		api.PUT("/ui/animations", h.setAnimations)
		api.PUT("/ui/transparency", h.setTransparency)
		api.PUT("/ui/display", h.setDisplay)
		api.GET("/ui/css", h.getCSSVariables)
		api.GET("/ui/export", h.exportUIConfig)
		api.POST("/ui/import", h.importUIConfig)
		api.POST("/ui/reset", h.resetUIConfig)

		// Application state, audit trail and diagnostics
		api.GET("/state", h.getAppState)
		api.GET("/journal", h.listJournalEvents)
		api.GET("/system/health", h.getSystemHealth)
		api.GET("/system/metrics", h.getSystemMetrics)
		api.GET("/system/connections", h.getSystemConnections)
	}
}

// Health check endpoint
func (h *APIHandlers) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":    constants.StatusOK,
		"timestamp": time.Now().Unix(),
		"service":   constants.ServiceName,
		"version":   constants.ServiceVersion,
	}

	for _, name := range h.registry.Names() {
		s, _ := h.registry.GetStore(name)
		if !s.IsInitialized() {
			status["status"] = constants.StatusError
			status["store_"+name] = "not initialized"
		}
	}
	if status["status"] != constants.StatusOK {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}

	c.JSON(http.StatusOK, status)
}

// journalEvent records an audit entry; failures are logged and never fail
// the request
func (h *APIHandlers) journalEvent(c *gin.Context, eventType string, payload map[string]any) {
	if h.journal == nil {
		return
	}
	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()
	if err := h.journal.Record(ctx, eventType, payload); err != nil {
		h.logger.Warn("Failed to journal event", logutil.Fields{"event_type": eventType, "error": err})
	}
}

func (h *APIHandlers) getAppState(c *gin.Context) {
	state := h.registry.AppState()
	for name, s := range state {
		state[name] = services.RedactState(s)
	}
	httputil.SuccessResponse(c, state)
}

func (h *APIHandlers) listJournalEvents(c *gin.Context) {
	if h.journal == nil {
		httputil.ServiceUnavailableError(c, errors.New("journal disabled"))
		return
	}

	limit := httputil.QueryInt(c, "limit", constants.DefaultQueryLimit, 1, constants.MaxQueryLimit)
	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	events, err := h.journal.Events(ctx, c.Query("type"), limit)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	httputil.SuccessResponseWithMeta(c, events, gin.H{"count": len(events), "limit": limit})
}

// Diagnostics handlers

func (h *APIHandlers) getSystemHealth(c *gin.Context) {
	health := gin.H{
		"api":       "healthy",
		"generator": "unknown",
		"nats":      "disabled",
		"journal":   "disabled",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now(),
	}

	if h.journal != nil {
		ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
		if err := h.journal.Ping(ctx); err != nil {
			health["journal"] = "error"
		} else {
			health["journal"] = "healthy"
		}
		cancel()
	}

	if h.messaging != nil {
		if err := h.messaging.Ping(); err != nil {
			health["nats"] = "error"
		} else {
			health["nats"] = "healthy"
		}
	}

	if h.assistant != nil {
		ctx, cancel := httputil.WithOperationContext(c, httputil.OperationMessaging)
		if err := h.assistant.Ping(ctx); err != nil {
			health["generator"] = "error"
		} else {
			health["generator"] = "healthy"
		}
		cancel()
	}

	httputil.SuccessResponse(c, health)
}

func (h *APIHandlers) getSystemMetrics(c *gin.Context) {
	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	if name := c.Query("name"); name != "" {
		limit := httputil.QueryInt(c, "limit", constants.DefaultQueryLimit, 1, constants.MaxQueryLimit)
		httputil.SuccessResponse(c, h.metrics.GetMetrics(ctx, map[string]string{"name": name}, limit))
		return
	}
	httputil.SuccessResponse(c, h.metrics.GetSystemMetrics(ctx))
}

func (h *APIHandlers) getSystemConnections(c *gin.Context) {
	connections := gin.H{
		"websocket": 0,
		"timestamp": time.Now(),
	}
	if h.hub != nil {
		connections["websocket"] = h.hub.ClientCount()
	}
	httputil.SuccessResponse(c, connections)
}
