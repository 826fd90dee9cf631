package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/domain/services"
	"github.com/username/deskchat/internal/pkg/configutil"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/httputil"
	"github.com/username/deskchat/internal/store"
)

// Configuration handlers

type configView struct {
	store.ConfigState
	HasAPIKey bool `json:"hasApiKey"`
}

func (h *APIHandlers) getConfig(c *gin.Context) {
	st := services.RedactState(h.settings.GetState()).(store.ConfigState)
	httputil.SuccessResponse(c, configView{ConfigState: st, HasAPIKey: h.settings.IsConfigValid()})
}

func (h *APIHandlers) getAPIKey(c *gin.Context) {
	httputil.SuccessResponse(c, gin.H{"apiKey": h.settings.GetAPIKey()})
}

// settingsWrite runs a store write with the request's store timeout and maps
// the outcome to a response
func (h *APIHandlers) settingsWrite(c *gin.Context, write func(ctx context.Context) error) {
	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	if err := write(ctx); err != nil {
		httputil.FailureResponse(c, err)
		return
	}
	httputil.SuccessResponse(c, gin.H{"message": constants.MsgSettingsSaved})
}

func (h *APIHandlers) setAPIKey(c *gin.Context) {
	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetAPIKey(ctx, req.APIKey) })
}

func (h *APIHandlers) setConfigTheme(c *gin.Context) {
	var req struct {
		Theme string `json:"theme" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetTheme(ctx, req.Theme) })
}

func (h *APIHandlers) setModelConfig(c *gin.Context) {
	var req struct {
		Model       string   `json:"model"`
		Temperature *float64 `json:"temperature"`
		MaxTokens   *int     `json:"maxTokens"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error {
		return h.settings.SetModelConfig(ctx, req.Model, req.Temperature, req.MaxTokens)
	})
}

func (h *APIHandlers) setWindowSize(c *gin.Context) {
	var req store.WindowSize
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetWindowSize(ctx, req.Width, req.Height) })
}

func (h *APIHandlers) setWindowPosition(c *gin.Context) {
	var req store.WindowPosition
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetWindowPosition(ctx, req.X, req.Y) })
}

func (h *APIHandlers) setShortcuts(c *gin.Context) {
	var req store.ShortcutsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetShortcuts(ctx, req) })
}

func (h *APIHandlers) setAutoHide(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetAutoHide(ctx, *req.Enabled) })
}

func (h *APIHandlers) exportConfig(c *gin.Context) {
	st := h.settings.ExportConfig()
	httputil.SuccessResponse(c, st)
}

func (h *APIHandlers) importConfig(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	if !json.Valid(data) {
		httputil.BadRequestError(c, errors.New("imported config is not valid JSON"))
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	if err := h.settings.ImportConfig(ctx, data); err != nil {
		httputil.FailureResponse(c, err)
		return
	}
	h.journalEvent(c, ports.EventSettingsImported, map[string]any{"store": constants.StoreConfig})
	httputil.SuccessResponse(c, gin.H{"message": constants.MsgSettingsSaved})
}

func (h *APIHandlers) resetConfig(c *gin.Context) {
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.ResetToDefaults(ctx) })
}

// Privacy handlers

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type daysRequest struct {
	Days *int `json:"days" binding:"required"`
}

func (h *APIHandlers) getPrivacySettings(c *gin.Context) {
	httputil.SuccessResponse(c, h.settings.PrivacySettings())
}

func (h *APIHandlers) setIncognitoMode(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetIncognitoMode(ctx, *req.Enabled) })
}

func (h *APIHandlers) setDataRetention(c *gin.Context) {
	var req daysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	if *req.Days < 1 {
		httputil.FailureResponse(c, configutil.ValidationError{Field: "days", Message: "must be at least 1"})
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetDataRetention(ctx, *req.Days) })
}

func (h *APIHandlers) setAutoCleanup(c *gin.Context) {
	var req struct {
		Enabled  *bool  `json:"enabled" binding:"required"`
		Schedule string `json:"schedule"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error {
		return h.settings.SetAutoCleanup(ctx, *req.Enabled, req.Schedule)
	})
}

func (h *APIHandlers) setMaxStorageSize(c *gin.Context) {
	var req struct {
		SizeMB *int `json:"sizeMB" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetMaxStorageSize(ctx, *req.SizeMB) })
}

func (h *APIHandlers) setKeepRecentDays(c *gin.Context) {
	var req daysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.settingsWrite(c, func(ctx context.Context) error { return h.settings.SetKeepRecentDays(ctx, *req.Days) })
}
