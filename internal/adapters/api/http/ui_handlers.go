package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/httputil"
	"github.com/username/deskchat/internal/store"
)

// UI preference handlers

func (h *APIHandlers) getUIState(c *gin.Context) {
	httputil.SuccessResponse(c, h.ui.GetState())
}

// uiWrite runs a UI store write and answers with the resulting state
func (h *APIHandlers) uiWrite(c *gin.Context, write func(ctx context.Context) error) {
	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	if err := write(ctx); err != nil {
		httputil.FailureResponse(c, err)
		return
	}
	httputil.SuccessResponse(c, h.ui.GetState())
}

func (h *APIHandlers) setUITheme(c *gin.Context) {
	var req struct {
		Theme string `json:"theme" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.uiWrite(c, func(ctx context.Context) error { return h.ui.SetTheme(ctx, req.Theme) })
}

type presetRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *APIHandlers) setColorPreset(c *gin.Context) {
	var req presetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	found, err := h.ui.SetColorPreset(ctx, req.Name)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	if !found {
		httputil.NotFoundError(c, fmt.Errorf("color preset '%s' not found", req.Name))
		return
	}
	httputil.SuccessResponse(c, h.ui.GetState())
}

func (h *APIHandlers) createColorPreset(c *gin.Context) {
	var req struct {
		presetRequest
		Colors store.Colors `json:"colors"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	if err := h.ui.CreateColorPreset(ctx, req.Name, req.Colors); err != nil {
		httputil.FailureResponse(c, err)
		return
	}
	httputil.CreatedResponse(c, h.ui.GetState())
}

func (h *APIHandlers) deleteColorPreset(c *gin.Context) {
	name, err := httputil.PathParam(c, "name")
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	if _, ok := h.ui.GetState().ColorPresets[name]; !ok {
		httputil.NotFoundError(c, fmt.Errorf("color preset '%s' not found", name))
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	deleted, err := h.ui.DeleteColorPreset(ctx, name)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	if !deleted {
		httputil.BadRequestError(c, fmt.Errorf("built-in preset '%s' cannot be deleted", name))
		return
	}
	httputil.SuccessResponse(c, h.ui.GetState())
}

func (h *APIHandlers) setCustomColors(c *gin.Context) {
	var req store.Colors
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.uiWrite(c, func(ctx context.Context) error { return h.ui.SetCustomColors(ctx, req) })
}

func (h *APIHandlers) setWindowState(c *gin.Context) {
	var req store.WindowStateUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.ui.SetWindowState(req)
	httputil.SuccessResponse(c, h.ui.GetState().WindowState)
}

func (h *APIHandlers) setUIFlags(c *gin.Context) {
	var req struct {
		SettingsOpen *bool `json:"settingsOpen"`
		Minimized    *bool `json:"minimized"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	if req.SettingsOpen != nil {
		h.ui.SetSettingsOpen(*req.SettingsOpen)
	}
	if req.Minimized != nil {
		h.ui.SetMinimized(*req.Minimized)
	}
	st := h.ui.GetState()
	httputil.SuccessResponse(c, gin.H{"isSettingsOpen": st.IsSettingsOpen, "isMinimized": st.IsMinimized})
}

func (h *APIHandlers) setAnimations(c *gin.Context) {
	var req store.AnimationsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.uiWrite(c, func(ctx context.Context) error { return h.ui.SetAnimations(ctx, req) })
}

func (h *APIHandlers) setTransparency(c *gin.Context) {
	var req store.TransparencyUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.uiWrite(c, func(ctx context.Context) error { return h.ui.SetTransparency(ctx, req) })
}

type displayRequest struct {
	FontSize         *int    `json:"fontSize"`
	FontFamily       *string `json:"fontFamily"`
	CompactMode      *bool   `json:"compactMode"`
	ShowTimestamps   *bool   `json:"showTimestamps"`
	ShowMessageCount *bool   `json:"showMessageCount"`
	AutoScroll       *bool   `json:"autoScroll"`
}

func (h *APIHandlers) setDisplay(c *gin.Context) {
	var req displayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	h.uiWrite(c, func(ctx context.Context) error {
		if req.FontSize != nil {
			if err := h.ui.SetFontSize(ctx, *req.FontSize); err != nil {
				return err
			}
		}
		if req.FontFamily != nil {
			if err := h.ui.SetFontFamily(ctx, *req.FontFamily); err != nil {
				return err
			}
		}
		for _, toggle := range []struct {
			value *bool
			set   func(context.Context, bool) error
		}{
			{req.CompactMode, h.ui.SetCompactMode},
			{req.ShowTimestamps, h.ui.SetShowTimestamps},
			{req.ShowMessageCount, h.ui.SetShowMessageCount},
			{req.AutoScroll, h.ui.SetAutoScroll},
		} {
			if toggle.value == nil {
				continue
			}
			if err := toggle.set(ctx, *toggle.value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *APIHandlers) getCSSVariables(c *gin.Context) {
	httputil.SuccessResponse(c, h.ui.CSSVariables())
}

func (h *APIHandlers) exportUIConfig(c *gin.Context) {
	data, err := json.MarshalIndent(h.ui.ExportUIConfig(), "", "  ")
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	httputil.DownloadResponse(c, "ui-preferences.json", constants.ContentTypeJSON, data)
}

func (h *APIHandlers) importUIConfig(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	if !json.Valid(data) {
		httputil.BadRequestError(c, errors.New("imported ui config is not valid JSON"))
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	if err := h.ui.ImportUIConfig(ctx, data); err != nil {
		httputil.FailureResponse(c, err)
		return
	}
	h.journalEvent(c, ports.EventSettingsImported, map[string]any{"store": constants.StoreUI})
	httputil.SuccessResponse(c, h.ui.GetState())
}

func (h *APIHandlers) resetUIConfig(c *gin.Context) {
	h.uiWrite(c, func(ctx context.Context) error { return h.ui.ResetToDefaults(ctx) })
}
