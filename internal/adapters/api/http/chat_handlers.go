package http

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/username/deskchat/internal/domain/entities"
	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/domain/services"
	"github.com/username/deskchat/internal/pkg/configutil"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/httputil"
	"github.com/username/deskchat/internal/store"
)

// Conversation handlers

func (h *APIHandlers) listConversations(c *gin.Context) {
	var conversations []store.ConversationSummary
	if q, ok := c.GetQuery("q"); ok {
		conversations = h.chat.SearchConversations(q)
	} else {
		conversations = h.chat.GetAllConversations()
	}
	httputil.SuccessResponseWithMeta(c, conversations, gin.H{"count": len(conversations)})
}

func (h *APIHandlers) createConversation(c *gin.Context) {
	var req struct {
		FirstMessage string `json:"firstMessage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	id, err := h.chat.CreateConversation(ctx, req.FirstMessage)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	httputil.CreatedResponse(c, gin.H{"id": id})
}

// newConversation starts a fresh chat; the conversation itself is created by
// the first message
func (h *APIHandlers) newConversation(c *gin.Context) {
	h.chat.ClearCurrentConversation()
	httputil.SuccessResponse(c, gin.H{"id": "new"})
}

func (h *APIHandlers) getCurrentConversation(c *gin.Context) {
	conv, ok := h.chat.CurrentConversation()
	if !ok {
		httputil.NotFoundError(c, errors.New("no current conversation"))
		return
	}
	httputil.SuccessResponse(c, conv)
}

func (h *APIHandlers) loadConversation(c *gin.Context) {
	id, err := httputil.PathParam(c, "id")
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	conv, ok := h.chat.LoadConversation(id)
	if !ok {
		httputil.NotFoundError(c, errors.New(constants.ErrMsgConversationNotFound))
		return
	}
	httputil.SuccessResponse(c, conv)
}

func (h *APIHandlers) renameConversation(c *gin.Context) {
	id, err := httputil.PathParam(c, "id")
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	found, err := h.chat.RenameConversation(ctx, id, req.Title)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	if !found {
		httputil.NotFoundError(c, errors.New(constants.ErrMsgConversationNotFound))
		return
	}
	httputil.SuccessResponse(c, gin.H{"id": id, "title": req.Title})
}

func (h *APIHandlers) deleteConversation(c *gin.Context) {
	id, err := httputil.PathParam(c, "id")
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	found, err := h.chat.DeleteConversation(ctx, id)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	if !found {
		httputil.NotFoundError(c, errors.New(constants.ErrMsgConversationNotFound))
		return
	}

	h.journalEvent(c, ports.EventConversationDeleted, map[string]any{"conversation_id": id})
	httputil.SuccessResponse(c, gin.H{"message": constants.MsgConversationDeleted})
}

func exportContentType(format string) string {
	switch format {
	case constants.ExportFormatText:
		return constants.ContentTypeText
	case constants.ExportFormatMarkdown:
		return constants.ContentTypeMarkdown
	default:
		return constants.ContentTypeJSON
	}
}

func (h *APIHandlers) exportConversation(c *gin.Context) {
	id, err := httputil.PathParam(c, "id")
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	format, err := httputil.QueryOneOf(c, "format", constants.ExportFormatJSON, constants.ExportFormats)
	if err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	content, err := h.chat.ExportConversation(id, format)
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		httputil.NotFoundError(c, err)
		return
	case err != nil:
		httputil.FailureResponse(c, err)
		return
	}

	h.journalEvent(c, ports.EventDataExported, map[string]any{"conversation_id": id, "format": format})
	httputil.DownloadResponse(c, fmt.Sprintf("conversation-%s.%s", id, format), exportContentType(format), []byte(content))
}

// Message handlers

func (h *APIHandlers) addMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
		Role    string `json:"role" binding:"required"`
		Model   string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	role, ok := entities.ParseRole(req.Role)
	if !ok {
		httputil.FailureResponse(c, configutil.ValidationError{Field: "role", Message: "must be user or assistant"})
		return
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	id, err := h.chat.AddMessage(ctx, req.Content, role, req.Model)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	if id == constants.IncognitoMessageID {
		h.metrics.RecordIncognitoMessage()
	} else {
		h.metrics.RecordMessage(string(role))
	}
	httputil.CreatedResponse(c, gin.H{"id": id, "incognito": id == constants.IncognitoMessageID})
}

func (h *APIHandlers) getAPIHistory(c *gin.Context) {
	httputil.SuccessResponse(c, h.chat.GetAPIHistory())
}

type chatRequest struct {
	Prompt string `json:"prompt"`
	Image  *struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"` // base64, optionally a data URL
	} `json:"image"`
}

// decodeImage accepts raw base64 or a data:<mime>;base64, URL
func decodeImage(mimeType, data string) (*ports.Image, error) {
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, errors.New("malformed data URL")
		}
		if mimeType == "" {
			mimeType, _, _ = strings.Cut(header, ";")
		}
		data = payload
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &ports.Image{MIMEType: mimeType, Data: raw}, nil
}

func (h *APIHandlers) sendChat(c *gin.Context) {
	if h.assistant == nil {
		httputil.ServiceUnavailableError(c, errors.New("generator not configured"))
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}

	send := services.SendRequest{Prompt: req.Prompt}
	if req.Image != nil && req.Image.Data != "" {
		img, err := decodeImage(req.Image.MIMEType, req.Image.Data)
		if err != nil {
			httputil.BadRequestError(c, err)
			return
		}
		send.Image = img
	}

	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationGeneration)
	defer cancel()

	result, err := h.assistant.Send(ctx, send)
	switch {
	case errors.Is(err, ports.ErrMissingAPIKey):
		httputil.BadRequestError(c, err)
	case errors.Is(err, services.ErrGeneration):
		// The error reply is already in the conversation
		c.JSON(http.StatusBadGateway, httputil.StandardResponse{Success: false, Data: result, Error: err.Error()})
	case err != nil:
		httputil.FailureResponse(c, err)
	default:
		httputil.SuccessResponse(c, result)
	}
}

func (h *APIHandlers) setProcessing(c *gin.Context) {
	var req struct {
		Processing *bool `json:"processing" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequestError(c, err)
		return
	}
	h.chat.SetProcessing(*req.Processing)
	if h.ui != nil {
		h.ui.SetProcessing(*req.Processing)
	}
	httputil.SuccessResponse(c, gin.H{"processing": *req.Processing})
}

// Data management handlers

func (h *APIHandlers) runCleanup(c *gin.Context) {
	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	result, err := h.cleanup.RunCleanup(ctx, services.TriggerManual)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}
	httputil.SuccessResponse(c, result)
}

func (h *APIHandlers) clearAllData(c *gin.Context) {
	ctx, cancel := httputil.WithOperationContext(c, httputil.OperationStore)
	defer cancel()

	removed := len(h.chat.GetState().Conversations)
	if err := h.chat.ClearAllData(ctx); err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	h.journalEvent(c, ports.EventDataCleared, map[string]any{"conversations": removed})
	httputil.SuccessResponse(c, gin.H{"message": constants.MsgDataCleared})
}

func (h *APIHandlers) getStorageInfo(c *gin.Context) {
	httputil.SuccessResponse(c, h.chat.GetStorageInfo())
}

func (h *APIHandlers) getStats(c *gin.Context) {
	httputil.SuccessResponse(c, h.chat.GetStats())
}

func (h *APIHandlers) exportAllData(c *gin.Context) {
	content, err := h.chat.ExportAllData()
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	h.journalEvent(c, ports.EventDataExported, map[string]any{"scope": "all"})
	httputil.DownloadResponse(c, "deskchat-export.json", constants.ContentTypeJSON, []byte(content))
}
