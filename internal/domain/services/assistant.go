package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/username/deskchat/internal/domain/entities"
	"github.com/username/deskchat/internal/domain/metrics"
	"github.com/username/deskchat/internal/domain/ports"
	"github.com/username/deskchat/internal/pkg/configutil"
	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/internal/store"
)

// ErrGeneration wraps every failed model call. The failure text is also
// recorded in the conversation as an assistant message.
var ErrGeneration = errors.New(constants.ErrMsgGenerationFailed)

// ProcessingFlag is implemented by stores that surface an in-flight generation
type ProcessingFlag interface {
	SetProcessing(processing bool)
}

// AssistantConfig holds the assistant service settings taken from process config
type AssistantConfig struct {
	FallbackAPIKey    string
	DefaultModel      string
	SystemInstruction string
	Timeout           time.Duration
}

// AssistantService records a user prompt, asks the generator for a reply and
// records the reply (or the failure) in the chat store
type AssistantService struct {
	generator ports.GeneratorPort
	chat      *store.ChatStore
	settings  *store.ConfigStore
	flags     []ProcessingFlag
	metrics   *metrics.Collector
	config    AssistantConfig
	logger    *logutil.FieldLogger
}

// NewAssistantService creates a new assistant service. The chat store's
// processing flag is always bracketed; extra flags (the UI store) are optional.
func NewAssistantService(
	generator ports.GeneratorPort,
	chat *store.ChatStore,
	settings *store.ConfigStore,
	collector *metrics.Collector,
	config AssistantConfig,
	logger *logutil.Logger,
	flags ...ProcessingFlag,
) *AssistantService {
	if config.DefaultModel == "" {
		config.DefaultModel = constants.DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = constants.GenerationTimeout
	}
	if logger == nil {
		logger = logutil.Global()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}

	return &AssistantService{
		generator: generator,
		chat:      chat,
		settings:  settings,
		flags:     append([]ProcessingFlag{chat}, flags...),
		metrics:   collector,
		config:    config,
		logger:    logger.WithFields(logutil.Fields{"service": "assistant"}),
	}
}

// SendRequest is a prompt from the user with an optional image
type SendRequest struct {
	Prompt string       `json:"prompt"`
	Image  *ports.Image `json:"image,omitempty"`
}

// SendResult describes the recorded exchange
type SendResult struct {
	ConversationID string `json:"conversationId,omitempty"`
	UserMessageID  string `json:"userMessageId"`
	ReplyMessageID string `json:"replyMessageId"`
	Reply          string `json:"reply"`
	Model          string `json:"model"`
	Incognito      bool   `json:"incognito"`
}

func (a *AssistantService) setProcessing(processing bool) {
	for _, f := range a.flags {
		f.SetProcessing(processing)
	}
}

// apiKey prefers the user's stored key (or its env fallback) over the
// process-level key
func (a *AssistantService) apiKey() string {
	if key := a.settings.GetAPIKey(); key != "" {
		return key
	}
	return a.config.FallbackAPIKey
}

// Send runs one prompt through the generator. Store save failures are logged
// and do not stop the exchange; in-memory state already holds the messages.
func (a *AssistantService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" && req.Image == nil {
		return nil, configutil.ValidationErrors{{Field: "prompt", Message: "prompt or image is required"}}
	}

	apiKey := a.apiKey()
	if apiKey == "" {
		return nil, ports.ErrMissingAPIKey
	}

	a.setProcessing(true)
	defer a.setProcessing(false)

	cfg := a.settings.GetState()
	model := cfg.SelectedModel
	if model == "" {
		model = a.config.DefaultModel
	}
	a.chat.SetCurrentModel(model)

	// History is captured before the prompt is recorded; the generator
	// appends the prompt itself.
	history := a.chat.GetAPIHistory()

	result := &SendResult{Model: model}
	userID, err := a.record(ctx, prompt, entities.RoleUser, model)
	result.UserMessageID = userID
	result.Incognito = userID == constants.IncognitoMessageID
	if err != nil {
		a.logger.Warn("Failed to persist user message", logutil.Fields{"error": err})
	}

	genCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, genErr := a.generator.Generate(genCtx, &ports.GenerateRequest{
		Prompt:            prompt,
		Image:             req.Image,
		History:           history,
		SystemInstruction: a.config.SystemInstruction,
		Model:             model,
		APIKey:            apiKey,
		MaxTokens:         cfg.ModelConfig.MaxTokens,
		Temperature:       cfg.ModelConfig.Temperature,
	})
	a.metrics.RecordGeneration(time.Since(start), genErr != nil)

	if genErr != nil {
		a.logger.Error("Generation failed", logutil.Fields{"model": model, "error": genErr})
		errorText := fmt.Sprintf("Error: %s", genErr.Error())
		replyID, err := a.record(ctx, errorText, entities.RoleAssistant, model)
		if err != nil {
			a.logger.Warn("Failed to persist error reply", logutil.Fields{"error": err})
		}
		result.ReplyMessageID = replyID
		result.Reply = errorText
		result.ConversationID = a.currentConversationID(result.Incognito)
		return result, fmt.Errorf("%w: %w", ErrGeneration, genErr)
	}

	if resp.Model != "" {
		result.Model = resp.Model
	}
	replyID, err := a.record(ctx, resp.Text, entities.RoleAssistant, model)
	if err != nil {
		a.logger.Warn("Failed to persist assistant reply", logutil.Fields{"error": err})
	}
	result.ReplyMessageID = replyID
	result.Reply = resp.Text
	result.ConversationID = a.currentConversationID(result.Incognito)

	a.logger.Debug("Generation completed", logutil.Fields{
		"model":         result.Model,
		"finish_reason": resp.FinishReason,
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	return result, nil
}

// record adds a message and counts it
func (a *AssistantService) record(ctx context.Context, content string, role entities.MessageRole, model string) (string, error) {
	id, err := a.chat.AddMessage(ctx, content, role, model)
	if id == constants.IncognitoMessageID {
		a.metrics.RecordIncognitoMessage()
	} else if id != "" {
		a.metrics.RecordMessage(string(role))
	}
	return id, err
}

func (a *AssistantService) currentConversationID(incognito bool) string {
	if incognito {
		return ""
	}
	return a.chat.GetState().CurrentConversationID
}

// Ping checks the generator is reachable
func (a *AssistantService) Ping(ctx context.Context) error {
	return a.generator.Ping(ctx)
}
