package ports

import (
	"context"
	"errors"

	"github.com/username/deskchat/internal/domain/entities"
)

// ErrMissingAPIKey is returned when no API key is available for generation
var ErrMissingAPIKey = errors.New("API key not configured")

// GeneratorPort is the language-model client used by the assistant service
type GeneratorPort interface {
	// Generate produces a reply for prompt given the prior history
	Generate(ctx context.Context, request *GenerateRequest) (*GenerateResponse, error)

	// Health check
	Ping(ctx context.Context) error
}

// Image is an optional inline image sent with a prompt
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// GenerateRequest represents a request to generate a reply
type GenerateRequest struct {
	Prompt            string          `json:"prompt"`
	Image             *Image          `json:"image,omitempty"`
	History           []entities.Turn `json:"history"`
	SystemInstruction string          `json:"system_instruction,omitempty"`
	Model             string          `json:"model"`
	APIKey            string          `json:"-"`
	MaxTokens         int             `json:"max_tokens,omitempty"`
	Temperature       float64         `json:"temperature,omitempty"`
}

// GenerateResponse represents the generated reply
type GenerateResponse struct {
	Text         string      `json:"text"`
	Model        string      `json:"model"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage represents token usage statistics
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
