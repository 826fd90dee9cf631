package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/username/deskchat/internal/domain/entities"
	"github.com/username/deskchat/internal/domain/ports"
)

// ErrMissingAPIKey is returned when neither the request nor the adapter has a key
var ErrMissingAPIKey = ports.ErrMissingAPIKey

// Adapter implements the GeneratorPort interface using OpenAI-compatible APIs.
// Gemini exposes one at DefaultLLMBaseURL.
type Adapter struct {
	baseURL  string
	apiKey   string
	model    string
	provider string

	mu      sync.Mutex
	clients map[string]*openai.Client // by API key
}

var _ ports.GeneratorPort = (*Adapter)(nil)

// NewAdapter creates a new OpenAI-compatible generator adapter. apiKey may be
// empty when every request carries its own key.
func NewAdapter(baseURL, apiKey, model, provider string) (*Adapter, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &Adapter{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		provider: provider,
		clients:  make(map[string]*openai.Client),
	}, nil
}

// client returns a cached client for the key; the user can change the stored
// key at runtime
func (a *Adapter) client(apiKey string) (*openai.Client, error) {
	if apiKey == "" {
		apiKey = a.apiKey
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[apiKey]; ok {
		return c, nil
	}
	config := openai.DefaultConfig(apiKey)
	if a.baseURL != "" {
		config.BaseURL = a.baseURL
	}
	c := openai.NewClientWithConfig(config)
	a.clients[apiKey] = c
	return c, nil
}

// Generate sends the history plus the new prompt and returns the first choice
func (a *Adapter) Generate(ctx context.Context, request *ports.GenerateRequest) (*ports.GenerateResponse, error) {
	client, err := a.client(request.APIKey)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:       a.selectModel(request.Model),
		Messages:    a.convertMessages(request),
		MaxTokens:   request.MaxTokens,
		Temperature: float32(request.Temperature),
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from API")
	}

	choice := resp.Choices[0]
	response := &ports.GenerateResponse{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
	}
	if response.Model == "" {
		response.Model = req.Model
	}
	if resp.Usage.TotalTokens > 0 {
		response.Usage = &ports.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return response, nil
}

// Ping checks connectivity by listing models
func (a *Adapter) Ping(ctx context.Context) error {
	client, err := a.client("")
	if err != nil {
		return err
	}
	if _, err := client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", a.provider, err)
	}
	return nil
}

// convertMessages maps provider turns and the new prompt to OpenAI messages
func (a *Adapter) convertMessages(request *ports.GenerateRequest) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(request.History)+2)
	if request.SystemInstruction != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.SystemInstruction,
		})
	}
	for _, turn := range request.History {
		result = append(result, openai.ChatCompletionMessage{
			Role:    convertRole(turn.Role),
			Content: turn.Text(),
		})
	}

	prompt := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if request.Image == nil {
		prompt.Content = request.Prompt
	} else {
		prompt.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: request.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL(request.Image),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	}
	return append(result, prompt)
}

// convertRole maps provider turn roles to OpenAI roles
func convertRole(role string) string {
	switch role {
	case entities.ProviderModelRole, string(entities.RoleAssistant):
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func dataURL(img *ports.Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// selectModel chooses which model to use for the request
func (a *Adapter) selectModel(requestModel string) string {
	if requestModel != "" {
		return requestModel
	}
	return a.model
}
