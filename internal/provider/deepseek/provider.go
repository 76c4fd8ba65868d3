package deepseek

import (
	"context"

	"agent-relay/internal/models"
	"agent-relay/internal/provider"
)

const (
	defaultModel = "deepseek-chat"

	// NoResponseText replaces an empty first choice.
	NoResponseText = "No response generated"
)

// Provider relays chats to Deepseek's chat/completions endpoint.
type Provider struct {
	endpoint provider.Endpoint
}

// New creates a Deepseek adapter posting to endpoint.
func New(endpoint provider.Endpoint) *Provider {
	return &Provider{endpoint: endpoint}
}

func (p *Provider) ID() models.ProviderID {
	return models.ProviderDeepseek
}

func (p *Provider) CheckCredential(apiKey string, testMode bool) error {
	return nil
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest, apiKey string) (*models.Completion, error) {
	payload := buildPayload(req, false)

	var resp provider.ChatCompletionResponse
	if err := p.endpoint.PostJSON(ctx, apiKey, payload, &resp); err != nil {
		return nil, err
	}
	return &models.Completion{Model: payload.Model, Text: resp.FirstChoiceText(NoResponseText)}, nil
}

func (p *Provider) Stream(ctx context.Context, req models.ChatRequest, apiKey string) (*models.Stream, error) {
	body, err := p.endpoint.OpenStream(ctx, apiKey, buildPayload(req, true))
	if err != nil {
		return nil, err
	}
	return &models.Stream{Body: body}, nil
}

type chatPayload struct {
	Model       string                 `json:"model"`
	Messages    []provider.ChatMessage `json:"messages"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature"`
	Stream      bool                   `json:"stream,omitempty"`
}

func buildPayload(req models.ChatRequest, stream bool) chatPayload {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	return chatPayload{
		Model:       model,
		Messages:    provider.ToChatMessages(req.WithSystemPrompt()),
		MaxTokens:   1000,
		Temperature: 0.7,
		Stream:      stream,
	}
}
