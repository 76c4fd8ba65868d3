package perplexity

import (
	"context"
	"fmt"
	"strings"

	"agent-relay/internal/models"
	"agent-relay/internal/provider"
)

const (
	// DefaultModel is used for every request that does not ask for DeepResearchModel.
	DefaultModel = "llama-3.1-sonar-small-128k-online"
	// DeepResearchModel is the only caller-selected model passed through unchanged.
	DeepResearchModel = "sonar-deep-research"
	// HugeModel serves requests with the deep-research capability.
	HugeModel = "llama-3.1-sonar-huge-128k-online"

	// NoResponseText replaces an empty first choice.
	NoResponseText = "No response generated"

	keyPrefix     = "pplx-"
	defaultDomain = "perplexity.ai"

	recencyWeek  = "week"
	recencyMonth = "month"

	deepResearchInstruction = "\n\nConduct deep research: consult multiple authoritative sources, " +
		"cross-check facts, present differing perspectives and cite where each finding comes from."
)

// Provider relays chats to Perplexity's chat/completions endpoint.
type Provider struct {
	endpoint provider.Endpoint
}

// New creates a Perplexity adapter posting to endpoint.
func New(endpoint provider.Endpoint) *Provider {
	return &Provider{endpoint: endpoint}
}

func (p *Provider) ID() models.ProviderID {
	return models.ProviderPerplexity
}

// CheckCredential enforces the pplx- prefix unless the call is a connectivity probe.
func (p *Provider) CheckCredential(apiKey string, testMode bool) error {
	if testMode || strings.HasPrefix(apiKey, keyPrefix) {
		return nil
	}
	return fmt.Errorf("%w: Perplexity API key must start with %q", provider.ErrInvalidCredentialFormat, keyPrefix)
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
	Model                  string                 `json:"model"`
	Messages               []provider.ChatMessage `json:"messages"`
	MaxTokens              int                    `json:"max_tokens"`
	Temperature            float64                `json:"temperature"`
	TopP                   float64                `json:"top_p"`
	ReturnImages           bool                   `json:"return_images"`
	ReturnRelatedQuestions bool                   `json:"return_related_questions"`
	SearchDomainFilter     []string               `json:"search_domain_filter"`
	SearchRecencyFilter    string                 `json:"search_recency_filter"`
	FrequencyPenalty       float64                `json:"frequency_penalty"`
	PresencePenalty        float64                `json:"presence_penalty"`
	Stream                 bool                   `json:"stream,omitempty"`
}

func buildPayload(req models.ChatRequest, stream bool) chatPayload {
	model := DefaultModel
	if req.Model == DeepResearchModel {
		model = req.Model
	}

	payload := chatPayload{
		Model:            model,
		Messages:         provider.ToChatMessages(req.WithSystemPrompt()),
		MaxTokens:        4000,
		Temperature:      0.2,
		TopP:             0.9,
		FrequencyPenalty: 1,
		PresencePenalty:  0,
		Stream:           stream,
	}

	if req.Capabilities.WebSearch {
		payload.SearchDomainFilter = []string{}
		payload.SearchRecencyFilter = recencyWeek
		payload.ReturnRelatedQuestions = true
	} else {
		payload.SearchDomainFilter = []string{defaultDomain}
		payload.SearchRecencyFilter = recencyMonth
	}

	if req.Capabilities.DeepResearch {
		payload.Model = HugeModel
		payload.MaxTokens = 6000
		payload.SearchRecencyFilter = recencyWeek
		payload.ReturnRelatedQuestions = true
		payload.Temperature = 0.1
		payload.Messages = withDeepResearchInstruction(payload.Messages)
	}

	return payload
}

// withDeepResearchInstruction appends the research instruction to the
// leading system message, adding one when the conversation has none.
// msgs is owned by the caller of buildPayload and is safe to rewrite.
func withDeepResearchInstruction(msgs []provider.ChatMessage) []provider.ChatMessage {
	if len(msgs) > 0 && msgs[0].Role == models.RoleSystem {
		msgs[0].Content += deepResearchInstruction
		return msgs
	}
	system := provider.ChatMessage{
		Role:    models.RoleSystem,
		Content: strings.TrimPrefix(deepResearchInstruction, "\n\n"),
	}
	return append([]provider.ChatMessage{system}, msgs...)
}
