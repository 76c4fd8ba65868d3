package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"agent-relay/internal/models"
	"agent-relay/internal/provider"
)

const (
	defaultModel = "gpt-4o-mini"

	newGenerationMaxOutputTokens = 4000
	classicMaxTokens             = 1000
	classicTemperature           = 0.7

	// ExtractionFailedText replaces a reply whose text could not be located.
	ExtractionFailedText = "Response received but content could not be extracted."

	deepResearchInstruction = "Please provide a comprehensive, well-researched answer. " +
		"Consult multiple sources, compare different perspectives, and structure the analysis " +
		"with clear sections and a short summary of the key findings."
)

var streamTrailer = []byte("data: [DONE]\n\n")

// Provider relays chats to the OpenAI responses endpoint.
type Provider struct {
	endpoint provider.Endpoint
}

// New creates an OpenAI adapter posting to endpoint.
func New(endpoint provider.Endpoint) *Provider {
	return &Provider{endpoint: endpoint}
}

func (p *Provider) ID() models.ProviderID {
	return models.ProviderOpenAI
}

func (p *Provider) CheckCredential(apiKey string, testMode bool) error {
	return nil
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest, apiKey string) (*models.Completion, error) {
	payload := buildPayload(req, false)

	var resp responsesResponse
	if err := p.endpoint.PostJSON(ctx, apiKey, payload, &resp); err != nil {
		return nil, err
	}
	completion := resp.toCompletion()
	completion.Model = payload.Model
	return completion, nil
}

func (p *Provider) Stream(ctx context.Context, req models.ChatRequest, apiKey string) (*models.Stream, error) {
	body, err := p.endpoint.OpenStream(ctx, apiKey, buildPayload(req, true))
	if err != nil {
		return nil, err
	}
	framer := &chunkFramer{}
	return &models.Stream{
		Body:    body,
		Frame:   framer.Frame,
		Flush:   framer.Flush,
		Trailer: streamTrailer,
	}, nil
}

type tool struct {
	Type string `json:"type"`
}

type responsesPayload struct {
	Model           string   `json:"model"`
	Input           string   `json:"input"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	Tools           []tool   `json:"tools,omitempty"`
	Stream          bool     `json:"stream,omitempty"`
}

func buildPayload(req models.ChatRequest, stream bool) responsesPayload {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	payload := responsesPayload{
		Model:  model,
		Input:  buildInput(req),
		Stream: stream,
	}

	if isNewGeneration(model) {
		v := newGenerationMaxOutputTokens
		payload.MaxOutputTokens = &v
	} else {
		maxTokens, temperature := classicMaxTokens, classicTemperature
		payload.MaxTokens = &maxTokens
		payload.Temperature = &temperature
	}

	if req.Capabilities.WebSearch {
		payload.Tools = []tool{{Type: "web_search"}}
	}

	return payload
}

// buildInput flattens the conversation into the single text blob the
// responses endpoint takes.
func buildInput(req models.ChatRequest) string {
	var b strings.Builder
	if req.AgentPrompt != "" {
		fmt.Fprintf(&b, "System: %s\n\n", req.AgentPrompt)
	}
	for _, msg := range req.Messages {
		speaker := "User"
		if msg.Role == models.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n\n", speaker, msg.Content)
	}
	if req.Capabilities.DeepResearch {
		b.WriteString(deepResearchInstruction)
	}
	return b.String()
}

// isNewGeneration reports models that reject classic sampling parameters.
func isNewGeneration(model string) bool {
	for _, prefix := range []string{"gpt-5", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return strings.Contains(model, "gpt-4.1")
}

type responsesResponse struct {
	Output []outputItem `json:"output"`
}

type outputItem struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Content []outputContent `json:"content"`
}

type outputContent struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	Annotations []annotation `json:"annotations"`
}

type annotation struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (r responsesResponse) toCompletion() *models.Completion {
	var (
		text    strings.Builder
		results []models.WebSearchResult
	)

	for _, item := range r.Output {
		switch item.Type {
		case "web_search_call":
			results = append(results, models.WebSearchResult{ID: item.ID, Status: item.Status})
		case "message":
			for _, c := range item.Content {
				if c.Type == "output_text" {
					text.WriteString(c.Text)
				}
				for _, a := range c.Annotations {
					results = append(results, models.WebSearchResult{Title: a.Title, URL: a.URL, Type: a.Type})
				}
			}
		}
	}

	out := text.String()
	if out == "" {
		out = ExtractionFailedText
	}
	return &models.Completion{Text: out, WebSearchResults: results}
}

// frameChunk wraps a raw upstream chunk as `data: {"responses": "<chunk>"}`.
func frameChunk(chunk []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("data: ")

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(struct {
		Responses string `json:"responses"`
	}{Responses: string(chunk)}); err != nil {
		return nil, fmt.Errorf("encode stream chunk: %w", err)
	}

	// Encode terminated the object with one newline already.
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// chunkFramer frames one stream. Upstream reads may end inside a multi-byte
// character; that partial sequence is held until the next read completes it.
type chunkFramer struct {
	pending []byte
}

// Frame returns nil when the whole chunk is held back.
func (f *chunkFramer) Frame(chunk []byte) ([]byte, error) {
	data := append(f.pending, chunk...)
	cut := completePrefix(data)
	f.pending = append([]byte(nil), data[cut:]...)
	if cut == 0 {
		return nil, nil
	}
	return frameChunk(data[:cut])
}

// Flush frames any held-back bytes, which at end of stream can only be a
// truncated character.
func (f *chunkFramer) Flush() ([]byte, error) {
	if len(f.pending) == 0 {
		return nil, nil
	}
	rest := f.pending
	f.pending = nil
	return frameChunk(rest)
}

// completePrefix returns the length of data without a trailing incomplete
// UTF-8 sequence.
func completePrefix(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				return i
			}
			break
		}
	}
	return len(data)
}
