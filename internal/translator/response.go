package translator

import (
	"time"

	"agent-relay/internal/models"
)

// EmptyReplyText stands in for a completion that carried no text.
const EmptyReplyText = "No response generated"

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ChatResponse is the normalized reply envelope.
type ChatResponse struct {
	GeneratedText    string                   `json:"generatedText"`
	WebSearchResults []models.WebSearchResult `json:"webSearchResults,omitzero"`
	Metadata         *Metadata                `json:"metadata,omitempty"`
}

// Metadata describes how an OpenAI reply was produced.
type Metadata struct {
	Model        string `json:"model"`
	HasWebSearch bool   `json:"hasWebSearch"`
	Timestamp    string `json:"timestamp"`
}

// FromCompletion wraps an adapter's completion. OpenAI replies carry metadata
// and, when web search was requested, the search results; every other
// provider gets only the generated text.
func FromCompletion(req models.ChatRequest, c *models.Completion, now time.Time) ChatResponse {
	text := c.Text
	if text == "" {
		text = EmptyReplyText
	}

	resp := ChatResponse{GeneratedText: text}
	if req.Provider != models.ProviderOpenAI {
		return resp
	}

	model := c.Model
	if model == "" {
		model = req.Model
	}
	resp.Metadata = &Metadata{
		Model:        model,
		HasWebSearch: req.Capabilities.WebSearch,
		Timestamp:    FormatTimestamp(now),
	}
	if req.Capabilities.WebSearch {
		resp.WebSearchResults = make([]models.WebSearchResult, 0, len(c.WebSearchResults))
		resp.WebSearchResults = append(resp.WebSearchResults, c.WebSearchResults...)
	}
	return resp
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
