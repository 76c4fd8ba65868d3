package models

import "io"

// ProviderID names an upstream LLM vendor.
type ProviderID string

const (
	ProviderOpenAI     ProviderID = "openai"
	ProviderPerplexity ProviderID = "perplexity"
	ProviderDeepseek   ProviderID = "deepseek"
)

// Providers lists every provider the relay knows how to talk to.
var Providers = []ProviderID{ProviderOpenAI, ProviderPerplexity, ProviderDeepseek}

// DisplayName returns the vendor name used in user-facing messages.
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderPerplexity:
		return "Perplexity"
	case ProviderDeepseek:
		return "Deepseek"
	default:
		return string(p)
	}
}

// Known reports whether p is one of the supported providers.
func (p ProviderID) Known() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversational turn.
type Message struct {
	Role    string
	Content string
}

// Capabilities toggles optional request augmentation.
type Capabilities struct {
	WebSearch    bool
	DeepResearch bool
}

// ChatRequest is the validated, provider-agnostic relay request.
type ChatRequest struct {
	Messages     []Message
	Provider     ProviderID
	Model        string
	AgentPrompt  string
	Capabilities Capabilities
	Stream       bool
	TestMode     bool
}

// WithSystemPrompt returns a fresh message slice with the agent prompt
// prepended as a system message. The receiver's messages are never modified.
func (r ChatRequest) WithSystemPrompt() []Message {
	out := make([]Message, 0, len(r.Messages)+1)
	if r.AgentPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: r.AgentPrompt})
	}
	return append(out, r.Messages...)
}

// WebSearchResult is either a search call status record (ID, Status) or a
// citation annotation (Title, URL, Type).
type WebSearchResult struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Completion is the text an adapter extracted from a buffered upstream response.
type Completion struct {
	// Model is the model id actually sent upstream.
	Model            string
	Text             string
	WebSearchResults []WebSearchResult
}

// FrameFunc re-encodes one raw upstream chunk before it is forwarded.
type FrameFunc func(chunk []byte) ([]byte, error)

// Stream is an upstream response body relayed to the caller as it arrives.
// A nil Frame forwards chunks untouched. A Frame may hold bytes back; Flush
// returns whatever it still holds. Flush and then Trailer are written once
// after the upstream body ends cleanly.
type Stream struct {
	Body    io.ReadCloser
	Frame   FrameFunc
	Flush   func() ([]byte, error)
	Trailer []byte
}
