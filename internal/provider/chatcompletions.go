package provider

import "agent-relay/internal/models"

// Perplexity and Deepseek both speak the classic chat/completions schema.

// ChatMessage is a chat/completions message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the subset of a chat/completions answer the relay reads.
type ChatCompletionResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// ToChatMessages copies relay messages into wire messages.
func ToChatMessages(msgs []models.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// FirstChoiceText returns the first choice's content, or fallback when there is none.
func (r ChatCompletionResponse) FirstChoiceText(fallback string) string {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == "" {
		return fallback
	}
	return r.Choices[0].Message.Content
}
