package translator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"agent-relay/internal/models"
)

// ErrInvalidRequest marks a request body that failed decoding or validation.
var ErrInvalidRequest = errors.New("invalid request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ChatRequest is the inbound relay payload.
type ChatRequest struct {
	Messages     []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	AgentPrompt  string        `json:"agentPrompt"`
	Capabilities *Capabilities `json:"capabilities"`
	Stream       bool          `json:"stream"`
	TestMode     bool          `json:"testMode"`
}

// ChatMessage is one conversational turn on the wire.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// Capabilities carries the optional feature flags.
type Capabilities struct {
	WebSearch    bool `json:"webSearch"`
	DeepResearch bool `json:"deepResearch"`
}

// ToModel validates the payload and converts it. Provider membership is
// not checked here; dispatch rejects unknown providers.
func (r ChatRequest) ToModel() (models.ChatRequest, error) {
	if err := validate.Struct(r); err != nil {
		return models.ChatRequest{}, fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}

	msgs := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, models.Message{Role: m.Role, Content: m.Content})
	}

	out := models.ChatRequest{
		Messages:    msgs,
		Provider:    models.ProviderID(strings.ToLower(strings.TrimSpace(r.Provider))),
		Model:       strings.TrimSpace(r.Model),
		AgentPrompt: strings.TrimSpace(r.AgentPrompt),
		Stream:      r.Stream,
		TestMode:    r.TestMode,
	}
	if r.Capabilities != nil {
		out.Capabilities = models.Capabilities{
			WebSearch:    r.Capabilities.WebSearch,
			DeepResearch: r.Capabilities.DeepResearch,
		}
	}
	return out, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}

		switch fe.Tag() {
		case "required", "min":
			if fe.Field() == "messages" {
				parts = append(parts, "messages must be a non-empty array")
				continue
			}
			parts = append(parts, field+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
