package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-relay/internal/models"
	"agent-relay/internal/provider"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	endpoint, err := provider.NewEndpoint(models.ProviderOpenAI, srv.URL+"/responses", nil, srv.Client(), 5*time.Second)
	require.NoError(t, err)
	return New(endpoint)
}

func payloadMap(t *testing.T, req models.ChatRequest) map[string]any {
	t.Helper()
	data, err := json.Marshal(buildPayload(req, false))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestBuildPayloadNewGenerationModel(t *testing.T) {
	body := payloadMap(t, models.ChatRequest{
		Model:    "gpt-5-mini",
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})

	assert.EqualValues(t, 4000, body["max_output_tokens"])
	assert.NotContains(t, body, "temperature")
	assert.NotContains(t, body, "max_tokens")
}

func TestBuildPayloadClassicModel(t *testing.T) {
	body := payloadMap(t, models.ChatRequest{
		Model:    "gpt-4o-mini",
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})

	assert.EqualValues(t, 1000, body["max_tokens"])
	assert.EqualValues(t, 0.7, body["temperature"])
	assert.NotContains(t, body, "max_output_tokens")
}

func TestIsNewGeneration(t *testing.T) {
	cases := map[string]bool{
		"gpt-5":        true,
		"gpt-5-mini":   true,
		"o3":           true,
		"o4-mini":      true,
		"gpt-4.1":      true,
		"gpt-4.1-nano": true,
		"gpt-4o":       false,
		"gpt-4o-mini":  false,
		"gpt-3.5":      false,
	}
	for model, want := range cases {
		assert.Equal(t, want, isNewGeneration(model), model)
	}
}

func TestBuildInputFlattensConversation(t *testing.T) {
	req := models.ChatRequest{
		AgentPrompt: "Be terse.",
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "Hello"},
			{Role: models.RoleAssistant, Content: "Hi there"},
			{Role: models.RoleUser, Content: "Weather?"},
		},
	}

	assert.Equal(t, "System: Be terse.\n\nUser: Hello\n\nAssistant: Hi there\n\nUser: Weather?\n\n", buildInput(req))
}

func TestBuildPayloadCapabilities(t *testing.T) {
	req := models.ChatRequest{
		Messages:     []models.Message{{Role: models.RoleUser, Content: "news"}},
		Capabilities: models.Capabilities{WebSearch: true, DeepResearch: true},
	}
	payload := buildPayload(req, true)

	assert.Equal(t, defaultModel, payload.Model)
	assert.Equal(t, []tool{{Type: "web_search"}}, payload.Tools)
	assert.True(t, payload.Stream)
	assert.Contains(t, payload.Input, "User: news\n\n")
	assert.Contains(t, payload.Input, deepResearchInstruction)
}

func TestChatExtractsTextAndSearchResults(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output":[
			{"type":"web_search_call","id":"ws_1","status":"completed"},
			{"type":"message","content":[
				{"type":"output_text","text":"hello ","annotations":[{"type":"url_citation","title":"Example","url":"https://example.com"}]},
				{"type":"output_text","text":"world"}
			]}
		]}`)
	})

	completion, err := p.Chat(context.Background(), models.ChatRequest{
		Model:        "gpt-4o",
		Messages:     []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Capabilities: models.Capabilities{WebSearch: true},
	}, "sk-test")
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.Equal(t, "gpt-4o", completion.Model)
	assert.Equal(t, "hello world", completion.Text)
	assert.Equal(t, []models.WebSearchResult{
		{ID: "ws_1", Status: "completed"},
		{Title: "Example", URL: "https://example.com", Type: "url_citation"},
	}, completion.WebSearchResults)
}

func TestChatWithoutTextUsesPlaceholder(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"output":[{"type":"web_search_call","id":"ws_1","status":"completed"}]}`)
	})

	completion, err := p.Chat(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	}, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, ExtractionFailedText, completion.Text)
}

func TestChatUpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	})

	_, err := p.Chat(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	}, "sk-test")

	var upstreamErr *provider.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, models.ProviderOpenAI, upstreamErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, upstreamErr.Status)
	assert.Contains(t, upstreamErr.Body, "slow down")
}

func TestFrameChunk(t *testing.T) {
	frame, err := frameChunk([]byte("A"))
	require.NoError(t, err)
	assert.Equal(t, "data: {\"responses\":\"A\"}\n\n", string(frame))

	frame, err = frameChunk([]byte("event: x\n<b>"))
	require.NoError(t, err)
	assert.Equal(t, "data: {\"responses\":\"event: x\\n<b>\"}\n\n", string(frame))
}

func TestChunkFramerHoldsSplitCharacter(t *testing.T) {
	f := &chunkFramer{}

	word := []byte("héllo")
	frame, err := f.Frame(word[:2])
	require.NoError(t, err)
	assert.Equal(t, "data: {\"responses\":\"h\"}\n\n", string(frame))

	frame, err = f.Frame(word[2:])
	require.NoError(t, err)
	assert.Equal(t, "data: {\"responses\":\"éllo\"}\n\n", string(frame))

	rest, err := f.Flush()
	require.NoError(t, err)
	assert.Nil(t, rest)
}

func TestChunkFramerSplitAcrossSeveralReads(t *testing.T) {
	f := &chunkFramer{}
	emoji := []byte("😀")

	var out strings.Builder
	for i := range emoji {
		frame, err := f.Frame(emoji[i : i+1])
		require.NoError(t, err)
		out.Write(frame)
	}
	assert.Equal(t, "data: {\"responses\":\"😀\"}\n\n", out.String())
}

func TestChunkFramerFlushesTruncatedTail(t *testing.T) {
	f := &chunkFramer{}

	frame, err := f.Frame([]byte("ok\xe2\x82"))
	require.NoError(t, err)
	assert.Equal(t, "data: {\"responses\":\"ok\"}\n\n", string(frame))

	rest, err := f.Flush()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(rest), "data: {\"responses\":"))

	rest, err = f.Flush()
	require.NoError(t, err)
	assert.Nil(t, rest)
}

func TestStreamReturnsFramedBody(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, true, body["stream"])
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "raw")
	})

	stream, err := p.Stream(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	}, "sk-test")
	require.NoError(t, err)
	defer stream.Body.Close()

	raw, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(raw))
	require.NotNil(t, stream.Frame)
	require.NotNil(t, stream.Flush)
	assert.Equal(t, "data: [DONE]\n\n", string(stream.Trailer))
}
