package generator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseChunk(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"test","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`+"\n\n", content)
}

func collect(t *testing.T, ch <-chan Token) (string, error) {
	t.Helper()
	var sb strings.Builder
	for tok := range ch {
		if tok.Err != nil {
			return sb.String(), tok.Err
		}
		sb.WriteString(tok.Text)
	}
	return sb.String(), nil
}

func TestOpenAIStreamer_Stream(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"The ", "rain ", "falls."} {
			_, _ = fmt.Fprint(w, sseChunk(c))
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s, err := NewOpenAIStreamerFromConfig(&LLMSettings{Provider: "local", Model: "test-model", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	s.Opts = append(s.Opts, option.WithHTTPClient(noKeepAlive()), option.WithMaxRetries(0))

	ch, err := s.Stream(context.Background(), Prompt{System: "Be terse.", User: "BEAT TO EXPAND: rain"})
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "The rain falls.", text)
	gotBody := <-bodies
	assert.Contains(t, gotBody, `"model":"test-model"`)
	assert.Contains(t, gotBody, "Be terse.")
}

func TestOpenAIStreamer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewOpenAIStreamerFromConfig(&LLMSettings{Provider: "openai", APIKey: "sk-test", Model: "m", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	s.Opts = append(s.Opts, option.WithHTTPClient(noKeepAlive()), option.WithMaxRetries(0))

	ch, err := s.Stream(context.Background(), Prompt{User: "x"})
	require.NoError(t, err)
	_, err = collect(t, ch)
	assert.Error(t, err)
}

func TestNewOpenAIStreamerFromConfig(t *testing.T) {
	_, err := NewOpenAIStreamerFromConfig(nil)
	assert.Error(t, err)
	_, err = NewOpenAIStreamerFromConfig(&LLMSettings{Provider: "openai", Model: "m"})
	assert.ErrorContains(t, err, "api key missing")
	_, err = NewOpenAIStreamerFromConfig(&LLMSettings{Provider: "lmstudio"})
	assert.ErrorContains(t, err, "model is required")
}

func TestMockLLM_EchoesBeat(t *testing.T) {
	m := &MockLLM{}
	ch, err := m.Stream(context.Background(), BuildPrompt("rain falls", "", PromptOptions{}))
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, " rain falls", text)
	assert.Equal(t, 1, m.Calls())
}
