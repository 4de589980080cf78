package generator

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Providers that serve an OpenAI-compatible endpoint without an API key.
var keylessProviders = map[string]bool{
	"lmstudio": true,
	"local":    true,
}

// OpenAIStreamer implements Streamer using the openai-go SDK's streaming chat
// completions. Any OpenAI-compatible server (DeepSeek, LM Studio,
// llama-server) works through BaseURL.
type OpenAIStreamer struct {
	Model   string
	Timeout time.Duration
	Opts    []option.RequestOption
}

func NewOpenAIStreamerFromConfig(cfg *LLMSettings) (*OpenAIStreamer, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" && !keylessProviders[cfg.Provider] {
		return nil, errors.New("openai api key missing; provide ai.api_key")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithAPIKey("no-key"))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIStreamer{Model: cfg.Model, Timeout: cfg.Timeout, Opts: opts}, nil
}

func (o *OpenAIStreamer) Stream(ctx context.Context, prompt Prompt) (<-chan Token, error) {
	client := openai.NewClient(o.Opts...)

	var msgs []openai.ChatCompletionMessageParamUnion
	if prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.System))
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	cancel := context.CancelFunc(func() {})
	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
	}
	stream := client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Model),
		Messages: msgs,
	})

	out := make(chan Token)
	go func() {
		defer close(out)
		defer cancel()
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- Token{Text: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case out <- Token{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}
