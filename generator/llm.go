package generator

import (
	"context"
	"time"
)

// Token is one streamed fragment. A token with Err set is the last one sent.
type Token struct {
	Text string
	Err  error
}

// Streamer sends a prompt to a text-generation backend and streams the reply.
// The channel yields fragments in arrival order and is closed when the reply
// completes, fails (the final Token carries Err) or ctx is cancelled.
// Cancelling ctx stops delivery and releases the connection.
type Streamer interface {
	Stream(ctx context.Context, prompt Prompt) (<-chan Token, error)
}

// LLMSettings is the backend configuration handed to concrete streamers.
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}
