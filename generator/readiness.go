package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"writingway/config"
)

// healthTimeout bounds the local server probe.
const healthTimeout = 3 * time.Second

// Readiness reports whether the backend can accept a generation.
type Readiness interface {
	Ready(ctx context.Context) error
}

// ReadyFunc adapts a function to Readiness.
type ReadyFunc func(ctx context.Context) error

func (f ReadyFunc) Ready(ctx context.Context) error { return f(ctx) }

// AlwaysReady is a Readiness that never refuses.
var AlwaysReady = ReadyFunc(func(context.Context) error { return nil })

// BackendCheck decides readiness from the AI configuration. In api mode the
// backend is ready once an API key is configured, or immediately for
// providers that need none. In local mode the server's /health endpoint must
// answer 200 within three seconds.
type BackendCheck struct {
	cfg    config.AIConfig
	client *http.Client
}

func NewBackendCheck(cfg config.AIConfig, client *http.Client) *BackendCheck {
	if client == nil {
		client = &http.Client{Timeout: healthTimeout}
	}
	return &BackendCheck{cfg: cfg, client: client}
}

func (b *BackendCheck) Ready(ctx context.Context) error {
	switch b.cfg.Mode {
	case config.ModeLocal:
		return b.probe(ctx)
	case config.ModeAPI, "":
		if b.cfg.APIKey != "" || keylessProviders[b.cfg.Provider] {
			return nil
		}
		return fmt.Errorf("%w: missing API key for %s", ErrBackendNotReady, b.cfg.Provider)
	default:
		return fmt.Errorf("%w: unknown ai mode %q", ErrBackendNotReady, b.cfg.Mode)
	}
}

func (b *BackendCheck) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	url := strings.TrimRight(b.cfg.Endpoint, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendNotReady, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: local server offline: %v", ErrBackendNotReady, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", ErrBackendNotReady, resp.StatusCode)
	}
	return nil
}
