package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of a generation attempt.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateAwaitingDecision
	StateAccepted
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateAwaitingDecision:
		return "awaiting_decision"
	case StateAccepted:
		return "accepted"
	case StateDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is one generation attempt: the beat, the prompt sent, and the span
// of document text the reply occupies, from SpanStart to the document end.
type Session struct {
	Beat       string `json:"beat"`
	PromptText string `json:"prompt"`
	SystemText string `json:"system,omitempty"`
	SpanStart  int    `json:"span_start"`
	SpanText   string `json:"span_text"`
	State      State  `json:"state"`
	HistoryID  string `json:"history_id,omitempty"`
}

// SaveFunc persists the document text after a generation cycle.
type SaveFunc func(ctx context.Context, scope Scope, text string) error

// ControllerConfig tunes a Controller.
type ControllerConfig struct {
	// HighlightDuration is how long the freshly generated span stays highlighted.
	HighlightDuration time.Duration
	// Save persists the document on completion, accept and discard. Optional.
	Save SaveFunc
	// OnToken observes each appended fragment. It must not call back into
	// the Controller.
	OnToken func(fragment string)
	Log     *zap.Logger
}

// attempt is the live session plus the handles needed to stop it. panel and
// opts are fixed when the attempt opens so Retry repeats the same request.
type attempt struct {
	Session
	panel   PanelSelection
	opts    Options
	cancel  context.CancelFunc
	done    chan struct{}
	aborted bool
}

// Controller owns one document and runs at most one generation attempt on it
// at a time. Retry and Discard cancel an in-flight stream before truncating,
// and every append checks that its attempt is still live, so a late fragment
// never lands in the document after truncation.
type Controller struct {
	agent *Agent
	scope Scope
	cfg   ControllerConfig
	log   *zap.Logger

	mu        sync.Mutex
	text      string
	beat      string
	lastBeat  string
	panel     PanelSelection
	opts      Options
	sess      *attempt
	lastErr   string
	highlight bool
	hlTimer   *time.Timer
}

// NewController opens a controller on a document whose current text is text.
func NewController(agent *Agent, scope Scope, text string, cfg ControllerConfig) (*Controller, error) {
	if agent == nil {
		return nil, errors.New("agent is required")
	}
	if cfg.HighlightDuration <= 0 {
		cfg.HighlightDuration = 5 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		agent: agent,
		scope: scope,
		cfg:   cfg,
		log:   log.With(zap.String("scene", scope.SceneID)),
		text:  text,
	}, nil
}

// Snapshot is a consistent view of the controller.
type Snapshot struct {
	Scope     Scope    `json:"scope"`
	Text      string   `json:"text"`
	Beat      string   `json:"beat"`
	LastBeat  string   `json:"last_beat"`
	State     State    `json:"state"`
	Session   *Session `json:"session,omitempty"`
	Highlight bool     `json:"highlight"`
	LastError string   `json:"last_error,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Scope:     c.scope,
		Text:      c.text,
		Beat:      c.beat,
		LastBeat:  c.lastBeat,
		State:     c.stateLocked(),
		Highlight: c.highlight,
		LastError: c.lastErr,
	}
	if c.sess != nil {
		s := c.sess.Session
		snap.Session = &s
	}
	return snap
}

func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	if c.sess == nil {
		return StateIdle
	}
	return c.sess.State
}

func (c *Controller) Beat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beat
}

// LastBeat is the beat of the most recent attempt. It survives Accept.
func (c *Controller) LastBeat() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBeat
}

// LastError is the user-facing message of the last failed attempt.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Highlighted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highlight
}

func (c *Controller) SetBeat(beat string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beat = beat
}

func (c *Controller) SetPanel(panel PanelSelection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panel = panel
}

func (c *Controller) SetOptions(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
}

// SetText replaces the document text. It fails while an attempt is open.
func (c *Controller) SetText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return ErrSessionActive
	}
	c.text = text
	return nil
}

// Generate starts an attempt from the current beat and blocks until the
// reply has streamed in. On success the attempt awaits Accept, Retry or
// Discard.
func (c *Controller) Generate(ctx context.Context) error {
	return c.generate(ctx, nil)
}

// GenerateWith is Generate for a fresh request: beat, panel and options
// replace the controller's only if no attempt is open. A request refused
// with ErrSessionActive or ErrEmptyBeat leaves the controller untouched.
// req.Document is ignored; the controller owns the text.
func (c *Controller) GenerateWith(ctx context.Context, req Request) error {
	return c.generate(ctx, &req)
}

func (c *Controller) generate(ctx context.Context, req *Request) error {
	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	beat := c.beat
	if req != nil {
		beat = req.Beat
	}
	if strings.TrimSpace(beat) == "" {
		c.mu.Unlock()
		return ErrEmptyBeat
	}
	c.mu.Unlock()

	if err := c.agent.Ready(ctx); err != nil {
		if !errors.Is(err, ErrBackendNotReady) {
			err = fmt.Errorf("%w: %v", ErrBackendNotReady, err)
		}
		c.mu.Lock()
		if c.sess == nil {
			c.applyLocked(req)
		}
		c.lastErr = "AI backend is not ready: " + err.Error()
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.applyLocked(req)
	a, actx := c.begin(ctx, c.beat, c.panel, c.opts)
	c.mu.Unlock()
	return c.run(actx, a)
}

// applyLocked copies a request's beat, panel and options into the controller.
func (c *Controller) applyLocked(req *Request) {
	if req == nil {
		return
	}
	c.beat = req.Beat
	c.panel = req.Panel
	c.opts = req.Options
}

// Accept keeps the generated span and closes the attempt.
func (c *Controller) Accept(ctx context.Context) error {
	c.mu.Lock()
	a := c.sess
	if a == nil || a.State != StateAwaitingDecision {
		c.mu.Unlock()
		return ErrNoDecision
	}
	a.State = StateAccepted
	c.sess = nil
	text := c.text
	c.mu.Unlock()

	c.log.Info("generation accepted", zap.Int("span", len(a.SpanText)))
	if err := c.save(ctx, text); err != nil {
		return fmt.Errorf("generator: save after accept: %w", err)
	}
	return nil
}

// Discard removes the generated span, clears the beat and saves the restored
// document. An in-flight stream is cancelled first.
func (c *Controller) Discard(ctx context.Context) error {
	c.mu.Lock()
	a := c.sess
	if a == nil {
		c.mu.Unlock()
		return ErrNoDecision
	}
	c.abortLocked(a, StateDiscarded)
	c.beat = ""
	text := c.text
	c.mu.Unlock()

	c.log.Info("generation discarded")
	wait(ctx, a.done)
	if err := c.save(ctx, text); err != nil {
		return fmt.Errorf("generator: save after discard: %w", err)
	}
	return nil
}

// Retry removes the generated span and generates again from the same beat,
// recording a new history entry. An in-flight stream is cancelled first.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	prev := c.sess
	if prev == nil {
		c.mu.Unlock()
		return ErrNoDecision
	}
	c.abortLocked(prev, StateDiscarded)
	c.beat = prev.Beat
	a, actx := c.begin(ctx, prev.Beat, prev.panel, prev.opts)
	c.mu.Unlock()

	c.log.Info("generation retried")
	wait(ctx, prev.done)
	return c.run(actx, a)
}

// Close cancels any open attempt and stops the highlight timer.
func (c *Controller) Close() {
	c.mu.Lock()
	a := c.sess
	if a != nil {
		c.abortLocked(a, StateDiscarded)
	}
	if c.hlTimer != nil {
		c.hlTimer.Stop()
	}
	c.mu.Unlock()
	if a != nil {
		<-a.done
	}
}

// begin opens a new attempt. The caller holds c.mu.
func (c *Controller) begin(ctx context.Context, beat string, panel PanelSelection, opts Options) (*attempt, context.Context) {
	actx, cancel := context.WithCancel(ctx)
	a := &attempt{
		Session: Session{
			Beat:      beat,
			SpanStart: len(c.text),
			State:     StateGenerating,
		},
		panel:  panel,
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.sess = a
	c.lastBeat = beat
	c.lastErr = ""
	return a, actx
}

// abortLocked cancels a and rolls the document back to its span start.
func (c *Controller) abortLocked(a *attempt, final State) {
	a.aborted = true
	a.cancel()
	if a.SpanStart <= len(c.text) {
		c.text = c.text[:a.SpanStart]
	}
	a.State = final
	if c.sess == a {
		c.sess = nil
	}
	c.highlight = false
}

func (c *Controller) run(ctx context.Context, a *attempt) error {
	defer close(a.done)
	defer a.cancel()

	c.mu.Lock()
	req := Request{Beat: a.Beat, Document: c.text, Panel: a.panel, Options: a.opts}
	c.mu.Unlock()

	prompt, err := c.agent.Prepare(ctx, c.scope, req)
	if err != nil {
		return c.fail(ctx, a, err)
	}

	c.mu.Lock()
	if a.aborted {
		c.mu.Unlock()
		return ErrCancelled
	}
	a.PromptText = prompt.User
	a.SystemText = prompt.System
	c.mu.Unlock()

	historyID := c.agent.Record(ctx, c.scope, a.Beat, prompt)

	tokens, err := c.agent.Stream(ctx, prompt)
	if err != nil {
		return c.fail(ctx, a, fmt.Errorf("%w: %v", ErrStreamFailure, err))
	}

	c.mu.Lock()
	a.HistoryID = historyID
	if !a.aborted {
		c.beat = ""
	}
	c.mu.Unlock()
	c.log.Debug("streaming started", zap.String("history", historyID))

	var streamErr error
	for tok := range tokens {
		if tok.Err != nil {
			streamErr = tok.Err
			break
		}
		c.mu.Lock()
		if a.aborted {
			c.mu.Unlock()
			return ErrCancelled
		}
		c.text += tok.Text
		a.SpanText += tok.Text
		c.mu.Unlock()
		if c.cfg.OnToken != nil {
			c.cfg.OnToken(tok.Text)
		}
	}

	c.mu.Lock()
	if a.aborted {
		c.mu.Unlock()
		return ErrCancelled
	}
	c.mu.Unlock()
	if streamErr == nil {
		streamErr = ctx.Err()
	}
	if streamErr != nil {
		return c.fail(ctx, a, fmt.Errorf("%w: %v", ErrStreamFailure, streamErr))
	}

	c.mu.Lock()
	a.State = StateAwaitingDecision
	c.startHighlightLocked()
	text := c.text
	c.mu.Unlock()

	c.log.Info("generation complete", zap.Int("span", len(a.SpanText)))
	if err := c.save(ctx, text); err != nil {
		c.log.Warn("autosave after generation failed", zap.Error(err))
	}
	return nil
}

// fail closes the attempt after an error. Text streamed before the failure
// stays in the document and is saved; the beat is restored so the author can
// try again.
func (c *Controller) fail(ctx context.Context, a *attempt, err error) error {
	c.mu.Lock()
	if a.aborted {
		c.mu.Unlock()
		return ErrCancelled
	}
	a.State = StateIdle
	if c.sess == a {
		c.sess = nil
	}
	if c.beat == "" {
		c.beat = a.Beat
	}
	c.lastErr = "Failed to generate text. Make sure the AI backend is running. Error: " + err.Error()
	partial := a.SpanText != ""
	text := c.text
	c.mu.Unlock()

	c.log.Error("generation failed", zap.Error(err), zap.Int("streamed", len(a.SpanText)))
	if partial {
		if serr := c.save(context.WithoutCancel(ctx), text); serr != nil {
			c.log.Warn("saving partial generation failed", zap.Error(serr))
		}
	}
	return err
}

func (c *Controller) startHighlightLocked() {
	c.highlight = true
	if c.hlTimer != nil {
		c.hlTimer.Stop()
	}
	c.hlTimer = time.AfterFunc(c.cfg.HighlightDuration, func() {
		c.mu.Lock()
		c.highlight = false
		c.mu.Unlock()
	})
}

func (c *Controller) save(ctx context.Context, text string) error {
	if c.cfg.Save == nil {
		return nil
	}
	return c.cfg.Save(ctx, c.scope, text)
}

// wait blocks until done is closed or ctx ends.
func wait(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
	}
}
