package generator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type saveRecorder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *saveRecorder) save(_ context.Context, _ Scope, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.err
}

func (s *saveRecorder) saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type harness struct {
	ctrl  *Controller
	llm   *MockLLM
	hist  *memHistory
	saves *saveRecorder
}

func newHarness(t *testing.T, llm *MockLLM, text string, mutate func(*AgentDeps, *ControllerConfig)) *harness {
	t.Helper()
	story := storyFixture()
	h := &harness{llm: llm, hist: &memHistory{}, saves: &saveRecorder{}}
	deps := AgentDeps{
		Resolver: NewContextResolver(story, &fakeMentions{story: story}, zaptest.NewLogger(t)),
		History:  h.hist,
		Log:      zaptest.NewLogger(t),
	}
	cfg := ControllerConfig{
		HighlightDuration: time.Minute,
		Save:              h.saves.save,
		Log:               zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	agent, err := NewAgent(llm, deps)
	require.NoError(t, err)
	ctrl, err := NewController(agent, scope, text, cfg)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	h.ctrl = ctrl
	return h
}

func TestNewAgent_Validation(t *testing.T) {
	_, err := NewAgent(nil, AgentDeps{Resolver: &ContextResolver{}})
	assert.EqualError(t, err, "streamer is required")
	_, err = NewAgent(&MockLLM{}, AgentDeps{})
	assert.EqualError(t, err, "context resolver is required")
	_, err = NewController(nil, scope, "", ControllerConfig{})
	assert.EqualError(t, err, "agent is required")
}

func TestController_GenerateAndAccept(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" She", " rises", "."}}}
	h := newHarness(t, llm, "Alice sat.", nil)
	ctx := context.Background()

	h.ctrl.SetBeat("She stands.")
	require.NoError(t, h.ctrl.Generate(ctx))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, "Alice sat. She rises.", snap.Text)
	assert.Equal(t, StateAwaitingDecision, snap.State)
	assert.Empty(t, snap.Beat)
	assert.True(t, snap.Highlight)
	require.NotNil(t, snap.Session)
	assert.Equal(t, len("Alice sat."), snap.Session.SpanStart)
	assert.Equal(t, " She rises.", snap.Session.SpanText)
	assert.Equal(t, "h1", snap.Session.HistoryID)

	history := h.hist.all()
	require.Len(t, history, 1)
	assert.Equal(t, "She stands.", history[0].Beat)
	assert.Equal(t, "p1", history[0].ProjectID)
	assert.Equal(t, "current", history[0].SceneID)
	assert.Contains(t, history[0].Prompt, "BEAT TO EXPAND: She stands.")
	assert.Equal(t, []string{"Alice sat. She rises."}, h.saves.saved())

	require.NoError(t, h.ctrl.Accept(ctx))
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, "Alice sat. She rises.", h.ctrl.Text())
	assert.Equal(t, "She stands.", h.ctrl.LastBeat())
	assert.Len(t, h.saves.saved(), 2)
	assert.ErrorIs(t, h.ctrl.Accept(ctx), ErrNoDecision)
}

func TestController_PromptCarriesMentionsAndOptions(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" ok"}}}
	h := newHarness(t, llm, "", nil)

	h.ctrl.SetBeat("@[Alice] waves.")
	h.ctrl.SetOptions(Options{POV: "3rd person limited", Tense: "past"})
	h.ctrl.SetPanel(PanelSelection{Chapters: map[string]ContextMode{"ch2": ModeSummary}})
	require.NoError(t, h.ctrl.Generate(context.Background()))

	prompts := llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].User, "- Alice: A courier.")
	assert.Contains(t, prompts[0].User, "- Harbor: Bob waits.")
	assert.Contains(t, prompts[0].User, "Point of view: 3rd person limited")
	assert.Contains(t, prompts[0].User, "Tense: write in past tense.")
	assert.NotContains(t, prompts[0].User, "SCENE SO FAR")
}

func TestController_StreamFailureKeepsPartialText(t *testing.T) {
	llm := &MockLLM{
		Replies: [][]string{{" The", " rain"}},
		Err:     errors.New("connection reset"),
	}
	h := newHarness(t, llm, "Alice sat.", nil)

	h.ctrl.SetBeat("She stands.")
	err := h.ctrl.Generate(context.Background())
	require.ErrorIs(t, err, ErrStreamFailure)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Equal(t, "Alice sat. The rain", h.ctrl.Text())
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, "She stands.", h.ctrl.Beat())
	assert.Contains(t, h.ctrl.LastError(), "Make sure the AI backend is running")
	assert.Len(t, h.hist.all(), 1)
	assert.Equal(t, []string{"Alice sat. The rain"}, h.saves.saved())
	assert.ErrorIs(t, h.ctrl.Accept(context.Background()), ErrNoDecision)
}

func TestController_StreamStartFailure(t *testing.T) {
	llm := &MockLLM{StartErr: errors.New("dial tcp: refused")}
	h := newHarness(t, llm, "Doc.", nil)

	h.ctrl.SetBeat("beat")
	err := h.ctrl.Generate(context.Background())
	require.ErrorIs(t, err, ErrStreamFailure)
	assert.Equal(t, "Doc.", h.ctrl.Text())
	assert.Equal(t, "beat", h.ctrl.Beat())
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Empty(t, h.saves.saved())
}

func TestController_DiscardRestoresText(t *testing.T) {
	for _, fragments := range [][]string{{}, {" one"}, {" one", " two", " three", " four", " five"}} {
		llm := &MockLLM{Replies: [][]string{fragments}}
		h := newHarness(t, llm, "Original text.", nil)
		ctx := context.Background()

		h.ctrl.SetBeat("beat")
		require.NoError(t, h.ctrl.Generate(ctx))
		require.NoError(t, h.ctrl.Discard(ctx))

		assert.Equal(t, "Original text.", h.ctrl.Text(), "fragments=%d", len(fragments))
		assert.Empty(t, h.ctrl.Beat())
		assert.Equal(t, StateIdle, h.ctrl.State())
		assert.False(t, h.ctrl.Highlighted())
		assert.ErrorIs(t, h.ctrl.Discard(ctx), ErrNoDecision)
	}
}

func TestController_RetryReusesBeat(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" first"}, {" second"}}}
	h := newHarness(t, llm, "Doc.", nil)
	ctx := context.Background()

	h.ctrl.SetBeat("the beat")
	require.NoError(t, h.ctrl.Generate(ctx))
	assert.Equal(t, "Doc. first", h.ctrl.Text())

	require.NoError(t, h.ctrl.Retry(ctx))
	assert.Equal(t, "Doc. second", h.ctrl.Text())
	assert.Equal(t, StateAwaitingDecision, h.ctrl.State())
	assert.Equal(t, "the beat", h.ctrl.LastBeat())

	history := h.hist.all()
	require.Len(t, history, 2)
	assert.Equal(t, "the beat", history[0].Beat)
	assert.Equal(t, "the beat", history[1].Beat)
	assert.Equal(t, 2, llm.Calls())
}

func TestController_SingleSession(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" a", " b", " c", " d"}}, Delay: 50 * time.Millisecond}
	h := newHarness(t, llm, "Doc.", nil)
	ctx := context.Background()

	h.ctrl.SetBeat("beat")
	errCh := make(chan error, 1)
	go func() { errCh <- h.ctrl.Generate(ctx) }()

	require.Eventually(t, func() bool { return h.ctrl.State() == StateGenerating }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.ctrl.Generate(ctx), ErrSessionActive)
	assert.ErrorIs(t, h.ctrl.SetText("other"), ErrSessionActive)
	assert.ErrorIs(t, h.ctrl.Accept(ctx), ErrNoDecision)

	require.NoError(t, h.ctrl.Discard(ctx))
	assert.ErrorIs(t, <-errCh, ErrCancelled)
	assert.Equal(t, "Doc.", h.ctrl.Text())
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestController_RetryCancelsInFlightStream(t *testing.T) {
	llm := &MockLLM{
		Replies: [][]string{{" slow", " slow", " slow", " slow", " slow"}, {" fast"}},
		Delay:   20 * time.Millisecond,
	}
	h := newHarness(t, llm, "Doc.", nil)
	ctx := context.Background()

	h.ctrl.SetBeat("beat")
	errCh := make(chan error, 1)
	go func() { errCh <- h.ctrl.Generate(ctx) }()

	require.Eventually(t, func() bool { return h.ctrl.Text() != "Doc." }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.ctrl.Retry(ctx))
	assert.ErrorIs(t, <-errCh, ErrCancelled)

	assert.Equal(t, "Doc. fast", h.ctrl.Text())
	assert.Equal(t, StateAwaitingDecision, h.ctrl.State())
	assert.Len(t, h.hist.all(), 2)
}

func TestController_EmptyBeat(t *testing.T) {
	llm := &MockLLM{}
	h := newHarness(t, llm, "Doc.", nil)

	h.ctrl.SetBeat("   ")
	assert.ErrorIs(t, h.ctrl.Generate(context.Background()), ErrEmptyBeat)
	assert.Zero(t, llm.Calls())
	assert.Empty(t, h.hist.all())
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestController_BackendNotReady(t *testing.T) {
	llm := &MockLLM{}
	h := newHarness(t, llm, "Doc.", func(deps *AgentDeps, _ *ControllerConfig) {
		deps.Ready = ReadyFunc(func(context.Context) error { return errors.New("offline") })
	})

	h.ctrl.SetBeat("beat")
	err := h.ctrl.Generate(context.Background())
	require.ErrorIs(t, err, ErrBackendNotReady)
	assert.Contains(t, h.ctrl.LastError(), "offline")
	assert.Zero(t, llm.Calls())
	assert.Empty(t, h.hist.all())
	assert.Equal(t, "beat", h.ctrl.Beat())
	assert.Equal(t, "Doc.", h.ctrl.Text())
}

func TestController_HistoryFailureDoesNotBlock(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" ok"}}}
	h := newHarness(t, llm, "Doc.", nil)
	h.hist.err = errors.New("disk full")

	h.ctrl.SetBeat("beat")
	require.NoError(t, h.ctrl.Generate(context.Background()))
	snap := h.ctrl.Snapshot()
	assert.Equal(t, "Doc. ok", snap.Text)
	require.NotNil(t, snap.Session)
	assert.Empty(t, snap.Session.HistoryID)
}

func TestController_HighlightExpires(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" ok"}}}
	h := newHarness(t, llm, "Doc.", func(_ *AgentDeps, cfg *ControllerConfig) {
		cfg.HighlightDuration = 20 * time.Millisecond
	})

	h.ctrl.SetBeat("beat")
	require.NoError(t, h.ctrl.Generate(context.Background()))
	assert.True(t, h.ctrl.Highlighted())
	require.Eventually(t, func() bool { return !h.ctrl.Highlighted() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateAwaitingDecision, h.ctrl.State())
}

func TestController_AcceptSaveFailure(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" ok"}}}
	h := newHarness(t, llm, "Doc.", nil)
	ctx := context.Background()

	h.ctrl.SetBeat("beat")
	require.NoError(t, h.ctrl.Generate(ctx))
	saveErr := errors.New("read-only")
	h.saves.mu.Lock()
	h.saves.err = saveErr
	h.saves.mu.Unlock()

	err := h.ctrl.Accept(ctx)
	require.ErrorIs(t, err, saveErr)
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, "Doc. ok", h.ctrl.Text())
}

func TestController_OnToken(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	llm := &MockLLM{Replies: [][]string{{" x", " y"}}}
	h := newHarness(t, llm, "", func(_ *AgentDeps, cfg *ControllerConfig) {
		cfg.OnToken = func(f string) {
			mu.Lock()
			seen = append(seen, f)
			mu.Unlock()
		}
	})

	h.ctrl.SetBeat("beat")
	require.NoError(t, h.ctrl.Generate(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{" x", " y"}, seen)
}

func TestController_NoDecisionWhenIdle(t *testing.T) {
	h := newHarness(t, &MockLLM{}, "Doc.", nil)
	ctx := context.Background()
	assert.ErrorIs(t, h.ctrl.Accept(ctx), ErrNoDecision)
	assert.ErrorIs(t, h.ctrl.Retry(ctx), ErrNoDecision)
	assert.ErrorIs(t, h.ctrl.Discard(ctx), ErrNoDecision)
	require.NoError(t, h.ctrl.SetText("New."))
	assert.Equal(t, "New.", h.ctrl.Text())
}

func TestStateText(t *testing.T) {
	b, err := StateAwaitingDecision.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "awaiting_decision", string(b))
	assert.Equal(t, "state(9)", State(9).String())
}

func TestController_DiscardSavesRestoredText(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" gone"}}}
	h := newHarness(t, llm, "Doc.", nil)
	ctx := context.Background()

	h.ctrl.SetBeat("beat")
	require.NoError(t, h.ctrl.Generate(ctx))
	require.NoError(t, h.ctrl.Discard(ctx))
	assert.Equal(t, []string{"Doc. gone", "Doc."}, h.saves.saved())
}

func TestController_RefusedRequestLeavesAttemptAlone(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" first"}, {" second"}}}
	h := newHarness(t, llm, "Doc.", nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.GenerateWith(ctx, Request{Beat: "first beat", Options: Options{Tense: "past"}}))

	err := h.ctrl.GenerateWith(ctx, Request{
		Beat:    "@[Alice] other beat",
		Panel:   PanelSelection{Chapters: map[string]ContextMode{"ch2": ModeSummary}},
		Options: Options{Tense: "future"},
	})
	require.ErrorIs(t, err, ErrSessionActive)
	assert.Empty(t, h.ctrl.Beat())
	assert.Equal(t, "first beat", h.ctrl.LastBeat())

	require.NoError(t, h.ctrl.Retry(ctx))
	prompts := llm.Prompts()
	require.Len(t, prompts, 2)
	retried := prompts[1].User
	assert.Contains(t, retried, "BEAT TO EXPAND: first beat")
	assert.Contains(t, retried, "Tense: write in past tense.")
	assert.NotContains(t, retried, "future")
	assert.NotContains(t, retried, "Harbor")
	assert.NotContains(t, retried, "Alice: A courier.")
}

func TestController_GenerateWithEmptyBeatKeepsState(t *testing.T) {
	llm := &MockLLM{}
	h := newHarness(t, llm, "Doc.", nil)

	h.ctrl.SetBeat("kept beat")
	h.ctrl.SetOptions(Options{Tense: "past"})
	err := h.ctrl.GenerateWith(context.Background(), Request{Beat: "  ", Options: Options{Tense: "future"}})
	require.ErrorIs(t, err, ErrEmptyBeat)
	assert.Equal(t, "kept beat", h.ctrl.Beat())
	assert.Zero(t, llm.Calls())
}

func TestController_RetryUsesAttemptPanelAfterSetPanel(t *testing.T) {
	llm := &MockLLM{Replies: [][]string{{" a"}, {" b"}}}
	h := newHarness(t, llm, "", nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.GenerateWith(ctx, Request{
		Beat:  "beat",
		Panel: PanelSelection{Chapters: map[string]ContextMode{"ch2": ModeSummary}},
	}))
	h.ctrl.SetPanel(PanelSelection{})
	require.NoError(t, h.ctrl.Retry(ctx))

	prompts := llm.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1].User, "- Harbor: Bob waits.")
}
