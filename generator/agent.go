package generator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"writingway/models"
)

// HistoryRecorder appends generation attempts to the prompt-history log.
type HistoryRecorder interface {
	AddPromptHistory(ctx context.Context, h models.PromptHistory) (*models.PromptHistory, error)
}

// AgentDeps are the collaborators of an Agent. Only Resolver is required
// besides the streamer; nil Prompts, History and Ready disable prose
// templates, history recording and readiness checks.
type AgentDeps struct {
	Resolver      *ContextResolver
	Prompts       PromptLookup
	History       HistoryRecorder
	Ready         Readiness
	MaxSceneChars int
	Log           *zap.Logger
}

// Agent turns a beat into a prompt and streams the backend's reply.
type Agent struct {
	streamer      Streamer
	resolver      *ContextResolver
	prompts       PromptLookup
	history       HistoryRecorder
	ready         Readiness
	maxSceneChars int
	log           *zap.Logger
}

func NewAgent(streamer Streamer, deps AgentDeps) (*Agent, error) {
	if streamer == nil {
		return nil, errors.New("streamer is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("context resolver is required")
	}
	if deps.Ready == nil {
		deps.Ready = AlwaysReady
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Agent{
		streamer:      streamer,
		resolver:      deps.Resolver,
		prompts:       deps.Prompts,
		history:       deps.History,
		ready:         deps.Ready,
		maxSceneChars: deps.MaxSceneChars,
		log:           deps.Log,
	}, nil
}

// Request is one generation request against a document.
type Request struct {
	Beat     string
	Document string
	Panel    PanelSelection
	Options  Options
}

// Ready reports whether the backend can take a generation.
func (a *Agent) Ready(ctx context.Context) error {
	return a.ready.Ready(ctx)
}

// Prepare resolves context and the prose template, then builds the prompt.
func (a *Agent) Prepare(ctx context.Context, scope Scope, req Request) (Prompt, error) {
	prose := ResolveProsePrompt(ctx, a.prompts, req.Options.ProsePromptID, nil)
	if prose.Source == ProseSourceMissing {
		a.log.Warn("selected prose prompt not found", zap.String("prompt", prose.ID))
	}
	resolved := a.resolver.Resolve(ctx, scope, req.Panel, req.Beat)
	if err := ctx.Err(); err != nil {
		return Prompt{}, err
	}
	return BuildPrompt(req.Beat, req.Document, PromptOptions{
		POVCharacter:      req.Options.POVCharacter,
		POV:               req.Options.POV,
		Tense:             req.Options.Tense,
		ProsePrompt:       prose.Text,
		SystemPrompt:      prose.SystemText,
		CompendiumEntries: resolved.CompendiumEntries,
		SceneSummaries:    resolved.SceneSummaries,
		MaxSceneChars:     a.maxSceneChars,
	}), nil
}

// Record appends the attempt to the history log and returns the entry id.
// A failed write is logged and yields an empty id; it never blocks generation.
func (a *Agent) Record(ctx context.Context, scope Scope, beat string, prompt Prompt) string {
	if a.history == nil {
		return ""
	}
	h, err := a.history.AddPromptHistory(ctx, models.PromptHistory{
		ProjectID: scope.ProjectID,
		SceneID:   scope.SceneID,
		Beat:      beat,
		Prompt:    prompt.User,
	})
	if err != nil {
		a.log.Warn("failed to save prompt history", zap.String("scene", scope.SceneID), zap.Error(err))
		return ""
	}
	return h.ID
}

// Stream starts streaming the backend's reply to prompt.
func (a *Agent) Stream(ctx context.Context, prompt Prompt) (<-chan Token, error) {
	return a.streamer.Stream(ctx, prompt)
}
