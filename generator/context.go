package generator

import (
	"context"

	"go.uber.org/zap"

	"writingway/models"
)

// StoryLookup is the read side of the story store used to resolve context.
type StoryLookup interface {
	CompendiumEntry(ctx context.Context, id string) (models.CompendiumEntry, error)
	CompendiumEntries(ctx context.Context, projectID string) ([]models.CompendiumEntry, error)
	Chapters(ctx context.Context, projectID string) ([]models.Chapter, error)
	Scenes(ctx context.Context, projectID string) ([]models.Scene, error)
	SceneText(ctx context.Context, sceneID string) (string, error)
}

// MentionResolver maps inline @[Title] and #[Title] references in beat text
// to compendium entries and scene summaries.
type MentionResolver interface {
	CompendiumEntriesFromBeat(ctx context.Context, projectID, beat string) ([]models.CompendiumEntry, error)
	SceneSummariesFromBeat(ctx context.Context, projectID, beat string) ([]SceneSummaryRef, error)
}

// ContextResolver gathers and deduplicates compendium entries and scene
// summaries from the context panel and beat mentions.
type ContextResolver struct {
	lookup   StoryLookup
	mentions MentionResolver
	log      *zap.Logger
}

// NewContextResolver returns a resolver. mentions may be nil.
func NewContextResolver(lookup StoryLookup, mentions MentionResolver, log *zap.Logger) *ContextResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContextResolver{lookup: lookup, mentions: mentions, log: log}
}

// resolution carries the dedup state of one Resolve call.
type resolution struct {
	entries   *orderedSet[string, models.CompendiumEntry]
	summaries *orderedSet[string, SceneSummaryRef]
	visited   map[string]bool
}

// Resolve collects context in a fixed order: panel compendium ids, panel
// compendium tags, chapter selections, scene selections, scene tags, then
// beat mentions. Entries are keyed by id and summaries by title; the first
// occurrence wins. A failed lookup is logged and contributes nothing.
func (r *ContextResolver) Resolve(ctx context.Context, scope Scope, panel PanelSelection, beat string) ResolvedContext {
	res := &resolution{
		entries:   newOrderedSet[string, models.CompendiumEntry](),
		summaries: newOrderedSet[string, SceneSummaryRef](),
		visited:   make(map[string]bool),
	}

	r.resolveCompendiumIDs(ctx, res, scope.ProjectID, panel.CompendiumIDs)
	r.resolveCompendiumTags(ctx, res, scope.ProjectID, panel.CompendiumTags)
	if len(panel.Chapters) > 0 || len(panel.Scenes) > 0 || len(panel.Tags) > 0 {
		r.resolveScenes(ctx, res, scope.ProjectID, panel)
	}
	r.resolveMentions(ctx, res, scope.ProjectID, beat)

	out := ResolvedContext{
		CompendiumEntries: res.entries.Values(),
		SceneSummaries:    res.summaries.Values(),
	}
	r.log.Debug("context resolved",
		zap.String("project", scope.ProjectID),
		zap.Int("compendium", len(out.CompendiumEntries)),
		zap.Int("scenes", len(out.SceneSummaries)))
	return out
}

// resolveCompendiumIDs skips entries owned by another project.
func (r *ContextResolver) resolveCompendiumIDs(ctx context.Context, res *resolution, projectID string, ids []string) {
	for _, id := range ids {
		if res.entries.Has(id) {
			continue
		}
		e, err := r.lookup.CompendiumEntry(ctx, id)
		if err != nil {
			r.log.Warn("compendium entry lookup failed", zap.String("id", id), zap.Error(err))
			continue
		}
		if projectID != "" && e.ProjectID != projectID {
			r.log.Warn("compendium entry outside project",
				zap.String("id", id), zap.String("project", projectID), zap.String("owner", e.ProjectID))
			continue
		}
		res.entries.Add(e.ID, e)
	}
}

func (r *ContextResolver) resolveCompendiumTags(ctx context.Context, res *resolution, projectID string, tags []string) {
	if len(tags) == 0 {
		return
	}
	all, err := r.lookup.CompendiumEntries(ctx, projectID)
	if err != nil {
		r.log.Warn("compendium tag scan failed", zap.Strings("tags", tags), zap.Error(err))
		return
	}
	for _, e := range all {
		if !res.entries.Has(e.ID) && e.HasAnyTag(tags) {
			res.entries.Add(e.ID, e)
		}
	}
}

// resolveScenes walks chapters and scenes in story order so that map-valued
// selections resolve deterministically.
func (r *ContextResolver) resolveScenes(ctx context.Context, res *resolution, projectID string, panel PanelSelection) {
	chapters, err := r.lookup.Chapters(ctx, projectID)
	if err != nil {
		r.log.Warn("chapter lookup failed", zap.String("project", projectID), zap.Error(err))
		return
	}
	scenes, err := r.lookup.Scenes(ctx, projectID)
	if err != nil {
		r.log.Warn("scene lookup failed", zap.String("project", projectID), zap.Error(err))
		return
	}

	for _, ch := range chapters {
		mode := panel.Chapters[ch.ID]
		if mode == ModeNone {
			continue
		}
		for _, sc := range scenes {
			if sc.ChapterID != ch.ID || res.visited[sc.ID] {
				continue
			}
			res.visited[sc.ID] = true
			r.addScene(ctx, res, sc, mode)
		}
	}

	for _, sc := range scenes {
		mode := panel.Scenes[sc.ID]
		if mode == ModeNone || res.visited[sc.ID] {
			continue
		}
		if panel.Chapters[sc.ChapterID] != ModeNone {
			r.log.Debug("scene selection overridden by chapter", zap.String("scene", sc.ID))
			continue
		}
		res.visited[sc.ID] = true
		r.addScene(ctx, res, sc, mode)
	}

	for _, tag := range panel.Tags {
		for _, sc := range scenes {
			if res.visited[sc.ID] || !sc.HasTag(tag) {
				continue
			}
			res.visited[sc.ID] = true
			if sc.Summary != "" {
				res.summaries.Add(sc.Title, SceneSummaryRef{Title: sc.Title, Summary: sc.Summary})
			}
		}
	}
}

func (r *ContextResolver) addScene(ctx context.Context, res *resolution, sc models.Scene, mode ContextMode) {
	switch mode {
	case ModeFull:
		text, err := r.lookup.SceneText(ctx, sc.ID)
		if err != nil {
			r.log.Warn("scene content lookup failed", zap.String("scene", sc.ID), zap.Error(err))
			return
		}
		res.summaries.Add(sc.Title, SceneSummaryRef{Title: sc.Title, Summary: text})
	case ModeSummary:
		if sc.Summary != "" {
			res.summaries.Add(sc.Title, SceneSummaryRef{Title: sc.Title, Summary: sc.Summary})
		}
	default:
		r.log.Debug("unknown context mode", zap.String("scene", sc.ID), zap.String("mode", string(mode)))
	}
}

func (r *ContextResolver) resolveMentions(ctx context.Context, res *resolution, projectID, beat string) {
	if r.mentions == nil || beat == "" {
		return
	}
	entries, err := r.mentions.CompendiumEntriesFromBeat(ctx, projectID, beat)
	if err != nil {
		r.log.Warn("compendium mention resolution failed", zap.Error(err))
		entries = nil
	}
	for _, e := range entries {
		res.entries.Add(e.ID, e)
	}
	summaries, err := r.mentions.SceneSummariesFromBeat(ctx, projectID, beat)
	if err != nil {
		r.log.Warn("scene mention resolution failed", zap.Error(err))
		summaries = nil
	}
	for _, s := range summaries {
		res.summaries.Add(s.Title, s)
	}
}
