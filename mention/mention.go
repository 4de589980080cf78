// Package mention resolves inline references in beat text: @[Title] names a
// compendium entry and #[Title] names a scene.
package mention

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"writingway/generator"
	"writingway/models"
	"writingway/store"
)

var (
	compendiumRef = regexp.MustCompile(`@\[([^\]]+)\]`)
	sceneRef      = regexp.MustCompile(`#\[([^\]]+)\]`)
)

// Lookup is the slice of the store the resolver reads.
type Lookup interface {
	CompendiumEntryByTitle(ctx context.Context, projectID, title string) (models.CompendiumEntry, error)
	SceneByTitle(ctx context.Context, projectID, title string) (models.Scene, error)
	SceneText(ctx context.Context, sceneID string) (string, error)
}

// Resolver implements generator.MentionResolver over the story store.
type Resolver struct {
	lookup Lookup
	log    *zap.Logger
}

var _ generator.MentionResolver = (*Resolver)(nil)

func New(lookup Lookup, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{lookup: lookup, log: log}
}

// titles returns the distinct titles referenced by re in text, in order of
// first appearance. Titles compare case-insensitively.
func titles(re *regexp.Regexp, text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		t := strings.TrimSpace(m[1])
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// CompendiumEntriesFromBeat returns the entries named by @[Title] mentions.
// Unknown titles are skipped.
func (r *Resolver) CompendiumEntriesFromBeat(ctx context.Context, projectID, beat string) ([]models.CompendiumEntry, error) {
	var out []models.CompendiumEntry
	for _, t := range titles(compendiumRef, beat) {
		e, err := r.lookup.CompendiumEntryByTitle(ctx, projectID, t)
		if errors.Is(err, store.ErrNotFound) {
			r.log.Debug("unknown compendium mention", zap.String("title", t))
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SceneSummariesFromBeat returns a summary for each scene named by a
// #[Title] mention. A scene without a cached summary contributes its text;
// an empty scene contributes nothing.
func (r *Resolver) SceneSummariesFromBeat(ctx context.Context, projectID, beat string) ([]generator.SceneSummaryRef, error) {
	var out []generator.SceneSummaryRef
	for _, t := range titles(sceneRef, beat) {
		sc, err := r.lookup.SceneByTitle(ctx, projectID, t)
		if errors.Is(err, store.ErrNotFound) {
			r.log.Debug("unknown scene mention", zap.String("title", t))
			continue
		}
		if err != nil {
			return out, err
		}
		summary := sc.Summary
		if summary == "" {
			text, err := r.lookup.SceneText(ctx, sc.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return out, err
			}
			summary = text
		}
		if strings.TrimSpace(summary) == "" {
			continue
		}
		out = append(out, generator.SceneSummaryRef{Title: sc.Title, Summary: summary})
	}
	return out, nil
}
