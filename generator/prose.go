package generator

import (
	"context"

	"writingway/models"
)

// Prose prompt sources.
const (
	ProseSourceDB      = "db"
	ProseSourceMissing = "missing"
	ProseSourceCurrent = "current"
	ProseSourceNone    = "none"
)

// PromptLookup reads prompt templates.
type PromptLookup interface {
	Prompt(ctx context.Context, id string) (models.Prompt, error)
}

// ProsePromptInfo is the prose template chosen for a generation.
type ProsePromptInfo struct {
	ID         string
	Text       string
	SystemText string
	Source     string
}

// ResolveProsePrompt picks the prose template for a generation. A selected
// template id wins; a selected id that no longer resolves to a prose template
// yields no text. Without a selection the template open in the editor is used.
func ResolveProsePrompt(ctx context.Context, lookup PromptLookup, selectedID string, current *models.Prompt) ProsePromptInfo {
	if selectedID != "" {
		if lookup != nil {
			p, err := lookup.Prompt(ctx, selectedID)
			if err == nil && p.Category == models.PromptCategoryProse {
				return ProsePromptInfo{ID: p.ID, Text: p.Content, SystemText: p.SystemContent, Source: ProseSourceDB}
			}
		}
		return ProsePromptInfo{ID: selectedID, Source: ProseSourceMissing}
	}
	if current != nil && current.Content != "" {
		return ProsePromptInfo{ID: current.ID, Text: current.Content, SystemText: current.SystemContent, Source: ProseSourceCurrent}
	}
	return ProsePromptInfo{Source: ProseSourceNone}
}
