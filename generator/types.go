package generator

import "writingway/models"

// Scope names the project and scene a call operates on.
type Scope struct {
	ProjectID string `json:"project_id"`
	SceneID   string `json:"scene_id"`
}

// ContextMode selects how much of a scene goes into the prompt.
type ContextMode string

const (
	ModeNone    ContextMode = ""
	ModeFull    ContextMode = "full"
	ModeSummary ContextMode = "summary"
)

// PanelSelection is the author's context panel: the lore and scene references
// to include in the next generation. It is not persisted with the result.
type PanelSelection struct {
	CompendiumIDs  []string               `json:"compendium_ids,omitempty"`
	CompendiumTags []string               `json:"compendium_tags,omitempty"`
	Chapters       map[string]ContextMode `json:"chapters,omitempty"`
	Scenes         map[string]ContextMode `json:"scenes,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
}

// SceneSummaryRef is a titled piece of scene context: a cached summary or,
// in full mode, the scene's live text.
type SceneSummaryRef struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ResolvedContext is the deduplicated context for one generation, in
// resolution order.
type ResolvedContext struct {
	CompendiumEntries []models.CompendiumEntry
	SceneSummaries    []SceneSummaryRef
}

// Options are the author's prose settings for a generation.
type Options struct {
	POVCharacter  string `json:"pov_character,omitempty"`
	POV           string `json:"pov,omitempty"`
	Tense         string `json:"tense,omitempty"`
	ProsePromptID string `json:"prose_prompt_id,omitempty"`
}
