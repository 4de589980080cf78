package generator

import (
	"fmt"
	"strings"

	"writingway/models"
)

// Prompt is the payload sent to the text-generation backend.
type Prompt struct {
	System string
	User   string
}

// PromptOptions carries everything besides the beat and the scene text that
// shapes a prompt.
type PromptOptions struct {
	POVCharacter      string
	POV               string
	Tense             string
	ProsePrompt       string
	SystemPrompt      string
	CompendiumEntries []models.CompendiumEntry
	SceneSummaries    []SceneSummaryRef
	// MaxSceneChars bounds the scene-so-far section to the last N runes of
	// the document. Zero keeps the whole document.
	MaxSceneChars int
}

// BuildPrompt renders the generation prompt. Sections appear in a fixed order
// and empty ones are left out entirely; identical inputs give identical output.
func BuildPrompt(beat, scene string, opts PromptOptions) Prompt {
	var sections []string
	if p := strings.TrimSpace(opts.ProsePrompt); p != "" {
		sections = append(sections, p)
	}
	if beat != "" {
		sections = append(sections, "BEAT TO EXPAND: "+beat)
	}
	if scene != "" {
		sections = append(sections, "SCENE SO FAR:\n"+sceneTail(scene, opts.MaxSceneChars))
	}
	if len(opts.CompendiumEntries) > 0 {
		var sb strings.Builder
		sb.WriteString("COMPENDIUM:")
		for _, e := range opts.CompendiumEntries {
			title := e.Title
			if title == "" {
				title = e.ID
			}
			sb.WriteString(fmt.Sprintf("\n- %s: %s", title, e.Body))
		}
		sections = append(sections, sb.String())
	}
	if len(opts.SceneSummaries) > 0 {
		var sb strings.Builder
		sb.WriteString("SCENE SUMMARIES:")
		for _, s := range opts.SceneSummaries {
			sb.WriteString(fmt.Sprintf("\n- %s: %s", s.Title, s.Summary))
		}
		sections = append(sections, sb.String())
	}
	if d := directives(opts); d != "" {
		sections = append(sections, d)
	}

	user := ""
	if len(sections) > 0 {
		user = strings.Join(sections, "\n\n") + "\n"
	}
	return Prompt{
		System: strings.TrimSpace(opts.SystemPrompt),
		User:   user,
	}
}

func directives(opts PromptOptions) string {
	var lines []string
	if opts.POVCharacter != "" {
		lines = append(lines, "POV character: "+opts.POVCharacter)
	}
	if opts.POV != "" {
		lines = append(lines, "Point of view: "+opts.POV)
	}
	if opts.Tense != "" {
		tense := opts.Tense
		if !strings.HasSuffix(strings.ToLower(tense), "tense") {
			tense += " tense"
		}
		lines = append(lines, "Tense: write in "+tense+".")
	}
	return strings.Join(lines, "\n")
}

// sceneTail keeps the last limit runes of scene, marking the cut with an ellipsis.
func sceneTail(scene string, limit int) string {
	if limit <= 0 {
		return scene
	}
	r := []rune(scene)
	if len(r) <= limit {
		return scene
	}
	return "…" + string(r[len(r)-limit:])
}
