package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"writingway/models"
)

var scope = Scope{ProjectID: "p1", SceneID: "current"}

func newResolver(story *fakeStory, mentions MentionResolver) *ContextResolver {
	return NewContextResolver(story, mentions, zap.NewNop())
}

func TestResolve_EmptySelection(t *testing.T) {
	r := newResolver(storyFixture(), nil)
	got := r.Resolve(context.Background(), scope, PanelSelection{}, "She opens the door.")
	assert.Empty(t, got.CompendiumEntries)
	assert.Empty(t, got.SceneSummaries)
}

func TestResolve_PanelAndMentionDedup(t *testing.T) {
	story := storyFixture()
	r := newResolver(story, &fakeMentions{story: story})

	panel := PanelSelection{CompendiumIDs: []string{"alice-1", "alice-1"}}
	got := r.Resolve(context.Background(), scope, panel, "Then @[Alice] meets @[Alice] and @[Bob].")

	assert.Equal(t, []string{"alice-1", "bob-1"}, entryIDs(got.CompendiumEntries))
}

func TestResolve_CompendiumOrder(t *testing.T) {
	story := storyFixture()
	r := newResolver(story, &fakeMentions{story: story})

	panel := PanelSelection{
		CompendiumIDs:  []string{"inn-1", "gone-404"},
		CompendiumTags: []string{"harbor", "place"},
	}
	got := r.Resolve(context.Background(), scope, panel, "@[Alice] enters.")

	// ids first, then tag matches not already present, then mentions.
	assert.Equal(t, []string{"inn-1", "bob-1", "alice-1"}, entryIDs(got.CompendiumEntries))
}

func TestResolve_CompendiumIDsStayInProject(t *testing.T) {
	story := storyFixture()
	story.entries = append(story.entries, models.CompendiumEntry{ID: "ghost-1", ProjectID: "p2", Title: "Ghost", Body: "Another novel."})
	r := newResolver(story, nil)

	panel := PanelSelection{CompendiumIDs: []string{"ghost-1", "alice-1"}}
	got := r.Resolve(context.Background(), scope, panel, "")
	assert.Equal(t, []string{"alice-1"}, entryIDs(got.CompendiumEntries))

	got = r.Resolve(context.Background(), Scope{ProjectID: "p2"}, panel, "")
	assert.Equal(t, []string{"ghost-1"}, entryIDs(got.CompendiumEntries))
}

func TestResolve_ChapterPrecedenceOverScene(t *testing.T) {
	story := storyFixture()
	r := newResolver(story, nil)

	panel := PanelSelection{
		Chapters: map[string]ContextMode{"ch1": ModeSummary},
		Scenes:   map[string]ContextMode{"s1": ModeFull},
	}
	got := r.Resolve(context.Background(), scope, panel, "")

	require.Len(t, got.SceneSummaries, 1, "s2 has no summary and is skipped")
	assert.Equal(t, SceneSummaryRef{Title: "Arrival", Summary: "Alice arrives."}, got.SceneSummaries[0])
	assert.Empty(t, story.textCalls, "full text must not be loaded for a scene under a moded chapter")
}

func TestResolve_ChapterFullMode(t *testing.T) {
	story := storyFixture()
	r := newResolver(story, nil)

	got := r.Resolve(context.Background(), scope, PanelSelection{
		Chapters: map[string]ContextMode{"ch1": ModeFull},
	}, "")

	assert.Equal(t, []SceneSummaryRef{
		{Title: "Arrival", Summary: "Full text of arrival."},
		{Title: "Storm", Summary: "Full text of storm."},
	}, got.SceneSummaries)
}

func TestResolve_SceneSelectionsWithoutChapterMode(t *testing.T) {
	story := storyFixture()
	r := newResolver(story, nil)

	got := r.Resolve(context.Background(), scope, PanelSelection{
		Scenes: map[string]ContextMode{"s3": ModeFull, "s1": ModeSummary},
	}, "")

	// Story order, not map order.
	assert.Equal(t, []SceneSummaryRef{
		{Title: "Arrival", Summary: "Alice arrives."},
		{Title: "Harbor", Summary: "Full text of harbor."},
	}, got.SceneSummaries)
}

func TestResolve_SceneTagsUseSummaryOnly(t *testing.T) {
	story := storyFixture()
	r := newResolver(story, nil)

	got := r.Resolve(context.Background(), scope, PanelSelection{Tags: []string{"weather"}}, "")

	assert.Equal(t, []SceneSummaryRef{{Title: "Harbor", Summary: "Bob waits."}}, got.SceneSummaries)
	assert.Empty(t, story.textCalls)
}

func TestResolve_VisitedScenesNotRevisitedByTags(t *testing.T) {
	story := storyFixture()
	r := newResolver(story, nil)

	got := r.Resolve(context.Background(), scope, PanelSelection{
		Scenes: map[string]ContextMode{"s3": ModeFull},
		Tags:   []string{"weather"},
	}, "")

	assert.Equal(t, []SceneSummaryRef{{Title: "Harbor", Summary: "Full text of harbor."}}, got.SceneSummaries)
}

func TestResolve_MissingContentSkipped(t *testing.T) {
	story := storyFixture()
	delete(story.texts, "s1")
	r := newResolver(story, nil)

	got := r.Resolve(context.Background(), scope, PanelSelection{
		Chapters: map[string]ContextMode{"ch1": ModeFull},
	}, "")

	assert.Equal(t, []SceneSummaryRef{{Title: "Storm", Summary: "Full text of storm."}}, got.SceneSummaries)
}

func TestResolve_SceneMentionsMergeByTitle(t *testing.T) {
	story := storyFixture()
	mentions := &fakeMentions{story: story, refs: []SceneSummaryRef{
		{Title: "Arrival", Summary: "mention version"},
		{Title: "Epilogue", Summary: "Years later."},
	}}
	r := newResolver(story, mentions)

	got := r.Resolve(context.Background(), scope, PanelSelection{
		Scenes: map[string]ContextMode{"s1": ModeSummary},
	}, "#[Arrival] #[Epilogue]")

	assert.Equal(t, []SceneSummaryRef{
		{Title: "Arrival", Summary: "Alice arrives."},
		{Title: "Epilogue", Summary: "Years later."},
	}, got.SceneSummaries)
}

func TestResolve_FailuresNeverAbort(t *testing.T) {
	story := storyFixture()
	story.failScenes = true
	r := newResolver(story, &fakeMentions{story: story, err: errors.New("mention index offline")})

	got := r.Resolve(context.Background(), scope, PanelSelection{
		CompendiumIDs: []string{"missing", "alice-1"},
		Chapters:      map[string]ContextMode{"ch1": ModeFull},
	}, "@[Bob]")

	assert.Equal(t, []string{"alice-1"}, entryIDs(got.CompendiumEntries))
	assert.Empty(t, got.SceneSummaries)
}
