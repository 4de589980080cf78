package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCompendiumEntry_DefaultsAndTagCap(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	p, _ := s.CreateProject(ctx, "P")

	tags := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	e, err := s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Title: "Alice", Body: "A courier.", Tags: tags})
	require.NoError(t, err)
	assert.Equal(t, DefaultCompendiumCategory, e.Category)
	assert.Len(t, e.Tags, 10)

	got, err := s.CompendiumEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, tags[:10], got.Tags)
}

func TestCompendiumEntryByTitle_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	p, _ := s.CreateProject(ctx, "P")
	e, _ := s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Title: "Alice"})

	got, err := s.CompendiumEntryByTitle(ctx, p.ID, " alice ")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = s.CompendiumEntryByTitle(ctx, p.ID, "Bob")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCompendiumByCategoryAndDelete(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	p, _ := s.CreateProject(ctx, "P")
	_, _ = s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Category: "character", Title: "Alice"})
	place, _ := s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Category: "place", Title: "Harbor"})

	places, err := s.CompendiumByCategory(ctx, p.ID, "place")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Harbor", places[0].Title)

	require.NoError(t, s.DeleteCompendiumEntry(ctx, place.ID))
	err = s.DeleteCompendiumEntry(ctx, place.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSearchCompendium(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	p, _ := s.CreateProject(ctx, "P")
	_, _ = s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Title: "Alice", Body: "Carries letters."})
	_, _ = s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Title: "Harbor", Tags: []string{"coast"}})

	got, err := s.SearchCompendium(ctx, p.ID, "LETTERS", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Title)

	got, err = s.SearchCompendium(ctx, p.ID, "coast", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Harbor", got[0].Title)

	got, err = s.SearchCompendium(ctx, p.ID, "", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCompendiumSummaries(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	p, _ := s.CreateProject(ctx, "P")
	short, _ := s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Title: "Short", Body: "Tiny body."})
	long, _ := s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Title: "Long", Body: strings.Repeat("x", 400)})
	summarized, _ := s.CreateCompendiumEntry(ctx, p.ID, NewCompendiumEntry{Title: "Sum", Body: "body"})
	summarized.Summary = "A proper summary line."
	require.NoError(t, s.PutCompendiumEntry(ctx, *summarized))

	got, err := s.CompendiumSummaries(ctx, []string{short.ID, long.ID, summarized.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, "Tiny body.", got[short.ID])
	assert.Equal(t, strings.Repeat("x", 300)+"…", got[long.ID])
	assert.Equal(t, "A proper summary line.", got[summarized.ID])
	assert.NotContains(t, got, "missing")
}
