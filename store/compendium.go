package store

import (
	"context"
	"fmt"
	"strings"

	"writingway/models"
)

// DefaultCompendiumCategory is used when a new entry names no category.
const DefaultCompendiumCategory = "lore"

// NewCompendiumEntry holds the author-supplied fields of a new entry.
type NewCompendiumEntry struct {
	Category string
	Title    string
	Body     string
	Tags     []string
}

// CreateCompendiumEntry inserts an entry. Tags beyond MaxCompendiumTags are dropped.
func (s *Store) CreateCompendiumEntry(ctx context.Context, projectID string, in NewCompendiumEntry) (*models.CompendiumEntry, error) {
	if projectID == "" {
		return nil, fmt.Errorf("store: projectID is required")
	}
	category := in.Category
	if category == "" {
		category = DefaultCompendiumCategory
	}
	tags := in.Tags
	if len(tags) > models.MaxCompendiumTags {
		tags = tags[:models.MaxCompendiumTags]
	}
	e := models.CompendiumEntry{
		ID:        newID(),
		ProjectID: projectID,
		Category:  category,
		Title:     in.Title,
		Body:      in.Body,
		Tags:      append([]string(nil), tags...),
	}
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return nil, fmt.Errorf("store: create compendium entry: %w", err)
	}
	return &e, nil
}

// PutCompendiumEntry inserts or replaces an entry keyed by its id.
func (s *Store) PutCompendiumEntry(ctx context.Context, e models.CompendiumEntry) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if err := s.db.WithContext(ctx).Save(&e).Error; err != nil {
		return fmt.Errorf("store: put compendium entry %s: %w", e.ID, err)
	}
	return nil
}

// CompendiumEntry returns the entry with id.
func (s *Store) CompendiumEntry(ctx context.Context, id string) (models.CompendiumEntry, error) {
	var e models.CompendiumEntry
	if err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return models.CompendiumEntry{}, notFound(err, "compendium entry", id)
	}
	return e, nil
}

// DeleteCompendiumEntry removes the entry with id.
func (s *Store) DeleteCompendiumEntry(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.CompendiumEntry{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("store: delete compendium entry %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: compendium entry %s", ErrNotFound, id)
	}
	return nil
}

// CompendiumEntries returns every entry of the project, by category then order.
func (s *Store) CompendiumEntries(ctx context.Context, projectID string) ([]models.CompendiumEntry, error) {
	var out []models.CompendiumEntry
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("category ASC").Order("sort_order ASC").Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list compendium %s: %w", projectID, err)
	}
	return out, nil
}

// CompendiumByCategory returns one category of the project's entries in order.
func (s *Store) CompendiumByCategory(ctx context.Context, projectID, category string) ([]models.CompendiumEntry, error) {
	var out []models.CompendiumEntry
	if err := s.db.WithContext(ctx).Where("project_id = ? AND category = ?", projectID, category).
		Order("sort_order ASC").Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list compendium %s/%s: %w", projectID, category, err)
	}
	return out, nil
}

// CompendiumEntryByTitle finds an entry by case-insensitive title.
func (s *Store) CompendiumEntryByTitle(ctx context.Context, projectID, title string) (models.CompendiumEntry, error) {
	var e models.CompendiumEntry
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND LOWER(title) = ?", projectID, strings.ToLower(strings.TrimSpace(title))).
		Order("created_at ASC").First(&e).Error
	if err != nil {
		return models.CompendiumEntry{}, notFound(err, "compendium entry titled", title)
	}
	return e, nil
}

// SearchCompendium matches q against title, tags and body, case-insensitively.
// An empty query returns the first limit entries. limit <= 0 means 20.
func (s *Store) SearchCompendium(ctx context.Context, projectID, q string, limit int) ([]models.CompendiumEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	all, err := s.CompendiumEntries(ctx, projectID)
	if err != nil {
		return nil, err
	}
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]models.CompendiumEntry, 0, limit)
	for _, e := range all {
		if len(out) == limit {
			break
		}
		if q != "" {
			hay := strings.ToLower(e.Title + "\n" + strings.Join(e.Tags, " ") + "\n" + e.Body)
			if !strings.Contains(hay, q) {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// CompendiumSummaries returns a short text per id: the entry's summary when
// it is longer than 10 characters, otherwise the first 300 characters of the
// body. Missing ids are skipped.
func (s *Store) CompendiumSummaries(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		e, err := s.CompendiumEntry(ctx, id)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len([]rune(e.Summary)) > 10 {
			out[id] = e.Summary
			continue
		}
		out[id] = excerpt(e.Body, 300)
	}
	return out, nil
}

func excerpt(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "…"
}
