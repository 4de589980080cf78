package store

import (
	"context"
	"fmt"
	"strings"

	"writingway/models"
)

// CreatePrompt inserts a template. An empty title becomes "New Prompt".
func (s *Store) CreatePrompt(ctx context.Context, projectID, category, title string) (*models.Prompt, error) {
	if projectID == "" {
		return nil, fmt.Errorf("store: projectID is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New Prompt"
	}
	p := models.Prompt{ID: newID(), ProjectID: projectID, Category: category, Title: title}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("store: create prompt: %w", err)
	}
	return &p, nil
}

// SavePrompt writes a template's title, category and texts.
func (s *Store) SavePrompt(ctx context.Context, p models.Prompt) error {
	res := s.db.WithContext(ctx).Model(&models.Prompt{}).Where("id = ?", p.ID).
		Select("title", "category", "content", "system_content").Updates(&p)
	if res.Error != nil {
		return fmt.Errorf("store: save prompt %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: prompt %s", ErrNotFound, p.ID)
	}
	return nil
}

// Prompt returns the template with id.
func (s *Store) Prompt(ctx context.Context, id string) (models.Prompt, error) {
	var p models.Prompt
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return models.Prompt{}, notFound(err, "prompt", id)
	}
	return p, nil
}

// Prompts lists the project's templates, least recently modified first.
func (s *Store) Prompts(ctx context.Context, projectID string) ([]models.Prompt, error) {
	var out []models.Prompt
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("updated_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list prompts %s: %w", projectID, err)
	}
	return out, nil
}

// DeletePrompt removes a template and clears it as the project's prose
// prompt if it was selected.
func (s *Store) DeletePrompt(ctx context.Context, id string) error {
	p, err := s.Prompt(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Prompt{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("store: delete prompt %s: %w", id, err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND selected_prose_prompt_id = ?", p.ProjectID, id).
		Update("selected_prose_prompt_id", "").Error; err != nil {
		return fmt.Errorf("store: clear prose prompt selection: %w", err)
	}
	return nil
}

// SelectProsePrompt records the project's prose prompt. An empty id clears it.
func (s *Store) SelectProsePrompt(ctx context.Context, projectID, promptID string) error {
	res := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).
		Update("selected_prose_prompt_id", promptID)
	if res.Error != nil {
		return fmt.Errorf("store: select prose prompt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return nil
}

// AddPromptHistory appends an entry to the history log, filling the id and
// timestamp when unset.
func (s *Store) AddPromptHistory(ctx context.Context, h models.PromptHistory) (*models.PromptHistory, error) {
	if h.ProjectID == "" {
		return nil, fmt.Errorf("store: history projectID is required")
	}
	if h.ID == "" {
		h.ID = newID()
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = s.now()
	}
	if err := s.db.WithContext(ctx).Create(&h).Error; err != nil {
		return nil, fmt.Errorf("store: add prompt history: %w", err)
	}
	return &h, nil
}

// PromptHistory lists a project's generation attempts, newest first.
func (s *Store) PromptHistory(ctx context.Context, projectID string) ([]models.PromptHistory, error) {
	var out []models.PromptHistory
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("timestamp DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list prompt history %s: %w", projectID, err)
	}
	return out, nil
}
