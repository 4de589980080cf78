package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"writingway/models"
)

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("store: project name is required")
	}
	p := models.Project{ID: newID(), Name: name}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("store: create project: %w", err)
	}
	return &p, nil
}

// Project returns the project with id.
func (s *Store) Project(ctx context.Context, id string) (models.Project, error) {
	var p models.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return models.Project{}, notFound(err, "project", id)
	}
	return p, nil
}

// Projects lists every project by name.
func (s *Store) Projects(ctx context.Context) ([]models.Project, error) {
	var out []models.Project
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	return out, nil
}

// CreateChapter appends a chapter at the end of the project.
func (s *Store) CreateChapter(ctx context.Context, projectID, title string) (*models.Chapter, error) {
	if projectID == "" {
		return nil, fmt.Errorf("store: projectID is required")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Chapter{}).
		Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("store: count chapters: %w", err)
	}
	ch := models.Chapter{ID: newID(), ProjectID: projectID, Title: title, Order: int(count)}
	if err := s.db.WithContext(ctx).Create(&ch).Error; err != nil {
		return nil, fmt.Errorf("store: create chapter: %w", err)
	}
	return &ch, nil
}

// Chapters returns the project's chapters in story order.
func (s *Store) Chapters(ctx context.Context, projectID string) ([]models.Chapter, error) {
	var out []models.Chapter
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("sort_order ASC").Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list chapters %s: %w", projectID, err)
	}
	return out, nil
}

// CreateScene appends a scene to a chapter along with an empty content row.
func (s *Store) CreateScene(ctx context.Context, projectID, chapterID, title string) (*models.Scene, error) {
	if projectID == "" {
		return nil, fmt.Errorf("store: projectID is required")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Scene{}).
		Where("project_id = ? AND chapter_id = ?", projectID, chapterID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("store: count scenes: %w", err)
	}
	sc := models.Scene{
		ID:        newID(),
		ProjectID: projectID,
		ChapterID: chapterID,
		Title:     title,
		Order:     int(count),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sc).Error; err != nil {
			return err
		}
		return tx.Create(&models.SceneContent{SceneID: sc.ID}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: create scene: %w", err)
	}
	return &sc, nil
}

// Scene returns the scene with id.
func (s *Store) Scene(ctx context.Context, id string) (models.Scene, error) {
	var sc models.Scene
	if err := s.db.WithContext(ctx).First(&sc, "id = ?", id).Error; err != nil {
		return models.Scene{}, notFound(err, "scene", id)
	}
	return sc, nil
}

// UpdateScene writes the scene's metadata (title, summary, tags, POV).
func (s *Store) UpdateScene(ctx context.Context, sc models.Scene) error {
	res := s.db.WithContext(ctx).Model(&models.Scene{}).Where("id = ?", sc.ID).
		Select("title", "summary", "summary_stale", "tags", "pov_character", "pov", "tense").
		Updates(&sc)
	if res.Error != nil {
		return fmt.Errorf("store: update scene %s: %w", sc.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: scene %s", ErrNotFound, sc.ID)
	}
	return nil
}

// Scenes returns all scenes of a project in story order: chapter order first,
// then scene order within the chapter. Scenes without a known chapter sort last.
func (s *Store) Scenes(ctx context.Context, projectID string) ([]models.Scene, error) {
	chapters, err := s.Chapters(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []models.Scene
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("sort_order ASC").Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list scenes %s: %w", projectID, err)
	}
	rank := make(map[string]int, len(chapters))
	for i, ch := range chapters {
		rank[ch.ID] = i
	}
	chapterRank := func(id string) int {
		if r, ok := rank[id]; ok {
			return r
		}
		return len(chapters)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return chapterRank(out[i].ChapterID) < chapterRank(out[j].ChapterID)
	})
	return out, nil
}

// SceneByTitle finds a scene by case-insensitive title.
func (s *Store) SceneByTitle(ctx context.Context, projectID, title string) (models.Scene, error) {
	var sc models.Scene
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND LOWER(title) = ?", projectID, strings.ToLower(strings.TrimSpace(title))).
		Order("sort_order ASC").First(&sc).Error
	if err != nil {
		return models.Scene{}, notFound(err, "scene titled", title)
	}
	return sc, nil
}

// SceneText returns the live document text of a scene.
func (s *Store) SceneText(ctx context.Context, sceneID string) (string, error) {
	var c models.SceneContent
	if err := s.db.WithContext(ctx).First(&c, "scene_id = ?", sceneID).Error; err != nil {
		return "", notFound(err, "scene content", sceneID)
	}
	return c.Text, nil
}

// SaveScene persists a scene's text and word count. When the text changed
// and the scene has a cached summary, the summary is marked stale.
func (s *Store) SaveScene(ctx context.Context, sceneID, text string) (*models.Scene, error) {
	sc, err := s.Scene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	prev, err := s.SceneText(ctx, sceneID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	words := WordCount(text)
	stale := sc.SummaryStale
	if prev != text && sc.Summary != "" {
		stale = true
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		content := models.SceneContent{SceneID: sceneID, Text: text, WordCount: words, UpdatedAt: s.now()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scene_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "word_count", "updated_at"}),
		}).Create(&content).Error; err != nil {
			return err
		}
		return tx.Model(&models.Scene{}).Where("id = ?", sceneID).
			Updates(map[string]interface{}{"word_count": words, "summary_stale": stale}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: save scene %s: %w", sceneID, err)
	}
	if stale && !sc.SummaryStale {
		s.log.Debug("scene summary marked stale", zap.String("scene", sceneID))
	}
	sc.WordCount = words
	sc.SummaryStale = stale
	return &sc, nil
}

// NormalizeOrders rewrites chapter and scene orders to dense 0..n-1 sequences.
func (s *Store) NormalizeOrders(ctx context.Context, projectID string) error {
	chapters, err := s.Chapters(ctx, projectID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, ch := range chapters {
			if ch.Order != i {
				if err := tx.Model(&models.Chapter{}).Where("id = ?", ch.ID).
					Update("sort_order", i).Error; err != nil {
					return fmt.Errorf("store: normalize chapter %s: %w", ch.ID, err)
				}
			}
			var scenes []models.Scene
			if err := tx.Where("project_id = ? AND chapter_id = ?", projectID, ch.ID).
				Order("sort_order ASC").Order("created_at ASC").Find(&scenes).Error; err != nil {
				return fmt.Errorf("store: normalize scenes of %s: %w", ch.ID, err)
			}
			for j, sc := range scenes {
				if sc.Order == j {
					continue
				}
				if err := tx.Model(&models.Scene{}).Where("id = ?", sc.ID).
					Update("sort_order", j).Error; err != nil {
					return fmt.Errorf("store: normalize scene %s: %w", sc.ID, err)
				}
			}
		}
		return nil
	})
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
