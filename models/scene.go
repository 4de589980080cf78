package models

import "time"

// Scene is the unit of writing. Summary is the cached summary used as
// generation context; SummaryStale is set once the text moved on from it.
type Scene struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	ProjectID    string    `gorm:"size:64;not null;index" json:"project_id"`
	ChapterID    string    `gorm:"size:64;index" json:"chapter_id"`
	Title        string    `gorm:"size:256" json:"title"`
	Order        int       `gorm:"column:sort_order" json:"order"`
	Summary      string    `gorm:"type:text" json:"summary"`
	SummaryStale bool      `gorm:"default:false" json:"summary_stale"`
	Tags         []string  `gorm:"serializer:json" json:"tags"`
	POVCharacter string    `gorm:"size:128" json:"pov_character"`
	POV          string    `gorm:"size:64" json:"pov"`
	Tense        string    `gorm:"size:32" json:"tense"`
	WordCount    int       `json:"word_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasTag reports whether the scene carries tag.
func (s Scene) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SceneContent is the live document text of a scene.
type SceneContent struct {
	SceneID   string    `gorm:"primaryKey;size:64" json:"scene_id"`
	Text      string    `gorm:"type:text" json:"text"`
	WordCount int       `json:"word_count"`
	UpdatedAt time.Time `json:"updated_at"`
}
