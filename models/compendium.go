package models

import "time"

// MaxCompendiumTags caps the tag set of a new compendium entry.
const MaxCompendiumTags = 10

// CompendiumEntry is a piece of lore: a character, place, object or rule.
type CompendiumEntry struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	ProjectID string    `gorm:"size:64;not null;index:idx_compendium_project_category" json:"project_id"`
	Category  string    `gorm:"size:64;index:idx_compendium_project_category" json:"category"`
	Title     string    `gorm:"size:256;index" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Summary   string    `gorm:"type:text" json:"summary"`
	Tags      []string  `gorm:"serializer:json" json:"tags"`
	Order     int       `gorm:"column:sort_order" json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAnyTag reports whether the entry's tag set intersects tags.
func (e CompendiumEntry) HasAnyTag(tags []string) bool {
	for _, have := range e.Tags {
		for _, want := range tags {
			if have == want {
				return true
			}
		}
	}
	return false
}
