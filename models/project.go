// Package models holds the persisted story entities.
package models

import "time"

// Project is one story: its chapters, scenes, compendium and prompt templates.
type Project struct {
	ID                    string    `gorm:"primaryKey;size:64" json:"id"`
	Name                  string    `gorm:"size:256;not null" json:"name"`
	SelectedProsePromptID string    `gorm:"size:64" json:"selected_prose_prompt_id"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Chapter groups scenes. Order is the position within the project.
type Chapter struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	ProjectID string    `gorm:"size:64;not null;index" json:"project_id"`
	Title     string    `gorm:"size:256" json:"title"`
	Order     int       `gorm:"column:sort_order;index" json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
