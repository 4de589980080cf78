package models

import "time"

// PromptCategoryProse marks templates that shape scene generation.
const PromptCategoryProse = "prose"

// Prompt is an author-editable template. SystemContent, when set, is sent as
// the system message.
type Prompt struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	ProjectID     string    `gorm:"size:64;not null;index" json:"project_id"`
	Category      string    `gorm:"size:32;index" json:"category"`
	Title         string    `gorm:"size:256" json:"title"`
	Content       string    `gorm:"type:text" json:"content"`
	SystemContent string    `gorm:"type:text" json:"system_content"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PromptHistory records one generation attempt. Rows are append-only.
type PromptHistory struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	ProjectID string    `gorm:"size:64;not null;index:idx_history_project_time" json:"project_id"`
	SceneID   string    `gorm:"size:64;index" json:"scene_id"`
	Timestamp time.Time `gorm:"index:idx_history_project_time" json:"timestamp"`
	Beat      string    `gorm:"type:text" json:"beat"`
	Prompt    string    `gorm:"type:text" json:"prompt"`
}

// TableName keeps the append log under a stable name.
func (PromptHistory) TableName() string { return "prompt_history" }
