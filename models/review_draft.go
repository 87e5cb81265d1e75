package models

import "time"

// Draft languages.
const (
	LanguageZH = "zh"
	LanguageEN = "en"
)

// ReviewDraft is generated review text in one language. The manual-save
// path updates the newest row in place and bumps Version; starting a fresh
// generation always inserts a new row and the latest-by-created_at read
// wins.
type ReviewDraft struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID uint   `json:"project_id" gorm:"index;not null"`
	Content   string `json:"content,omitempty" gorm:"type:text"`
	Language  string `json:"language" gorm:"index"`
	Version   int    `json:"version" gorm:"default:1"`
}

// TableName sets the explicit table name.
func (ReviewDraft) TableName() string {
	return "review_drafts"
}
