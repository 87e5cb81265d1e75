package models

import "time"

// Keyword is a search/classification term tied to a project. No uniqueness
// constraint; duplicates are the user's problem.
type Keyword struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID uint   `json:"project_id" gorm:"index;not null"`
	Keyword   string `json:"keyword" gorm:"not null"`
	Category  string `json:"category,omitempty"`
	IsPrimary bool   `json:"is_primary" gorm:"default:false"`
}

// TableName sets the explicit table name.
func (Keyword) TableName() string {
	return "project_keywords"
}
