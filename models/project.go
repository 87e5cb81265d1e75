package models

import "time"

// Project status values. The status is advisory only; no transition rules
// are enforced.
const (
	ProjectStatusDraft     = "draft"
	ProjectStatusAnalyzing = "analyzing"
	ProjectStatusWriting   = "writing"
	ProjectStatusCompleted = "completed"
)

// Project represents one review-writing effort. All other entities hang off
// a project via project_id.
type Project struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`
	Status      string `json:"status" gorm:"index;default:'draft'"`
}

// TableName sets the explicit table name.
func (Project) TableName() string {
	return "projects"
}
