package models

import "time"

// ReviewTemplate is a reusable outline skeleton. Seeded templates carry
// IsDefault and cannot be deleted.
type ReviewTemplate struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description,omitempty"`
	Structure   string `json:"structure" gorm:"type:text;not null"`
	IsDefault   bool   `json:"is_default" gorm:"default:false"`
}

// TableName sets the explicit table name.
func (ReviewTemplate) TableName() string {
	return "review_templates"
}
