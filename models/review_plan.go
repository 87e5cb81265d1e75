package models

import "time"

// ReviewPlan is a Markdown outline for the review. Every save, regeneration
// and template application inserts a fresh row with a bumped Version; readers
// take the latest by created_at.
type ReviewPlan struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID   uint   `json:"project_id" gorm:"index;not null"`
	PlanContent string `json:"plan_content,omitempty" gorm:"type:text"`
	Version     int    `json:"version" gorm:"default:1"`
}

// TableName sets the explicit table name.
func (ReviewPlan) TableName() string {
	return "review_plans"
}
