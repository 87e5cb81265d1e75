package models

import "time"

// StyleAnalysis stores one AI-produced style summary plus the derived
// writing guide. Multiple rows may exist per project; readers always take
// the latest by created_at. The guide is editable in place.
type StyleAnalysis struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID      uint   `json:"project_id" gorm:"index;not null"`
	AnalysisResult string `json:"analysis_result,omitempty" gorm:"type:text"`
	WritingGuide   string `json:"writing_guide,omitempty" gorm:"type:text"`
}

// TableName sets the explicit table name.
func (StyleAnalysis) TableName() string {
	return "style_analysis"
}
