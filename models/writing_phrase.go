package models

// WritingPhrase is a phrase-bank entry for academic writing. A base set is
// seeded at init; users can add their own.
type WritingPhrase struct {
	ID uint `json:"id" gorm:"primaryKey"`

	Category string `json:"category" gorm:"index"`
	Phrase   string `json:"phrase" gorm:"type:text;not null"`
	Usage    string `json:"usage,omitempty" gorm:"column:usage_note"`
	Example  string `json:"example,omitempty" gorm:"type:text"`
}

// TableName sets the explicit table name.
func (WritingPhrase) TableName() string {
	return "writing_phrases"
}
