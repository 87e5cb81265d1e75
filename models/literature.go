package models

import "time"

// SearchedLiterature is a paper found via search/import or saved by the
// user. IsSelected is the sole gate for citability in export and draft
// generation. Metadata is a free-form JSON blob (published date, journal,
// year); consumers parse it best-effort.
type SearchedLiterature struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID  uint   `json:"project_id" gorm:"index;not null"`
	Source     string `json:"source"`
	Title      string `json:"title"`
	Authors    string `json:"authors,omitempty"`
	Abstract   string `json:"abstract,omitempty" gorm:"type:text"`
	DOI        string `json:"doi,omitempty" gorm:"column:doi"`
	URL        string `json:"url,omitempty"`
	PDFURL     string `json:"pdf_url,omitempty"`
	Metadata   string `json:"metadata,omitempty" gorm:"type:text"`
	IsSelected bool   `json:"is_selected" gorm:"index;default:false"`
}

// TableName sets the explicit table name.
func (SearchedLiterature) TableName() string {
	return "searched_literature"
}
