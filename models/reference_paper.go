package models

import "time"

// Supported upload types.
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
)

// ReferencePaper is an uploaded style-sample document. ExtractedText is
// populated best-effort; extraction failure leaves it empty and the upload
// still succeeds.
type ReferencePaper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ProjectID     uint   `json:"project_id" gorm:"index;not null"`
	Filename      string `json:"filename" gorm:"not null"`
	FilePath      string `json:"file_path" gorm:"not null"`
	FileType      string `json:"file_type"`
	ExtractedText string `json:"extracted_text,omitempty" gorm:"type:text"`
	S3Link        string `json:"s3_link,omitempty"`
}

// TableName sets the explicit table name.
func (ReferencePaper) TableName() string {
	return "reference_papers"
}
