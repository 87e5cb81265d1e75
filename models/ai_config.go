package models

import "time"

// AIConfig holds the LLM provider credentials. The table is a logical
// singleton: saving deletes all prior rows and inserts one.
type AIConfig struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	APIEndpoint string `json:"api_endpoint" gorm:"not null"`
	APIKey      string `json:"-" gorm:"not null"`
	ModelName   string `json:"model_name" gorm:"default:'gpt-4'"`
}

// TableName sets the explicit table name.
func (AIConfig) TableName() string {
	return "ai_config"
}

// MaskedKey returns a display-safe prefix of the API key. The raw key is
// never returned to clients.
func (c *AIConfig) MaskedKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) <= 8 {
		return c.APIKey[:1] + "..."
	}
	return c.APIKey[:8] + "..."
}
