package models

import "time"

// APIKey represents an API key for programmatic access to one identity's tree
type APIKey struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	IdentityID  uint       `gorm:"not null;index" json:"identity_id"`
	KeyPrefix   string     `gorm:"not null;uniqueIndex" json:"key_prefix"` // Lookup part of the key
	SecretHash  string     `gorm:"not null" json:"-"`                      // bcrypt hash of the secret part
	Description string     `json:"description"`
	LastUsedAt  *time.Time `json:"last_used_at"`

	// Relationships
	Identity UserIdentity `gorm:"foreignKey:IdentityID;constraint:OnDelete:CASCADE" json:"-"`
}
