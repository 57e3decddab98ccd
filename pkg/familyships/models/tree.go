package models

import "time"

// Tree is the ownership boundary for a user's people and families.
// Members are the Person and Family rows whose TreeID points here.
type Tree struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Revision  uint64    `gorm:"not null;default:0" json:"revision"` // Bumped by every mutation
}

// UserIdentity maps an external login to exactly one Tree.
type UserIdentity struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Provider    string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_provider_external" json:"provider"`
	ExternalID  string    `gorm:"not null;uniqueIndex:idx_provider_external" json:"external_id"` // Google sub claim or GitHub login
	DisplayName string    `json:"display_name"`
	TreeID      uint      `gorm:"not null;uniqueIndex" json:"tree_id"`

	// Relationships
	Tree Tree `gorm:"foreignKey:TreeID" json:"-"`
}
