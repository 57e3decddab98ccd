package models

import "time"

// Person is an individual within a tree.
// Names are kept in display order; the first entry is the primary name.
type Person struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TreeID    uint      `gorm:"not null;index" json:"tree_id"`
	Names     []string  `gorm:"serializer:json;not null" json:"names"`
}

// OwnerTreeID returns the tree the person belongs to.
func (p *Person) OwnerTreeID() uint {
	return p.TreeID
}
