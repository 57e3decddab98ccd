package models

import "time"

// Family is a union of zero or more parents raising zero or more children.
type Family struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TreeID    uint      `gorm:"not null;index" json:"tree_id"`
}

// OwnerTreeID returns the tree the family belongs to.
func (f *Family) OwnerTreeID() uint {
	return f.TreeID
}

// FamilyParent links a person to a family as one of its parents.
// The composite primary key allows at most one link per (family, person).
type FamilyParent struct {
	FamilyID  uint      `gorm:"primaryKey;autoIncrement:false" json:"family_id"`
	ParentID  uint      `gorm:"primaryKey;autoIncrement:false;index" json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Family Family `gorm:"foreignKey:FamilyID;constraint:OnDelete:CASCADE" json:"-"`
	Parent Person `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName pins the join table name.
func (FamilyParent) TableName() string {
	return "family_parents"
}

// FamilyChild links a person to a family as one of its children.
// A person may be the child of several families when parentage is uncertain.
type FamilyChild struct {
	FamilyID  uint      `gorm:"primaryKey;autoIncrement:false" json:"family_id"`
	ChildID   uint      `gorm:"primaryKey;autoIncrement:false;index" json:"child_id"`
	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Family Family `gorm:"foreignKey:FamilyID;constraint:OnDelete:CASCADE" json:"-"`
	Child  Person `gorm:"foreignKey:ChildID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName pins the join table name.
func (FamilyChild) TableName() string {
	return "family_children"
}
