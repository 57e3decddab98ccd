package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: Tree must be migrated first as the other models reference it
func AllModels() []interface{} {
	return []interface{}{
		&Tree{},
		&UserIdentity{},
		&Person{},
		&Family{},
		&FamilyParent{},
		&FamilyChild{},
		&APIKey{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
