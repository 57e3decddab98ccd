package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/familyships/familyships/pkg/familyships/models"
	"gorm.io/gorm"
)

// LockTree bumps the tree's revision and returns the updated row.
//
// Every mutation calls this first inside its transaction. The UPDATE takes a
// row lock on PostgreSQL and the database write lock on SQLite, so mutations
// of one tree are serialized and graph checks read committed state.
func (s *Store) LockTree(ctx context.Context, treeID uint) (*models.Tree, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	res := db.Model(&models.Tree{}).Where("id = ?", treeID).UpdateColumns(map[string]interface{}{
		"revision":   gorm.Expr("revision + ?", 1),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var tree models.Tree
	if err := db.First(&tree, treeID).Error; err != nil {
		return nil, translate(err)
	}
	return &tree, nil
}

// TreeLinks returns every parent and child link whose family belongs to the tree.
func (s *Store) TreeLinks(ctx context.Context, treeID uint) ([]models.FamilyParent, []models.FamilyChild, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	parentsSQL, parentsArgs, err := sq.Select("fp.family_id", "fp.parent_id").
		From("family_parents AS fp").
		Join("families AS f ON f.id = fp.family_id").
		Where(sq.Eq{"f.tree_id": treeID}).
		OrderBy("fp.family_id", "fp.parent_id").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build SQL for TreeLinks parents: %w", err)
	}

	childrenSQL, childrenArgs, err := sq.Select("fc.family_id", "fc.child_id").
		From("family_children AS fc").
		Join("families AS f ON f.id = fc.family_id").
		Where(sq.Eq{"f.tree_id": treeID}).
		OrderBy("fc.family_id", "fc.child_id").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build SQL for TreeLinks children: %w", err)
	}

	var parents []models.FamilyParent
	if err := db.Raw(parentsSQL, parentsArgs...).Scan(&parents).Error; err != nil {
		return nil, nil, translate(err)
	}

	var children []models.FamilyChild
	if err := db.Raw(childrenSQL, childrenArgs...).Scan(&children).Error; err != nil {
		return nil, nil, translate(err)
	}

	return parents, children, nil
}
