package relations

import (
	"context"
	"errors"

	"github.com/familyships/familyships/pkg/familyships/graph"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/store"
)

// DetachResult reports whether a detach also removed the family.
type DetachResult struct {
	FamilyReclaimed bool `json:"family_reclaimed"`
}

// CreateFamily adds an empty family to the tree. It stays until deleted,
// even without members.
func (s *Service) CreateFamily(ctx context.Context, tree *models.Tree) (*models.Family, error) {
	family := &models.Family{}
	err := s.mutate(ctx, "create_family", tree, func(tx *store.Store) error {
		family.TreeID = tree.ID
		return store.Save(ctx, tx, family)
	})
	if err != nil {
		return nil, err
	}
	return family, nil
}

// DeleteFamily removes a family and all its links. The people stay.
func (s *Service) DeleteFamily(ctx context.Context, tree *models.Tree, familyID uint) error {
	return s.mutate(ctx, "delete_family", tree, func(tx *store.Store) error {
		if _, err := loadFamily(ctx, tx, tree, familyID); err != nil {
			return err
		}
		if _, err := store.DeleteWhere[models.FamilyParent](ctx, tx, "family_id = ?", familyID); err != nil {
			return err
		}
		if _, err := store.DeleteWhere[models.FamilyChild](ctx, tx, "family_id = ?", familyID); err != nil {
			return err
		}
		return store.Delete[models.Family](ctx, tx, familyID)
	})
}

// AttachChild makes the person a child of the family.
func (s *Service) AttachChild(ctx context.Context, tree *models.Tree, familyID, personID uint) (*models.FamilyChild, error) {
	link := &models.FamilyChild{FamilyID: familyID, ChildID: personID}
	err := s.mutate(ctx, "attach_child", tree, func(tx *store.Store) error {
		g, err := s.loadLinkTargets(ctx, tx, tree, familyID, personID)
		if err != nil {
			return err
		}
		if err := g.CanAttachChild(familyID, personID); err != nil {
			return err
		}
		return createLink(ctx, tx, link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// AttachParent makes the person a parent in the family.
func (s *Service) AttachParent(ctx context.Context, tree *models.Tree, familyID, personID uint) (*models.FamilyParent, error) {
	link := &models.FamilyParent{FamilyID: familyID, ParentID: personID}
	err := s.mutate(ctx, "attach_parent", tree, func(tx *store.Store) error {
		g, err := s.loadLinkTargets(ctx, tx, tree, familyID, personID)
		if err != nil {
			return err
		}
		if err := g.CanAttachParent(familyID, personID); err != nil {
			return err
		}
		return createLink(ctx, tx, link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// DetachChild removes the child link and reclaims the family if it is left
// empty.
func (s *Service) DetachChild(ctx context.Context, tree *models.Tree, familyID, personID uint) (*DetachResult, error) {
	return s.detach(ctx, "detach_child", tree, familyID, personID, func(tx *store.Store) (int64, error) {
		return store.DeleteWhere[models.FamilyChild](ctx, tx, "family_id = ? AND child_id = ?", familyID, personID)
	})
}

// DetachParent removes the parent link and reclaims the family if it is left
// empty.
func (s *Service) DetachParent(ctx context.Context, tree *models.Tree, familyID, personID uint) (*DetachResult, error) {
	return s.detach(ctx, "detach_parent", tree, familyID, personID, func(tx *store.Store) (int64, error) {
		return store.DeleteWhere[models.FamilyParent](ctx, tx, "family_id = ? AND parent_id = ?", familyID, personID)
	})
}

func (s *Service) detach(ctx context.Context, op string, tree *models.Tree, familyID, personID uint, remove func(tx *store.Store) (int64, error)) (*DetachResult, error) {
	result := &DetachResult{}
	err := s.mutate(ctx, op, tree, func(tx *store.Store) error {
		if _, err := loadFamily(ctx, tx, tree, familyID); err != nil {
			return err
		}
		if _, err := loadPerson(ctx, tx, tree, personID); err != nil {
			return err
		}
		removed, err := remove(tx)
		if err != nil {
			return err
		}
		if removed == 0 {
			return store.ErrNotFound
		}
		result.FamilyReclaimed, err = reclaimIfEmpty(ctx, tx, familyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadLinkTargets authorizes both ends of a new link and returns the tree's
// graph.
func (s *Service) loadLinkTargets(ctx context.Context, tx *store.Store, tree *models.Tree, familyID, personID uint) (*graph.Graph, error) {
	if _, err := loadFamily(ctx, tx, tree, familyID); err != nil {
		return nil, err
	}
	if _, err := loadPerson(ctx, tx, tree, personID); err != nil {
		return nil, err
	}
	return loadGraph(ctx, tx, tree.ID)
}

func createLink[T any](ctx context.Context, tx *store.Store, link *T) error {
	err := store.Create(ctx, tx, link)
	if errors.Is(err, store.ErrDuplicate) {
		return graph.ErrAlreadyLinked
	}
	return err
}

// GetFamily returns a family with its parents and children.
func (s *Service) GetFamily(ctx context.Context, tree *models.Tree, familyID uint) (*FamilyView, error) {
	var view *FamilyView
	err := s.read(ctx, tree, func(tx *store.Store) error {
		f, err := loadFamily(ctx, tx, tree, familyID)
		if err != nil {
			return err
		}
		parents, err := store.FindByForeignKey[models.FamilyParent](ctx, tx, "family_id", familyID)
		if err != nil {
			return err
		}
		children, err := store.FindByForeignKey[models.FamilyChild](ctx, tx, "family_id", familyID)
		if err != nil {
			return err
		}
		view = newFamilyView(*f)
		for _, l := range parents {
			view.Parents = append(view.Parents, l.ParentID)
		}
		for _, l := range children {
			view.Children = append(view.Children, l.ChildID)
		}
		sortIDs(view.Parents)
		sortIDs(view.Children)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListFamilies returns every family in the tree with its members.
func (s *Service) ListFamilies(ctx context.Context, tree *models.Tree) ([]FamilyView, error) {
	var views []FamilyView
	err := s.read(ctx, tree, func(tx *store.Store) error {
		families, err := store.FindByForeignKey[models.Family](ctx, tx, "tree_id", tree.ID)
		if err != nil {
			return err
		}
		g, err := loadGraph(ctx, tx, tree.ID)
		if err != nil {
			return err
		}
		views = familyViews(families, g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}
