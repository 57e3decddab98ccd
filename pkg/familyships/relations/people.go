package relations

import (
	"context"

	"github.com/familyships/familyships/pkg/familyships/graph"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/store"
)

// DeletePersonResult reports the families removed along with a person.
type DeletePersonResult struct {
	ReclaimedFamilies []uint `json:"reclaimed_families"`
}

// CreatePerson adds a person with the given names to the tree.
func (s *Service) CreatePerson(ctx context.Context, tree *models.Tree, names []string) (*models.Person, error) {
	if err := s.ValidateNames(names); err != nil {
		return nil, err
	}

	person := &models.Person{Names: append([]string(nil), names...)}
	err := s.mutate(ctx, "create_person", tree, func(tx *store.Store) error {
		person.TreeID = tree.ID
		return store.Save(ctx, tx, person)
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// SetNames replaces a person's ordered names.
func (s *Service) SetNames(ctx context.Context, tree *models.Tree, personID uint, names []string) (*models.Person, error) {
	if err := s.ValidateNames(names); err != nil {
		return nil, err
	}

	var person *models.Person
	err := s.mutate(ctx, "set_names", tree, func(tx *store.Store) error {
		p, err := loadPerson(ctx, tx, tree, personID)
		if err != nil {
			return err
		}
		p.Names = append([]string(nil), names...)
		if err := store.Save(ctx, tx, p); err != nil {
			return err
		}
		person = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// DeletePerson removes a person with all their links. Families left with no
// parents and no children by that removal are deleted too.
func (s *Service) DeletePerson(ctx context.Context, tree *models.Tree, personID uint) (*DeletePersonResult, error) {
	result := &DeletePersonResult{ReclaimedFamilies: []uint{}}
	err := s.mutate(ctx, "delete_person", tree, func(tx *store.Store) error {
		if _, err := loadPerson(ctx, tx, tree, personID); err != nil {
			return err
		}
		g, err := loadGraph(ctx, tx, tree.ID)
		if err != nil {
			return err
		}
		touched := g.RemovePerson(personID)

		if _, err := store.DeleteWhere[models.FamilyParent](ctx, tx, "parent_id = ?", personID); err != nil {
			return err
		}
		if _, err := store.DeleteWhere[models.FamilyChild](ctx, tx, "child_id = ?", personID); err != nil {
			return err
		}
		for _, famID := range touched {
			if !g.IsReclaimable(famID) {
				continue
			}
			if err := store.Delete[models.Family](ctx, tx, famID); err != nil {
				return err
			}
			result.ReclaimedFamilies = append(result.ReclaimedFamilies, famID)
		}
		return store.Delete[models.Person](ctx, tx, personID)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetPerson returns a person together with their family memberships.
func (s *Service) GetPerson(ctx context.Context, tree *models.Tree, personID uint) (*PersonView, error) {
	var view *PersonView
	err := s.read(ctx, tree, func(tx *store.Store) error {
		p, err := loadPerson(ctx, tx, tree, personID)
		if err != nil {
			return err
		}
		parentLinks, err := store.FindByForeignKey[models.FamilyParent](ctx, tx, "parent_id", personID)
		if err != nil {
			return err
		}
		childLinks, err := store.FindByForeignKey[models.FamilyChild](ctx, tx, "child_id", personID)
		if err != nil {
			return err
		}
		view = newPersonView(*p)
		for _, l := range parentLinks {
			view.ParentIn = append(view.ParentIn, l.FamilyID)
		}
		for _, l := range childLinks {
			view.ChildOf = append(view.ChildOf, l.FamilyID)
		}
		sortIDs(view.ParentIn)
		sortIDs(view.ChildOf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListPeople returns every person in the tree ordered by id.
func (s *Service) ListPeople(ctx context.Context, tree *models.Tree) ([]models.Person, error) {
	var people []models.Person
	err := s.read(ctx, tree, func(tx *store.Store) error {
		var err error
		people, err = store.FindByForeignKey[models.Person](ctx, tx, "tree_id", tree.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortPeople(people)
	return people, nil
}

// Parents returns the parents of a person across all their families.
func (s *Service) Parents(ctx context.Context, tree *models.Tree, personID uint) ([]models.Person, error) {
	return s.relatives(ctx, tree, personID, (*graph.Graph).Parents)
}

// Children returns the children of a person across all their families.
func (s *Service) Children(ctx context.Context, tree *models.Tree, personID uint) ([]models.Person, error) {
	return s.relatives(ctx, tree, personID, (*graph.Graph).Children)
}

// Ancestors returns everyone the person descends from.
func (s *Service) Ancestors(ctx context.Context, tree *models.Tree, personID uint) ([]models.Person, error) {
	return s.relatives(ctx, tree, personID, (*graph.Graph).Ancestors)
}

// Descendants returns everyone descending from the person.
func (s *Service) Descendants(ctx context.Context, tree *models.Tree, personID uint) ([]models.Person, error) {
	return s.relatives(ctx, tree, personID, (*graph.Graph).Descendants)
}

func (s *Service) relatives(ctx context.Context, tree *models.Tree, personID uint, pick func(*graph.Graph, uint) []uint) ([]models.Person, error) {
	people := []models.Person{}
	err := s.read(ctx, tree, func(tx *store.Store) error {
		if _, err := loadPerson(ctx, tx, tree, personID); err != nil {
			return err
		}
		g, err := loadGraph(ctx, tx, tree.ID)
		if err != nil {
			return err
		}
		ids := pick(g, personID)
		if len(ids) == 0 {
			return nil
		}
		people, err = store.FindByForeignKey[models.Person](ctx, tx, "id", ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	sortPeople(people)
	return people, nil
}
