package relations

import (
	"context"
	"sort"

	"github.com/familyships/familyships/pkg/familyships/graph"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/store"
)

// PersonView is a person with the ids of the families they belong to.
type PersonView struct {
	models.Person
	ParentIn []uint `json:"parent_in"`
	ChildOf  []uint `json:"child_of"`
}

// FamilyView is a family with the ids of its parents and children.
type FamilyView struct {
	models.Family
	Parents  []uint `json:"parents"`
	Children []uint `json:"children"`
}

// Snapshot is a consistent copy of a whole tree.
type Snapshot struct {
	TreeID   uint         `json:"tree_id"`
	Revision uint64       `json:"revision"`
	People   []PersonView `json:"people"`
	Families []FamilyView `json:"families"`
}

// Snapshot returns every person and family of the tree as of one revision.
func (s *Service) Snapshot(ctx context.Context, tree *models.Tree) (*Snapshot, error) {
	var snap *Snapshot
	err := s.read(ctx, tree, func(tx *store.Store) error {
		current, err := store.Get[models.Tree](ctx, tx, tree.ID)
		if err != nil {
			return err
		}
		people, err := store.FindByForeignKey[models.Person](ctx, tx, "tree_id", tree.ID)
		if err != nil {
			return err
		}
		families, err := store.FindByForeignKey[models.Family](ctx, tx, "tree_id", tree.ID)
		if err != nil {
			return err
		}
		g, err := loadGraph(ctx, tx, tree.ID)
		if err != nil {
			return err
		}

		sortPeople(people)
		snap = &Snapshot{
			TreeID:   current.ID,
			Revision: current.Revision,
			People:   make([]PersonView, 0, len(people)),
			Families: familyViews(families, g),
		}
		for _, p := range people {
			v := newPersonView(p)
			v.ParentIn = append(v.ParentIn, g.ParentIn(p.ID)...)
			v.ChildOf = append(v.ChildOf, g.ChildOf(p.ID)...)
			snap.People = append(snap.People, *v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func newPersonView(p models.Person) *PersonView {
	return &PersonView{Person: p, ParentIn: []uint{}, ChildOf: []uint{}}
}

func newFamilyView(f models.Family) *FamilyView {
	return &FamilyView{Family: f, Parents: []uint{}, Children: []uint{}}
}

func familyViews(families []models.Family, g *graph.Graph) []FamilyView {
	sort.Slice(families, func(i, j int) bool { return families[i].ID < families[j].ID })
	views := make([]FamilyView, 0, len(families))
	for _, f := range families {
		v := newFamilyView(f)
		v.Parents = append(v.Parents, g.FamilyParents(f.ID)...)
		v.Children = append(v.Children, g.FamilyChildren(f.ID)...)
		views = append(views, *v)
	}
	return views
}

func sortIDs(ids []uint) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortPeople(people []models.Person) {
	sort.Slice(people, func(i, j int) bool { return people[i].ID < people[j].ID })
}
