// Package graph holds the structural rules of a family tree.
//
// A tree is a directed graph with two node kinds. A person points at every
// family they are a parent in, and a family points at each of its children:
//
//	person --parent link--> family --child link--> person
//
// A person's descendants are everything reachable from them; a new link is
// only allowed if it leaves the graph acyclic. The package does no I/O. The
// caller loads a tree's links, asks for a verdict, and applies the change.
//
// Graph is not safe for concurrent use.
package graph

import (
	"fmt"
	"sort"
)

// LinkKey identifies one link between a family and a person. A graph holds at
// most one parent link and one child link per key.
type LinkKey struct {
	FamilyID uint
	PersonID uint
}

type set map[uint]struct{}

func (s set) add(id uint) { s[id] = struct{}{} }

func (s set) sorted() []uint {
	ids := make([]uint, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Graph is an in-memory view of one tree's links.
type Graph struct {
	parentLinks map[LinkKey]struct{}
	childLinks  map[LinkKey]struct{}

	familyParents  map[uint]set // family -> parents
	familyChildren map[uint]set // family -> children
	parentIn       map[uint]set // person -> families they parent
	childIn        map[uint]set // person -> families they are a child of
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		parentLinks:    make(map[LinkKey]struct{}),
		childLinks:     make(map[LinkKey]struct{}),
		familyParents:  make(map[uint]set),
		familyChildren: make(map[uint]set),
		parentIn:       make(map[uint]set),
		childIn:        make(map[uint]set),
	}
}

// AddParent records a parent link without validation. Use CanAttachParent
// first when the link comes from a caller.
func (g *Graph) AddParent(k LinkKey) {
	g.parentLinks[k] = struct{}{}
	link(g.familyParents, k.FamilyID, k.PersonID)
	link(g.parentIn, k.PersonID, k.FamilyID)
}

// AddChild records a child link without validation.
func (g *Graph) AddChild(k LinkKey) {
	g.childLinks[k] = struct{}{}
	link(g.familyChildren, k.FamilyID, k.PersonID)
	link(g.childIn, k.PersonID, k.FamilyID)
}

// RemoveParent drops a parent link. It reports whether the link existed.
func (g *Graph) RemoveParent(k LinkKey) bool {
	if _, ok := g.parentLinks[k]; !ok {
		return false
	}
	delete(g.parentLinks, k)
	unlink(g.familyParents, k.FamilyID, k.PersonID)
	unlink(g.parentIn, k.PersonID, k.FamilyID)
	return true
}

// RemoveChild drops a child link. It reports whether the link existed.
func (g *Graph) RemoveChild(k LinkKey) bool {
	if _, ok := g.childLinks[k]; !ok {
		return false
	}
	delete(g.childLinks, k)
	unlink(g.familyChildren, k.FamilyID, k.PersonID)
	unlink(g.childIn, k.PersonID, k.FamilyID)
	return true
}

// RemovePerson drops every link of a person and returns the families that
// lost a link, in ascending order.
func (g *Graph) RemovePerson(personID uint) []uint {
	touched := make(set)
	for famID := range g.parentIn[personID] {
		touched.add(famID)
	}
	for famID := range g.childIn[personID] {
		touched.add(famID)
	}
	families := touched.sorted()
	for _, famID := range families {
		g.RemoveParent(LinkKey{FamilyID: famID, PersonID: personID})
		g.RemoveChild(LinkKey{FamilyID: famID, PersonID: personID})
	}
	return families
}

// RemoveFamily drops every link of a family.
func (g *Graph) RemoveFamily(familyID uint) {
	for _, p := range g.familyParents[familyID].sorted() {
		g.RemoveParent(LinkKey{FamilyID: familyID, PersonID: p})
	}
	for _, c := range g.familyChildren[familyID].sorted() {
		g.RemoveChild(LinkKey{FamilyID: familyID, PersonID: c})
	}
}

// HasParent reports whether the parent link exists.
func (g *Graph) HasParent(k LinkKey) bool {
	_, ok := g.parentLinks[k]
	return ok
}

// HasChild reports whether the child link exists.
func (g *Graph) HasChild(k LinkKey) bool {
	_, ok := g.childLinks[k]
	return ok
}

// CanAttachChild decides whether personID may become a child of familyID.
//
// The new edge runs family -> person, so it closes a cycle exactly when the
// person already reaches the family: they are one of its parents, or one of
// its parents descends from them.
func (g *Graph) CanAttachChild(familyID, personID uint) error {
	if g.HasChild(LinkKey{FamilyID: familyID, PersonID: personID}) {
		return ErrAlreadyLinked
	}
	if g.reachesFamily(personID, familyID) {
		return fmt.Errorf("%w: person %d is an ancestor of family %d", ErrWouldCreateCycle, personID, familyID)
	}
	return nil
}

// CanAttachParent decides whether personID may become a parent in familyID.
// The new edge runs person -> family, so it closes a cycle exactly when the
// family already reaches the person.
func (g *Graph) CanAttachParent(familyID, personID uint) error {
	if g.HasParent(LinkKey{FamilyID: familyID, PersonID: personID}) {
		return ErrAlreadyLinked
	}
	for child := range g.familyChildren[familyID] {
		if child == personID || g.isDescendant(personID, child) {
			return fmt.Errorf("%w: person %d descends from family %d", ErrWouldCreateCycle, personID, familyID)
		}
	}
	return nil
}

// IsReclaimable reports whether a family has neither parents nor children.
func (g *Graph) IsReclaimable(familyID uint) bool {
	return len(g.familyParents[familyID]) == 0 && len(g.familyChildren[familyID]) == 0
}

// FamilyParents returns the parents of a family in ascending id order.
func (g *Graph) FamilyParents(familyID uint) []uint {
	return g.familyParents[familyID].sorted()
}

// FamilyChildren returns the children of a family in ascending id order.
func (g *Graph) FamilyChildren(familyID uint) []uint {
	return g.familyChildren[familyID].sorted()
}

// ParentIn returns the families the person is a parent in.
func (g *Graph) ParentIn(personID uint) []uint {
	return g.parentIn[personID].sorted()
}

// ChildOf returns the families the person is a child of.
func (g *Graph) ChildOf(personID uint) []uint {
	return g.childIn[personID].sorted()
}

// Parents returns the parents of every family the person is a child of.
func (g *Graph) Parents(personID uint) []uint {
	out := make(set)
	for famID := range g.childIn[personID] {
		for p := range g.familyParents[famID] {
			out.add(p)
		}
	}
	return out.sorted()
}

// Children returns the children of every family the person is a parent in.
func (g *Graph) Children(personID uint) []uint {
	out := make(set)
	for famID := range g.parentIn[personID] {
		for c := range g.familyChildren[famID] {
			out.add(c)
		}
	}
	return out.sorted()
}

// Ancestors returns every person the given person descends from.
func (g *Graph) Ancestors(personID uint) []uint {
	return g.walk(personID, g.Parents)
}

// Descendants returns every person descending from the given person.
func (g *Graph) Descendants(personID uint) []uint {
	return g.walk(personID, g.Children)
}

// walk collects everyone reachable from start through next, excluding start.
func (g *Graph) walk(start uint, next func(uint) []uint) []uint {
	visited := set{start: {}}
	out := make(set)
	stack := []uint{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range next(cur) {
			if _, seen := visited[n]; seen {
				continue
			}
			visited.add(n)
			out.add(n)
			stack = append(stack, n)
		}
	}
	return out.sorted()
}

// isDescendant reports whether target is reachable from start through
// parent-then-child links.
func (g *Graph) isDescendant(target, start uint) bool {
	visited := set{start: {}}
	stack := []uint{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for famID := range g.parentIn[cur] {
			for c := range g.familyChildren[famID] {
				if c == target {
					return true
				}
				if _, seen := visited[c]; !seen {
					visited.add(c)
					stack = append(stack, c)
				}
			}
		}
	}
	return false
}

// reachesFamily reports whether a path leads from the person to the family.
func (g *Graph) reachesFamily(personID, familyID uint) bool {
	visited := set{personID: {}}
	stack := []uint{personID}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for famID := range g.parentIn[cur] {
			if famID == familyID {
				return true
			}
			for c := range g.familyChildren[famID] {
				if _, seen := visited[c]; !seen {
					visited.add(c)
					stack = append(stack, c)
				}
			}
		}
	}
	return false
}

func link(m map[uint]set, from, to uint) {
	s, ok := m[from]
	if !ok {
		s = make(set)
		m[from] = s
	}
	s.add(to)
}

func unlink(m map[uint]set, from, to uint) {
	s, ok := m[from]
	if !ok {
		return
	}
	delete(s, to)
	if len(s) == 0 {
		delete(m, from)
	}
}
