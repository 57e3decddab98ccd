package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	grandparent uint = 1
	parent      uint = 2
	child       uint = 3
	stranger    uint = 4

	upperFamily uint = 10 // grandparent -> parent
	lowerFamily uint = 20 // parent -> child
)

// threeGenerations builds grandparent -> parent -> child.
func threeGenerations() *Graph {
	g := New()
	g.AddParent(LinkKey{FamilyID: upperFamily, PersonID: grandparent})
	g.AddChild(LinkKey{FamilyID: upperFamily, PersonID: parent})
	g.AddParent(LinkKey{FamilyID: lowerFamily, PersonID: parent})
	g.AddChild(LinkKey{FamilyID: lowerFamily, PersonID: child})
	return g
}

func TestCanAttachChildAlreadyLinked(t *testing.T) {
	g := threeGenerations()

	err := g.CanAttachChild(lowerFamily, child)
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestCanAttachParentAlreadyLinked(t *testing.T) {
	g := threeGenerations()

	err := g.CanAttachParent(upperFamily, grandparent)
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestParentAndChildOfSameFamily(t *testing.T) {
	g := New()
	g.AddParent(LinkKey{FamilyID: 1, PersonID: 7})
	assert.ErrorIs(t, g.CanAttachChild(1, 7), ErrWouldCreateCycle)

	g = New()
	g.AddChild(LinkKey{FamilyID: 1, PersonID: 7})
	assert.ErrorIs(t, g.CanAttachParent(1, 7), ErrWouldCreateCycle)
}

func TestGrandchildCannotBecomeAncestor(t *testing.T) {
	g := threeGenerations()

	assert.ErrorIs(t, g.CanAttachParent(upperFamily, child), ErrWouldCreateCycle)
	assert.ErrorIs(t, g.CanAttachChild(lowerFamily, grandparent), ErrWouldCreateCycle)
	assert.ErrorIs(t, g.CanAttachChild(lowerFamily, parent), ErrWouldCreateCycle)
}

func TestAcyclicLinksAreAllowed(t *testing.T) {
	g := threeGenerations()

	// A second family for the grandchild is uncertain parentage, not a cycle.
	assert.NoError(t, g.CanAttachChild(upperFamily, child))
	assert.NoError(t, g.CanAttachParent(lowerFamily, stranger))
	assert.NoError(t, g.CanAttachChild(lowerFamily, stranger))
	assert.NoError(t, g.CanAttachParent(99, child))
}

func TestCycleCheckAcrossBranches(t *testing.T) {
	// 1 -> fam 10 -> 2 and 3; 3 -> fam 20 -> 4; 2 -> fam 30 -> 5.
	g := New()
	g.AddParent(LinkKey{FamilyID: 10, PersonID: 1})
	g.AddChild(LinkKey{FamilyID: 10, PersonID: 2})
	g.AddChild(LinkKey{FamilyID: 10, PersonID: 3})
	g.AddParent(LinkKey{FamilyID: 20, PersonID: 3})
	g.AddChild(LinkKey{FamilyID: 20, PersonID: 4})
	g.AddParent(LinkKey{FamilyID: 30, PersonID: 2})
	g.AddChild(LinkKey{FamilyID: 30, PersonID: 5})

	// Cousins may marry.
	assert.NoError(t, g.CanAttachParent(40, 4))
	assert.NoError(t, g.CanAttachParent(40, 5))
	assert.NoError(t, g.CanAttachChild(30, 4))

	assert.ErrorIs(t, g.CanAttachChild(20, 1), ErrWouldCreateCycle)
	assert.ErrorIs(t, g.CanAttachParent(10, 5), ErrWouldCreateCycle)
}

func TestRemoveLinks(t *testing.T) {
	g := threeGenerations()

	assert.True(t, g.RemoveChild(LinkKey{FamilyID: lowerFamily, PersonID: child}))
	assert.False(t, g.RemoveChild(LinkKey{FamilyID: lowerFamily, PersonID: child}))
	assert.False(t, g.IsReclaimable(lowerFamily))

	assert.True(t, g.RemoveParent(LinkKey{FamilyID: lowerFamily, PersonID: parent}))
	assert.True(t, g.IsReclaimable(lowerFamily))

	// Once the child link is gone the old grandchild may become an ancestor.
	assert.NoError(t, g.CanAttachParent(upperFamily, child))
}

func TestRemovePersonReportsTouchedFamilies(t *testing.T) {
	g := threeGenerations()

	families := g.RemovePerson(parent)
	require.Equal(t, []uint{upperFamily, lowerFamily}, families)

	assert.False(t, g.IsReclaimable(upperFamily))
	assert.False(t, g.IsReclaimable(lowerFamily))
	assert.Empty(t, g.Parents(child))
	assert.Empty(t, g.Children(grandparent))
}

func TestRemoveFamily(t *testing.T) {
	g := threeGenerations()

	g.RemoveFamily(lowerFamily)
	assert.True(t, g.IsReclaimable(lowerFamily))
	assert.Empty(t, g.Descendants(parent))
	assert.Equal(t, []uint{parent}, g.Descendants(grandparent))
}

func TestIsReclaimableUnknownFamily(t *testing.T) {
	assert.True(t, New().IsReclaimable(123))
}

func TestRelatives(t *testing.T) {
	g := threeGenerations()
	g.AddParent(LinkKey{FamilyID: lowerFamily, PersonID: stranger})

	assert.Equal(t, []uint{parent, stranger}, g.Parents(child))
	assert.Equal(t, []uint{child}, g.Children(stranger))
	assert.Equal(t, []uint{grandparent, parent, stranger}, g.Ancestors(child))
	assert.Equal(t, []uint{parent, child}, g.Descendants(grandparent))
	assert.Equal(t, []uint{parent, stranger}, g.FamilyParents(lowerFamily))
	assert.Equal(t, []uint{child}, g.FamilyChildren(lowerFamily))
	assert.Empty(t, g.Ancestors(grandparent))
}
