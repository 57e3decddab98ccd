package relations

import (
	"context"
	"fmt"
	"time"

	"github.com/familyships/familyships/pkg/familyships/graph"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/store"
	"go.uber.org/zap"
)

// DocumentVersion is the export format written by Export.
const DocumentVersion = 1

// Document is a self-contained copy of a tree. Ids are local to the
// document; families reference people by those ids.
type Document struct {
	Version    int         `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	People     []DocPerson `json:"people"`
	Families   []DocFamily `json:"families"`
}

// DocPerson is a person in a Document.
type DocPerson struct {
	ID    uint     `json:"id"`
	Names []string `json:"names"`
}

// DocFamily is a family in a Document.
type DocFamily struct {
	ID       uint   `json:"id"`
	Parents  []uint `json:"parents"`
	Children []uint `json:"children"`
}

// ImportResult maps document ids to the ids created by Import.
type ImportResult struct {
	People   map[uint]uint `json:"people"`
	Families map[uint]uint `json:"families"`
}

// Export returns the tree as a Document.
func (s *Service) Export(ctx context.Context, tree *models.Tree) (*Document, error) {
	snap, err := s.Snapshot(ctx, tree)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Version:    DocumentVersion,
		ExportedAt: time.Now().UTC(),
		People:     make([]DocPerson, 0, len(snap.People)),
		Families:   make([]DocFamily, 0, len(snap.Families)),
	}
	for _, p := range snap.People {
		doc.People = append(doc.People, DocPerson{ID: p.ID, Names: p.Names})
	}
	for _, f := range snap.Families {
		doc.Families = append(doc.Families, DocFamily{ID: f.ID, Parents: f.Parents, Children: f.Children})
	}
	return doc, nil
}

// Import adds the document's people and families to the tree as new
// records. Every link is checked by the invariant engine; any failure rolls
// back the whole import.
func (s *Service) Import(ctx context.Context, tree *models.Tree, doc *Document) (*ImportResult, error) {
	if err := s.validateDocument(doc); err != nil {
		return nil, err
	}

	result := &ImportResult{
		People:   make(map[uint]uint, len(doc.People)),
		Families: make(map[uint]uint, len(doc.Families)),
	}
	err := s.mutate(ctx, "import", tree, func(tx *store.Store) error {
		g, err := loadGraph(ctx, tx, tree.ID)
		if err != nil {
			return err
		}

		for _, dp := range doc.People {
			p := &models.Person{TreeID: tree.ID, Names: dp.Names}
			if err := store.Save(ctx, tx, p); err != nil {
				return err
			}
			result.People[dp.ID] = p.ID
		}

		for _, df := range doc.Families {
			f := &models.Family{TreeID: tree.ID}
			if err := store.Save(ctx, tx, f); err != nil {
				return err
			}
			result.Families[df.ID] = f.ID

			for _, ref := range df.Parents {
				key := graph.LinkKey{FamilyID: f.ID, PersonID: result.People[ref]}
				if err := g.CanAttachParent(key.FamilyID, key.PersonID); err != nil {
					return fmt.Errorf("family %d parent %d: %w", df.ID, ref, err)
				}
				if err := store.Create(ctx, tx, &models.FamilyParent{FamilyID: key.FamilyID, ParentID: key.PersonID}); err != nil {
					return err
				}
				g.AddParent(key)
			}
			for _, ref := range df.Children {
				key := graph.LinkKey{FamilyID: f.ID, PersonID: result.People[ref]}
				if err := g.CanAttachChild(key.FamilyID, key.PersonID); err != nil {
					return fmt.Errorf("family %d child %d: %w", df.ID, ref, err)
				}
				if err := store.Create(ctx, tx, &models.FamilyChild{FamilyID: key.FamilyID, ChildID: key.PersonID}); err != nil {
					return err
				}
				g.AddChild(key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("imported document",
		zap.Uint("tree_id", tree.ID),
		zap.Int("people", len(result.People)),
		zap.Int("families", len(result.Families)))
	return result, nil
}

// validateDocument checks the document before anything is written.
func (s *Service) validateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidInput)
	}
	if doc.Version != 0 && doc.Version != DocumentVersion {
		return fmt.Errorf("%w: unsupported document version %d", ErrInvalidInput, doc.Version)
	}

	people := make(map[uint]bool, len(doc.People))
	for i, p := range doc.People {
		if people[p.ID] {
			return fmt.Errorf("%w: person %d appears twice", ErrInvalidInput, p.ID)
		}
		if err := s.ValidateNames(p.Names); err != nil {
			return fmt.Errorf("person at index %d: %w", i, err)
		}
		people[p.ID] = true
	}

	families := make(map[uint]bool, len(doc.Families))
	for _, f := range doc.Families {
		if families[f.ID] {
			return fmt.Errorf("%w: family %d appears twice", ErrInvalidInput, f.ID)
		}
		families[f.ID] = true
		for _, ref := range append(append([]uint(nil), f.Parents...), f.Children...) {
			if !people[ref] {
				return fmt.Errorf("%w: family %d references unknown person %d", ErrInvalidInput, f.ID, ref)
			}
		}
	}
	return nil
}
