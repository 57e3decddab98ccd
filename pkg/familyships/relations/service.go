// Package relations implements the operations that change a family tree.
//
// Every operation runs in one store transaction scoped to the caller's tree.
// Mutations begin by bumping the tree revision, which serializes them per
// tree, then load and authorize their targets, consult the graph engine and
// only then write. A failed precondition leaves the store untouched.
package relations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/familyships/familyships/pkg/familyships/graph"
	"github.com/familyships/familyships/pkg/familyships/metrics"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/ownership"
	"github.com/familyships/familyships/pkg/familyships/store"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	// ErrNotAuthorized is returned when a target exists in another tree.
	// Callers must report it exactly like a missing record.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidInput is returned when request data fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

const namesRule = "required,min=1,max=32,dive,nonblank,max=200"

// Service applies relationship operations to trees.
type Service struct {
	store    *store.Store
	logger   *zap.Logger
	validate *validator.Validate
}

// NewService creates a new relations service
func NewService(s *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &Service{store: s, logger: logger, validate: v}
}

// ValidateNames checks an ordered name list.
func (s *Service) ValidateNames(names []string) error {
	if err := s.validate.Var(names, namesRule); err != nil {
		return fmt.Errorf("%w: names must be a non-empty list of non-blank strings", ErrInvalidInput)
	}
	return nil
}

// mutate runs fn in a transaction holding the tree lock and records metrics.
func (s *Service) mutate(ctx context.Context, op string, tree *models.Tree, fn func(tx *store.Store) error) error {
	if tree == nil {
		return fmt.Errorf("%w: no tree", ErrNotAuthorized)
	}
	start := time.Now()
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := tx.LockTree(ctx, tree.ID); err != nil {
			return err
		}
		return fn(tx)
	})
	metrics.MutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.MutationsTotal.WithLabelValues(op, outcome(err)).Inc()

	switch {
	case err == nil:
		s.logger.Debug("tree mutated", zap.String("operation", op), zap.Uint("tree_id", tree.ID))
	case errors.Is(err, store.ErrUnavailable):
		s.logger.Error("tree mutation failed",
			zap.String("operation", op), zap.Uint("tree_id", tree.ID), zap.Error(err))
	default:
		s.logger.Debug("tree mutation rejected",
			zap.String("operation", op), zap.Uint("tree_id", tree.ID), zap.Error(err))
	}
	return err
}

// read runs fn in a transaction without taking the tree lock.
func (s *Service) read(ctx context.Context, tree *models.Tree, fn func(tx *store.Store) error) error {
	if tree == nil {
		return fmt.Errorf("%w: no tree", ErrNotAuthorized)
	}
	return s.store.Transaction(ctx, fn)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrUnavailable):
		return "error"
	default:
		return "rejected"
	}
}

func loadPerson(ctx context.Context, tx *store.Store, tree *models.Tree, id uint) (*models.Person, error) {
	p, err := store.Get[models.Person](ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !ownership.Authorize(tree, p) {
		return nil, fmt.Errorf("%w: person %d", ErrNotAuthorized, id)
	}
	return p, nil
}

func loadFamily(ctx context.Context, tx *store.Store, tree *models.Tree, id uint) (*models.Family, error) {
	f, err := store.Get[models.Family](ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !ownership.Authorize(tree, f) {
		return nil, fmt.Errorf("%w: family %d", ErrNotAuthorized, id)
	}
	return f, nil
}

// loadGraph seeds the invariant engine with every link of the tree.
func loadGraph(ctx context.Context, tx *store.Store, treeID uint) (*graph.Graph, error) {
	parents, children, err := tx.TreeLinks(ctx, treeID)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	for _, l := range parents {
		g.AddParent(graph.LinkKey{FamilyID: l.FamilyID, PersonID: l.ParentID})
	}
	for _, l := range children {
		g.AddChild(graph.LinkKey{FamilyID: l.FamilyID, PersonID: l.ChildID})
	}
	return g, nil
}

// reclaimIfEmpty deletes the family when no link references it any more.
func reclaimIfEmpty(ctx context.Context, tx *store.Store, familyID uint) (bool, error) {
	parents, err := store.CountByForeignKey[models.FamilyParent](ctx, tx, "family_id", familyID)
	if err != nil {
		return false, err
	}
	children, err := store.CountByForeignKey[models.FamilyChild](ctx, tx, "family_id", familyID)
	if err != nil {
		return false, err
	}
	if parents > 0 || children > 0 {
		return false, nil
	}
	if err := store.Delete[models.Family](ctx, tx, familyID); err != nil {
		return false, err
	}
	return true, nil
}
