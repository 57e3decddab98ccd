// Package ownership maps authenticated identities to the tree they own and
// decides whether an entity belongs to a caller's tree.
package ownership

import (
	"context"
	"errors"
	"fmt"

	"github.com/familyships/familyships/pkg/familyships/identity"
	"github.com/familyships/familyships/pkg/familyships/metrics"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Member is anything that lives in exactly one tree.
type Member interface {
	OwnerTreeID() uint
}

// Gate resolves trees for identities.
type Gate struct {
	store  *store.Store
	logger *zap.Logger
	group  singleflight.Group
}

// NewGate creates a new ownership gate
func NewGate(s *store.Store, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: s, logger: logger}
}

// Authorize reports whether the entity belongs to the tree.
func Authorize(tree *models.Tree, m Member) bool {
	return tree != nil && m != nil && m.OwnerTreeID() == tree.ID
}

// Authorize reports whether the entity belongs to the tree.
func (g *Gate) Authorize(tree *models.Tree, m Member) bool {
	return Authorize(tree, m)
}

// ResolveTree returns the caller's tree, creating it together with the
// identity record on first login. Concurrent first logins for the same
// identity all receive the same tree.
func (g *Gate) ResolveTree(ctx context.Context, id identity.Identity) (*models.Tree, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	// Joined callers share one resolution, so it must outlive the request
	// that happened to start it.
	key := string(id.Provider) + ":" + id.ExternalID
	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.store.Timeout())
		defer cancel()
		return g.resolve(shared, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Tree), nil
}

func (g *Gate) resolve(ctx context.Context, id identity.Identity) (*models.Tree, error) {
	ui, err := g.findIdentity(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		ui, err = g.provision(ctx, id)
		if errors.Is(err, store.ErrDuplicate) {
			// Another process won the race on the unique index
			ui, err = g.findIdentity(ctx, id)
		}
	}
	if err != nil {
		return nil, err
	}

	if id.DisplayName != "" && id.DisplayName != ui.DisplayName {
		ui.DisplayName = id.DisplayName
		if err := store.Save(ctx, g.store, ui); err != nil {
			g.logger.Warn("failed to refresh display name",
				zap.Uint("identity_id", ui.ID), zap.Error(err))
		}
	}

	tree, err := store.Get[models.Tree](ctx, g.store, ui.TreeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %d: %w", ui.TreeID, err)
	}
	return tree, nil
}

func (g *Gate) findIdentity(ctx context.Context, id identity.Identity) (*models.UserIdentity, error) {
	return store.First[models.UserIdentity](ctx, g.store, map[string]any{
		"provider":    string(id.Provider),
		"external_id": id.ExternalID,
	})
}

// provision creates the tree and then the identity that owns it.
func (g *Gate) provision(ctx context.Context, id identity.Identity) (*models.UserIdentity, error) {
	var ui *models.UserIdentity
	err := g.store.Transaction(ctx, func(tx *store.Store) error {
		tree := &models.Tree{}
		if err := store.Save(ctx, tx, tree); err != nil {
			return err
		}
		ui = &models.UserIdentity{
			Provider:    string(id.Provider),
			ExternalID:  id.ExternalID,
			DisplayName: id.DisplayName,
			TreeID:      tree.ID,
		}
		return store.Create(ctx, tx, ui)
	})
	if err != nil {
		return nil, err
	}

	metrics.TreesProvisioned.Inc()
	g.logger.Info("provisioned tree",
		zap.String("provider", ui.Provider),
		zap.String("external_id", ui.ExternalID),
		zap.Uint("tree_id", ui.TreeID))
	return ui, nil
}

// Identity returns the stored identity record for id, if any.
func (g *Gate) Identity(ctx context.Context, id identity.Identity) (*models.UserIdentity, error) {
	return g.findIdentity(ctx, id)
}
