package ownership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/familyships/familyships/pkg/familyships/identity"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *store.Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))
	return store.New(db, 5*time.Second)
}

var alice = identity.Identity{ExternalID: "alice-sub", Provider: identity.ProviderGoogle, DisplayName: "Alice"}

func TestResolveTreeCreatesOnFirstLogin(t *testing.T) {
	s := setupTestStore(t)
	gate := NewGate(s, zaptest.NewLogger(t))
	ctx := context.Background()

	tree, err := gate.ResolveTree(ctx, alice)
	require.NoError(t, err)
	require.NotZero(t, tree.ID)

	again, err := gate.ResolveTree(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, tree.ID, again.ID)

	count, err := store.CountByForeignKey[models.UserIdentity](ctx, s, "external_id", "alice-sub")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestResolveTreeSeparatesProviders(t *testing.T) {
	s := setupTestStore(t)
	gate := NewGate(s, nil)
	ctx := context.Background()

	google, err := gate.ResolveTree(ctx, identity.Identity{ExternalID: "octo", Provider: identity.ProviderGoogle})
	require.NoError(t, err)
	github, err := gate.ResolveTree(ctx, identity.Identity{ExternalID: "octo", Provider: identity.ProviderGitHub})
	require.NoError(t, err)

	assert.NotEqual(t, google.ID, github.ID)
}

func TestResolveTreeRejectsInvalidIdentity(t *testing.T) {
	gate := NewGate(setupTestStore(t), nil)

	_, err := gate.ResolveTree(context.Background(), identity.Identity{Provider: identity.ProviderGoogle})
	assert.ErrorIs(t, err, identity.ErrInvalid)
}

func TestResolveTreeRefreshesDisplayName(t *testing.T) {
	s := setupTestStore(t)
	gate := NewGate(s, nil)
	ctx := context.Background()

	_, err := gate.ResolveTree(ctx, alice)
	require.NoError(t, err)

	renamed := alice
	renamed.DisplayName = "Alice B."
	_, err = gate.ResolveTree(ctx, renamed)
	require.NoError(t, err)

	ui, err := gate.Identity(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice B.", ui.DisplayName)
}

func TestConcurrentFirstLogin(t *testing.T) {
	s := setupTestStore(t)
	// Two gates stand in for two server processes sharing one database.
	gates := []*Gate{NewGate(s, nil), NewGate(s, nil)}
	ctx := context.Background()

	const callers = 8
	ids := make([]uint, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tree, err := gates[i%2].ResolveTree(ctx, alice)
			errs[i] = err
			if err == nil {
				ids[i] = tree.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	trees, err := store.CountByForeignKey[models.UserIdentity](ctx, s, "provider", "google")
	require.NoError(t, err)
	assert.Equal(t, int64(1), trees)
}

func TestDuplicateProvisionRollsBack(t *testing.T) {
	s := setupTestStore(t)
	gate := NewGate(s, nil)
	ctx := context.Background()

	_, err := gate.provision(ctx, alice)
	require.NoError(t, err)

	_, err = gate.provision(ctx, alice)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	var trees int64
	require.NoError(t, s.Transaction(ctx, func(tx *store.Store) error {
		var err error
		trees, err = store.CountByForeignKey[models.Tree](ctx, tx, "revision", 0)
		return err
	}))
	assert.Equal(t, int64(1), trees, "losing provision must not leave an orphan tree")

	tree, err := gate.ResolveTree(ctx, alice)
	require.NoError(t, err)
	assert.NotZero(t, tree.ID)
}

func TestAuthorize(t *testing.T) {
	tree := &models.Tree{ID: 1}

	assert.True(t, Authorize(tree, &models.Person{TreeID: 1}))
	assert.False(t, Authorize(tree, &models.Person{TreeID: 2}))
	assert.True(t, Authorize(tree, &models.Family{TreeID: 1}))
	assert.False(t, Authorize(nil, &models.Family{TreeID: 1}))
}

func TestResolveTreeSurvivesCallerCancellation(t *testing.T) {
	s := setupTestStore(t)
	gate := NewGate(s, nil)

	// The resolution is shared with joined callers, so a caller that has
	// gone away must not fail it for them.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tree, err := gate.ResolveTree(ctx, alice)
	require.NoError(t, err)

	again, err := gate.ResolveTree(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, tree.ID, again.ID)
}
