package relations

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/familyships/familyships/pkg/familyships/graph"
	"github.com/familyships/familyships/pkg/familyships/models"
	"github.com/familyships/familyships/pkg/familyships/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupSharedService opens a file-backed database with a real connection
// pool, so concurrent mutations contend on the tree lock.
func setupSharedService(t *testing.T) (*Service, *models.Tree) {
	dsn := filepath.Join(t.TempDir(), "trees.db") + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(4)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))

	s := store.New(db, 10*time.Second)
	tree := &models.Tree{}
	require.NoError(t, store.Save(context.Background(), s, tree))
	return NewService(s, nil), tree
}

func TestConcurrentAttachParentCannotJointlyCreateCycle(t *testing.T) {
	svc, tree := setupSharedService(t)
	ctx := context.Background()

	const iterations = 20
	for i := 0; i < iterations; i++ {
		a, err := svc.CreatePerson(ctx, tree, []string{"A"})
		require.NoError(t, err)
		b, err := svc.CreatePerson(ctx, tree, []string{"B"})
		require.NoError(t, err)
		f1, err := svc.CreateFamily(ctx, tree)
		require.NoError(t, err)
		f2, err := svc.CreateFamily(ctx, tree)
		require.NoError(t, err)

		// A is a child in F2 and B is a child in F1. Making A a parent in F1
		// and B a parent in F2 would make each the ancestor of the other.
		_, err = svc.AttachChild(ctx, tree, f2.ID, a.ID)
		require.NoError(t, err)
		_, err = svc.AttachChild(ctx, tree, f1.ID, b.ID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)
		attach := func(slot int, familyID, personID uint) {
			defer wg.Done()
			<-start
			_, errs[slot] = svc.AttachParent(ctx, tree, familyID, personID)
		}
		wg.Add(2)
		go attach(0, f1.ID, a.ID)
		go attach(1, f2.ID, b.ID)
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, graph.ErrWouldCreateCycle, "iteration %d", i)
		}
		assert.Equal(t, 1, succeeded, "iteration %d: exactly one attach must win", i)
	}

	// Rejected attaches roll back together with their revision bump
	snap, err := svc.Snapshot(ctx, tree)
	require.NoError(t, err)
	assert.Equal(t, uint64(iterations*7), snap.Revision)
}
