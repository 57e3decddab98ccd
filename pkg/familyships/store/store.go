// Package store is the entity store for trees, people, families and their
// links. It wraps gorm with a small keyed contract (get, save, delete,
// find-by-foreign-key) and a transaction helper that the relations service
// builds its atomic operations on.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("duplicate key")

	// ErrUnavailable is returned for backend failures, timeouts and lock
	// contention. The enclosing transaction has been rolled back and the
	// caller may retry the request.
	ErrUnavailable = errors.New("store unavailable")
)

// DefaultTimeout bounds a single store call or transaction.
const DefaultTimeout = 5 * time.Second

// Store is a gorm-backed entity store. A Store handed to a Transaction
// callback is bound to that transaction.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
	inTx    bool
}

// New creates a store over db. Non-positive timeouts fall back to DefaultTimeout.
func New(db *gorm.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

// Timeout returns the deadline applied to each store call.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// session returns a handle bound to ctx. Outside a transaction every call
// gets its own deadline; inside one the transaction deadline applies.
func (s *Store) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.inTx {
		return s.db, func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

// Transaction runs fn atomically. Either every write made through tx commits
// or none does. Errors returned by fn are passed through unchanged; failures
// to begin or commit surface as ErrUnavailable. Nested calls join the
// enclosing transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&Store{db: tx, timeout: s.timeout, inTx: true})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return translate(err)
}

// Get loads the record of type T with the given primary key.
func Get[T any](ctx context.Context, s *Store, id uint) (*T, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var rec T
	if err := db.First(&rec, id).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// Save inserts rec when its primary key is zero (assigning the key) and
// updates it otherwise. Associations are never written implicitly.
func Save[T any](ctx context.Context, s *Store, rec *T) error {
	db, cancel := s.session(ctx)
	defer cancel()

	return translate(db.Omit(clause.Associations).Save(rec).Error)
}

// Create inserts rec. An existing record with the same key yields ErrDuplicate.
func Create[T any](ctx context.Context, s *Store, rec *T) error {
	db, cancel := s.session(ctx)
	defer cancel()

	return translate(db.Omit(clause.Associations).Create(rec).Error)
}

// Delete removes the record of type T with the given primary key.
// Deleting an absent record reports ErrNotFound.
func Delete[T any](ctx context.Context, s *Store, id uint) error {
	db, cancel := s.session(ctx)
	defer cancel()

	res := db.Delete(new(T), id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWhere removes every record of type T matching the condition and
// returns how many were removed.
func DeleteWhere[T any](ctx context.Context, s *Store, query string, args ...any) (int64, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	res := db.Where(query, args...).Delete(new(T))
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// FindByForeignKey returns every record of type T whose field equals value.
// A slice value matches any of its elements.
func FindByForeignKey[T any](ctx context.Context, s *Store, field string, value any) ([]T, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var recs []T
	err := db.Where(clause.Eq{Column: clause.Column{Name: field}, Value: value}).Find(&recs).Error
	if err != nil {
		return nil, translate(err)
	}
	return recs, nil
}

// First returns the first record of type T matching every column in conds.
func First[T any](ctx context.Context, s *Store, conds map[string]any) (*T, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var rec T
	if err := db.Where(conds).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// CountByForeignKey counts the records of type T whose field equals value.
func CountByForeignKey[T any](ctx context.Context, s *Store, field string, value any) (int64, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var count int64
	err := db.Model(new(T)).Where(clause.Eq{Column: clause.Column{Name: field}, Value: value}).Count(&count).Error
	if err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicate), errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// Ping checks that the backing database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return translate(err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return translate(sqlDB.PingContext(ctx))
}
