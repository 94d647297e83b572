package inmemdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/student"
)

var ErrSaveFailed = errors.New("in-memory store is refusing writes")

// StudentStore keeps the ledger in process memory.
type StudentStore struct {
	db *ledgerTable
	// FailSaves makes every Save fail, to exercise unsaved-change handling.
	FailSaves bool
	saves     int
}

var _ student.Store = (*StudentStore)(nil)

func NewStudentStore(db *DB) *StudentStore {
	return &StudentStore{db: db.ledger}
}

func (repo *StudentStore) Load(context.Context) (*student.Ledger, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	l := &student.Ledger{Students: repo.db.students, Retired: repo.db.retired}
	return l.Clone(), nil
}

func (repo *StudentStore) Save(_ context.Context, l *student.Ledger) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.FailSaves {
		return ErrSaveFailed
	}
	c := l.Clone()
	repo.db.students, repo.db.retired = c.Students, c.Retired
	repo.saves++
	return nil
}

// Saves counts successful saves.
func (repo *StudentStore) Saves() int {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.saves
}
