package inmemdb

import (
	"sync"

	"github.com/trezcool/gradebook/core/student"
)

type (
	DB struct {
		ledger *ledgerTable
	}

	ledgerTable struct {
		mutex    sync.RWMutex
		students []student.Student
		retired  []string
	}
)

func Open() (*DB, error) {
	db := &DB{
		ledger: &ledgerTable{},
	}
	return db, nil
}
