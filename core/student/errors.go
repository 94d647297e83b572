package student

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound           = errors.New("student not found")
	ErrDuplicateName      = errors.New("a student with this name already exists")
	ErrDuplicateAccount   = errors.New("this account number is already issued")
	ErrInvalidGrade       = errors.New("grade must be between 0 and 10")
	ErrInvalidStudent     = errors.New("invalid student")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidDomain      = errors.New("invalid email domain")
	ErrAllocatorExhausted = errors.New("no account numbers left to allocate")
	ErrEmptyLedger        = errors.New("no students registered")
	ErrNotConfirmed       = errors.New("deletion not confirmed")
	ErrDuplicateRow       = errors.New("ledger lists the same student twice")
)

// PersistError reports that a mutation was applied in memory but could not be saved.
// The service stays dirty until a later save succeeds.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: changes kept in memory but not saved: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// LoadError reports that a ledger source is missing or malformed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func IsPersist(err error) bool {
	var perr *PersistError
	return errors.As(err, &perr)
}

func IsLoad(err error) bool {
	var lerr *LoadError
	return errors.As(err, &lerr)
}
