package student

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
)

// StatusFor derives the pass/fail status of grade against threshold.
func StatusFor(grade, threshold float64) Status {
	if grade >= threshold {
		return StatusPassed
	}
	return StatusFailed
}

type Student struct {
	Name          string  `json:"name"`
	Grade         float64 `json:"grade"`
	AccountNumber string  `json:"account_number"`
	Email         string  `json:"email"`

	// Status is recomputed from Grade on every read and never persisted.
	Status Status `json:"status"`
}

func (s Student) Passed() bool   { return s.Status == StatusPassed }
func (s Student) HasEmail() bool { return ValidEmail(s.Email) }

// CanonicalName is the lookup key of a student: trimmed and upper-cased.
func CanonicalName(name string) string {
	return core.CleanString(name, true /* upper */)
}

func ValidEmail(email string) bool {
	return strings.Contains(strings.TrimSpace(email), "@")
}

// NewStudent contains information needed to add a Student to the ledger.
type NewStudent struct {
	Name  string  `json:"name" validate:"notblank"`
	Grade float64 `json:"grade" validate:"gte=0,lte=10"`
	// AccountNumber is allocated when empty.
	AccountNumber string `json:"account_number" validate:"omitempty,acctnum"`
	Email         string `json:"email" validate:"omitempty,mailbox"`
}

func (ns *NewStudent) clean() {
	ns.Name = CanonicalName(ns.Name)
	ns.AccountNumber = core.CleanString(ns.AccountNumber)
	ns.Email = core.CleanString(ns.Email)
}

// Ledger is the ordered roster as held in memory and handed to a Store.
type Ledger struct {
	Students []Student
	// Retired lists account numbers of deleted students; they are never issued again.
	Retired []string
}

func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		Students: make([]Student, len(l.Students)),
		Retired:  make([]string, len(l.Retired)),
	}
	copy(c.Students, l.Students)
	copy(c.Retired, l.Retired)
	return c
}

func (l *Ledger) indexOf(name string) int {
	name = CanonicalName(name)
	for i, s := range l.Students {
		if CanonicalName(s.Name) == name {
			return i
		}
	}
	return -1
}

// checkUnique fails on the first repeated canonical name or account number.
func (l *Ledger) checkUnique() error {
	names := make(map[string]int, len(l.Students))
	accts := make(map[string]int, len(l.Students))
	for i, s := range l.Students {
		name := CanonicalName(s.Name)
		if j, dup := names[name]; dup {
			return errors.Wrapf(ErrDuplicateRow, "name %s in records %d and %d", name, j+1, i+1)
		}
		names[name] = i
		if s.AccountNumber == "" {
			continue
		}
		if j, dup := accts[s.AccountNumber]; dup {
			return errors.Wrapf(ErrDuplicateRow, "account %s in records %d and %d", s.AccountNumber, j+1, i+1)
		}
		accts[s.AccountNumber] = i
	}
	return nil
}

// issuedAccounts returns every account number present or retired.
func (l *Ledger) issuedAccounts() map[string]struct{} {
	issued := make(map[string]struct{}, len(l.Students)+len(l.Retired))
	for _, s := range l.Students {
		if s.AccountNumber != "" {
			issued[s.AccountNumber] = struct{}{}
		}
	}
	for _, acct := range l.Retired {
		issued[acct] = struct{}{}
	}
	return issued
}
