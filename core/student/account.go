package student

import (
	"crypto/rand"
	"math/big"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

const (
	AccountPrefix      = "3240"
	accountSuffixMin   = 10000
	accountSpace       = 90000 // suffixes in [10000, 99999]
	DefaultMaxAttempts = 10000
)

var randIntFunc = defaultRandInt // mockable

// defaultRandInt returns a uniform random int in [0, n).
func defaultRandInt(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

func IsAccountNumber(s string) bool {
	return core.AccountNumberRegex.MatchString(s)
}

type Allocator struct {
	MaxAttempts int
}

func NewAllocator() *Allocator {
	return &Allocator{MaxAttempts: DefaultMaxAttempts}
}

// Allocate draws account numbers until one is absent from existing.
func (a *Allocator) Allocate(existing map[string]struct{}) (string, error) {
	var inSpace int
	for acct := range existing {
		if IsAccountNumber(acct) {
			inSpace++
		}
	}
	if inSpace >= accountSpace {
		return "", ErrAllocatorExhausted
	}

	maxAttempts := a.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		n, err := randIntFunc(accountSpace)
		if err != nil {
			return "", errors.Wrap(err, "drawing account number")
		}
		candidate := AccountPrefix + strconv.FormatInt(accountSuffixMin+n, 10)
		if _, taken := existing[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", ErrAllocatorExhausted
}
