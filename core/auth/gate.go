// Package auth guards the administrative menu behind a shared secret.
// It is advisory access control for a single-user console, not a security boundary:
// anyone able to read the configuration can read the secret.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const DefaultMaxAttempts = 3

var (
	ErrNoSecret   = errors.New("admin password is not configured")
	// ErrAuthFailed is for callers that turn a failed Authenticate into an error.
	ErrAuthFailed = errors.New("authentication failed")
)

// Prompter asks the operator for the secret.
// attempt starts at 1; remaining counts the attempts left including this one.
type Prompter interface {
	ReadSecret(attempt, remaining int) (string, error)
}

// PrompterFunc adapts a function to a Prompter.
type PrompterFunc func(attempt, remaining int) (string, error)

func (f PrompterFunc) ReadSecret(attempt, remaining int) (string, error) { return f(attempt, remaining) }

type Gate struct {
	// Secret is either the plain password or its bcrypt hash.
	Secret      string
	MaxAttempts int
	// OnFailure is called after each wrong answer with the attempts left.
	OnFailure func(remaining int)
}

func NewGate(secret string, maxAttempts int) *Gate {
	return &Gate{Secret: secret, MaxAttempts: maxAttempts}
}

// Check compares answer with the secret in constant time.
func (g *Gate) Check(answer string) bool {
	if isBcryptHash(g.Secret) {
		return bcrypt.CompareHashAndPassword([]byte(g.Secret), []byte(answer)) == nil
	}
	want := sha256.Sum256([]byte(g.Secret))
	got := sha256.Sum256([]byte(answer))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

// Authenticate prompts until the secret is given or the attempts run out.
// An error from p aborts immediately.
func (g *Gate) Authenticate(p Prompter) (bool, error) {
	if g.Secret == "" {
		return false, ErrNoSecret
	}
	maxAttempts := g.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		answer, err := p.ReadSecret(attempt, maxAttempts-attempt+1)
		if err != nil {
			return false, errors.Wrap(err, "reading password")
		}
		if g.Check(strings.TrimRight(answer, "\r\n")) {
			return true, nil
		}
		if g.OnFailure != nil {
			g.OnFailure(maxAttempts - attempt)
		}
	}
	return false, nil
}

func isBcryptHash(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
