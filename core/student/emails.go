package student

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/trezcool/gradebook/core"
)

func (svc *Service) SetEmail(ctx context.Context, name, email string) (Student, error) {
	email = core.CleanString(email)
	if err := svc.validate.Var(email, "mailbox"); err != nil {
		return Student{}, core.NewValidationError(ErrInvalidEmail, core.FieldError{Field: "email", Error: ErrInvalidEmail.Error()})
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	idx := svc.ledger.indexOf(name)
	if idx < 0 {
		return Student{}, ErrNotFound
	}
	svc.ledger.Students[idx].Email = email
	std := svc.ledger.Students[idx]
	svc.logger.Info("email updated", std)
	return svc.view(std), svc.persist(ctx, "set email")
}

// GenerateEmails gives every student without a valid address one built from their name at domain.
// It returns how many addresses were generated.
func (svc *Service) GenerateEmails(ctx context.Context, domain string) (int, error) {
	domain = strings.ToLower(strings.TrimPrefix(core.CleanString(domain), "@"))
	if domain == "" || strings.ContainsAny(domain, "@ ") || !strings.Contains(domain, ".") {
		return 0, core.NewValidationError(ErrInvalidDomain, core.FieldError{Field: "domain", Error: ErrInvalidDomain.Error()})
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	taken := make(map[string]struct{}, len(svc.ledger.Students))
	for _, s := range svc.ledger.Students {
		if s.HasEmail() {
			taken[strings.ToLower(s.Email)] = struct{}{}
		}
	}

	var n int
	for i, s := range svc.ledger.Students {
		if s.HasEmail() {
			continue
		}
		local := EmailLocalPart(s.Name)
		if local == "" {
			continue
		}
		addr := local + "@" + domain
		for suffix := 2; ; suffix++ {
			if _, dup := taken[addr]; !dup {
				break
			}
			addr = local + strconv.Itoa(suffix) + "@" + domain
		}
		taken[addr] = struct{}{}
		svc.ledger.Students[i].Email = addr
		n++
	}
	if n == 0 {
		return 0, nil
	}
	svc.logger.Info("emails generated", map[string]interface{}{"count": n, "domain": domain})
	return n, svc.persist(ctx, "generate emails")
}

// EmailLocalPart turns "José  da Silva" into "jose.da.silva".
func EmailLocalPart(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var parts []string
	for _, word := range strings.Fields(strings.ToLower(folded)) {
		word = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
				return r
			}
			return -1
		}, word)
		if word != "" {
			parts = append(parts, word)
		}
	}
	return strings.Join(parts, ".")
}
