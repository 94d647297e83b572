package student

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const suggestCutoff = 0.6

// Suggest returns up to n registered names close to name, best match first.
func (svc *Service) Suggest(name string, n int) []string {
	target := CanonicalName(name)
	if target == "" || n <= 0 {
		return nil
	}

	svc.mu.RLock()
	names := make([]string, len(svc.ledger.Students))
	for i, s := range svc.ledger.Students {
		names[i] = s.Name
	}
	svc.mu.RUnlock()

	type match struct {
		name  string
		ratio float64
	}
	var matches []match
	m := difflib.NewMatcher(nil, strings.Split(target, ""))
	for _, candidate := range names {
		m.SetSeq1(strings.Split(CanonicalName(candidate), ""))
		if m.RealQuickRatio() < suggestCutoff || m.QuickRatio() < suggestCutoff {
			continue
		}
		if ratio := m.Ratio(); ratio >= suggestCutoff {
			matches = append(matches, match{candidate, ratio})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].ratio > matches[j].ratio })

	if len(matches) > n {
		matches = matches[:n]
	}
	out := make([]string, len(matches))
	for i, mt := range matches {
		out[i] = mt.name
	}
	return out
}
