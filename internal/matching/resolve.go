package matching

import (
	"slices"
	"sort"
	"strings"
)

// Candidate pairs a compiled template with the route it belongs to.
// Callers build candidates from active endpoints only.
type Candidate struct {
	ID       int64
	Methods  []string
	Template *Template
}

// Match is one successful template match. Params holds the bound
// {name} segments; the wildcard capture is never included.
type Match struct {
	Candidate Candidate
	Params    map[string]string
}

// Resolve returns every candidate matching method and path, ordered
// most-specific first: fewer parameter segments win, a template without
// a wildcard beats one with, and remaining ties fall to the lower
// (earlier-registered) id. Returns ErrNoRoute when nothing matches.
func Resolve(cands []Candidate, method, path string) ([]Match, error) {
	method = strings.ToUpper(method)

	var matches []Match
	for _, c := range cands {
		if !slices.Contains(c.Methods, method) {
			continue
		}
		params, ok := c.Template.Match(path)
		if !ok {
			continue
		}
		matches = append(matches, Match{Candidate: c, Params: params})
	}
	if len(matches) == 0 {
		return nil, ErrNoRoute
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return moreSpecific(matches[i], matches[j])
	})
	return matches, nil
}

func moreSpecific(a, b Match) bool {
	pa, pb := a.Candidate.Template.ParamCount(), b.Candidate.Template.ParamCount()
	if pa != pb {
		return pa < pb
	}
	wa, wb := a.Candidate.Template.HasWildcard(), b.Candidate.Template.HasWildcard()
	if wa != wb {
		return !wa
	}
	return a.Candidate.ID < b.Candidate.ID
}

// SameSpecificity reports whether two matches rank equally before the
// id tie-break. The dispatcher uses this to find the group a SOAP
// operation name may choose from.
func SameSpecificity(a, b Match) bool {
	return a.Candidate.Template.ParamCount() == b.Candidate.Template.ParamCount() &&
		a.Candidate.Template.HasWildcard() == b.Candidate.Template.HasWildcard()
}
