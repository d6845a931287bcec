package search

import (
	"context"
)

const (
	minSuggestPrefixLen = 2
	maxSuggestResults   = 10
)

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Name      string
	Lang      string
	Frequency int
}

// Suggest returns up to 10 Intent names whose name starts with prefix,
// ordered by frequency desc then name asc, per spec.md §4.5. prefix
// shorter than two characters yields no results rather than an error,
// since an autocomplete box legitimately calls this on every keystroke.
func (o *Orchestrator) Suggest(ctx context.Context, prefix, lang string) ([]Suggestion, error) {
	if len([]rune(prefix)) < minSuggestPrefixLen {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.queryTimeout)
	defer cancel()

	hits, err := o.store.SuggestIntents(ctx, prefix, lang, maxSuggestResults)
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, len(hits))
	for i, h := range hits {
		out[i] = Suggestion{Name: h.Name, Lang: h.Lang, Frequency: h.Frequency}
	}
	return out, nil
}
