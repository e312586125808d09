package knowledge

import (
	"context"
	"strings"
)

// StaticEntry pairs a match keyword with a snippet text.
type StaticEntry struct {
	Match string `json:"match"`
	Text  string `json:"text"`
}

// Static is an in-memory snippet provider for one-shot mode and tests.
// Entries whose keyword appears in the query are returned in order.
type Static struct {
	entries []StaticEntry
}

// NewStatic creates a static provider over the given entries.
func NewStatic(entries []StaticEntry) *Static {
	return &Static{entries: entries}
}

// Search matches entry keywords against the case-folded query. Empty and
// whitespace-only queries short-circuit to an empty list.
func (s *Static) Search(ctx context.Context, query string) ([]string, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []string{}, nil
	}
	results := []string{}
	for _, e := range s.entries {
		if strings.Contains(q, strings.ToLower(e.Match)) {
			results = append(results, e.Text)
		}
	}
	return results, nil
}
