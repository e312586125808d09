package domain

import "context"

// SnippetProvider searches the knowledge base for short reference texts.
//
// Implementations must return an empty (possibly nil-length, never failing)
// slice for an empty or whitespace-only query without contacting any
// backend, and must never return a nil slice alongside a nil error.
type SnippetProvider interface {
	Search(ctx context.Context, query string) ([]string, error)
}
