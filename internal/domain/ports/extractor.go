// Package ports defines interfaces for external service communication.
package ports

import (
	"context"

	"github.com/narravid/narravid/internal/domain/entities"
)

// Extractor defines the interface for one entity extraction backend.
// Backends are stateless per call and polymorphic: a rule-based lexicon, a
// statistical tagger and an LLM tagger all satisfy the same contract. The
// pipeline pools results from every active backend before merging, so
// duplicate and overlapping candidates for the same real-world entity are
// expected and must be tolerated downstream.
type Extractor interface {
	// Name identifies the backend in candidate provenance and logs.
	Name() string

	// Extract returns raw entity candidates found in the given text.
	// No ordering guarantee is made.
	Extract(ctx context.Context, text string) ([]entities.EntityCandidate, error)
}
