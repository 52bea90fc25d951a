package ports

import (
	"context"

	"github.com/narravid/narravid/internal/domain/entities"
)

// AliasPoint is one confirmed alias stored in the vector index.
type AliasPoint struct {
	EntityID  string
	Kind      entities.EntityKind
	Alias     string
	Embedding []float32
}

// AliasMatch is a semantic-search hit against the alias index.
type AliasMatch struct {
	EntityID string
	Alias    string
	Score    float64
}

// AliasIndex defines the interface for the semantic alias store. It feeds
// the merge engine an additional fuzzy-match signal; results only ever
// become suggested merges, never silent merges.
type AliasIndex interface {
	// EnsureCollection creates the backing collection if it doesn't exist.
	EnsureCollection(ctx context.Context, vectorSize uint64) error

	// Save upserts alias points.
	Save(ctx context.Context, points []AliasPoint) error

	// Search returns the closest aliases of the given kind.
	Search(ctx context.Context, embedding []float32, kind entities.EntityKind, limit int) ([]AliasMatch, error)

	// DeleteEntity removes every alias point belonging to an entity.
	DeleteEntity(ctx context.Context, entityID string) error

	// Close releases the underlying connection.
	Close() error
}
