package mocks

import (
	"context"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// AliasIndex is a mock implementation of ports.AliasIndex.
type AliasIndex struct {
	Matches   []ports.AliasMatch
	SaveErr   error
	SearchErr error

	SavedPoints []ports.AliasPoint
	DeletedIDs  []string
}

// EnsureCollection is a no-op.
func (m *AliasIndex) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	return nil
}

// Save records the points.
func (m *AliasIndex) Save(ctx context.Context, points []ports.AliasPoint) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.SavedPoints = append(m.SavedPoints, points...)
	return nil
}

// Search returns the configured matches or error.
func (m *AliasIndex) Search(ctx context.Context, embedding []float32, kind entities.EntityKind, limit int) ([]ports.AliasMatch, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if limit > 0 && len(m.Matches) > limit {
		return m.Matches[:limit], nil
	}
	return m.Matches, nil
}

// DeleteEntity records the deleted entity id.
func (m *AliasIndex) DeleteEntity(ctx context.Context, entityID string) error {
	m.DeletedIDs = append(m.DeletedIDs, entityID)
	return nil
}

// Close is a no-op.
func (m *AliasIndex) Close() error {
	return nil
}
