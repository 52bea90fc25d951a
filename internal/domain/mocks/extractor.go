// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/narravid/narravid/internal/domain/entities"
)

// Extractor is a mock implementation of ports.Extractor.
type Extractor struct {
	BackendName string
	Candidates  []entities.EntityCandidate
	Err         error

	ExtractCallCount int
}

// Name returns the configured backend name.
func (m *Extractor) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

// Extract returns the configured candidates or error.
func (m *Extractor) Extract(ctx context.Context, text string) ([]entities.EntityCandidate, error) {
	m.ExtractCallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Candidates, nil
}
