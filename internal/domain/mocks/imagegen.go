package mocks

import (
	"context"
	"os"
)

// ImageGenerator is a mock implementation of ports.ImageGenerator.
type ImageGenerator struct {
	Err error

	GenerateCallCount int
	Prompts           []string
}

// Generate writes a placeholder file or returns the configured error.
func (m *ImageGenerator) Generate(ctx context.Context, prompt, style, outPath string) error {
	m.GenerateCallCount++
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return m.Err
	}
	return os.WriteFile(outPath, []byte("png"), 0o644)
}
