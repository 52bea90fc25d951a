package mocks

import (
	"context"
	"os"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// VideoAssembler is a mock implementation of ports.VideoAssembler.
type VideoAssembler struct {
	ComposeErr  error
	AssembleErr error

	ComposedSpecs []ports.ClipSpec
	AssembledOut  string
	AssembledCues []entities.SubtitleCue
}

// ComposeClip writes a placeholder clip or returns the configured error.
func (m *VideoAssembler) ComposeClip(ctx context.Context, spec ports.ClipSpec) error {
	if m.ComposeErr != nil {
		return m.ComposeErr
	}
	m.ComposedSpecs = append(m.ComposedSpecs, spec)
	return os.WriteFile(spec.OutPath, []byte("mp4"), 0o644)
}

// Assemble writes a placeholder video or returns the configured error.
func (m *VideoAssembler) Assemble(ctx context.Context, clips []string, subtitles []entities.SubtitleCue, outPath string) error {
	if m.AssembleErr != nil {
		return m.AssembleErr
	}
	m.AssembledOut = outPath
	m.AssembledCues = subtitles
	return os.WriteFile(outPath, []byte("mp4"), 0o644)
}
