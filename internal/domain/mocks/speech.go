package mocks

import (
	"context"
	"os"
	"time"

	"github.com/narravid/narravid/internal/domain/ports"
)

// SpeechSynthesizer is a mock implementation of ports.SpeechSynthesizer.
type SpeechSynthesizer struct {
	Duration time.Duration
	Err      error

	// FailTexts marks unit texts that should fail even when Err is nil.
	FailTexts map[string]bool

	SynthesizeCallCount int
	Voices              []string
}

// Synthesize writes a placeholder file and returns the configured duration.
func (m *SpeechSynthesizer) Synthesize(ctx context.Context, text, voiceProfile, outPath string) (ports.SpeechResult, error) {
	m.SynthesizeCallCount++
	m.Voices = append(m.Voices, voiceProfile)
	if m.Err != nil {
		return ports.SpeechResult{}, m.Err
	}
	if m.FailTexts[text] {
		return ports.SpeechResult{}, os.ErrDeadlineExceeded
	}
	if err := os.WriteFile(outPath, []byte("audio"), 0o644); err != nil {
		return ports.SpeechResult{}, err
	}
	duration := m.Duration
	if duration == 0 {
		duration = 5 * time.Second
	}
	return ports.SpeechResult{AudioPath: outPath, Duration: duration}, nil
}
