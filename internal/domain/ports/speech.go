package ports

import (
	"context"
	"time"
)

// SpeechResult is the outcome of one synthesis call.
type SpeechResult struct {
	// AudioPath points at the written audio file (WAV).
	AudioPath string
	// Duration is the measured length of the synthesized audio, not an
	// estimate. Downstream visual and subtitle timing derives from it.
	Duration time.Duration
}

// SpeechSynthesizer defines the interface for text-to-speech backends.
type SpeechSynthesizer interface {
	// Synthesize renders the text with the given voice profile into outPath
	// and reports the resulting audio duration.
	Synthesize(ctx context.Context, text, voiceProfile, outPath string) (SpeechResult, error)
}
