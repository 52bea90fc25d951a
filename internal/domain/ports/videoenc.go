package ports

import (
	"context"

	"github.com/narravid/narravid/internal/domain/entities"
)

// ClipSpec describes one scene clip: a sequence of timed images over a
// single audio track. Image durations sum to the audio duration by
// construction (the sync planner pads the last image rather than truncating
// audio).
type ClipSpec struct {
	Images  []entities.TimedImage
	Audio   string
	OutPath string
}

// VideoAssembler defines the interface for the video encoding backend.
// Implementations must be deterministic: identical inputs produce identical
// output, assembly itself introduces no randomness.
type VideoAssembler interface {
	// ComposeClip renders one scene clip.
	ComposeClip(ctx context.Context, spec ClipSpec) error

	// Assemble concatenates clips in order into the final video and overlays
	// the subtitle track at its precomputed timings.
	Assemble(ctx context.Context, clips []string, subtitles []entities.SubtitleCue, outPath string) error
}
