package ffmpeg

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/narravid/narravid/internal/domain/entities"
)

// WriteSRT writes the cues as a SubRip subtitle file.
func WriteSRT(path string, cues []entities.SubtitleCue) error {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTimestamp(cue.Start), srtTimestamp(cue.End))
		b.WriteString(cue.Text)
		b.WriteString("\n\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing subtitles: %w", err)
	}
	return nil
}

// srtTimestamp formats a duration as HH:MM:SS,mmm.
func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
