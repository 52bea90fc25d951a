package entities

import "time"

// TimedImage pairs a generated image with its display duration inside a clip.
type TimedImage struct {
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
}

// SceneAsset holds the generated artifacts for one script unit. It is
// created empty, filled as each generation stage completes, and immutable
// once the clip is composed: regeneration inserts a new version and marks
// the old row superseded instead of mutating it.
type SceneAsset struct {
	ID            string        `json:"id"`
	ChapterID     string        `json:"chapter_id"`
	UnitID        string        `json:"unit_id"`
	Version       int           `json:"version"`
	AudioPath     string        `json:"audio_path,omitempty"`
	AudioDuration time.Duration `json:"audio_duration"`
	Images        []TimedImage  `json:"images,omitempty"`
	ClipPath      string        `json:"clip_path,omitempty"`
	Cues          []SubtitleCue `json:"cues,omitempty"`
	Degraded      bool          `json:"degraded"`       // A placeholder stands in for a failed generation
	DegradedNote  string        `json:"degraded_note,omitempty"`
	Superseded    bool          `json:"superseded"`
	CreatedAt     time.Time     `json:"created_at"`
}

// VisualDuration returns the summed display time of the asset's images.
func (a *SceneAsset) VisualDuration() time.Duration {
	var total time.Duration
	for _, img := range a.Images {
		total += img.Duration
	}
	return total
}

// SubtitleCue is one subtitle entry derived from a unit's audio duration.
// Start and End are offsets relative to the unit's clip and always fall
// within [0, AudioDuration].
type SubtitleCue struct {
	Index int           `json:"index"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}
