package entities

import "time"

// ScriptUnitKind categorizes scene units within a chapter script.
type ScriptUnitKind string

const (
	UnitNarration ScriptUnitKind = "narration"
	UnitDialogue  ScriptUnitKind = "dialogue"
	UnitDirection ScriptUnitKind = "direction"
)

// ScriptUnit is the smallest script segment: one narration block, one
// dialogue line or one stage direction. Units are ordered within their
// chapter and each drives one audio/image/subtitle generation cycle.
type ScriptUnit struct {
	ID        string         `json:"id"`
	ChapterID string         `json:"chapter_id"`
	Index     int            `json:"index"`
	Kind      ScriptUnitKind `json:"kind"`
	Text      string         `json:"text"`
	// SpeakerID references a character entity. Empty means the narrator:
	// ambiguous attribution deliberately falls back to the narrator rather
	// than guessing a character.
	SpeakerID         string        `json:"speaker_id,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	CreatedAt         time.Time     `json:"created_at"`
}
