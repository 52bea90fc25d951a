// Package entities contains core domain data structures.
package entities

import "time"

// ChapterStatus represents the processing lifecycle of a chapter.
// A chapter only ever advances; the sole way back is a content change,
// which resets it to unprocessed and supersedes downstream artifacts.
type ChapterStatus string

const (
	ChapterUnprocessed ChapterStatus = "unprocessed"
	ChapterExtracted   ChapterStatus = "extracted"
	ChapterValidated   ChapterStatus = "validated"
	ChapterScripted    ChapterStatus = "scripted"
	ChapterSynthesized ChapterStatus = "synthesized"
	ChapterComposed    ChapterStatus = "composed"
)

// chapterStatusOrder defines the forward progression of chapter statuses.
var chapterStatusOrder = []ChapterStatus{
	ChapterUnprocessed,
	ChapterExtracted,
	ChapterValidated,
	ChapterScripted,
	ChapterSynthesized,
	ChapterComposed,
}

// Rank returns the position of the status in the pipeline, or -1 for an
// unknown status.
func (s ChapterStatus) Rank() int {
	for i, status := range chapterStatusOrder {
		if status == s {
			return i
		}
	}
	return -1
}

// CanAdvanceTo reports whether moving to the given status is a forward step.
func (s ChapterStatus) CanAdvanceTo(next ChapterStatus) bool {
	cur, nxt := s.Rank(), next.Rank()
	return cur >= 0 && nxt >= 0 && nxt == cur+1
}

// Valid reports whether the status is one of the known lifecycle values.
func (s ChapterStatus) Valid() bool {
	return s.Rank() >= 0
}

// ChangeKind is the change detector verdict for a chapter's content.
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeModified  ChangeKind = "modified"
)

// Chapter represents one narrative chapter tracked by the pipeline.
type Chapter struct {
	ID          string        `json:"id"`
	Ordinal     int           `json:"ordinal"`
	Title       string        `json:"title"`
	Text        string        `json:"text"`
	Fingerprint string        `json:"fingerprint"`
	Status      ChapterStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
