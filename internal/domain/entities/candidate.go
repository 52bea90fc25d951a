package entities

// EntityCandidate is a transient extraction result produced per extraction
// pass. Candidates are consumed by the merge engine and never persisted
// standalone; only their influence on the registry and the validation queue
// survives.
type EntityCandidate struct {
	Kind       EntityKind `json:"kind"`
	Surface    string     `json:"surface"`
	Context    string     `json:"context"`
	ChapterID  string     `json:"chapter_id"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source"` // Extraction backend name
	Start      int        `json:"start"`  // Byte offset of the surface in the chapter text
	End        int        `json:"end"`
}

// Malformed reports whether the candidate is unusable and must be rejected
// before merging.
func (c EntityCandidate) Malformed() bool {
	return !c.Kind.Valid() || NormalizeSurface(c.Surface) == ""
}
