package entities

import "time"

// PendingItemKind categorizes entries in the validation queue.
type PendingItemKind string

const (
	// PendingNewEntity asks the reviewer to confirm a freshly created
	// pending entity.
	PendingNewEntity PendingItemKind = "new_entity"
	// PendingSuggestedMerge proposes folding a candidate into one existing
	// entity found by fuzzy resolution.
	PendingSuggestedMerge PendingItemKind = "suggested_merge"
	// PendingConflict records a candidate matching multiple entities with
	// roughly equal scores. The engine never picks one automatically.
	PendingConflict PendingItemKind = "conflict"
)

// MergeSuggestion is one fuzzy-match target offered to the reviewer.
type MergeSuggestion struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// PendingItem is one entry in the human validation queue. Decided items stay
// in the store for auditability but are never re-presented.
type PendingItem struct {
	ID        string          `json:"id"`
	Kind      PendingItemKind `json:"kind"`
	Candidate EntityCandidate `json:"candidate"`
	// EntityID is the pending entity created for a new_entity item; empty
	// for suggestions and conflicts, which only materialize on decision.
	EntityID    string            `json:"entity_id,omitempty"`
	Suggestions []MergeSuggestion `json:"suggestions,omitempty"`
	Decided     bool              `json:"decided"`
	Decision    *Decision         `json:"decision,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	DecidedAt   time.Time         `json:"decided_at,omitzero"`
}

// DecisionAction is the reviewer's verdict on a pending item.
type DecisionAction string

const (
	DecisionConfirmNew DecisionAction = "confirm"
	DecisionMergeInto  DecisionAction = "merge"
	DecisionReject     DecisionAction = "reject"
	DecisionEdit       DecisionAction = "edit"
)

// EntityEdit carries reviewer-supplied field overrides for an
// edit-then-confirm decision. Empty fields keep the current value.
type EntityEdit struct {
	Name         string     `json:"name,omitempty"`
	Kind         EntityKind `json:"kind,omitempty"`
	Description  string     `json:"description,omitempty"`
	VoiceProfile string     `json:"voice_profile,omitempty"`
	AssetRef     string     `json:"asset_ref,omitempty"`
}

// Decision is applied to a pending item as a single atomic registry
// transition: either the whole decision commits or none of it does.
type Decision struct {
	Action DecisionAction `json:"action"`
	// TargetEntityID selects the merge target for a merge decision.
	TargetEntityID string      `json:"target_entity_id,omitempty"`
	Edit           *EntityEdit `json:"edit,omitempty"`
}
