package entities

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EntityKind categorizes registry entities.
type EntityKind string

const (
	KindCharacter EntityKind = "character"
	KindLocation  EntityKind = "location"
	KindObject    EntityKind = "object"
)

// Valid reports whether the kind is one of the known entity kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindCharacter, KindLocation, KindObject:
		return true
	}
	return false
}

// ValidationStatus tracks whether a human has reviewed an entity.
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationConfirmed ValidationStatus = "confirmed"
	ValidationRejected  ValidationStatus = "rejected"
)

// Entity represents a character, location or object referenced across one or
// more chapters, tracked under a single stable identity. Within a project no
// two confirmed entities of the same kind may share a canonical name or an
// alias; an alias belongs to at most one entity.
type Entity struct {
	ID                 string           `json:"id"`
	Kind               EntityKind       `json:"kind"`
	Name               string           `json:"name"`            // Canonical name (e.g., "Alexis")
	NormalizedName     string           `json:"normalized_name"` // Folded for matching (e.g., "alexis")
	Aliases            []string         `json:"aliases"`         // Surface forms seen across chapters
	Description        string           `json:"description"`
	AssetRef           string           `json:"asset_ref,omitempty"` // Generated or user-supplied image
	VoiceProfile       string           `json:"voice_profile,omitempty"`
	Validation         ValidationStatus `json:"validation"`
	FirstSeenChapter   string           `json:"first_seen_chapter"`
	LastUpdatedChapter string           `json:"last_updated_chapter"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// HasAlias reports whether the entity already knows the given surface form.
// Comparison is done on normalized text.
func (e *Entity) HasAlias(surface string) bool {
	want := NormalizeSurface(surface)
	if e.NormalizedName == want {
		return true
	}
	for _, alias := range e.Aliases {
		if NormalizeSurface(alias) == want {
			return true
		}
	}
	return false
}

// surfaceFolder strips diacritics after canonical decomposition so that
// "Martín" and "Martin" compare equal.
var surfaceFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeSurface folds a surface form for case- and diacritic-insensitive
// comparison.
func NormalizeSurface(surface string) string {
	folded, _, err := transform.String(surfaceFolder, surface)
	if err != nil {
		folded = surface
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}
