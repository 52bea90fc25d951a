// Package lexicon provides a rule-based Extractor that needs no network
// backend. It recognizes honorific-prefixed names, capitalized name
// sequences and surface forms already known to the entity registry.
package lexicon

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// connectors may appear lowercase inside a multi-word proper name
// ("Bosque de los Suspiros").
var connectors = map[string]bool{
	"de": true, "del": true, "la": true, "los": true, "las": true,
	"of": true, "the": true,
}

// Extractor tags entity mentions with deterministic lexical rules.
type Extractor struct {
	store      ports.StateStore
	honorifics map[string]bool
}

// NewExtractor creates a lexicon extractor. The store is consulted for
// already-registered surface forms so recurring entities are always re-tagged
// even when the capitalization heuristics miss them.
func NewExtractor(store ports.StateStore, honorifics []string) *Extractor {
	index := make(map[string]bool, len(honorifics))
	for _, h := range honorifics {
		index[entities.NormalizeSurface(h)] = true
	}
	return &Extractor{store: store, honorifics: index}
}

// Name identifies this backend in candidate provenance.
func (e *Extractor) Name() string {
	return "lexicon"
}

// Extract tags entity mentions in the given chapter text.
func (e *Extractor) Extract(ctx context.Context, text string) ([]entities.EntityCandidate, error) {
	known, err := e.store.ListEntities(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("listing registry entities: %w", err)
	}
	registered := registeredSurfaces(known)

	var candidates []entities.EntityCandidate
	seen := make(map[string]bool)

	add := func(kind entities.EntityKind, surface, sentence string, confidence float64) {
		key := string(kind) + "\x00" + entities.NormalizeSurface(surface)
		if seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, entities.EntityCandidate{
			Kind:       kind,
			Surface:    surface,
			Context:    strings.TrimSpace(sentence),
			Confidence: confidence,
			Source:     e.Name(),
		})
	}

	// The capitalization heuristics can only guess KindCharacter. Surfaces
	// the registry already holds under any kind are left to the re-tagging
	// pass below, which carries the registered kind.
	addGuess := func(surface, sentence string, confidence float64) {
		if registered[entities.NormalizeSurface(surface)] {
			return
		}
		add(entities.KindCharacter, surface, sentence, confidence)
	}

	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		for i := 0; i < len(words); i++ {
			word := trimPunct(words[i])
			if word == "" {
				continue
			}

			if e.honorifics[entities.NormalizeSurface(word)] && i+1 < len(words) {
				if name, span := capitalizedSpan(words, i+1); name != "" {
					addGuess(name, sentence, 0.85)
					i += span
					continue
				}
			}

			// Sentence-initial capitals are ambiguous; only mid-sentence
			// capitalized spans are treated as names.
			if i > 0 && isCapitalized(word) {
				if name, span := capitalizedSpan(words, i); name != "" {
					addGuess(name, sentence, 0.6)
					i += span - 1
				}
			}
		}
	}

	e.addKnownSurfaces(known, text, add)
	return candidates, nil
}

// registeredSurfaces collects every normalized surface form the registry
// holds, across all kinds, skipping rejected entities.
func registeredSurfaces(known []*entities.Entity) map[string]bool {
	surfaces := make(map[string]bool)
	for _, ent := range known {
		if ent.Validation == entities.ValidationRejected {
			continue
		}
		for _, surface := range append([]string{ent.Name}, ent.Aliases...) {
			if normalized := entities.NormalizeSurface(surface); normalized != "" {
				surfaces[normalized] = true
			}
		}
	}
	return surfaces
}

// addKnownSurfaces re-tags every registered surface form found in the text,
// carrying the registry's kind at high confidence.
func (e *Extractor) addKnownSurfaces(known []*entities.Entity, text string, add func(entities.EntityKind, string, string, float64)) {
	sentences := splitSentences(text)
	for _, ent := range known {
		if ent.Validation == entities.ValidationRejected {
			continue
		}
		for _, surface := range append([]string{ent.Name}, ent.Aliases...) {
			normalized := entities.NormalizeSurface(surface)
			if normalized == "" {
				continue
			}
			for _, sentence := range sentences {
				if containsSurface(sentence, normalized) {
					add(ent.Kind, surface, sentence, 0.95)
					break
				}
			}
		}
	}
}

// capitalizedSpan collects consecutive capitalized words (allowing lowercase
// connectors in the middle) starting at index start. Returns the joined
// surface and the word count consumed, or "" when start is not capitalized.
func capitalizedSpan(words []string, start int) (string, int) {
	if start >= len(words) || !isCapitalized(trimPunct(words[start])) {
		return "", 0
	}
	parts := []string{trimPunct(words[start])}
	span := 1
	for i := start + 1; i < len(words); i++ {
		word := trimPunct(words[i])
		if word == "" {
			break
		}
		if isCapitalized(word) {
			parts = append(parts, word)
			span = i - start + 1
			continue
		}
		// A run of connectors ("de los") may bridge two capitalized words.
		if connectors[strings.ToLower(word)] {
			j := i + 1
			for j < len(words) && connectors[strings.ToLower(trimPunct(words[j]))] {
				j++
			}
			if j < len(words) && isCapitalized(trimPunct(words[j])) {
				for k := i; k < j; k++ {
					parts = append(parts, trimPunct(words[k]))
				}
				i = j - 1
				continue
			}
		}
		break
	}
	return strings.Join(parts, " "), span
}

// containsSurface reports a word-boundary match of the normalized surface.
func containsSurface(sentence, normalized string) bool {
	hay := " " + entities.NormalizeSurface(strings.Map(punctToSpace, sentence)) + " "
	return strings.Contains(hay, " "+normalized+" ")
}

// splitSentences breaks text on sentence-ending punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isCapitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func trimPunct(word string) string {
	return strings.TrimFunc(word, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

func punctToSpace(r rune) rune {
	if unicode.IsPunct(r) || unicode.IsSymbol(r) {
		return ' '
	}
	return r
}
