package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// attributionVerbs mark dialogue tails like "—… —dijo Elena".
var attributionVerbs = map[string]bool{
	"dijo": true, "preguntó": true, "respondió": true, "exclamó": true,
	"gritó": true, "susurró": true, "murmuró": true, "contestó": true,
	"said": true, "asked": true, "replied": true, "shouted": true,
	"whispered": true, "answered": true, "exclaimed": true,
}

// dialogueOpeners are the quotation markers recognized at line start.
var dialogueOpeners = []string{"—", "–", "«", "“", "\""}

// ScriptGenerator transforms chapter text plus the resolved entity registry
// into an ordered sequence of scene units. Dialogue is attributed to the
// nearest preceding or co-referenced character; anything ambiguous goes to
// the narrator so a misattributed voice never propagates downstream.
type ScriptGenerator struct {
	store          ports.StateStore
	wordsPerMinute int
}

// NewScriptGenerator creates a script generator. wordsPerMinute drives the
// pre-synthesis duration estimate.
func NewScriptGenerator(store ports.StateStore, wordsPerMinute int) *ScriptGenerator {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 150
	}
	return &ScriptGenerator{store: store, wordsPerMinute: wordsPerMinute}
}

// Generate segments the chapter into script units and persists them,
// replacing any previous script for the chapter.
func (g *ScriptGenerator) Generate(ctx context.Context, chapter *entities.Chapter) ([]*entities.ScriptUnit, error) {
	if strings.TrimSpace(chapter.Text) == "" {
		return nil, NewInputError("chapter %s has no text", chapter.ID)
	}

	characters, err := g.usableCharacters(ctx)
	if err != nil {
		return nil, err
	}

	units := g.segment(chapter, characters)
	if err := g.store.ReplaceScriptUnits(ctx, chapter.ID, units); err != nil {
		return nil, fmt.Errorf("%w: saving script for %s: %v", ErrStateStore, chapter.ID, err)
	}
	return units, nil
}

// usableCharacters indexes confirmed and still-pending characters by
// normalized surface form. Rejected entities never attract dialogue.
func (g *ScriptGenerator) usableCharacters(ctx context.Context) (map[string]*entities.Entity, error) {
	chars, err := g.store.ListEntities(ctx, entities.KindCharacter, "")
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	index := make(map[string]*entities.Entity)
	for _, ent := range chars {
		if ent.Validation == entities.ValidationRejected {
			continue
		}
		index[ent.NormalizedName] = ent
		for _, alias := range ent.Aliases {
			index[entities.NormalizeSurface(alias)] = ent
		}
	}
	return index, nil
}

// segment walks the chapter paragraph by paragraph, producing narration,
// dialogue and direction units in order.
func (g *ScriptGenerator) segment(chapter *entities.Chapter, characters map[string]*entities.Entity) []*entities.ScriptUnit {
	var units []*entities.ScriptUnit
	lastMentioned := "" // entity id of the most recently mentioned character

	appendUnit := func(kind entities.ScriptUnitKind, text, speakerID string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		units = append(units, &entities.ScriptUnit{
			ID:                uuid.New().String(),
			ChapterID:         chapter.ID,
			Index:             len(units),
			Kind:              kind,
			Text:              text,
			SpeakerID:         speakerID,
			EstimatedDuration: g.estimateDuration(text),
			CreatedAt:         time.Now(),
		})
	}

	for _, para := range splitParagraphs(chapter.Text) {
		for _, line := range strings.Split(para, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			switch {
			case isDirection(line):
				appendUnit(entities.UnitDirection, strings.Trim(line, "()[]"), "")
			case isDialogue(line):
				speaker := attributeSpeaker(line, characters, lastMentioned)
				if speaker != "" {
					lastMentioned = speaker
				}
				appendUnit(entities.UnitDialogue, line, speaker)
			default:
				if id := lastCharacterMention(line, characters); id != "" {
					lastMentioned = id
				}
				appendUnit(entities.UnitNarration, line, "")
			}
		}
	}
	return units
}

// estimateDuration converts word count into speaking time at the configured
// pace. The sync planner later replaces it with the measured audio duration.
func (g *ScriptGenerator) estimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	seconds := float64(words) * 60.0 / float64(g.wordsPerMinute)
	return time.Duration(seconds * float64(time.Second))
}

// splitParagraphs breaks text on blank lines.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// isDialogue reports whether a line opens with a recognized quotation
// marker.
func isDialogue(line string) bool {
	for _, opener := range dialogueOpeners {
		if strings.HasPrefix(line, opener) {
			return true
		}
	}
	return false
}

// isDirection reports whether the whole line is a parenthetical stage
// direction.
func isDirection(line string) bool {
	return (strings.HasPrefix(line, "(") && strings.HasSuffix(line, ")")) ||
		(strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"))
}

// attributeSpeaker resolves the speaker of a dialogue line: first an
// explicit attribution tail ("—… —dijo Elena"), then the most recently
// mentioned character. Empty means the narrator.
func attributeSpeaker(line string, characters map[string]*entities.Entity, lastMentioned string) string {
	if id := attributionTail(line, characters); id != "" {
		return id
	}
	return lastMentioned
}

// attributionTail scans for an attribution verb followed by a known
// character surface form.
func attributionTail(line string, characters map[string]*entities.Entity) string {
	const punct = ".,;:!?—–«»\"“”¡¿"
	words := strings.Fields(line)
	for i := range words {
		if !attributionVerbs[strings.ToLower(strings.Trim(words[i], punct))] {
			continue
		}
		// Try two-word surfaces first so "Bosque Encantado" style names win
		// over their first word.
		for span := 2; span >= 1; span-- {
			if i+span > len(words)-1 {
				continue
			}
			surface := strings.Trim(strings.Join(words[i+1:i+span+1], " "), punct)
			if ent, ok := characters[entities.NormalizeSurface(surface)]; ok {
				return ent.ID
			}
		}
	}
	return ""
}

// lastCharacterMention returns the entity id of the last known character
// surface occurring in the line.
func lastCharacterMention(line string, characters map[string]*entities.Entity) string {
	normalized := " " + strings.Trim(entities.NormalizeSurface(strings.Map(stripPunct, line)), " ") + " "
	lastID, lastPos := "", -1
	for surface, ent := range characters {
		if surface == "" {
			continue
		}
		if pos := strings.LastIndex(normalized, " "+surface+" "); pos > lastPos {
			lastPos = pos
			lastID = ent.ID
		}
	}
	return lastID
}

// stripPunct replaces punctuation with spaces so alias scans match on word
// boundaries.
func stripPunct(r rune) rune {
	if strings.ContainsRune(".,;:!?—–«»\"“”¡¿()[]", r) {
		return ' '
	}
	return r
}
