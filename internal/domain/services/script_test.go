package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/mocks"
)

const scriptChapterText = `Alexis entró al bosque al amanecer.

—¿Quién anda ahí? —preguntó Elena.

—Soy yo —dijo Alexis.

(Se apagan las luces)

—No te muevas.`

func scriptFixture(t *testing.T) (*mocks.StateStore, *ScriptGenerator) {
	t.Helper()
	ctx := context.Background()
	store := mocks.NewStateStore()
	require.NoError(t, store.SaveEntity(ctx, confirmedEntity("e-alexis", "Alexis", entities.KindCharacter)))
	require.NoError(t, store.SaveEntity(ctx, confirmedEntity("e-elena", "Elena", entities.KindCharacter)))
	return store, NewScriptGenerator(store, 150)
}

func TestGenerateSegmentsAndAttributes(t *testing.T) {
	ctx := context.Background()
	store, gen := scriptFixture(t)

	chapter := &entities.Chapter{ID: "ch01", Title: "Uno", Ordinal: 1, Text: scriptChapterText}
	units, err := gen.Generate(ctx, chapter)
	require.NoError(t, err)
	require.Len(t, units, 5)

	assert.Equal(t, entities.UnitNarration, units[0].Kind)
	assert.Empty(t, units[0].SpeakerID)

	// Explicit attribution tails win.
	assert.Equal(t, entities.UnitDialogue, units[1].Kind)
	assert.Equal(t, "e-elena", units[1].SpeakerID)
	assert.Equal(t, entities.UnitDialogue, units[2].Kind)
	assert.Equal(t, "e-alexis", units[2].SpeakerID)

	assert.Equal(t, entities.UnitDirection, units[3].Kind)
	assert.Equal(t, "Se apagan las luces", units[3].Text)

	// Untagged dialogue falls back to the last attributed speaker.
	assert.Equal(t, entities.UnitDialogue, units[4].Kind)
	assert.Equal(t, "e-alexis", units[4].SpeakerID)

	for i, u := range units {
		assert.Equal(t, i, u.Index)
		assert.Equal(t, "ch01", u.ChapterID)
		assert.Positive(t, u.EstimatedDuration)
	}

	saved, err := store.ListScriptUnits(ctx, "ch01")
	require.NoError(t, err)
	assert.Len(t, saved, 5)
}

func TestGenerateDialogueWithoutContextGoesToNarrator(t *testing.T) {
	ctx := context.Background()
	_, gen := scriptFixture(t)

	chapter := &entities.Chapter{ID: "ch02", Text: "—Nadie sabe quién habla aquí."}
	units, err := gen.Generate(ctx, chapter)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, entities.UnitDialogue, units[0].Kind)
	assert.Empty(t, units[0].SpeakerID, "ambiguous dialogue belongs to the narrator")
}

func TestGenerateAttributesThroughAliases(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStateStore()
	require.NoError(t, store.SaveEntity(ctx,
		confirmedEntity("e1", "Alexis", entities.KindCharacter, "La Valiente")))
	gen := NewScriptGenerator(store, 150)

	chapter := &entities.Chapter{ID: "ch03", Text: "—Adelante —dijo La Valiente."}
	units, err := gen.Generate(ctx, chapter)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "e1", units[0].SpeakerID)
}

func TestGenerateRejectedCharactersIgnored(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStateStore()
	rejected := confirmedEntity("e1", "Elena", entities.KindCharacter)
	rejected.Validation = entities.ValidationRejected
	require.NoError(t, store.SaveEntity(ctx, rejected))
	gen := NewScriptGenerator(store, 150)

	chapter := &entities.Chapter{ID: "ch04", Text: "—Hola —dijo Elena."}
	units, err := gen.Generate(ctx, chapter)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Empty(t, units[0].SpeakerID)
}

func TestGenerateRegeneratesInPlace(t *testing.T) {
	ctx := context.Background()
	store, gen := scriptFixture(t)

	chapter := &entities.Chapter{ID: "ch05", Text: scriptChapterText}
	_, err := gen.Generate(ctx, chapter)
	require.NoError(t, err)

	chapter.Text = "Solo una línea de narración."
	units, err := gen.Generate(ctx, chapter)
	require.NoError(t, err)
	require.Len(t, units, 1)

	saved, err := store.ListScriptUnits(ctx, "ch05")
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestGenerateEmptyChapterIsInputError(t *testing.T) {
	ctx := context.Background()
	_, gen := scriptFixture(t)

	_, err := gen.Generate(ctx, &entities.Chapter{ID: "ch06", Text: "   \n  "})
	assert.True(t, IsInputError(err))
}
