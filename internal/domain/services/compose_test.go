package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/mocks"
)

type composeFixture struct {
	store     *mocks.StateStore
	imggen    *mocks.ImageGenerator
	assembler *mocks.VideoAssembler
	composer  *Composer
}

func newComposeFixture(t *testing.T) *composeFixture {
	t.Helper()
	store := mocks.NewStateStore()
	imggen := &mocks.ImageGenerator{}
	assembler := &mocks.VideoAssembler{}
	composer := NewComposer(store, imggen, assembler, t.TempDir(), t.TempDir(), "acuarela",
		RetryPolicy{Attempts: 1}, testLogger())
	return &composeFixture{store: store, imggen: imggen, assembler: assembler, composer: composer}
}

func (f *composeFixture) seedUnit(t *testing.T, chapterID, unitID, text string, images int) *entities.SceneAsset {
	t.Helper()
	ctx := context.Background()
	unit := &entities.ScriptUnit{
		ID: unitID, ChapterID: chapterID, Kind: entities.UnitNarration,
		Text: text, CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.ReplaceScriptUnits(ctx, chapterID, []*entities.ScriptUnit{unit}))

	asset := &entities.SceneAsset{
		ID: unitID + "-asset", ChapterID: chapterID, UnitID: unitID, Version: 1,
		AudioDuration: 6 * time.Second,
		Images:        make([]entities.TimedImage, images),
		Cues:          PlanSubtitles(text, 6*time.Second),
		CreatedAt:     time.Now(),
	}
	for i := range asset.Images {
		asset.Images[i].Duration = 6 * time.Second / time.Duration(images)
	}
	require.NoError(t, f.store.SaveSceneAsset(ctx, asset))
	return asset
}

func TestComposeChapterRendersClips(t *testing.T) {
	ctx := context.Background()
	f := newComposeFixture(t)
	f.seedUnit(t, "ch01", "u1", "Alexis cruza el bosque.", 2)

	chapter := &entities.Chapter{ID: "ch01", Status: entities.ChapterSynthesized}
	require.NoError(t, f.composer.ComposeChapter(ctx, chapter))

	asset, err := f.store.FindActiveAsset(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, asset.ClipPath)
	assert.False(t, asset.Degraded)
	for _, img := range asset.Images {
		assert.NotEmpty(t, img.Path)
		_, statErr := os.Stat(img.Path)
		assert.NoError(t, statErr)
	}
	assert.Equal(t, 2, f.imggen.GenerateCallCount)
}

func TestComposeChapterSkipsComposedUnits(t *testing.T) {
	ctx := context.Background()
	f := newComposeFixture(t)
	f.seedUnit(t, "ch01", "u1", "Texto.", 1)

	chapter := &entities.Chapter{ID: "ch01", Status: entities.ChapterSynthesized}
	require.NoError(t, f.composer.ComposeChapter(ctx, chapter))
	require.NoError(t, f.composer.ComposeChapter(ctx, chapter))

	assert.Equal(t, 1, f.imggen.GenerateCallCount, "recomposition must be a no-op")
	assert.Len(t, f.assembler.ComposedSpecs, 1)
}

func TestComposeChapterDegradesToBlankFrame(t *testing.T) {
	ctx := context.Background()
	f := newComposeFixture(t)
	f.imggen.Err = errors.New("image backend down")
	f.seedUnit(t, "ch01", "u1", "Texto.", 1)

	chapter := &entities.Chapter{ID: "ch01", Status: entities.ChapterSynthesized}
	require.NoError(t, f.composer.ComposeChapter(ctx, chapter), "image failure degrades, it does not abort")

	asset, err := f.store.FindActiveAsset(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, asset.Degraded)
	assert.NotEmpty(t, asset.ClipPath)
	require.NotEmpty(t, asset.Images[0].Path)

	// The placeholder is a real readable frame so assembly still works.
	data, err := os.ReadFile(asset.Images[0].Path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestBuildPromptIncludesMentionedEntityDescriptions(t *testing.T) {
	ctx := context.Background()
	f := newComposeFixture(t)

	alexis := confirmedEntity("e1", "Alexis", entities.KindCharacter)
	alexis.Description = "Joven de capa roja."
	elena := confirmedEntity("e2", "Elena", entities.KindCharacter)
	elena.Description = "Guardiana del bosque."
	require.NoError(t, f.store.SaveEntity(ctx, alexis))
	require.NoError(t, f.store.SaveEntity(ctx, elena))

	unit := &entities.ScriptUnit{ID: "u1", ChapterID: "ch01", Text: "Alexis miró hacia el valle."}
	prompt, err := f.composer.buildPrompt(ctx, unit)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Alexis miró hacia el valle.")
	assert.Contains(t, prompt, "Joven de capa roja.")
	assert.NotContains(t, prompt, "Guardiana del bosque.", "unmentioned entities stay out of the prompt")
}

func TestRenderProjectConcatenatesWithShiftedCues(t *testing.T) {
	ctx := context.Background()
	f := newComposeFixture(t)
	now := time.Now()
	for i, id := range []string{"ch01", "ch02"} {
		require.NoError(t, f.store.SaveChapter(ctx, &entities.Chapter{
			ID: id, Ordinal: i, Text: "t", Fingerprint: "fp",
			Status: entities.ChapterComposed, CreatedAt: now, UpdatedAt: now,
		}))
		asset := f.seedUnit(t, id, id+"-u1", "Texto del capítulo.", 1)
		asset.ClipPath = filepath.Join(t.TempDir(), id+".mp4")
		require.NoError(t, f.store.SaveSceneAsset(ctx, asset))
	}

	outPath := filepath.Join(t.TempDir(), "final.mp4")
	got, err := f.composer.RenderProject(ctx, outPath)
	require.NoError(t, err)
	assert.Equal(t, outPath, got)
	assert.Equal(t, outPath, f.assembler.AssembledOut)

	require.Len(t, f.assembler.AssembledCues, 2)
	// Second chapter's cue is shifted by the first chapter's audio length.
	assert.Equal(t, time.Duration(0), f.assembler.AssembledCues[0].Start)
	assert.Equal(t, 6*time.Second, f.assembler.AssembledCues[1].Start)
	assert.Equal(t, 12*time.Second, f.assembler.AssembledCues[1].End)
}

func TestRenderProjectRefusesUnfinishedChapters(t *testing.T) {
	ctx := context.Background()
	f := newComposeFixture(t)
	now := time.Now()
	require.NoError(t, f.store.SaveChapter(ctx, &entities.Chapter{
		ID: "ch01", Text: "t", Fingerprint: "fp",
		Status: entities.ChapterScripted, CreatedAt: now, UpdatedAt: now,
	}))

	_, err := f.composer.RenderProject(ctx, filepath.Join(t.TempDir(), "final.mp4"))
	assert.True(t, IsInputError(err))
}
