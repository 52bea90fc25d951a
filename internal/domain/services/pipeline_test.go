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
	"github.com/narravid/narravid/internal/domain/ports"
)

type pipelineFixture struct {
	store       *mocks.StateStore
	extractor   *mocks.Extractor
	tts         *mocks.SpeechSynthesizer
	imggen      *mocks.ImageGenerator
	assembler   *mocks.VideoAssembler
	registry    *Registry
	gate        *Gate
	pipeline    *Pipeline
	chaptersDir string
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	logger := testLogger()
	store := mocks.NewStateStore()
	extractor := &mocks.Extractor{BackendName: "mock"}
	tts := &mocks.SpeechSynthesizer{FailTexts: map[string]bool{}}
	imggen := &mocks.ImageGenerator{}
	assembler := &mocks.VideoAssembler{}

	registry := NewRegistry(store, nil, nil, DefaultMatchPolicy(), logger)
	script := NewScriptGenerator(store, 150)
	retry := RetryPolicy{Attempts: 1}
	planner := NewSyncPlanner(store, tts, "alloy", 6, t.TempDir(), retry, logger)
	composer := NewComposer(store, imggen, assembler, t.TempDir(), t.TempDir(), "acuarela", retry, logger)

	return &pipelineFixture{
		store:       store,
		extractor:   extractor,
		tts:         tts,
		imggen:      imggen,
		assembler:   assembler,
		registry:    registry,
		gate:        NewGate(registry, store, logger),
		pipeline:    NewPipeline(store, []ports.Extractor{extractor}, registry, script, planner, composer, 2, retry, logger),
		chaptersDir: t.TempDir(),
	}
}

func (f *pipelineFixture) writeChapter(t *testing.T, name, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.chaptersDir, name), []byte(text), 0o644))
}

func (f *pipelineFixture) confirmAllPending(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	items, err := f.gate.Pending(ctx)
	require.NoError(t, err)
	for _, item := range items {
		require.NoError(t, f.gate.Apply(ctx, item.ID, entities.Decision{Action: entities.DecisionConfirmNew}))
	}
}

func TestScanChaptersClassifiesChanges(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.writeChapter(t, "01_inicio.txt", "Alexis despertó temprano.")
	f.writeChapter(t, "02_bosque.txt", "El bosque esperaba en silencio.")

	report, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"01_inicio", "02_bosque"}, report.New)

	report, err = f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)
	assert.Empty(t, report.New)
	assert.Len(t, report.Unchanged, 2)

	// Editor churn alone is not a modification.
	f.writeChapter(t, "01_inicio.txt", "Alexis despertó temprano.\r\n\r\n")
	report, err = f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)
	assert.Empty(t, report.Modified)

	f.writeChapter(t, "01_inicio.txt", "Alexis despertó al mediodía.")
	report, err = f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"01_inicio"}, report.Modified)
	assert.Equal(t, []string{"02_bosque"}, report.Unchanged)
}

func TestScanChaptersRejectsEmptyDirAndFiles(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	_, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	assert.True(t, IsInputError(err))

	f.writeChapter(t, "01_vacio.txt", "   \n")
	_, err = f.pipeline.ScanChapters(ctx, f.chaptersDir)
	assert.True(t, IsInputError(err))
}

func TestProcessBlocksOnValidation(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.extractor.Candidates = []entities.EntityCandidate{
		{Kind: entities.KindCharacter, Surface: "Alexis", Confidence: 0.9},
	}
	f.writeChapter(t, "01_inicio.txt", "Alexis despertó temprano.")
	_, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)

	outcomes, err := f.pipeline.Process(ctx, ProcessOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Blocked)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, entities.ChapterExtracted, outcomes[0].Status)

	count, err := f.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessRunsToComposedAfterValidation(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.extractor.Candidates = []entities.EntityCandidate{
		{Kind: entities.KindCharacter, Surface: "Alexis", Confidence: 0.9},
	}
	f.writeChapter(t, "01_inicio.txt", "Alexis despertó temprano.\n\n—Hoy es el día —dijo Alexis.")
	_, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)

	outcomes, err := f.pipeline.Process(ctx, ProcessOptions{})
	require.NoError(t, err)
	require.True(t, outcomes[0].Blocked)

	f.confirmAllPending(t)

	outcomes, err = f.pipeline.Process(ctx, ProcessOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.False(t, outcomes[0].Blocked)
	assert.Equal(t, entities.ChapterComposed, outcomes[0].Status)

	units, err := f.store.ListScriptUnits(ctx, "01_inicio")
	require.NoError(t, err)
	require.Len(t, units, 2)
	for _, unit := range units {
		asset, err := f.store.FindActiveAsset(ctx, unit.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, asset.AudioPath)
		assert.NotEmpty(t, asset.ClipPath)
		assert.False(t, asset.Degraded)
	}
	assert.Len(t, f.assembler.ComposedSpecs, 2)
}

func TestProcessThroughStopsAtRequestedStage(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.writeChapter(t, "01_inicio.txt", "Nadie nuevo aparece aquí.")
	_, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)

	outcomes, err := f.pipeline.Process(ctx, ProcessOptions{Through: entities.ChapterScripted})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, entities.ChapterScripted, outcomes[0].Status)
	assert.Zero(t, f.tts.SynthesizeCallCount, "synthesis must not run past --through")
}

func TestProcessAllExtractorsFailing(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.extractor.Err = errors.New("model unavailable")
	f.writeChapter(t, "01_inicio.txt", "Texto cualquiera.")
	_, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)

	outcomes, err := f.pipeline.Process(ctx, ProcessOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)

	var backendErr *BackendError
	assert.ErrorAs(t, outcomes[0].Err, &backendErr)
	assert.Equal(t, "extraction", backendErr.Stage)

	// The failed stage never committed.
	chapter, err := f.store.FindChapter(ctx, "01_inicio")
	require.NoError(t, err)
	assert.Equal(t, entities.ChapterUnprocessed, chapter.Status)
}

func TestProcessRejectsUnknownChapterID(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.writeChapter(t, "01_inicio.txt", "Texto.")
	_, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)

	_, err = f.pipeline.Process(ctx, ProcessOptions{ChapterIDs: []string{"99_nada"}})
	assert.True(t, IsInputError(err))
}

func TestModifiedChapterKeepsConfirmedEntities(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.extractor.Candidates = []entities.EntityCandidate{
		{Kind: entities.KindCharacter, Surface: "Alexis", Confidence: 0.9},
	}
	f.writeChapter(t, "01_inicio.txt", "Alexis despertó temprano.")
	_, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)

	_, err = f.pipeline.Process(ctx, ProcessOptions{})
	require.NoError(t, err)
	f.confirmAllPending(t)
	_, err = f.pipeline.Process(ctx, ProcessOptions{})
	require.NoError(t, err)

	// Rewrite the chapter: downstream artifacts go, the registry stays.
	f.writeChapter(t, "01_inicio.txt", "Alexis despertó al anochecer.")
	report, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)
	require.Equal(t, []string{"01_inicio"}, report.Modified)

	chapter, err := f.store.FindChapter(ctx, "01_inicio")
	require.NoError(t, err)
	assert.Equal(t, entities.ChapterUnprocessed, chapter.Status)

	units, err := f.store.ListScriptUnits(ctx, "01_inicio")
	require.NoError(t, err)
	assert.Empty(t, units)

	confirmed, err := f.store.ListEntities(ctx, entities.KindCharacter, entities.ValidationConfirmed)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "Alexis", confirmed[0].Name)

	// Reprocessing matches the surviving entity exactly: nothing new to review.
	outcomes, err := f.pipeline.Process(ctx, ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, entities.ChapterComposed, outcomes[0].Status)
	count, err := f.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessChaptersAdvanceIndependently(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.writeChapter(t, "01_inicio.txt", "Primer capítulo sin personajes nuevos.")
	f.writeChapter(t, "02_bosque.txt", "Segundo capítulo igual de tranquilo.")
	_, err := f.pipeline.ScanChapters(ctx, f.chaptersDir)
	require.NoError(t, err)

	outcomes, err := f.pipeline.Process(ctx, ProcessOptions{ChapterIDs: []string{"02_bosque"}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, entities.ChapterComposed, outcomes[0].Status)

	first, err := f.store.FindChapter(ctx, "01_inicio")
	require.NoError(t, err)
	assert.Equal(t, entities.ChapterUnprocessed, first.Status)
}

func TestChapterStatusNeverRegresses(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStateStore()
	now := time.Now()
	require.NoError(t, store.SaveChapter(ctx, &entities.Chapter{
		ID: "ch01", Text: "texto", Fingerprint: "fp",
		Status: entities.ChapterScripted, CreatedAt: now, UpdatedAt: now,
	}))

	err := store.AdvanceChapter(ctx, "ch01", entities.ChapterScripted, entities.ChapterExtracted)
	assert.Error(t, err)

	err = store.AdvanceChapter(ctx, "ch01", entities.ChapterValidated, entities.ChapterScripted)
	assert.Error(t, err, "stale from-status must not commit")
}
