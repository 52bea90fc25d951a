package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/mocks"
)

func plannerFixture(t *testing.T) (*mocks.StateStore, *mocks.SpeechSynthesizer, *SyncPlanner) {
	t.Helper()
	store := mocks.NewStateStore()
	tts := &mocks.SpeechSynthesizer{FailTexts: map[string]bool{}}
	planner := NewSyncPlanner(store, tts, "alloy", 6, t.TempDir(), RetryPolicy{Attempts: 1}, testLogger())
	return store, tts, planner
}

func testUnit(id, chapter, text string) *entities.ScriptUnit {
	return &entities.ScriptUnit{
		ID:                id,
		ChapterID:         chapter,
		Index:             0,
		Kind:              entities.UnitNarration,
		Text:              text,
		EstimatedDuration: 4 * time.Second,
	}
}

func TestPlanUnitMeasuredAudioDrivesTiming(t *testing.T) {
	ctx := context.Background()
	_, tts, planner := plannerFixture(t)
	tts.Duration = 13 * time.Second

	asset, err := planner.PlanUnit(ctx, testUnit("u1", "ch01", "Alexis cruzó el umbral del bosque."), nil)
	require.NoError(t, err)
	require.False(t, asset.Degraded)
	assert.NotEmpty(t, asset.AudioPath)
	assert.Equal(t, 13*time.Second, asset.AudioDuration)

	// ceil(13/6) = 3 images, last one holds the remainder.
	require.Len(t, asset.Images, 3)
	var total time.Duration
	for _, img := range asset.Images {
		assert.Positive(t, img.Duration)
		total += img.Duration
	}
	assert.Equal(t, asset.AudioDuration, total)
	assert.Equal(t, 1*time.Second, asset.Images[2].Duration)
}

func TestPlanUnitResumesExistingAsset(t *testing.T) {
	ctx := context.Background()
	_, tts, planner := plannerFixture(t)

	unit := testUnit("u1", "ch01", "Texto del primer intento.")
	first, err := planner.PlanUnit(ctx, unit, nil)
	require.NoError(t, err)

	again, err := planner.PlanUnit(ctx, unit, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, tts.SynthesizeCallCount, "resumed unit must not re-synthesize")
}

func TestPlanUnitDegradesOnSynthesisFailure(t *testing.T) {
	ctx := context.Background()
	store, tts, planner := plannerFixture(t)
	tts.FailTexts["Texto maldito."] = true

	unit := testUnit("u1", "ch01", "Texto maldito.")
	asset, err := planner.PlanUnit(ctx, unit, nil)
	require.NoError(t, err, "synthesis failure degrades, it does not abort")
	assert.True(t, asset.Degraded)
	assert.Empty(t, asset.AudioPath)
	assert.Equal(t, unit.EstimatedDuration, asset.AudioDuration)
	assert.NotEmpty(t, asset.Images)
	assert.NotEmpty(t, asset.Cues)

	stored, err := store.FindActiveAsset(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stored.Degraded)
}

func TestPlanUnitRetriesDegradedAsset(t *testing.T) {
	ctx := context.Background()
	_, tts, planner := plannerFixture(t)
	tts.FailTexts["Texto maldito."] = true

	unit := testUnit("u1", "ch01", "Texto maldito.")
	first, err := planner.PlanUnit(ctx, unit, nil)
	require.NoError(t, err)
	require.True(t, first.Degraded)

	// Once the backend recovers the degraded asset is superseded.
	delete(tts.FailTexts, "Texto maldito.")
	second, err := planner.PlanUnit(ctx, unit, nil)
	require.NoError(t, err)
	assert.False(t, second.Degraded)
	assert.Equal(t, first.Version+1, second.Version)
	assert.NotEmpty(t, second.AudioPath)
}

func TestPlanUnitSurfacesStoreFailure(t *testing.T) {
	ctx := context.Background()
	store, tts, planner := plannerFixture(t)
	store.Err = errors.New("database is locked")

	// A broken store is not "no asset yet": resynthesizing here would burn
	// backend quota and then fail to commit anyway.
	_, err := planner.PlanUnit(ctx, testUnit("u1", "ch01", "Texto cualquiera."), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateStore)
	assert.Zero(t, tts.SynthesizeCallCount)
}

func TestPlanUnitUsesSpeakerVoice(t *testing.T) {
	ctx := context.Background()
	_, tts, planner := plannerFixture(t)

	speaker := confirmedEntity("e1", "Elena", entities.KindCharacter)
	speaker.VoiceProfile = "nova"
	_, err := planner.PlanUnit(ctx, testUnit("u1", "ch01", "—Hola."), speaker)
	require.NoError(t, err)

	_, err = planner.PlanUnit(ctx, testUnit("u2", "ch01", "Narración."), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"nova", "alloy"}, tts.Voices)
}

func TestPlanImages(t *testing.T) {
	tests := []struct {
		name  string
		audio time.Duration
		want  int
		last  time.Duration
	}{
		{name: "short clip gets one image", audio: 3 * time.Second, want: 1, last: 3 * time.Second},
		{name: "exact multiple", audio: 12 * time.Second, want: 2, last: 6 * time.Second},
		{name: "remainder on last image", audio: 13 * time.Second, want: 3, last: 1 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := planImages(tt.audio, 6)
			require.Len(t, images, tt.want)
			assert.Equal(t, tt.last, images[len(images)-1].Duration)

			var total time.Duration
			for _, img := range images {
				total += img.Duration
			}
			assert.Equal(t, tt.audio, total)
		})
	}

	t.Run("zero audio still yields a frame", func(t *testing.T) {
		images := planImages(0, 6)
		require.Len(t, images, 1)
		assert.Positive(t, images[0].Duration)
	})
}

func TestPlanSubtitlesCoverAudioExactly(t *testing.T) {
	text := strings.Repeat("palabra tras palabra sigue la historia ", 6)
	audio := 20 * time.Second

	cues := PlanSubtitles(text, audio)
	require.NotEmpty(t, cues)

	var prevEnd time.Duration
	for i, cue := range cues {
		assert.Equal(t, i, cue.Index)
		assert.GreaterOrEqual(t, cue.Start, time.Duration(0))
		assert.LessOrEqual(t, cue.End, audio)
		assert.Equal(t, prevEnd, cue.Start, "cues must be contiguous")
		assert.LessOrEqual(t, len([]rune(cue.Text)), maxCueRunes)
		prevEnd = cue.End
	}
	assert.Equal(t, audio, cues[len(cues)-1].End)
}

func TestPlanSubtitlesEdgeCases(t *testing.T) {
	assert.Nil(t, PlanSubtitles("", 5*time.Second))
	assert.Nil(t, PlanSubtitles("texto", 0))

	cues := PlanSubtitles("corto", 3*time.Second)
	require.Len(t, cues, 1)
	assert.Equal(t, time.Duration(0), cues[0].Start)
	assert.Equal(t, 3*time.Second, cues[0].End)
}

func TestSplitCueText(t *testing.T) {
	chunks := splitCueText("uno dos tres cuatro cinco", 12)
	require.Len(t, chunks, 2)
	assert.Equal(t, "uno dos tres", chunks[0])
	assert.Equal(t, "cuatro cinco", chunks[1])
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 12)
	}
}
