package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// maxCueRunes bounds one subtitle cue (two display lines).
const maxCueRunes = 84

// SyncPlanner derives per-unit audio, visual and subtitle timing. The
// measured audio duration is the single source of timing truth: the visual
// plan and the subtitle cues are computed forward from it, so the tracks
// cannot drift apart.
type SyncPlanner struct {
	store           ports.StateStore
	tts             ports.SpeechSynthesizer
	narratorVoice   string
	secondsPerImage float64
	audioDir        string
	retry           RetryPolicy
	logger          *slog.Logger
}

// NewSyncPlanner creates a sync planner writing audio under audioDir.
func NewSyncPlanner(store ports.StateStore, tts ports.SpeechSynthesizer, narratorVoice string, secondsPerImage float64, audioDir string, retry RetryPolicy, logger *slog.Logger) *SyncPlanner {
	if secondsPerImage <= 0 {
		secondsPerImage = 6
	}
	if narratorVoice == "" {
		narratorVoice = "alloy"
	}
	return &SyncPlanner{
		store:           store,
		tts:             tts,
		narratorVoice:   narratorVoice,
		secondsPerImage: secondsPerImage,
		audioDir:        audioDir,
		retry:           retry,
		logger:          logger,
	}
}

// PlanUnit synthesizes the unit's audio and derives its scene asset. A unit
// whose active asset already carries audio is returned as-is, which makes
// resuming an interrupted chapter cheap.
func (p *SyncPlanner) PlanUnit(ctx context.Context, unit *entities.ScriptUnit, speaker *entities.Entity) (*entities.SceneAsset, error) {
	existing, err := p.store.FindActiveAsset(ctx, unit.ID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("%w: finding active asset for unit %s: %v", ErrStateStore, unit.ID, err)
	}
	if existing != nil && existing.AudioPath != "" && !existing.Degraded {
		return existing, nil
	}

	version := 1
	if existing != nil {
		version = existing.Version + 1
		if err := p.supersede(ctx, existing); err != nil {
			return nil, err
		}
	}

	asset := &entities.SceneAsset{
		ID:        uuid.New().String(),
		ChapterID: unit.ChapterID,
		UnitID:    unit.ID,
		Version:   version,
		CreatedAt: time.Now(),
	}

	voice := p.narratorVoice
	if speaker != nil && speaker.VoiceProfile != "" {
		voice = speaker.VoiceProfile
	}

	outPath := filepath.Join(p.audioDir, unit.ChapterID, fmt.Sprintf("unit_%03d_v%d.wav", unit.Index, version))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating audio dir: %w", err)
	}

	var result ports.SpeechResult
	err = p.retry.Do(ctx, func() error {
		var synthErr error
		result, synthErr = p.tts.Synthesize(ctx, unit.Text, voice, outPath)
		return synthErr
	})
	if err != nil {
		// Degrade instead of aborting the chapter: a silent gap of the
		// estimated length keeps the video timeline intact and the unit is
		// flagged for later regeneration.
		p.logger.Warn("synthesis failed, degrading unit",
			slog.String("unit", unit.ID),
			slog.Any("error", err))
		asset.Degraded = true
		asset.DegradedNote = fmt.Sprintf("synthesis failed: %v", err)
		asset.AudioDuration = unit.EstimatedDuration
		if asset.AudioDuration <= 0 {
			asset.AudioDuration = 2 * time.Second
		}
	} else {
		asset.AudioPath = result.AudioPath
		asset.AudioDuration = result.Duration
	}

	asset.Images = planImages(asset.AudioDuration, p.secondsPerImage)
	asset.Cues = PlanSubtitles(unit.Text, asset.AudioDuration)

	if err := p.store.SaveSceneAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("%w: saving scene asset: %v", ErrStateStore, err)
	}
	return asset, nil
}

// supersede retires the previous asset version.
func (p *SyncPlanner) supersede(ctx context.Context, asset *entities.SceneAsset) error {
	asset.Superseded = true
	if err := p.store.SaveSceneAsset(ctx, asset); err != nil {
		return fmt.Errorf("%w: superseding asset %s: %v", ErrStateStore, asset.ID, err)
	}
	return nil
}

// planImages computes how many images a unit needs and how long each is
// displayed so the visual track exactly covers the audio. The last image
// holds the remainder; audio is never truncated.
func planImages(audio time.Duration, secondsPerImage float64) []entities.TimedImage {
	if audio <= 0 {
		return []entities.TimedImage{{Duration: 2 * time.Second}}
	}
	target := time.Duration(secondsPerImage * float64(time.Second))
	count := int(math.Ceil(audio.Seconds() / secondsPerImage))
	if count < 1 {
		count = 1
	}

	images := make([]entities.TimedImage, count)
	var allocated time.Duration
	for i := 0; i < count-1; i++ {
		images[i].Duration = target
		allocated += target
	}
	images[count-1].Duration = audio - allocated
	return images
}

// PlanSubtitles derives subtitle cues from the unit text and its measured
// audio duration. Cue ranges are proportional to text length and always fall
// within [0, audio], guaranteeing subtitle/audio alignment by construction.
func PlanSubtitles(text string, audio time.Duration) []entities.SubtitleCue {
	text = strings.TrimSpace(text)
	if text == "" || audio <= 0 {
		return nil
	}

	chunks := splitCueText(text, maxCueRunes)
	totalRunes := 0
	for _, chunk := range chunks {
		totalRunes += len([]rune(chunk))
	}

	cues := make([]entities.SubtitleCue, 0, len(chunks))
	var cursor time.Duration
	for i, chunk := range chunks {
		share := float64(len([]rune(chunk))) / float64(totalRunes)
		length := time.Duration(share * float64(audio))
		end := cursor + length
		if i == len(chunks)-1 || end > audio {
			end = audio
		}
		cues = append(cues, entities.SubtitleCue{
			Index: i,
			Start: cursor,
			End:   end,
			Text:  chunk,
		})
		cursor = end
	}
	return cues
}

// splitCueText breaks text into cue-sized chunks on word boundaries.
func splitCueText(text string, maxRunes int) []string {
	words := strings.Fields(text)
	var chunks []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(word))+1 > maxRunes {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
