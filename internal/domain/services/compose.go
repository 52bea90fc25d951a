package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
)

// Composer turns planned scene assets into clips and clips into the final
// video. Composition is deterministic: asset paths derive from chapter,
// unit index and asset version, and re-running an unchanged chapter
// reproduces the same output.
type Composer struct {
	store     ports.StateStore
	imggen    ports.ImageGenerator
	assembler ports.VideoAssembler
	imagesDir string
	clipsDir  string
	style     string
	retry     RetryPolicy
	logger    *slog.Logger
}

// NewComposer creates a scene composer.
func NewComposer(store ports.StateStore, imggen ports.ImageGenerator, assembler ports.VideoAssembler, imagesDir, clipsDir, style string, retry RetryPolicy, logger *slog.Logger) *Composer {
	return &Composer{
		store:     store,
		imggen:    imggen,
		assembler: assembler,
		imagesDir: imagesDir,
		clipsDir:  clipsDir,
		style:     style,
		retry:     retry,
		logger:    logger,
	}
}

// ComposeChapter generates missing images and composes one clip per script
// unit. Units whose active asset already has a clip are skipped, making the
// stage idempotent and resumable.
func (c *Composer) ComposeChapter(ctx context.Context, chapter *entities.Chapter) error {
	units, err := c.store.ListScriptUnits(ctx, chapter.ID)
	if err != nil {
		return fmt.Errorf("listing script units: %w", err)
	}

	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		asset, err := c.store.FindActiveAsset(ctx, unit.ID)
		if err != nil {
			return fmt.Errorf("unit %s has no planned asset: %w", unit.ID, err)
		}
		if asset.ClipPath != "" {
			continue
		}
		if err := c.composeUnit(ctx, chapter, unit, asset); err != nil {
			return err
		}
	}
	return nil
}

// composeUnit fills in the asset's images and renders its clip.
func (c *Composer) composeUnit(ctx context.Context, chapter *entities.Chapter, unit *entities.ScriptUnit, asset *entities.SceneAsset) error {
	prompt, err := c.buildPrompt(ctx, unit)
	if err != nil {
		return err
	}

	dir := filepath.Join(c.imagesDir, chapter.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating images dir: %w", err)
	}

	for i := range asset.Images {
		if asset.Images[i].Path != "" {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("unit_%03d_v%d_%02d.png", unit.Index, asset.Version, i))
		if _, err := os.Stat(path); err == nil {
			asset.Images[i].Path = path
			continue
		}

		genErr := c.retry.Do(ctx, func() error {
			return c.imggen.Generate(ctx, prompt, c.style, path)
		})
		if genErr != nil {
			// Blank frame instead of a dead chapter; flagged for later
			// regeneration.
			c.logger.Warn("image generation failed, using blank frame",
				slog.String("unit", unit.ID),
				slog.Any("error", genErr))
			if err := writeBlankFrame(path); err != nil {
				return fmt.Errorf("writing blank frame: %w", err)
			}
			asset.Degraded = true
			asset.DegradedNote = appendNote(asset.DegradedNote, fmt.Sprintf("image %d failed: %v", i, genErr))
		}
		asset.Images[i].Path = path
	}

	clipDir := filepath.Join(c.clipsDir, chapter.ID)
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return fmt.Errorf("creating clips dir: %w", err)
	}
	clipPath := filepath.Join(clipDir, fmt.Sprintf("unit_%03d_v%d.mp4", unit.Index, asset.Version))

	spec := ports.ClipSpec{Images: asset.Images, Audio: asset.AudioPath, OutPath: clipPath}
	if err := c.retry.Do(ctx, func() error { return c.assembler.ComposeClip(ctx, spec) }); err != nil {
		return &BackendError{Stage: "assembly", Backend: "video", Attempts: c.retry.Attempts, Err: err}
	}

	asset.ClipPath = clipPath
	if err := c.store.SaveSceneAsset(ctx, asset); err != nil {
		return fmt.Errorf("%w: saving composed asset: %v", ErrStateStore, err)
	}
	return nil
}

// buildPrompt combines the unit text with descriptions of the confirmed
// entities it mentions, plus the configured style.
func (c *Composer) buildPrompt(ctx context.Context, unit *entities.ScriptUnit) (string, error) {
	confirmed, err := c.store.ListEntities(ctx, "", entities.ValidationConfirmed)
	if err != nil {
		return "", fmt.Errorf("listing confirmed entities: %w", err)
	}

	var details []string
	normalized := " " + entities.NormalizeSurface(strings.Map(stripPunct, unit.Text)) + " "
	for _, ent := range confirmed {
		if ent.Description == "" {
			continue
		}
		for _, surface := range append([]string{ent.Name}, ent.Aliases...) {
			if strings.Contains(normalized, " "+entities.NormalizeSurface(surface)+" ") {
				details = append(details, fmt.Sprintf("%s: %s", ent.Name, ent.Description))
				break
			}
		}
	}
	sort.Strings(details)

	var b strings.Builder
	b.WriteString(unit.Text)
	if len(details) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(details, "\n"))
	}
	return b.String(), nil
}

// RenderProject concatenates every composed chapter's clips, in chapter and
// unit order, into the final video with the full subtitle track.
func (c *Composer) RenderProject(ctx context.Context, outPath string) (string, error) {
	chapters, err := c.store.ListChapters(ctx)
	if err != nil {
		return "", fmt.Errorf("listing chapters: %w", err)
	}

	var clips []string
	var cues []entities.SubtitleCue
	var offset time.Duration

	for _, chapter := range chapters {
		if chapter.Status != entities.ChapterComposed {
			return "", NewInputError("chapter %s is %s, not composed", chapter.ID, chapter.Status)
		}
		assets, err := c.store.ListAssets(ctx, chapter.ID)
		if err != nil {
			return "", fmt.Errorf("listing assets for %s: %w", chapter.ID, err)
		}
		for _, asset := range assets {
			if asset.ClipPath == "" {
				return "", NewInputError("chapter %s has an uncomposed unit", chapter.ID)
			}
			clips = append(clips, asset.ClipPath)
			for _, cue := range asset.Cues {
				cues = append(cues, entities.SubtitleCue{
					Index: len(cues),
					Start: offset + cue.Start,
					End:   offset + cue.End,
					Text:  cue.Text,
				})
			}
			offset += asset.AudioDuration
		}
	}
	if len(clips) == 0 {
		return "", NewInputError("no composed clips to render")
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	if err := c.assembler.Assemble(ctx, clips, cues, outPath); err != nil {
		return "", &BackendError{Stage: "assembly", Backend: "video", Attempts: 1, Err: err}
	}
	return outPath, nil
}

// writeBlankFrame writes a plain black PNG placeholder.
func writeBlankFrame(path string) error {
	img := image.NewRGBA(image.Rect(0, 0, 1024, 1024))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
