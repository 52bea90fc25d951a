// Package ffmpeg provides a VideoAssembler implementation shelling out to
// ffmpeg. Outputs are written to a temp path and renamed into place so an
// interrupted encode never leaves a half-written artifact under its final
// name.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
	"github.com/narravid/narravid/internal/infrastructure/config"
)

// Runner executes an external command and returns its combined output.
// Injectable so tests can assert the built invocations without ffmpeg.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Assembler implements the VideoAssembler interface using ffmpeg.
type Assembler struct {
	ffmpegPath string
	width      int
	height     int
	fps        int
	runner     Runner
}

// NewAssembler creates an ffmpeg assembler.
func NewAssembler(cfg config.VideoConfig) *Assembler {
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	width, height, fps := cfg.Width, cfg.Height, cfg.FPS
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	if fps <= 0 {
		fps = 24
	}
	return &Assembler{
		ffmpegPath: path,
		width:      width,
		height:     height,
		fps:        fps,
		runner:     execRunner{},
	}
}

// WithRunner replaces the command runner.
func (a *Assembler) WithRunner(r Runner) *Assembler {
	a.runner = r
	return a
}

// ComposeClip renders one scene clip from timed images plus optional audio.
// An empty audio path produces a silent track of the visual length, keeping
// degraded units on the timeline.
func (a *Assembler) ComposeClip(ctx context.Context, spec ports.ClipSpec) error {
	if len(spec.Images) == 0 {
		return fmt.Errorf("clip %s has no images", spec.OutPath)
	}

	listPath := spec.OutPath + ".images.txt"
	if err := writeImageList(listPath, spec.Images); err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
	}
	if spec.Audio != "" {
		args = append(args, "-i", spec.Audio)
	} else {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100")
	}
	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", a.width, a.height, a.width, a.height),
		"-r", fmt.Sprintf("%d", a.fps),
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
	)

	tmp := spec.OutPath + ".tmp.mp4"
	args = append(args, tmp)

	if out, err := a.runner.Run(ctx, a.ffmpegPath, args...); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg compose failed: %w (output: %s)", err, tail(out))
	}
	if err := os.Rename(tmp, spec.OutPath); err != nil {
		return fmt.Errorf("moving clip into place: %w", err)
	}
	return nil
}

// Assemble concatenates scene clips in order and muxes the subtitle track
// into the final video.
func (a *Assembler) Assemble(ctx context.Context, clips []string, subtitles []entities.SubtitleCue, outPath string) error {
	if len(clips) == 0 {
		return fmt.Errorf("nothing to assemble into %s", outPath)
	}

	listPath := outPath + ".clips.txt"
	if err := writeClipList(listPath, clips); err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
	}

	srtPath := ""
	if len(subtitles) > 0 {
		srtPath = outPath + ".srt"
		if err := WriteSRT(srtPath, subtitles); err != nil {
			return err
		}
		args = append(args, "-i", srtPath, "-c:s", "mov_text")
	}

	args = append(args, "-c:v", "copy", "-c:a", "copy")

	tmp := outPath + ".tmp.mp4"
	args = append(args, tmp)

	if out, err := a.runner.Run(ctx, a.ffmpegPath, args...); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg assemble failed: %w (output: %s)", err, tail(out))
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return fmt.Errorf("moving video into place: %w", err)
	}
	return nil
}

// writeImageList writes a concat-demuxer list of timed images. The last
// entry is repeated without a duration per the demuxer's requirement.
func writeImageList(path string, images []entities.TimedImage) error {
	var b strings.Builder
	for _, img := range images {
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(img.Path))
		fmt.Fprintf(&b, "duration %.3f\n", img.Duration.Seconds())
	}
	fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(images[len(images)-1].Path))

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing image list: %w", err)
	}
	return nil
}

// writeClipList writes a concat-demuxer list of clip files.
func writeClipList(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			abs = clip
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(abs))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing clip list: %w", err)
	}
	return nil
}

// escapeConcatPath escapes single quotes for the concat demuxer list format.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

// tail returns the last part of command output for error messages.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		s = "..." + s[len(s)-400:]
	}
	return s
}
