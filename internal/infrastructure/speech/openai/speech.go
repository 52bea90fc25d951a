// Package openai provides a SpeechSynthesizer implementation using OpenAI.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sashabaranov/go-openai"

	"github.com/narravid/narravid/internal/domain/ports"
	"github.com/narravid/narravid/internal/infrastructure/config"
)

// Synthesizer implements the SpeechSynthesizer interface using OpenAI TTS.
type Synthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
}

// NewSynthesizer creates a new OpenAI speech synthesizer.
func NewSynthesizer(cfg config.SpeechConfig) (*Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	client := openai.NewClient(cfg.APIKey)

	model := openai.TTSModel1
	if cfg.Model != "" {
		model = openai.SpeechModel(cfg.Model)
	}

	return &Synthesizer{
		client: client,
		model:  model,
	}, nil
}

// Synthesize renders the text to a WAV file at outPath and measures its
// duration from the WAV header. The file lands under its final name only
// after a complete write; a crashed synthesis leaves no partial artifact.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceProfile, outPath string) (ports.SpeechResult, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          openai.SpeechVoice(voiceProfile),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return ports.SpeechResult{}, fmt.Errorf("calling OpenAI TTS: %w", err)
	}
	defer resp.Close()

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".synth-*.wav")
	if err != nil {
		return ports.SpeechResult{}, fmt.Errorf("creating temp audio file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp); err != nil {
		tmp.Close()
		return ports.SpeechResult{}, fmt.Errorf("writing audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return ports.SpeechResult{}, fmt.Errorf("closing temp audio file: %w", err)
	}

	duration, err := WAVDuration(tmp.Name())
	if err != nil {
		return ports.SpeechResult{}, fmt.Errorf("measuring audio duration: %w", err)
	}

	if err := os.Rename(tmp.Name(), outPath); err != nil {
		return ports.SpeechResult{}, fmt.Errorf("moving audio into place: %w", err)
	}
	return ports.SpeechResult{AudioPath: outPath, Duration: duration}, nil
}
