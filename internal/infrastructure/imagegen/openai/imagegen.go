// Package openai provides an ImageGenerator implementation using OpenAI.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sashabaranov/go-openai"

	"github.com/narravid/narravid/internal/infrastructure/config"
)

// Generator implements the ImageGenerator interface using OpenAI images.
type Generator struct {
	client *openai.Client
	model  string
	size   string
}

// NewGenerator creates a new OpenAI image generator.
func NewGenerator(cfg config.ImagesConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	client := openai.NewClient(cfg.APIKey)

	model := openai.CreateImageModelDallE3
	if cfg.Model != "" {
		model = cfg.Model
	}
	size := openai.CreateImageSize1024x1024
	if cfg.Size != "" {
		size = cfg.Size
	}

	return &Generator{
		client: client,
		model:  model,
		size:   size,
	}, nil
}

// Generate renders one image for the prompt and writes it to outPath. The
// style string is folded into the prompt so every scene of a project shares
// a visual register.
func (g *Generator) Generate(ctx context.Context, prompt, style, outPath string) error {
	full := prompt
	if style != "" {
		full = fmt.Sprintf("%s\n\nStyle: %s", prompt, style)
	}

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         full,
		Model:          g.model,
		Size:           g.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return fmt.Errorf("calling OpenAI images: %w", err)
	}
	if len(resp.Data) == 0 {
		return errors.New("no image returned")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return fmt.Errorf("decoding image data: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(outPath), "."+filepath.Base(outPath)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("moving image into place: %w", err)
	}
	return nil
}
