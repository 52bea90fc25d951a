package ports

import "context"

// ImageGenerator defines the interface for image generation backends.
type ImageGenerator interface {
	// Generate renders an image for the prompt in the given style and
	// writes it to outPath (PNG).
	Generate(ctx context.Context, prompt, style, outPath string) error
}
