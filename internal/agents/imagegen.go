package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
)

// ImageGenerator renders the final mural image from a prompt.
type ImageGenerator struct {
	backend ImageBackend
}

// NewImageGenerator wires the image agent.
func NewImageGenerator(backend ImageBackend) *ImageGenerator {
	return &ImageGenerator{backend: backend}
}

// Generate renders the mural. Mock results count as success; the error path
// is reserved for a provider failure with no mock available.
func (g *ImageGenerator) Generate(ctx context.Context, prompt, style string) (*domain.ImageResult, error) {
	if style == "" {
		style = "traditional"
	}
	slog.Info("starting image generation", "style", style)

	res, err := g.backend.Generate(ctx, prompt, style)
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}

	images := make([]domain.ImageInfo, len(res.Images))
	for i, img := range res.Images {
		images[i] = domain.ImageInfo{URL: img.URL, LocalPath: img.LocalPath}
	}

	slog.Info("image generation completed", "count", len(images), "is_mock", res.IsMock)
	return &domain.ImageResult{
		Images:      images,
		Prompt:      res.Prompt,
		Style:       res.Style,
		IsMock:      res.IsMock,
		GeneratedAt: time.Now(),
	}, nil
}
