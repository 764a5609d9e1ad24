package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
	"github.com/qiankun25/RuralMuralGenerator/internal/knowledge"
	"github.com/qiankun25/RuralMuralGenerator/internal/llm"
)

// fallbackImagePrompt is used when the prompt extraction call fails.
const fallbackImagePrompt = "A beautiful Chinese village mural painting with traditional cultural elements"

// designQueryLimit caps the retrieval query at the head of the analysis.
const designQueryLimit = 200

// CreativeDesigner turns a cultural analysis into labeled design options.
type CreativeDesigner struct {
	gen      Generator
	search   Searcher
	prompts  llm.Prompts
	moderate Moderator
}

// NewCreativeDesigner wires the designer. moderate may be nil.
func NewCreativeDesigner(gen Generator, search Searcher, moderate Moderator, prompts llm.Prompts) *CreativeDesigner {
	return &CreativeDesigner{gen: gen, search: search, prompts: prompts, moderate: moderate}
}

// GenerateDesigns retrieves reference cases and produces exactly three
// labeled design variants. Retrieval failures degrade to placeholder
// context; the moderation scan is warn-only.
func (d *CreativeDesigner) GenerateDesigns(ctx context.Context, cultureAnalysis, userPreference string) (*domain.DesignSchema, error) {
	slog.Info("starting design generation")

	references := d.retrieveCases(ctx, cultureAnalysis)

	pair, err := d.prompts.Get("creative_designer")
	if err != nil {
		return nil, err
	}
	if userPreference == "" {
		userPreference = "无特殊要求"
	}

	userPrompt := llm.Render(pair.User, map[string]string{
		"culture_analysis":  cultureAnalysis,
		"design_references": references,
		"user_preference":   userPreference,
	})

	options, err := d.gen.Complete(ctx, pair.System, userPrompt, llm.Options{
		Temperature: 0.8,
		MaxTokens:   2500,
	})
	if err != nil {
		return nil, fmt.Errorf("design generation: %w", err)
	}

	if d.moderate != nil {
		if res := d.moderate.Check(options); !res.IsSafe {
			slog.Warn("design options contain sensitive words", "words", res.FoundWords)
		}
	}

	slog.Info("design generation completed", "length", len(options))
	return &domain.DesignSchema{
		Options:     options,
		NumOptions:  3,
		GeneratedAt: time.Now(),
	}, nil
}

func (d *CreativeDesigner) retrieveCases(ctx context.Context, cultureAnalysis string) string {
	query := cultureAnalysis
	if runes := []rune(query); len(runes) > designQueryLimit {
		query = string(runes[:designQueryLimit])
	}

	matches, err := d.search.Search(ctx, knowledge.CollectionDesignCases, query, 2)
	if err != nil {
		slog.Warn("design case retrieval failed", "error", err)
		return "设计案例检索失败"
	}
	if len(matches) == 0 {
		return "未找到相关设计案例"
	}

	var b strings.Builder
	b.WriteString("【设计案例参考】\n\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "案例 %d：\n%s\n\n", i+1, m.Document)
	}
	return b.String()
}

// ExtractImagePrompt converts a design description into an English
// text-to-image prompt. Extraction failures fall back to a generic prompt
// instead of erroring, so image generation is never blocked here.
func (d *CreativeDesigner) ExtractImagePrompt(ctx context.Context, designOption string) string {
	pair, err := d.prompts.Get("image_generator")
	if err != nil {
		slog.Error("image prompt template missing", "error", err)
		return fallbackImagePrompt
	}

	userPrompt := llm.Render(pair.User, map[string]string{
		"design_description": designOption,
	})

	prompt, err := d.gen.Complete(ctx, pair.System, userPrompt, llm.Options{
		Temperature: 0.5,
		MaxTokens:   300,
	})
	if err != nil {
		slog.Error("image prompt extraction failed, using fallback", "error", err)
		return fallbackImagePrompt
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fallbackImagePrompt
	}
	slog.Info("image prompt extracted", "prompt", prompt)
	return prompt
}

// Refine rewrites a design according to user feedback, keeping the original
// structure.
func (d *CreativeDesigner) Refine(ctx context.Context, originalDesign, userFeedback string) (string, error) {
	pair, err := d.prompts.Get("design_refiner")
	if err != nil {
		return "", err
	}

	userPrompt := llm.Render(pair.User, map[string]string{
		"original_design": originalDesign,
		"user_feedback":   userFeedback,
	})

	refined, err := d.gen.Complete(ctx, pair.System, userPrompt, llm.Options{
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("design refinement: %w", err)
	}
	return refined, nil
}
