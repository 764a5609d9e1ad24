// Package agents implements the four workflow agents: the Cultural Analyst,
// the Creative Designer, the Image Generator and the intent router. Each
// agent takes its collaborators as narrow interfaces so the workflow can be
// tested without providers.
package agents

import (
	"context"

	"github.com/qiankun25/RuralMuralGenerator/internal/gov"
	"github.com/qiankun25/RuralMuralGenerator/internal/image"
	"github.com/qiankun25/RuralMuralGenerator/internal/knowledge"
	"github.com/qiankun25/RuralMuralGenerator/internal/llm"
	"github.com/qiankun25/RuralMuralGenerator/internal/moderation"
)

// Generator produces text completions. Satisfied by *llm.Client.
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.Options) (string, error)
}

// Searcher retrieves documents from a knowledge collection. Satisfied by
// *knowledge.Store.
type Searcher interface {
	Search(ctx context.Context, collection, query string, topN int) ([]knowledge.Match, error)
}

// GovLookup queries the government open-data platform. Satisfied by
// *gov.Service.
type GovLookup interface {
	Lookup(ctx context.Context, name, provinceHint string) *gov.Record
}

// ImageBackend renders images. Satisfied by *image.Client.
type ImageBackend interface {
	Generate(ctx context.Context, prompt, style string) (*image.Result, error)
}

// Moderator scans text for sensitive words. Satisfied by
// *moderation.Checker.
type Moderator interface {
	Check(text string) moderation.Result
}
