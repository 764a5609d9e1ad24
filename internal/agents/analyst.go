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

// dataSources is the provenance footer appended to every analysis report.
var dataSources = []string{
	"本地知识库（向量检索）",
	"政府开放数据平台",
	"AI深度分析（通义千问）",
}

// CultureAnalyst produces the cultural analysis report for a village.
type CultureAnalyst struct {
	gen     Generator
	search  Searcher
	gov     GovLookup
	prompts llm.Prompts
}

// NewCultureAnalyst wires the analyst. gov may be nil.
func NewCultureAnalyst(gen Generator, search Searcher, gov GovLookup, prompts llm.Prompts) *CultureAnalyst {
	return &CultureAnalyst{gen: gen, search: search, gov: gov, prompts: prompts}
}

// Analyze runs retrieval, the best-effort government lookup and one
// generation call. Retrieval and lookup failures degrade to placeholder
// context; only a failed generation call is fatal.
func (a *CultureAnalyst) Analyze(ctx context.Context, info *domain.VillageInfo) (*domain.CultureAnalysis, error) {
	slog.Info("starting culture analysis", "village", info.Name)

	knowledgeContext := a.retrieveKnowledge(ctx, info)
	governmentData := a.queryGovernment(ctx, info)

	pair, err := a.prompts.Get("culture_analyst")
	if err != nil {
		return nil, err
	}

	modification := ""
	if info.ModificationRequest != "" {
		modification = "用户修改要求：" + info.ModificationRequest
	}

	userPrompt := llm.Render(pair.User, map[string]string{
		"name":                 orUnknown(info.Name),
		"location":             orUnknown(info.Location),
		"industry":             orUnknown(info.Industry),
		"history":              orUnknown(info.History),
		"knowledge_context":    knowledgeContext,
		"government_data":      governmentData,
		"modification_request": modification,
	})

	report, err := a.gen.Complete(ctx, pair.System, userPrompt, llm.Options{
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, fmt.Errorf("culture analysis generation: %w", err)
	}

	report += "\n\n---\n\n**数据来源**\n"
	for _, src := range dataSources {
		report += "- " + src + "\n"
	}

	slog.Info("culture analysis completed", "village", info.Name, "length", len(report))
	return &domain.CultureAnalysis{
		Report:      report,
		DataSources: dataSources,
		GeneratedAt: time.Now(),
	}, nil
}

func (a *CultureAnalyst) retrieveKnowledge(ctx context.Context, info *domain.VillageInfo) string {
	var parts []string
	for _, p := range []string{info.Name, info.Location, info.Industry} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	query := strings.Join(parts, " ")

	matches, err := a.search.Search(ctx, knowledge.CollectionVillages, query, 3)
	if err != nil {
		slog.Warn("knowledge retrieval failed", "village", info.Name, "error", err)
		return "知识库检索失败"
	}
	if len(matches) == 0 {
		return "未找到相关知识库信息"
	}

	var b strings.Builder
	b.WriteString("【知识库检索结果】\n\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "参考资料 %d：\n%s\n\n", i+1, m.Document)
	}
	return b.String()
}

func (a *CultureAnalyst) queryGovernment(ctx context.Context, info *domain.VillageInfo) string {
	if a.gov == nil {
		return "政府数据查询失败"
	}
	rec := a.gov.Lookup(ctx, info.Name, "")
	if rec == nil {
		return "未提供村落名称"
	}
	return rec.Format()
}

func orUnknown(s string) string {
	if s == "" {
		return "未知"
	}
	return s
}
