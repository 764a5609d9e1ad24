// Package workflow drives the four-stage mural generation conversation.
// Each call to Process handles one user turn: INITIAL input is parsed as
// structured village data, every later turn is classified by the intent
// router and dispatched to an agent. Agent failures of any kind surface as
// a single manager message and leave the session stage untouched.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qiankun25/RuralMuralGenerator/internal/agents"
	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
)

// Analyst produces cultural analysis reports.
type Analyst interface {
	Analyze(ctx context.Context, info *domain.VillageInfo) (*domain.CultureAnalysis, error)
}

// Designer produces design options and image prompts.
type Designer interface {
	GenerateDesigns(ctx context.Context, cultureAnalysis, userPreference string) (*domain.DesignSchema, error)
	ExtractImagePrompt(ctx context.Context, designOption string) string
}

// ImageAgent renders the mural image.
type ImageAgent interface {
	Generate(ctx context.Context, prompt, style string) (*domain.ImageResult, error)
}

// Router classifies user intent.
type Router interface {
	Route(ctx context.Context, snap domain.Snapshot) (agents.Decision, error)
}

// Manager replies for the paths an agent cannot answer.
const (
	msgInvalidVillageInfo = "❌ 村落信息格式错误。\n\n" +
		"请通过前端表单提交结构化数据（包含名称、位置、历史、产业、文化特色）。\n" +
		"系统无法从自由文本中可靠提取必要信息。"
	msgWorkflowReset = "好的，我们重新开始。请通过表单提供村落的基本信息（名称、位置、历史、产业、文化特色）以便进行文化分析。"
	msgNeedVillage   = "错误：缺少村落信息。请先提交结构化数据。"
	msgNeedAnalysis  = "错误：缺少文化分析结果，无法生成设计方案。请先完成文化分析。"
	msgNeedDesign    = "错误：缺少设计方案，无法生成图像。请先完成设计。"
	msgBackToInitial = "请提供村落的基本信息（如名称、位置、历史、产业等），以便我们开始文化分析。"
	msgNothingToEdit = "当前处于初始阶段，还没有可修改的内容。请先提供村落信息。"
)

// Controller orchestrates the agents over one session.
type Controller struct {
	analyst  Analyst
	designer Designer
	imager   ImageAgent
	router   Router
}

// New wires a controller.
func New(analyst Analyst, designer Designer, imager ImageAgent, router Router) *Controller {
	return &Controller{analyst: analyst, designer: designer, imager: imager, router: router}
}

// Process handles one user turn and reports whether the workflow finished.
// The workflow is done only when the user confirms into the IMAGE stage and
// the render succeeds.
func (c *Controller) Process(ctx context.Context, s *domain.Session, input string) bool {
	slog.Info("processing user input", "session_id", s.ID, "stage", s.Stage)
	s.AddUserMessage(input)

	if s.Stage == domain.StageInitial {
		return c.handleInitial(ctx, s, input)
	}

	decision, err := c.router.Route(ctx, s.Snapshot())
	if err != nil {
		c.reportFailure(s, err)
		return false
	}

	switch decision.Action {
	case domain.ActionNew:
		return c.handleNew(s)
	case domain.ActionConfirm:
		return c.handleConfirm(ctx, s, decision.NextStage)
	case domain.ActionModify:
		return c.handleModify(ctx, s, input)
	}
	return false
}

// handleInitial expects a structured village-info JSON payload and runs the
// first analysis immediately on success.
func (c *Controller) handleInitial(ctx context.Context, s *domain.Session, input string) bool {
	info, err := ParseVillageInfo(input)
	if err != nil {
		slog.Warn("invalid village info payload", "session_id", s.ID, "error", err)
		s.AddAgentMessage(domain.AgentManager, msgInvalidVillageInfo)
		return false
	}
	s.Data.VillageInfo = info

	analysis, err := c.analyst.Analyze(ctx, info)
	if err != nil {
		c.reportFailure(s, err)
		return false
	}
	s.Data.CultureAnalysis = analysis
	s.Stage = domain.StageCulture
	s.AddAgentMessage(domain.AgentCultureAnalyst,
		fmt.Sprintf("✅ 村落信息已接收！\n\n文化分析完成：\n\n%s\n\n请确认是否继续生成设计方案？", analysis.Report))
	return false
}

func (c *Controller) handleNew(s *domain.Session) bool {
	s.ResetToInitial()
	s.AddAgentMessage(domain.AgentManager, msgWorkflowReset)
	slog.Info("workflow reset", "session_id", s.ID)
	return false
}

func (c *Controller) handleConfirm(ctx context.Context, s *domain.Session, next domain.Stage) bool {
	switch next {
	case domain.StageCulture:
		info := s.Data.VillageInfo
		if info == nil {
			s.AddAgentMessage(domain.AgentManager, msgNeedVillage)
			return false
		}
		analysis, err := c.analyst.Analyze(ctx, info)
		if err != nil {
			c.reportFailure(s, err)
			return false
		}
		s.Data.CultureAnalysis = analysis
		s.Stage = domain.StageCulture
		s.AddAgentMessage(domain.AgentCultureAnalyst,
			fmt.Sprintf("文化分析完成：\n\n%s\n\n请确认是否继续生成设计方案？", analysis.Report))

	case domain.StageDesign:
		analysis := s.Data.CultureAnalysis
		if analysis == nil {
			s.AddAgentMessage(domain.AgentManager, msgNeedAnalysis)
			return false
		}
		schema, err := c.designer.GenerateDesigns(ctx, analysis.Report, s.LastUserInput())
		if err != nil {
			c.reportFailure(s, err)
			return false
		}
		s.Data.DesignSchema = schema
		s.Stage = domain.StageDesign
		s.AddAgentMessage(domain.AgentCreativeDesigner,
			fmt.Sprintf("设计方案生成完成：\n\n%s\n\n请选择一个方案继续生成图像，或要求修改设计。", schema.Options))

	case domain.StageImage:
		design := s.Data.DesignSchema
		if design == nil {
			s.AddAgentMessage(domain.AgentManager, msgNeedDesign)
			return false
		}
		selection := design.Options
		if input := s.LastUserInput(); input != "" {
			selection += "\n\n用户选择：" + input
		}
		prompt := c.designer.ExtractImagePrompt(ctx, selection)
		result, err := c.imager.Generate(ctx, prompt, "traditional")
		if err != nil {
			c.reportFailure(s, err)
			return false
		}
		s.Data.ImageResult = result
		s.Stage = domain.StageImage
		s.AddAgentMessage(domain.AgentImageGenerator,
			fmt.Sprintf("图像生成完成！\n\n%s\n\n请确认是否满意，或要求重新生成。", firstImageURL(result)))
		slog.Info("workflow completed", "session_id", s.ID)
		return true

	default:
		// CONFIRM back to INITIAL: ask for the form again, keep the slots.
		s.Stage = domain.StageInitial
		s.AddAgentMessage(domain.AgentManager, msgBackToInitial)
	}
	return false
}

func (c *Controller) handleModify(ctx context.Context, s *domain.Session, input string) bool {
	switch s.Stage {
	case domain.StageCulture:
		info := s.Data.VillageInfo
		if info == nil {
			s.AddAgentMessage(domain.AgentManager, msgNeedVillage)
			return false
		}
		redo := *info
		redo.ModificationRequest = input
		analysis, err := c.analyst.Analyze(ctx, &redo)
		if err != nil {
			c.reportFailure(s, err)
			return false
		}
		s.Data.CultureAnalysis = analysis
		s.AddAgentMessage(domain.AgentCultureAnalyst,
			fmt.Sprintf("已根据您的要求重新分析：\n\n%s\n\n请确认是否满意？", analysis.Report))

	case domain.StageDesign:
		analysis := s.Data.CultureAnalysis
		if analysis == nil {
			s.AddAgentMessage(domain.AgentManager, msgNeedAnalysis)
			return false
		}
		schema, err := c.designer.GenerateDesigns(ctx, analysis.Report, "用户修改要求："+input)
		if err != nil {
			c.reportFailure(s, err)
			return false
		}
		s.Data.DesignSchema = schema
		s.AddAgentMessage(domain.AgentCreativeDesigner,
			fmt.Sprintf("已根据您的要求重新设计：\n\n%s\n\n请确认是否满意？", schema.Options))

	case domain.StageImage:
		design := s.Data.DesignSchema
		if design == nil {
			s.AddAgentMessage(domain.AgentManager, msgNeedDesign)
			return false
		}
		prompt := c.designer.ExtractImagePrompt(ctx, design.Options+"\n\n修改要求："+input)
		result, err := c.imager.Generate(ctx, prompt, "traditional")
		if err != nil {
			c.reportFailure(s, err)
			return false
		}
		s.Data.ImageResult = result
		s.AddAgentMessage(domain.AgentImageGenerator,
			fmt.Sprintf("已根据您的要求重新生成：\n\n%s\n\n请确认是否满意？", firstImageURL(result)))

	default:
		s.AddAgentMessage(domain.AgentManager, msgNothingToEdit)
	}
	return false
}

// reportFailure converts any agent error into one manager message. The
// stage and slots stay as they were before the turn.
func (c *Controller) reportFailure(s *domain.Session, err error) {
	slog.Error("agent failure", "session_id", s.ID, "stage", s.Stage, "error", err)

	var derr *agents.RouterDecodeError
	if errors.As(err, &derr) {
		s.AddAgentMessage(domain.AgentManager,
			"抱歉，我没有理解您的意图，请换一种说法，或明确说明希望继续、修改还是重新开始。")
		return
	}
	s.AddAgentMessage(domain.AgentManager,
		fmt.Sprintf("抱歉，处理您的请求时出现了问题：%v\n\n请稍后重试。", err))
}

func firstImageURL(r *domain.ImageResult) string {
	if r == nil || len(r.Images) == 0 {
		return ""
	}
	return r.Images[0].URL
}
