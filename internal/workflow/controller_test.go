package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/qiankun25/RuralMuralGenerator/internal/agents"
	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
)

type fakeAnalyst struct {
	err   error
	calls int
	last  *domain.VillageInfo
}

func (a *fakeAnalyst) Analyze(_ context.Context, info *domain.VillageInfo) (*domain.CultureAnalysis, error) {
	a.calls++
	a.last = info
	if a.err != nil {
		return nil, a.err
	}
	return &domain.CultureAnalysis{Report: "分析报告 #" + fmt.Sprint(a.calls)}, nil
}

type fakeDesigner struct {
	err      error
	calls    int
	lastPref string
}

func (d *fakeDesigner) GenerateDesigns(_ context.Context, _, pref string) (*domain.DesignSchema, error) {
	d.calls++
	d.lastPref = pref
	if d.err != nil {
		return nil, d.err
	}
	return &domain.DesignSchema{Options: "【方案一】【方案二】【方案三】", NumOptions: 3}, nil
}

func (d *fakeDesigner) ExtractImagePrompt(context.Context, string) string {
	return "an english mural prompt"
}

type fakeImager struct {
	err   error
	calls int
}

func (i *fakeImager) Generate(context.Context, string, string) (*domain.ImageResult, error) {
	i.calls++
	if i.err != nil {
		return nil, i.err
	}
	return &domain.ImageResult{
		Images: []domain.ImageInfo{{URL: "http://localhost/media/a.png"}},
		IsMock: true,
	}, nil
}

type fakeRouter struct {
	decision agents.Decision
	err      error
}

func (r *fakeRouter) Route(context.Context, domain.Snapshot) (agents.Decision, error) {
	return r.decision, r.err
}

func newController(r *fakeRouter) (*Controller, *fakeAnalyst, *fakeDesigner, *fakeImager) {
	a := &fakeAnalyst{}
	d := &fakeDesigner{}
	i := &fakeImager{}
	return New(a, d, i, r), a, d, i
}

func lastMessage(t *testing.T, s *domain.Session) domain.Message {
	t.Helper()
	if len(s.Messages) == 0 {
		t.Fatal("no messages")
	}
	return s.Messages[len(s.Messages)-1]
}

const validVillage = `{"name": "西递村", "location": "安徽省黄山市", "industry": "旅游"}`

func TestInitialValidInputRunsAnalysis(t *testing.T) {
	c, a, _, _ := newController(&fakeRouter{})
	s := domain.NewSession("s1", "o1")

	done := c.Process(context.Background(), s, validVillage)
	if done {
		t.Error("analysis alone must not finish the workflow")
	}
	if s.Stage != domain.StageCulture {
		t.Errorf("stage = %v, want CULTURE", s.Stage)
	}
	if s.Data.VillageInfo == nil || s.Data.VillageInfo.Name != "西递村" {
		t.Errorf("village info = %+v", s.Data.VillageInfo)
	}
	if s.Data.CultureAnalysis == nil {
		t.Error("culture analysis slot empty")
	}
	if a.calls != 1 {
		t.Errorf("analyst calls = %d", a.calls)
	}
	msg := lastMessage(t, s)
	if msg.AgentTag != domain.AgentCultureAnalyst || !strings.Contains(msg.Content, "文化分析完成") {
		t.Errorf("message = %+v", msg)
	}
}

func TestInitialRejectsFreeText(t *testing.T) {
	c, a, _, _ := newController(&fakeRouter{})
	s := domain.NewSession("s1", "o1")

	c.Process(context.Background(), s, "我们村很漂亮，帮我画一幅墙绘")

	if s.Stage != domain.StageInitial {
		t.Errorf("stage = %v, want INITIAL", s.Stage)
	}
	if s.Data.VillageInfo != nil {
		t.Error("no slot should fill on invalid input")
	}
	if a.calls != 0 {
		t.Error("analyst must not run on invalid input")
	}
	msg := lastMessage(t, s)
	if msg.AgentTag != domain.AgentManager || !strings.Contains(msg.Content, "格式错误") {
		t.Errorf("message = %+v", msg)
	}
}

func TestInitialAnalystFailureKeepsStage(t *testing.T) {
	r := &fakeRouter{}
	c, a, _, _ := newController(r)
	a.err = fmt.Errorf("provider down")
	s := domain.NewSession("s1", "o1")

	c.Process(context.Background(), s, validVillage)

	if s.Stage != domain.StageInitial {
		t.Errorf("stage = %v, want INITIAL unchanged on failure", s.Stage)
	}
	if s.Data.CultureAnalysis != nil {
		t.Error("analysis slot must stay empty on failure")
	}
	msg := lastMessage(t, s)
	if msg.AgentTag != domain.AgentManager {
		t.Errorf("failure must surface as a manager message, got %+v", msg)
	}
}

func TestRouterDecodeErrorSurfacesAsManagerMessage(t *testing.T) {
	r := &fakeRouter{err: &agents.RouterDecodeError{Raw: "garbage", Reason: "not json"}}
	c, _, _, _ := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageCulture

	done := c.Process(context.Background(), s, "嗯？")
	if done {
		t.Error("decode error must not finish the workflow")
	}
	if s.Stage != domain.StageCulture {
		t.Errorf("stage = %v, want unchanged", s.Stage)
	}
	msg := lastMessage(t, s)
	if msg.AgentTag != domain.AgentManager || !strings.Contains(msg.Content, "没有理解") {
		t.Errorf("message = %+v", msg)
	}
}

func TestNewResetsWorkflow(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionNew, NextStage: domain.StageInitial}}
	c, _, _, _ := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageDesign
	s.Data.VillageInfo = &domain.VillageInfo{Name: "西递村"}
	s.Data.CultureAnalysis = &domain.CultureAnalysis{Report: "r"}
	s.Data.DesignSchema = &domain.DesignSchema{Options: "o"}

	done := c.Process(context.Background(), s, "换一个村子重新来")
	if done {
		t.Error("reset must not finish the workflow")
	}
	if s.Stage != domain.StageInitial {
		t.Errorf("stage = %v, want INITIAL", s.Stage)
	}
	if s.Data.VillageInfo != nil || s.Data.CultureAnalysis != nil || s.Data.DesignSchema != nil {
		t.Error("slots must clear on reset")
	}
	// History truncates to the triggering turn plus the reset notice.
	if len(s.Messages) != 2 {
		t.Errorf("len(Messages) = %d, want 2", len(s.Messages))
	}
	msg := lastMessage(t, s)
	if msg.AgentTag != domain.AgentManager || !strings.Contains(msg.Content, "重新开始") {
		t.Errorf("message = %+v", msg)
	}
}

func TestConfirmDesignRequiresAnalysis(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionConfirm, NextStage: domain.StageDesign}}
	c, _, d, _ := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageCulture

	c.Process(context.Background(), s, "继续")

	if s.Stage != domain.StageCulture {
		t.Errorf("stage = %v, want unchanged", s.Stage)
	}
	if d.calls != 0 {
		t.Error("designer must not run without analysis")
	}
	if !strings.Contains(lastMessage(t, s).Content, "缺少文化分析") {
		t.Errorf("message = %+v", lastMessage(t, s))
	}
}

func TestConfirmDesignAdvances(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionConfirm, NextStage: domain.StageDesign}}
	c, _, d, _ := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageCulture
	s.Data.VillageInfo = &domain.VillageInfo{Name: "西递村"}
	s.Data.CultureAnalysis = &domain.CultureAnalysis{Report: "分析"}

	done := c.Process(context.Background(), s, "分析不错，请继续")
	if done {
		t.Error("design stage must not finish the workflow")
	}
	if s.Stage != domain.StageDesign || s.Data.DesignSchema == nil {
		t.Errorf("stage = %v, schema = %+v", s.Stage, s.Data.DesignSchema)
	}
	if d.lastPref != "分析不错，请继续" {
		t.Errorf("preference = %q", d.lastPref)
	}
	if lastMessage(t, s).AgentTag != domain.AgentCreativeDesigner {
		t.Errorf("message = %+v", lastMessage(t, s))
	}
}

func TestConfirmImageCompletesWorkflow(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionConfirm, NextStage: domain.StageImage}}
	c, _, _, i := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageDesign
	s.Data.DesignSchema = &domain.DesignSchema{Options: "【方案一】..."}

	done := c.Process(context.Background(), s, "就用方案一")
	if !done {
		t.Error("confirmed image generation must finish the workflow")
	}
	if s.Stage != domain.StageImage || s.Data.ImageResult == nil {
		t.Errorf("stage = %v, result = %+v", s.Stage, s.Data.ImageResult)
	}
	if i.calls != 1 {
		t.Errorf("imager calls = %d", i.calls)
	}
	msg := lastMessage(t, s)
	if msg.AgentTag != domain.AgentImageGenerator || !strings.Contains(msg.Content, "图像生成完成") {
		t.Errorf("message = %+v", msg)
	}
}

func TestConfirmImageRequiresDesign(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionConfirm, NextStage: domain.StageImage}}
	c, _, _, i := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageCulture
	s.Data.CultureAnalysis = &domain.CultureAnalysis{Report: "分析"}

	done := c.Process(context.Background(), s, "直接出图")
	if done {
		t.Error("must not finish without a design")
	}
	if s.Stage != domain.StageCulture || i.calls != 0 {
		t.Errorf("stage = %v, imager calls = %d", s.Stage, i.calls)
	}
	if !strings.Contains(lastMessage(t, s).Content, "缺少设计方案") {
		t.Errorf("message = %+v", lastMessage(t, s))
	}
}

func TestConfirmImageFailureKeepsStage(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionConfirm, NextStage: domain.StageImage}}
	c, _, _, i := newController(r)
	i.err = fmt.Errorf("provider unavailable and no mock image configured")
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageDesign
	s.Data.DesignSchema = &domain.DesignSchema{Options: "o"}

	done := c.Process(context.Background(), s, "生成图像")
	if done {
		t.Error("failed render must not finish the workflow")
	}
	if s.Stage != domain.StageDesign || s.Data.ImageResult != nil {
		t.Errorf("stage = %v, result = %+v", s.Stage, s.Data.ImageResult)
	}
	if lastMessage(t, s).AgentTag != domain.AgentManager {
		t.Errorf("message = %+v", lastMessage(t, s))
	}
}

func TestConfirmBackToInitialKeepsSlots(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionConfirm, NextStage: domain.StageInitial}}
	c, _, _, _ := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageCulture
	s.Data.VillageInfo = &domain.VillageInfo{Name: "西递村"}

	c.Process(context.Background(), s, "回到开始")

	if s.Stage != domain.StageInitial {
		t.Errorf("stage = %v", s.Stage)
	}
	if s.Data.VillageInfo == nil {
		t.Error("confirm to INITIAL is not a reset, slots must survive")
	}
}

func TestModifyRerunsCurrentStage(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionModify, NextStage: domain.StageCulture}}
	c, a, _, _ := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageCulture
	s.Data.VillageInfo = &domain.VillageInfo{Name: "西递村"}
	s.Data.CultureAnalysis = &domain.CultureAnalysis{Report: "旧分析"}

	done := c.Process(context.Background(), s, "多强调茶文化")
	if done {
		t.Error("modify must not finish the workflow")
	}
	if s.Stage != domain.StageCulture {
		t.Errorf("stage = %v, want unchanged", s.Stage)
	}
	if a.last == nil || a.last.ModificationRequest != "多强调茶文化" {
		t.Errorf("modification request = %+v", a.last)
	}
	if a.last == s.Data.VillageInfo {
		t.Error("modification must not mutate the stored village info")
	}
	if s.Data.CultureAnalysis.Report == "旧分析" {
		t.Error("analysis slot should be overwritten")
	}
}

func TestModifyDesignFoldsFeedback(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionModify, NextStage: domain.StageDesign}}
	c, _, d, _ := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageDesign
	s.Data.CultureAnalysis = &domain.CultureAnalysis{Report: "分析"}
	s.Data.DesignSchema = &domain.DesignSchema{Options: "旧方案"}

	c.Process(context.Background(), s, "配色太暗")

	if s.Stage != domain.StageDesign {
		t.Errorf("stage = %v", s.Stage)
	}
	if !strings.Contains(d.lastPref, "配色太暗") {
		t.Errorf("preference = %q", d.lastPref)
	}
}

func TestModifyImageRegenerates(t *testing.T) {
	r := &fakeRouter{decision: agents.Decision{Action: domain.ActionModify, NextStage: domain.StageImage}}
	c, _, _, i := newController(r)
	s := domain.NewSession("s1", "o1")
	s.Stage = domain.StageImage
	s.Data.DesignSchema = &domain.DesignSchema{Options: "方案"}
	s.Data.ImageResult = &domain.ImageResult{}

	done := c.Process(context.Background(), s, "天空改成晚霞")
	if done {
		t.Error("image modify must not finish the workflow")
	}
	if i.calls != 1 || s.Stage != domain.StageImage {
		t.Errorf("calls = %d, stage = %v", i.calls, s.Stage)
	}
}

func TestParseVillageInfo(t *testing.T) {
	info, err := ParseVillageInfo(validVillage)
	if err != nil {
		t.Fatalf("ParseVillageInfo() error: %v", err)
	}
	if info.Name != "西递村" || info.Location != "安徽省黄山市" {
		t.Errorf("info = %+v", info)
	}

	bad := []string{
		`not json`,
		`{"name": "西递村"}`,
		`{"location": "安徽省"}`,
		`{"name": "", "location": "x"}`,
		`{"name": "a", "location": "b", "extra": true}`,
		`[1,2,3]`,
	}
	for _, input := range bad {
		if _, err := ParseVillageInfo(input); err == nil {
			t.Errorf("input %q: expected error", input)
		}
	}
}
