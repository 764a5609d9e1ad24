package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/qiankun25/RuralMuralGenerator/internal/config"
	"github.com/qiankun25/RuralMuralGenerator/internal/domain"
	"github.com/qiankun25/RuralMuralGenerator/internal/store"
	"github.com/qiankun25/RuralMuralGenerator/internal/tasks"
)

type fakeController struct{ done bool }

func (c *fakeController) Process(_ context.Context, s *domain.Session, input string) bool {
	s.AddUserMessage(input)
	s.AddAgentMessage(domain.AgentManager, "收到")
	return c.done
}

type fakeAnalyst struct{ err error }

func (a *fakeAnalyst) Analyze(context.Context, *domain.VillageInfo) (*domain.CultureAnalysis, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &domain.CultureAnalysis{Report: "报告"}, nil
}

type fakeDesigner struct{ err error }

func (d *fakeDesigner) GenerateDesigns(context.Context, string, string) (*domain.DesignSchema, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &domain.DesignSchema{Options: "方案", NumOptions: 3}, nil
}

func (d *fakeDesigner) ExtractImagePrompt(context.Context, string) string { return "prompt" }

func (d *fakeDesigner) Refine(context.Context, string, string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return "refined", nil
}

type fakeImager struct{ err error }

func (i *fakeImager) Generate(context.Context, string, string) (*domain.ImageResult, error) {
	if i.err != nil {
		return nil, i.err
	}
	return &domain.ImageResult{Images: []domain.ImageInfo{{URL: "http://x/media/a.png"}}}, nil
}

type fakeCounter struct{}

func (fakeCounter) Count(context.Context, string) (int, error) { return 5, nil }

func newTestServer(t *testing.T, ctrl Controller, imager *fakeImager) (*httptest.Server, *store.SessionStore) {
	t.Helper()
	cfg := &config.Config{
		Port:     "8080",
		MediaDir: filepath.Join(t.TempDir(), "media"),
	}
	sessions := store.NewSessionStore()
	h := NewHandler(cfg, sessions, ctrl, &fakeAnalyst{}, &fakeDesigner{}, imager, tasks.NewManager(), fakeCounter{})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, sessions
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

// cookieClient keeps the anonymous identity cookie across requests.
func cookieClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, &fakeImager{})
	client := cookieClient(t)

	resp := postJSON(t, client, srv.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		ID    string       `json:"id"`
		Stage domain.Stage `json:"current_stage"`
	}
	decode(t, resp, &created)
	if created.ID == "" || created.Stage != domain.StageInitial {
		t.Errorf("created = %+v", created)
	}

	resp = postJSON(t, client, srv.URL+"/api/sessions/"+created.ID+"/messages", map[string]string{"message": "你好"})
	var msgResp struct {
		Messages     []domain.Message `json:"messages"`
		CurrentStage domain.Stage     `json:"current_stage"`
		IsDone       bool             `json:"is_done"`
	}
	decode(t, resp, &msgResp)
	if len(msgResp.Messages) != 2 || msgResp.IsDone {
		t.Errorf("message response = %+v", msgResp)
	}

	listResp, err := client.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Sessions []sessionSummary `json:"sessions"`
	}
	decode(t, listResp, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].Messages != 2 {
		t.Errorf("list = %+v", list.Sessions)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+created.ID, nil)
	delResp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", delResp.StatusCode)
	}

	getResp, err := client.Get(srv.URL + "/api/sessions/" + created.ID)
	if err != nil {
		t.Fatal(err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d", getResp.StatusCode)
	}
}

func TestSessionOwnership(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, &fakeImager{})
	owner := cookieClient(t)
	stranger := cookieClient(t)

	resp := postJSON(t, owner, srv.URL+"/api/sessions", nil)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)

	getResp, err := stranger.Get(srv.URL + "/api/sessions/" + created.ID)
	if err != nil {
		t.Fatal(err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusForbidden {
		t.Errorf("stranger access = %d, want 403", getResp.StatusCode)
	}
}

func TestPostMessageDone(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{done: true}, &fakeImager{})
	client := cookieClient(t)

	resp := postJSON(t, client, srv.URL+"/api/sessions", nil)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)

	resp = postJSON(t, client, srv.URL+"/api/sessions/"+created.ID+"/messages", map[string]string{"message": "确认"})
	var msgResp struct {
		IsDone bool `json:"is_done"`
	}
	decode(t, resp, &msgResp)
	if !msgResp.IsDone {
		t.Error("expected is_done = true")
	}
}

func TestAnalyzeValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, &fakeImager{})
	client := cookieClient(t)

	resp := postJSON(t, client, srv.URL+"/api/analyze", map[string]any{
		"village_info": map[string]string{"name": "西递村"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without location", resp.StatusCode)
	}

	resp = postJSON(t, client, srv.URL+"/api/analyze", map[string]any{
		"village_info": map[string]string{"name": "西递村", "location": "安徽省"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var out struct {
		Status string `json:"status"`
	}
	decode(t, resp, &out)
	if out.Status != "success" {
		t.Errorf("status field = %q", out.Status)
	}
}

func TestGenerateImageTask(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, &fakeImager{})
	client := cookieClient(t)

	resp := postJSON(t, client, srv.URL+"/api/generate-image", map[string]string{"design_option": "方案一"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var started struct {
		TaskID string `json:"task_id"`
	}
	decode(t, resp, &started)
	if started.TaskID == "" {
		t.Fatal("missing task id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("task never completed")
		}
		r, err := client.Get(srv.URL + "/api/tasks/" + started.TaskID)
		if err != nil {
			t.Fatal(err)
		}
		var task tasks.Task
		decode(t, r, &task)
		if task.Status == tasks.StatusCompleted {
			if task.Progress != 100 || task.Result == nil {
				t.Errorf("task = %+v", task)
			}
			return
		}
		if task.Status == tasks.StatusFailed {
			t.Fatalf("task failed: %s", task.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestGenerateImageTaskFailure(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, &fakeImager{err: fmt.Errorf("no mock available")})
	client := cookieClient(t)

	resp := postJSON(t, client, srv.URL+"/api/generate-image", map[string]string{"design_option": "方案一"})
	var started struct {
		TaskID string `json:"task_id"`
	}
	decode(t, resp, &started)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("task never settled")
		}
		r, err := client.Get(srv.URL + "/api/tasks/" + started.TaskID)
		if err != nil {
			t.Fatal(err)
		}
		var task tasks.Task
		decode(t, r, &task)
		if task.Status == tasks.StatusFailed {
			if task.Error == "" {
				t.Error("failed task should carry an error")
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, &fakeImager{})
	resp, err := http.Get(srv.URL + "/api/tasks/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{}, &fakeImager{})
	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Status      string         `json:"status"`
		Collections map[string]any `json:"collections"`
	}
	decode(t, resp, &out)
	if out.Status != "ok" || len(out.Collections) != 2 {
		t.Errorf("health = %+v", out)
	}
}
