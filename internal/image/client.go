// Package image is the generation client for the DashScope text-to-image
// API (Wanxiang models). Generation is asynchronous on the provider side:
// submit returns a task id which is polled until it settles.
package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// negativePrompt suppresses common failure modes of mural renders.
const negativePrompt = "低质量，模糊，失真，丑陋，比例失调，水印，文字，logo，卡通，3D渲染，照片"

// stylePrompts maps a style preference onto a prompt suffix.
var stylePrompts = map[string]string{
	"traditional": "traditional Chinese mural painting style, ink wash influences",
	"modern":      "modern flat illustration style, bold colors",
	"narrative":   "narrative scene composition, storytelling mural style",
}

// Result is the outcome of one generation call.
type Result struct {
	Images []Image
	Prompt string
	Style  string
	IsMock bool
}

// Image is one generated picture.
type Image struct {
	URL       string
	LocalPath string
}

// Config holds client settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Size      string
	Timeout   time.Duration
	MediaDir  string
	MockDir   string
	PublicURL string
}

// Client submits and polls generation tasks.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates an image client. MediaDir is created eagerly so downloads and
// mock copies never fail on a missing directory.
func New(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if err := os.MkdirAll(cfg.MediaDir, 0755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Generate renders one mural image for prompt. Provider failures of any
// kind degrade to a mock image from MockDir; an error is returned only when
// the provider failed and no mock image exists.
func (c *Client) Generate(ctx context.Context, prompt, style string) (*Result, error) {
	if c.cfg.APIKey == "" {
		slog.Warn("image provider not configured, using mock image")
		return c.mockResult(prompt, style)
	}

	fullPrompt := prompt
	if suffix, ok := stylePrompts[style]; ok {
		fullPrompt = prompt + ", " + suffix
	}

	urls, err := c.generate(ctx, fullPrompt)
	if err != nil {
		slog.Error("image generation failed, using mock image", "error", err)
		return c.mockResult(prompt, style)
	}

	images := make([]Image, 0, len(urls))
	for i, u := range urls {
		name := fmt.Sprintf("generated_%s_%d.png", time.Now().Format("20060102_150405"), i)
		local, err := c.download(ctx, u, name)
		if err != nil {
			slog.Error("image download failed, keeping remote URL", "url", u, "error", err)
			images = append(images, Image{URL: u})
			continue
		}
		images = append(images, Image{
			URL:       c.publicURL(filepath.Base(local)),
			LocalPath: local,
		})
	}

	slog.Info("image generation succeeded", "count", len(images), "style", style)
	return &Result{Images: images, Prompt: prompt, Style: style}, nil
}

type submitRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt         string `json:"prompt"`
		NegativePrompt string `json:"negative_prompt,omitempty"`
	} `json:"input"`
	Parameters struct {
		Size string `json:"size,omitempty"`
		N    int    `json:"n,omitempty"`
	} `json:"parameters"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Message string `json:"message"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) generate(ctx context.Context, prompt string) ([]string, error) {
	req := submitRequest{Model: c.cfg.Model}
	req.Input.Prompt = prompt
	req.Input.NegativePrompt = negativePrompt
	req.Parameters.Size = c.cfg.Size
	req.Parameters.N = 1

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/services/aigc/text2image/image-synthesis", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-DashScope-Async", "enable")

	var submitted taskResponse
	if err := c.do(httpReq, &submitted); err != nil {
		return nil, fmt.Errorf("submit generation task: %w", err)
	}
	if submitted.Output.TaskID == "" {
		return nil, fmt.Errorf("submit generation task: empty task id (%s)", submitted.Message)
	}

	return c.poll(ctx, submitted.Output.TaskID)
}

func (c *Client) poll(ctx context.Context, taskID string) ([]string, error) {
	deadline := time.Now().Add(c.cfg.Timeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("generation task %s timed out after %s", taskID, c.cfg.Timeout)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/tasks/"+taskID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		var status taskResponse
		if err := c.do(req, &status); err != nil {
			return nil, fmt.Errorf("poll task %s: %w", taskID, err)
		}

		switch status.Output.TaskStatus {
		case "SUCCEEDED":
			if len(status.Output.Results) == 0 {
				return nil, fmt.Errorf("task %s succeeded without results", taskID)
			}
			urls := make([]string, len(status.Output.Results))
			for i, r := range status.Output.Results {
				urls[i] = r.URL
			}
			return urls, nil
		case "FAILED", "CANCELED":
			return nil, fmt.Errorf("task %s %s: %s", taskID, status.Output.TaskStatus, status.Output.Message)
		}
		// PENDING / RUNNING: keep polling.
	}
}

func (c *Client) do(req *http.Request, out *taskResponse) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, url, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status %d", resp.StatusCode)
	}

	path := filepath.Join(c.cfg.MediaDir, filename)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", err
	}

	slog.Info("image saved", "path", path)
	return path, nil
}

// mockResult copies the first mock image into the media dir so it is served
// under the same URL space as real renders.
func (c *Client) mockResult(prompt, style string) (*Result, error) {
	entries, err := os.ReadDir(c.cfg.MockDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read mock images: %w", err)
	}

	var src string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			src = filepath.Join(c.cfg.MockDir, e.Name())
		}
		if src != "" {
			break
		}
	}
	if src == "" {
		return nil, fmt.Errorf("image provider unavailable and no mock image configured")
	}

	dstName := fmt.Sprintf("mock_%s_%s", time.Now().Format("20060102_150405"), filepath.Base(src))
	dst := filepath.Join(c.cfg.MediaDir, dstName)
	if err := copyFile(src, dst); err != nil {
		slog.Error("failed to copy mock image", "error", err)
		dst = src
		dstName = filepath.Base(src)
	}

	return &Result{
		Images: []Image{{URL: c.publicURL(dstName), LocalPath: dst}},
		Prompt: prompt,
		Style:  style,
		IsMock: true,
	}, nil
}

func (c *Client) publicURL(filename string) string {
	base := strings.TrimRight(c.cfg.PublicURL, "/")
	return base + "/media/" + filename
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
