// Package gov queries the government open-data platform for village records.
// The platform is optional: missing keys, transport failures and unknown
// villages all degrade to built-in records so analysis never blocks on it.
package gov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Record is one village entry from the platform.
type Record struct {
	Name     string            `json:"name"`
	Province string            `json:"province"`
	City     string            `json:"city,omitempty"`
	District string            `json:"district,omitempty"`
	Category string            `json:"category,omitempty"`
	Features []string          `json:"features,omitempty"`
	Heritage *CulturalHeritage `json:"cultural_heritage,omitempty"`
	Note     string            `json:"note,omitempty"`
	Source   string            `json:"-"`
}

// CulturalHeritage is the heritage block of a record.
type CulturalHeritage struct {
	Architecture string `json:"architecture,omitempty"`
	History      string `json:"history,omitempty"`
	Culture      string `json:"culture,omitempty"`
}

// Service performs lookups with bounded retries.
type Service struct {
	baseURL string
	apiKey  string
	retries int
	client  *http.Client
}

// New creates a lookup service. An empty baseURL or apiKey means every
// lookup serves mock data.
func New(baseURL, apiKey string, timeout time.Duration, retries int) *Service {
	if retries <= 0 {
		retries = 3
	}
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		retries: retries,
		client:  &http.Client{Timeout: timeout},
	}
}

// Lookup returns the record for a village. It never returns a transport
// error: when the platform is unreachable the built-in records answer
// instead, so the caller only sees data.
func (s *Service) Lookup(ctx context.Context, name, provinceHint string) *Record {
	if name == "" {
		return nil
	}
	if s.apiKey == "" || s.baseURL == "" {
		slog.Debug("government API not configured, serving mock record", "village", name)
		return mockRecord(name)
	}

	rec, err := s.query(ctx, name, provinceHint)
	if err != nil {
		slog.Warn("government data lookup failed, serving mock record",
			"village", name, "error", err)
		return mockRecord(name)
	}
	return rec
}

func (s *Service) query(ctx context.Context, name, provinceHint string) (*Record, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("api_key", s.apiKey)
	if provinceHint != "" {
		params.Set("province", provinceHint)
	}
	endpoint := s.baseURL + "/villages/search?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			slog.Warn("government API request failed",
				"village", name, "attempt", attempt, "error", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			slog.Warn("government API error response",
				"village", name, "attempt", attempt, "status", resp.StatusCode)
			continue
		}

		var rec Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		rec.Source = "government_api"
		slog.Info("government data lookup succeeded", "village", name)
		return &rec, nil
	}

	return nil, lastErr
}

// Format renders a record as the context block the Cultural Analyst feeds
// into its prompt.
func (r *Record) Format() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("【政府开放数据】\n\n")
	fmt.Fprintf(&b, "村落名称: %s\n", r.Name)
	fmt.Fprintf(&b, "行政区划: %s %s %s\n", r.Province, r.City, r.District)
	fmt.Fprintf(&b, "特色标签: %s\n", strings.Join(r.Features, ", "))
	if r.Heritage != nil {
		b.WriteString("\n文化遗产信息:\n")
		fmt.Fprintf(&b, "- 建筑特色: %s\n", r.Heritage.Architecture)
		fmt.Fprintf(&b, "- 历史沿革: %s\n", r.Heritage.History)
		fmt.Fprintf(&b, "- 文化内涵: %s\n", r.Heritage.Culture)
	}
	return b.String()
}
