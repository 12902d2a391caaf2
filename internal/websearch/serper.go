// Package websearch provides the external web search collaborator.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/akdey/DevOpsDebugger/config"
	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

const defaultEndpoint = "https://google.serper.dev/search"

// Serper queries the serper.dev Google search API.
type Serper struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	HTTPClient *http.Client
}

// NewSerper builds a serper client from configuration.
func NewSerper(cfg config.SearchConfig) *Serper {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Serper{
		APIKey:     cfg.SerperAPIKey,
		Endpoint:   endpoint,
		MaxResults: maxResults,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Search returns organic results in provider order.
func (s *Serper) Search(ctx context.Context, q string) ([]workflow.SearchResult, error) {
	payload := map[string]any{"q": q, "num": s.MaxResults}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("serper: unexpected status %d", resp.StatusCode)
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []workflow.SearchResult
	for i, item := range raw.Organic {
		if i >= s.MaxResults {
			break
		}
		out = append(out, workflow.SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return out, nil
}
