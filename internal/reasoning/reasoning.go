// Package reasoning wraps the LLM backend behind the small contracts the
// workflow engine and the analytics recorder consume.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/akdey/DevOpsDebugger/config"
	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

const (
	classifySystemPrompt = "You are a classifier for a DevOps assistant. " +
		"Given a user question, answer with exactly one word: " +
		"\"debug\" if the user is troubleshooting a concrete failure in their own systems, " +
		"\"general\" for conceptual or how-to questions. No other text."

	reframeSystemPrompt = "Rewrite the user's DevOps question into a short, " +
		"keyword-rich query optimised for document retrieval and web search. " +
		"Preserve the original intent. Return only the rewritten query."

	synthesizeSystemPrompt = "You are a DevOps assistant. Answer the question using the " +
		"provided document snippets and web results. Be concrete and actionable. " +
		"If the context is thin, say so and answer from general DevOps knowledge."

	categorizeSystemPrompt = "You are a classifier. Given a DevOps user question, return a " +
		"comma-separated list of short topic tags. Only return tags, no extra text."
)

// Client is the OpenAI-backed reasoning provider.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewClient builds a reasoning client from configuration.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm.api_key not configured")
	}
	occ := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		occ.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		api:         openai.NewClientWithConfig(occ),
		model:       model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Classify labels the query as general or debug. An ambiguous or unexpected
// label defaults to general.
func (c *Client) Classify(ctx context.Context, text string) (workflow.Classification, error) {
	out, err := c.complete(ctx, classifySystemPrompt, text)
	if err != nil {
		return workflow.ClassificationUnset, err
	}
	return ParseClassification(out), nil
}

// Reframe rewrites the query into a retrieval/search-optimised form.
func (c *Client) Reframe(ctx context.Context, text string) (string, error) {
	out, err := c.complete(ctx, reframeSystemPrompt, text)
	if err != nil {
		return "", err
	}
	if out == "" {
		// Keep intent even when the model returns nothing useful.
		return text, nil
	}
	return out, nil
}

// Synthesize produces the final answer from the combined context.
func (c *Client) Synthesize(ctx context.Context, req workflow.SynthesisRequest) (string, error) {
	return c.complete(ctx, synthesizeSystemPrompt, BuildSynthesisPrompt(req))
}

// Categorize produces up to five short topic tags for analytics.
func (c *Client) Categorize(ctx context.Context, text string) ([]string, error) {
	out, err := c.complete(ctx, categorizeSystemPrompt, text)
	if err != nil {
		return nil, err
	}
	return ParseTags(out), nil
}

// ParseClassification maps a model label onto the closed classification set.
// Anything that is not clearly "debug" is treated as general.
func ParseClassification(s string) workflow.Classification {
	if strings.Contains(strings.ToLower(s), "debug") {
		return workflow.ClassificationDebug
	}
	return workflow.ClassificationGeneral
}

// ParseTags splits a comma- or newline-separated tag list, keeping at most
// five entries.
func ParseTags(s string) []string {
	parts := strings.FieldsFunc(strings.ReplaceAll(s, "\n", ","), func(r rune) bool { return r == ',' })
	tags := make([]string, 0, 5)
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		tags = append(tags, p)
		if len(tags) == 5 {
			break
		}
	}
	return tags
}

// BuildSynthesisPrompt renders the synthesis context. Documents come first in
// their already-sorted order, then web results; a degraded search is stated
// so the model does not invent web sources.
func BuildSynthesisPrompt(req workflow.SynthesisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	if len(req.RetrievedDocs) > 0 {
		b.WriteString("\nInternal documents:\n")
		for i, d := range req.RetrievedDocs {
			fmt.Fprintf(&b, "%d. %s\n%s\n", i+1, d.Title, d.Snippet)
		}
	} else {
		b.WriteString("\nInternal documents: none matched.\n")
	}
	if req.SearchFailed {
		b.WriteString("\nWeb search was unavailable for this query; do not cite web sources.\n")
	} else if len(req.SearchResults) > 0 {
		b.WriteString("\nWeb results:\n")
		for i, r := range req.SearchResults {
			fmt.Fprintf(&b, "%d. %s (%s)\n%s\n", i+1, r.Title, r.Link, r.Snippet)
		}
	} else {
		b.WriteString("\nWeb results: none.\n")
	}
	return b.String()
}
