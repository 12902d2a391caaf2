package reasoning

import (
	"strings"
	"testing"

	"github.com/akdey/DevOpsDebugger/config"
	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

func TestParseClassification(t *testing.T) {
	cases := []struct {
		in   string
		want workflow.Classification
	}{
		{"debug", workflow.ClassificationDebug},
		{"Debug", workflow.ClassificationDebug},
		{"This looks like a debugging question", workflow.ClassificationDebug},
		{"general", workflow.ClassificationGeneral},
		{"something else entirely", workflow.ClassificationGeneral},
		{"", workflow.ClassificationGeneral},
	}
	for _, tc := range cases {
		if got := ParseClassification(tc.in); got != tc.want {
			t.Errorf("ParseClassification(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseTags(t *testing.T) {
	got := ParseTags("Kubernetes, Networking,  , ci/cd\nterraform, aws, gcp, azure")
	want := []string{"kubernetes", "networking", "ci/cd", "terraform", "aws"}
	if len(got) != len(want) {
		t.Fatalf("ParseTags returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tag %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildSynthesisPrompt(t *testing.T) {
	req := workflow.SynthesisRequest{
		Question: "why is my pod restarting",
		RetrievedDocs: []workflow.RetrievedDoc{
			{ID: "d1", Title: "runbook", Snippet: "check the exit code"},
		},
		SearchResults: []workflow.SearchResult{
			{Title: "so thread", Link: "https://example.com", Snippet: "oomkilled"},
		},
	}
	p := BuildSynthesisPrompt(req)
	if !strings.Contains(p, "why is my pod restarting") {
		t.Error("prompt missing the question")
	}
	docIdx := strings.Index(p, "runbook")
	webIdx := strings.Index(p, "so thread")
	if docIdx < 0 || webIdx < 0 || docIdx > webIdx {
		t.Errorf("documents must precede web results: doc=%d web=%d", docIdx, webIdx)
	}
}

func TestBuildSynthesisPromptSearchFailed(t *testing.T) {
	p := BuildSynthesisPrompt(workflow.SynthesisRequest{
		Question:     "why is my pod restarting",
		SearchFailed: true,
		// Results must be ignored when the search is flagged failed.
		SearchResults: []workflow.SearchResult{{Title: "stale", Link: "https://x"}},
	})
	if !strings.Contains(p, "Web search was unavailable") {
		t.Error("prompt does not state the degraded search")
	}
	if strings.Contains(p, "stale") {
		t.Error("prompt cites web results despite the failed search")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(config.LLMConfig{}); err == nil {
		t.Fatal("no error without an api key")
	}
	if _, err := NewClient(config.LLMConfig{APIKey: "sk-test"}); err != nil {
		t.Fatalf("NewClient with key: %v", err)
	}
}
