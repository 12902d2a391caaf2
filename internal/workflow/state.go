// Package workflow implements the agent orchestration state machine that
// answers DevOps questions: a fixed graph of agent nodes with data-driven
// routing, per-query execution state and incremental step events.
package workflow

import (
	"time"
)

// Node identifies one agent in the workflow graph.
type Node string

const (
	NodeValidator   Node = "validator"
	NodeNonDevOps   Node = "non_devops"
	NodeEvaluator   Node = "evaluator"
	NodeRetriever   Node = "retriever"
	NodeSearch      Node = "search"
	NodeSynthesizer Node = "synthesizer"
	NodeEnd         Node = "end"
)

// Phase marks the lifecycle of one node execution within a step event.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Classification is the evaluator's verdict about the query shape.
type Classification string

const (
	ClassificationUnset   Classification = ""
	ClassificationGeneral Classification = "general"
	ClassificationDebug   Classification = "debug"
)

// Fixed user-visible terminal messages.
const (
	NonDevOpsMessage = "I can only answer DevOps-related queries."
	BlockedMessage   = "This request was blocked by the content policy."
)

// Query is one immutable user question bound to a session.
type Query struct {
	ID         string
	SessionID  string
	UserID     string
	RawText    string
	ReceivedAt time.Time
}

// RetrievedDoc is one ranked snippet from the document corpus.
type RetrievedDoc struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SearchResult is one ranked hit from the web search provider.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SourceRef attributes one source used by the synthesized answer.
type SourceRef struct {
	Kind  string `json:"kind"` // "document" or "web"
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Link  string `json:"link,omitempty"`
}

// StepEvent is a progress notification for one node execution phase.
// Events are append-only: once emitted they are never mutated or removed.
type StepEvent struct {
	Node      Node           `json:"node"`
	Phase     Phase          `json:"phase"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// State is the mutable per-query workflow state. It is allocated fresh for
// every query and owned exclusively by the engine run executing that query;
// it is never shared across queries or sessions.
type State struct {
	RawText        string
	ReframedText   string
	Classification Classification
	Blocked        bool
	BlockReason    string
	IsDevOps       bool
	RetrievedDocs  []RetrievedDoc
	SearchResults  []SearchResult
	SearchFailed   bool
	FinalAnswer    string
	Provenance     []SourceRef
	Trail          []StepEvent
}

func newState(q Query) *State {
	return &State{RawText: q.RawText, IsDevOps: true}
}

// seen reports whether a node already appears in the trail. Checked before
// stepping into a node, so started/completed pairs of the current execution
// never trip it.
func (s *State) seen(n Node) bool {
	for _, ev := range s.Trail {
		if ev.Node == n {
			return true
		}
	}
	return false
}

// queryText returns the reframed form when the evaluator produced one,
// the raw input otherwise.
func (s *State) queryText() string {
	if s.ReframedText != "" {
		return s.ReframedText
	}
	return s.RawText
}

// Outcome names the terminal branch an execution finished through.
type Outcome string

const (
	OutcomeSynthesized Outcome = "synthesized"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeNonDevOps   Outcome = "non_devops"
)

// Result is the single terminal outcome of one successful execution.
type Result struct {
	Outcome    Outcome
	Answer     string
	Provenance []SourceRef
	Trail      []StepEvent
}
