package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/akdey/DevOpsDebugger/config"
	"github.com/akdey/DevOpsDebugger/internal/telemetry"
)

// Reasoner is the reasoning provider contract the engine depends on.
type Reasoner interface {
	Classify(ctx context.Context, text string) (Classification, error)
	Reframe(ctx context.Context, text string) (string, error)
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// Corpus is the document corpus contract. An empty result set is a valid,
// non-error outcome.
type Corpus interface {
	Search(ctx context.Context, query string, k int) ([]RetrievedDoc, error)
}

// WebSearcher is the external web search contract.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// SynthesisRequest carries the combined context for answer synthesis.
// RetrievedDocs are ordered by descending score, ties broken by original
// retrieval order; SearchResults keep provider order.
type SynthesisRequest struct {
	Question      string
	RetrievedDocs []RetrievedDoc
	SearchResults []SearchResult
	SearchFailed  bool
}

// Deps are the collaborators injected into the engine.
type Deps struct {
	Reasoner Reasoner
	Corpus   Corpus
	Search   WebSearcher
	Metrics  *telemetry.Metrics
}

type handlerFunc func(ctx context.Context, st *State) error

// routeFunc is a pure routing predicate over the accumulated state.
type routeFunc func(st *State) Node

// Engine executes the agent workflow for one query at a time. It is safe for
// concurrent use: every Execute call allocates its own State.
type Engine struct {
	reasoner Reasoner
	corpus   Corpus
	search   WebSearcher
	guard    *Guardrail
	metrics  *telemetry.Metrics
	logger   *log.Logger

	topK         int
	callTimeout  time.Duration
	maxRetries   int
	retryBackoff time.Duration

	handlers map[Node]handlerFunc
	routes   map[Node]routeFunc
}

// NewEngine wires the routing table. The table is data: tests can inspect it,
// and Route exposes the pure routing decision for a node.
func NewEngine(deps Deps, wcfg config.WorkflowConfig, gcfg config.GuardrailConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	wcfg = wcfg.Normalize()
	e := &Engine{
		reasoner:     deps.Reasoner,
		corpus:       deps.Corpus,
		search:       deps.Search,
		guard:        NewGuardrail(gcfg),
		metrics:      deps.Metrics,
		logger:       logger,
		topK:         wcfg.TopK,
		callTimeout:  wcfg.CallTimeout,
		maxRetries:   wcfg.MaxRetries,
		retryBackoff: wcfg.RetryBackoff,
	}
	e.handlers = map[Node]handlerFunc{
		NodeValidator:   e.runValidator,
		NodeNonDevOps:   e.runNonDevOps,
		NodeEvaluator:   e.runEvaluator,
		NodeRetriever:   e.runRetriever,
		NodeSearch:      e.runSearch,
		NodeSynthesizer: e.runSynthesizer,
	}
	e.routes = map[Node]routeFunc{
		NodeValidator: func(st *State) Node {
			switch {
			case st.Blocked:
				return NodeEnd
			case !st.IsDevOps:
				return NodeNonDevOps
			default:
				return NodeEvaluator
			}
		},
		NodeNonDevOps: func(*State) Node { return NodeEnd },
		NodeEvaluator: func(st *State) Node {
			if st.Classification == ClassificationDebug {
				return NodeRetriever
			}
			return NodeSearch
		},
		NodeRetriever:   func(*State) Node { return NodeSearch },
		NodeSearch:      func(*State) Node { return NodeSynthesizer },
		NodeSynthesizer: func(*State) Node { return NodeEnd },
	}
	return e
}

// Route returns the next node for the given node and state.
func (e *Engine) Route(node Node, st *State) Node {
	if r, ok := e.routes[node]; ok {
		return r(st)
	}
	return NodeEnd
}

// Execute runs the workflow for one query, starting at the validator.
// Progress events are sent to events with a non-blocking send: under
// backpressure progress may be dropped, while the terminal outcome always
// travels on the return path. Exactly one of (*Result, *Error) is non-nil.
func (e *Engine) Execute(ctx context.Context, q Query, events chan<- StepEvent) (*Result, error) {
	st := newState(q)
	node := NodeValidator
	maxSteps := len(e.handlers)

	for steps := 0; node != NodeEnd; steps++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(st, events, fatal(ErrCanceled, node, err))
		}
		if st.seen(node) {
			return nil, e.fail(st, events, fatal(ErrCycleDetected, node, fmt.Errorf("node %q already executed", node)))
		}
		if steps >= maxSteps {
			return nil, e.fail(st, events, fatal(ErrStepLimitExceeded, node, fmt.Errorf("exceeded %d steps", maxSteps)))
		}
		handler, ok := e.handlers[node]
		if !ok {
			return nil, e.fail(st, events, fatal(ErrStepLimitExceeded, node, fmt.Errorf("no handler registered for node %q", node)))
		}

		e.emit(st, events, StepEvent{Node: node, Phase: PhaseStarted, Timestamp: time.Now().UTC()})
		start := time.Now()
		err := handler(ctx, st)
		if e.metrics != nil {
			e.metrics.StepDuration.WithLabelValues(string(node)).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			// A canceled query context means the client is gone, not that
			// the provider failed; handlers see that cancellation through
			// their per-call context.
			if ctx.Err() != nil {
				return nil, e.fail(st, events, fatal(ErrCanceled, node, err))
			}
			var werr *Error
			if !errors.As(err, &werr) {
				werr = fatal(ErrSynthesisFailure, node, err)
			}
			return nil, e.fail(st, events, werr)
		}
		e.emit(st, events, StepEvent{Node: node, Phase: PhaseCompleted, Timestamp: time.Now().UTC(), Payload: e.payload(node, st)})
		node = e.Route(node, st)
	}

	res := &Result{
		Outcome:    outcomeFor(st),
		Answer:     st.FinalAnswer,
		Provenance: st.Provenance,
		Trail:      st.Trail,
	}
	if e.metrics != nil {
		e.metrics.Executions.WithLabelValues(string(res.Outcome)).Inc()
	}
	return res, nil
}

func outcomeFor(st *State) Outcome {
	switch {
	case st.Blocked:
		return OutcomeBlocked
	case !st.IsDevOps:
		return OutcomeNonDevOps
	default:
		return OutcomeSynthesized
	}
}

// emit appends to the trail and forwards to the event channel without
// blocking. The trail itself is never lossy.
func (e *Engine) emit(st *State, events chan<- StepEvent, ev StepEvent) {
	st.Trail = append(st.Trail, ev)
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}

func (e *Engine) fail(st *State, events chan<- StepEvent, werr *Error) *Error {
	if werr.Kind == ErrCanceled {
		// Client is gone; no events are emitted for this query anymore.
		e.logger.Printf("query canceled at %s", werr.Node)
		return werr
	}
	e.emit(st, events, StepEvent{
		Node:      werr.Node,
		Phase:     PhaseFailed,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]any{"kind": string(werr.Kind)},
	})
	if werr.Invariant() {
		e.logger.Printf("INVARIANT VIOLATION: %v", werr)
	} else {
		e.logger.Printf("workflow failed: %v", werr)
	}
	if e.metrics != nil {
		e.metrics.Failures.WithLabelValues(string(werr.Kind)).Inc()
	}
	return werr
}

// payload builds the completed-event payload for a node from current state.
func (e *Engine) payload(node Node, st *State) map[string]any {
	switch node {
	case NodeValidator:
		return map[string]any{"blocked": st.Blocked, "is_devops": st.IsDevOps}
	case NodeNonDevOps:
		return map[string]any{"message": st.FinalAnswer}
	case NodeEvaluator:
		return map[string]any{"classification": string(st.Classification), "reframed_query": st.ReframedText}
	case NodeRetriever:
		return map[string]any{"documents": len(st.RetrievedDocs)}
	case NodeSearch:
		return map[string]any{"results": len(st.SearchResults), "search_failed": st.SearchFailed}
	case NodeSynthesizer:
		return map[string]any{"sources": len(st.Provenance), "search_failed": st.SearchFailed}
	}
	return nil
}

// callProvider applies the per-call timeout and the configured retry policy
// to one collaborator call.
func (e *Engine) callProvider(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
		err = fn(cctx)
		cancel()
		if err == nil || attempt >= e.maxRetries || ctx.Err() != nil {
			return err
		}
		select {
		case <-time.After(e.retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
