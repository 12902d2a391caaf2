package workflow

import "fmt"

// ErrorKind classifies fatal workflow failures. Transient failures
// (retrieval, web search) degrade in place and never surface here.
type ErrorKind string

const (
	// ErrClassificationFailure: the evaluator could not classify or reframe
	// the query. Essential step, no safe default.
	ErrClassificationFailure ErrorKind = "classification_failure"
	// ErrSynthesisFailure: the reasoning provider could not produce an
	// answer from the gathered context.
	ErrSynthesisFailure ErrorKind = "synthesis_failure"
	// ErrCycleDetected: a node was routed to twice in one execution.
	// Engine invariant violation, never expected under the fixed table.
	ErrCycleDetected ErrorKind = "cycle_detected"
	// ErrStepLimitExceeded: the execution took more steps than there are
	// nodes. Engine invariant violation.
	ErrStepLimitExceeded ErrorKind = "step_limit_exceeded"
	// ErrCanceled: the query context was canceled (client went away).
	// Never delivered to a client; the connection is already gone.
	ErrCanceled ErrorKind = "canceled"
)

// Error is a fatal workflow failure carrying its taxonomy kind. The wrapped
// cause is for logs only; clients receive the kind and a generic message.
type Error struct {
	Kind ErrorKind
	Node Node
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow %s at %s: %v", e.Kind, e.Node, e.Err)
	}
	return fmt.Sprintf("workflow %s at %s", e.Kind, e.Node)
}

func (e *Error) Unwrap() error { return e.Err }

// Invariant reports whether the failure indicates an engine-level bug
// rather than a provider problem.
func (e *Error) Invariant() bool {
	return e.Kind == ErrCycleDetected || e.Kind == ErrStepLimitExceeded
}

func fatal(kind ErrorKind, node Node, err error) *Error {
	return &Error{Kind: kind, Node: node, Err: err}
}
