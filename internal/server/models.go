package server

import (
	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

// HTTPError is the JSON error envelope produced by the error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type CreateDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type FetchDocumentRequest struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type DocumentResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Chat wire protocol. The first client frame is authFrame; every later
// frame is queryFrame. Server frames are sessionFrame, stepFrame and
// exactly one terminal finalFrame or errorFrame per query.
type authFrame struct {
	Token string `json:"token"`
}

type queryFrame struct {
	Query string `json:"query"`
}

type sessionFrame struct {
	Type      string `json:"type"` // "session_started"
	SessionID string `json:"session_id"`
}

type stepFrame struct {
	Type      string         `json:"type"` // "step"
	Node      workflow.Node  `json:"node"`
	Phase     workflow.Phase `json:"phase"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type finalFrame struct {
	Type       string               `json:"type"` // "final_answer"
	Text       string               `json:"text"`
	Provenance []workflow.SourceRef `json:"provenance"`
}

type errorFrame struct {
	Type    string `json:"type"` // "error"
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
