package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/akdey/DevOpsDebugger/internal/history"
	"github.com/akdey/DevOpsDebugger/internal/runtime"
	"github.com/akdey/DevOpsDebugger/internal/telemetry"
	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

// WorkflowRunner is what the gateway needs from the engine.
type WorkflowRunner interface {
	Execute(ctx context.Context, q workflow.Query, events chan<- workflow.StepEvent) (*workflow.Result, error)
}

// ChatHandler is the websocket session gateway. One connection is one
// session: the client authenticates with its first frame, then sends queries
// one at a time and receives step frames followed by exactly one terminal
// frame per query.
type ChatHandler struct {
	Runner      WorkflowRunner
	Verifier    runtime.Verifier
	History     *history.Store
	Analytics   *AnalyticsHandler
	Metrics     *telemetry.Metrics
	EventBuffer int
	Logger      *log.Logger

	upgrader websocket.Upgrader
}

func NewChatHandler(runner WorkflowRunner, verifier runtime.Verifier, hist *history.Store, analytics *AnalyticsHandler, metrics *telemetry.Metrics, eventBuffer int, logger *log.Logger) *ChatHandler {
	if eventBuffer <= 0 {
		eventBuffer = 32
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[CHAT] ", log.LstdFlags)
	}
	return &ChatHandler{
		Runner:      runner,
		Verifier:    verifier,
		History:     hist,
		Analytics:   analytics,
		Metrics:     metrics,
		EventBuffer: eventBuffer,
		Logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.GET("/ws/chat", h.serve)
}

// RegisterHistory mounts the transcript endpoint on an authenticated group.
func (h *ChatHandler) RegisterHistory(g *echo.Group) {
	g.GET("/history/:session", h.sessionHistory)
}

// sessionHistory returns a session transcript to its owner, or to an admin.
func (h *ChatHandler) sessionHistory(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session")

	owner, err := h.History.Owner(ctx, sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if owner == "" {
		return echo.NewHTTPError(http.StatusNotFound, "unknown session")
	}
	userID, _ := c.Get("user_id").(string)
	role, _ := c.Get("role").(string)
	if role != runtime.RoleAdmin && owner != userID {
		return echo.NewHTTPError(http.StatusForbidden, "not your session")
	}

	msgs, err := h.History.List(ctx, sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if msgs == nil {
		msgs = []history.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *ChatHandler) serve(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// Auth handshake: the first client frame must carry a valid token.
	var auth authFrame
	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := ws.ReadJSON(&auth); err != nil {
		return nil
	}
	claims, err := h.Verifier.Verify(auth.Token)
	if err != nil {
		h.writeJSON(ws, errorFrame{Type: "error", Kind: "unauthorized", Message: "authentication required"})
		return nil
	}
	ws.SetReadDeadline(time.Time{})

	sessionID := uuid.NewString()
	if err := h.writeJSON(ws, sessionFrame{Type: "session_started", SessionID: sessionID}); err != nil {
		return nil
	}
	if h.Metrics != nil {
		h.Metrics.ActiveSessions.Inc()
		defer h.Metrics.ActiveSessions.Dec()
	}
	if h.History != nil {
		if err := h.History.SetOwner(c.Request().Context(), sessionID, claims.UserID); err != nil {
			h.Logger.Printf("recording session owner failed: %v", err)
		}
	}
	h.Logger.Printf("session %s opened for user %s", sessionID, claims.UserID)

	// The read pump is the only reader; this goroutine is the only writer.
	// Disconnect cancels the context so an in-flight query stops promptly.
	connCtx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	queries := make(chan string)
	go func() {
		defer close(queries)
		defer cancel()
		for {
			var qf queryFrame
			if err := ws.ReadJSON(&qf); err != nil {
				return
			}
			select {
			case queries <- qf.Query:
			case <-connCtx.Done():
				return
			}
		}
	}()

	// Queries within a session run sequentially, in arrival order.
	for text := range queries {
		if !h.handleQuery(connCtx, ws, claims, sessionID, text) {
			break
		}
	}
	h.Logger.Printf("session %s closed", sessionID)
	return nil
}

// handleQuery runs one workflow execution, streaming step frames and ending
// with exactly one terminal frame. Returns false when the connection is dead.
func (h *ChatHandler) handleQuery(ctx context.Context, ws *websocket.Conn, claims runtime.Claims, sessionID, text string) bool {
	q := workflow.Query{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		UserID:     claims.UserID,
		RawText:    text,
		ReceivedAt: time.Now().UTC(),
	}

	events := make(chan workflow.StepEvent, h.EventBuffer)
	type outcome struct {
		res *workflow.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.Runner.Execute(ctx, q, events)
		close(events)
		done <- outcome{res, err}
	}()

	for ev := range events {
		frame := stepFrame{
			Type:      "step",
			Node:      ev.Node,
			Phase:     ev.Phase,
			Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
			Payload:   ev.Payload,
		}
		if err := h.writeJSON(ws, frame); err != nil {
			// Writer is gone; drain the engine and stop.
			for range events {
			}
			<-done
			return false
		}
	}

	out := <-done
	if out.err != nil {
		var werr *workflow.Error
		if errors.As(out.err, &werr) && werr.Kind == workflow.ErrCanceled {
			return false
		}
		kind, msg := clientError(out.err)
		h.Logger.Printf("query %s failed: %v", q.ID, out.err)
		return h.writeJSON(ws, errorFrame{Type: "error", Kind: kind, Message: msg}) == nil
	}

	res := out.res
	if err := h.writeJSON(ws, finalFrame{Type: "final_answer", Text: res.Answer, Provenance: res.Provenance}); err != nil {
		return false
	}
	h.record(sessionID, claims.UserID, text, res)
	return true
}

// record appends the exchange to the session transcript and, for synthesized
// answers, hands it to analytics. Both are best-effort.
func (h *ChatHandler) record(sessionID, userID, question string, res *workflow.Result) {
	if h.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		now := time.Now().UTC()
		if err := h.History.Append(ctx, sessionID, history.Message{Role: "user", Text: question, At: now}); err != nil {
			h.Logger.Printf("history append failed: %v", err)
		} else if err := h.History.Append(ctx, sessionID, history.Message{Role: "assistant", Text: res.Answer, At: now}); err != nil {
			h.Logger.Printf("history append failed: %v", err)
		}
	}
	if h.Analytics != nil && res.Outcome == workflow.OutcomeSynthesized {
		go h.Analytics.Record(userID, question, res)
	}
}

// clientError maps a workflow error to the frame shown to the client. The
// underlying cause stays in the logs.
func clientError(err error) (kind, msg string) {
	var werr *workflow.Error
	if !errors.As(err, &werr) {
		return "internal", "An internal error occurred. Please try again."
	}
	switch werr.Kind {
	case workflow.ErrClassificationFailure:
		return string(werr.Kind), "Your query could not be analyzed. Please try again."
	case workflow.ErrSynthesisFailure:
		return string(werr.Kind), "An answer could not be generated. Please try again."
	default:
		return "internal", "An internal error occurred. Please try again."
	}
}

func (h *ChatHandler) writeJSON(ws *websocket.Conn, v any) error {
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteJSON(v)
}
