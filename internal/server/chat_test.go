package server

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/akdey/DevOpsDebugger/internal/history"
	"github.com/akdey/DevOpsDebugger/internal/runtime"
	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

type stubRunner struct {
	events []workflow.StepEvent
	result *workflow.Result
	err    error

	queries []workflow.Query
}

func (s *stubRunner) Execute(ctx context.Context, q workflow.Query, events chan<- workflow.StepEvent) (*workflow.Result, error) {
	s.queries = append(s.queries, q)
	for _, ev := range s.events {
		events <- ev
	}
	return s.result, s.err
}

var chatSecret = []byte("chat-secret")

func newChatServer(t *testing.T, runner WorkflowRunner) *httptest.Server {
	t.Helper()
	e := echo.New()
	h := NewChatHandler(runner, runtime.Verifier{Secret: chatSecret}, nil, nil, nil, 8, log.New(io.Discard, "", 0))
	h.Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func dialChat(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return frame
}

func TestChatRejectsInvalidToken(t *testing.T) {
	srv := newChatServer(t, &stubRunner{})
	conn := dialChat(t, srv)

	if err := conn.WriteJSON(authFrame{Token: "not-a-token"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["kind"] != "unauthorized" {
		t.Fatalf("frame = %v", frame)
	}
}

func validToken(t *testing.T) string {
	t.Helper()
	tok, err := runtime.SignJWT("u1", runtime.RoleUser, chatSecret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	return tok
}

func TestChatSessionFlow(t *testing.T) {
	now := time.Now().UTC()
	runner := &stubRunner{
		events: []workflow.StepEvent{
			{Node: workflow.NodeValidator, Phase: workflow.PhaseStarted, Timestamp: now},
			{Node: workflow.NodeValidator, Phase: workflow.PhaseCompleted, Timestamp: now,
				Payload: map[string]any{"blocked": false, "is_devops": true}},
		},
		result: &workflow.Result{
			Outcome: workflow.OutcomeSynthesized,
			Answer:  "restart the pod",
			Provenance: []workflow.SourceRef{
				{Kind: "document", ID: "d1", Title: "runbook"},
			},
		},
	}
	srv := newChatServer(t, runner)
	conn := dialChat(t, srv)

	if err := conn.WriteJSON(authFrame{Token: validToken(t)}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	session := readFrame(t, conn)
	if session["type"] != "session_started" || session["session_id"] == "" {
		t.Fatalf("session frame = %v", session)
	}

	if err := conn.WriteJSON(queryFrame{Query: "pod crashloopbackoff"}); err != nil {
		t.Fatalf("write query: %v", err)
	}

	var steps int
	for {
		frame := readFrame(t, conn)
		switch frame["type"] {
		case "step":
			steps++
		case "final_answer":
			if frame["text"] != "restart the pod" {
				t.Errorf("answer = %v", frame["text"])
			}
			if steps != len(runner.events) {
				t.Errorf("streamed %d steps, want %d", steps, len(runner.events))
			}
			if len(runner.queries) != 1 {
				t.Fatalf("runner saw %d queries", len(runner.queries))
			}
			q := runner.queries[0]
			if q.RawText != "pod crashloopbackoff" || q.UserID != "u1" {
				t.Errorf("query = %+v", q)
			}
			if q.SessionID != session["session_id"] {
				t.Errorf("query session %s != announced %v", q.SessionID, session["session_id"])
			}
			return
		default:
			t.Fatalf("unexpected frame %v", frame)
		}
	}
}

func TestChatSecondQuerySameSession(t *testing.T) {
	runner := &stubRunner{result: &workflow.Result{Outcome: workflow.OutcomeNonDevOps, Answer: workflow.NonDevOpsMessage}}
	srv := newChatServer(t, runner)
	conn := dialChat(t, srv)

	if err := conn.WriteJSON(authFrame{Token: validToken(t)}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	readFrame(t, conn) // session_started

	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(queryFrame{Query: "tell me a joke"}); err != nil {
			t.Fatalf("write query %d: %v", i, err)
		}
		frame := readFrame(t, conn)
		if frame["type"] != "final_answer" || frame["text"] != workflow.NonDevOpsMessage {
			t.Fatalf("query %d: frame = %v", i, frame)
		}
	}
	if len(runner.queries) != 2 {
		t.Fatalf("runner saw %d queries, want 2", len(runner.queries))
	}
	if runner.queries[0].SessionID != runner.queries[1].SessionID {
		t.Error("queries got different session ids")
	}
	if runner.queries[0].ID == runner.queries[1].ID {
		t.Error("queries share an id")
	}
}

func TestChatFatalErrorFrame(t *testing.T) {
	runner := &stubRunner{
		err: &workflow.Error{Kind: workflow.ErrSynthesisFailure, Node: workflow.NodeSynthesizer,
			Err: context.DeadlineExceeded},
	}
	srv := newChatServer(t, runner)
	conn := dialChat(t, srv)

	if err := conn.WriteJSON(authFrame{Token: validToken(t)}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	readFrame(t, conn) // session_started

	if err := conn.WriteJSON(queryFrame{Query: "pod down"}); err != nil {
		t.Fatalf("write query: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" {
		t.Fatalf("frame = %v", frame)
	}
	if frame["kind"] != string(workflow.ErrSynthesisFailure) {
		t.Errorf("kind = %v", frame["kind"])
	}
	// The cause never reaches the client.
	if msg, _ := frame["message"].(string); strings.Contains(msg, "deadline") {
		t.Errorf("message leaks the cause: %q", msg)
	}

	// The session survives a fatal query error.
	runner.err = nil
	runner.result = &workflow.Result{Outcome: workflow.OutcomeSynthesized, Answer: "ok"}
	if err := conn.WriteJSON(queryFrame{Query: "pod down again"}); err != nil {
		t.Fatalf("write query: %v", err)
	}
	if frame := readFrame(t, conn); frame["type"] != "final_answer" {
		t.Fatalf("frame after error = %v", frame)
	}
}

func TestSessionHistoryAccessControl(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	hist := history.New(rdb, time.Hour)

	ctx := context.Background()
	if err := hist.SetOwner(ctx, "s1", "u1"); err != nil {
		t.Fatalf("SetOwner: %v", err)
	}
	if err := hist.Append(ctx, "s1", history.Message{Role: "user", Text: "pod down"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	h := NewChatHandler(&stubRunner{}, runtime.Verifier{Secret: chatSecret}, hist, nil, nil, 8, log.New(io.Discard, "", 0))
	e := echo.New()
	call := func(userID, role, session string) (int, error) {
		req := httptest.NewRequest("GET", "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("session")
		c.SetParamValues(session)
		c.Set("user_id", userID)
		c.Set("role", role)
		err := h.sessionHistory(c)
		if he, ok := err.(*echo.HTTPError); ok {
			return he.Code, err
		}
		return rec.Code, err
	}

	if code, err := call("u1", runtime.RoleUser, "s1"); code != 200 {
		t.Errorf("owner read: code = %d, err = %v", code, err)
	}
	if code, _ := call("u2", runtime.RoleUser, "s1"); code != 403 {
		t.Errorf("other user read: code = %d, want 403", code)
	}
	if code, err := call("admin", runtime.RoleAdmin, "s1"); code != 200 {
		t.Errorf("admin read: code = %d, err = %v", code, err)
	}
	if code, _ := call("u1", runtime.RoleUser, "missing"); code != 404 {
		t.Errorf("unknown session: code = %d, want 404", code)
	}
}

func TestClientErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{&workflow.Error{Kind: workflow.ErrClassificationFailure}, "classification_failure"},
		{&workflow.Error{Kind: workflow.ErrSynthesisFailure}, "synthesis_failure"},
		{&workflow.Error{Kind: workflow.ErrCycleDetected}, "internal"},
		{&workflow.Error{Kind: workflow.ErrStepLimitExceeded}, "internal"},
		{io.ErrUnexpectedEOF, "internal"},
	}
	for _, tc := range cases {
		kind, msg := clientError(tc.err)
		if kind != tc.kind {
			t.Errorf("clientError(%v) kind = %s, want %s", tc.err, kind, tc.kind)
		}
		if msg == "" {
			t.Errorf("clientError(%v) has no message", tc.err)
		}
	}
}
