package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akdey/DevOpsDebugger/internal/store"
	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

// Categorizer produces short topic tags for a question. Implemented by the
// reasoning client; tagging is best-effort and never blocks an answer.
type Categorizer interface {
	Categorize(ctx context.Context, text string) ([]string, error)
}

// AnalyticsHandler records answered questions and serves aggregate stats.
type AnalyticsHandler struct {
	Store       *store.Store
	Categorizer Categorizer
	Logger      *log.Logger
}

func (h *AnalyticsHandler) Register(g *echo.Group) {
	g.GET("/questions", h.listQuestions)
	g.GET("/stats", h.stats)
}

func (h *AnalyticsHandler) listQuestions(c echo.Context) error {
	recs, err := h.Store.ListQuestions(c.Request().Context(), c.QueryParam("user"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if recs == nil {
		recs = []store.QuestionRecord{}
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *AnalyticsHandler) stats(c echo.Context) error {
	stats, err := h.Store.GetQuestionStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// Record persists one answered question with LLM-derived topic tags.
// Called off the chat path; failures are logged, never surfaced.
func (h *AnalyticsHandler) Record(userID, question string, res *workflow.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var tags []string
	if h.Categorizer != nil {
		var err error
		tags, err = h.Categorizer.Categorize(ctx, question)
		if err != nil {
			h.Logger.Printf("analytics: categorization failed: %v", err)
			tags = nil
		}
	}
	trail, err := json.Marshal(res.Trail)
	if err != nil {
		trail = []byte(`[]`)
	}
	rec := store.QuestionRecord{
		UserID:   userID,
		Question: question,
		Answer:   res.Answer,
		Tags:     tags,
		Trail:    trail,
	}
	if _, err := h.Store.RecordQuestion(ctx, rec); err != nil {
		h.Logger.Printf("analytics: recording question failed: %v", err)
	}
}
