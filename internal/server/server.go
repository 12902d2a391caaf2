// Package server wires the HTTP and websocket surface around the workflow
// engine: auth, documents, analytics, the chat gateway and operational
// endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/akdey/DevOpsDebugger/config"
	"github.com/akdey/DevOpsDebugger/internal/corpus"
	"github.com/akdey/DevOpsDebugger/internal/history"
	"github.com/akdey/DevOpsDebugger/internal/reasoning"
	"github.com/akdey/DevOpsDebugger/internal/runtime"
	"github.com/akdey/DevOpsDebugger/internal/store"
	"github.com/akdey/DevOpsDebugger/internal/telemetry"
	"github.com/akdey/DevOpsDebugger/internal/websearch"
	"github.com/akdey/DevOpsDebugger/internal/workflow"
)

// Run builds the full service from configuration and serves until the
// context is canceled or the listener fails.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := log.New(os.Stdout, "[HTTP] ", log.LstdFlags)

	dsn := cfg.Storage.Postgres.DSN()
	if err := Migrate("", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer st.DB.Close()

	idx, err := corpus.NewIndex()
	if err != nil {
		return fmt.Errorf("corpus index: %w", err)
	}
	docs, err := st.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	for _, d := range docs {
		if err := idx.Add(corpus.Document{ID: d.ID, Title: d.Title, Content: d.Content}); err != nil {
			return fmt.Errorf("indexing document %s: %w", d.ID, err)
		}
	}
	logger.Printf("indexed %d corpus documents", idx.Count())

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	defer rdb.Close()
	hist := history.New(rdb, cfg.Storage.Redis.TTL)

	reasoner, err := reasoning.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("reasoning provider: %w", err)
	}
	searcher := websearch.NewSerper(cfg.Search)

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New(prometheus.DefaultRegisterer)
	}

	engine := workflow.NewEngine(workflow.Deps{
		Reasoner: reasoner,
		Corpus:   idx,
		Search:   searcher,
		Metrics:  metrics,
	}, cfg.Workflow, cfg.Guardrail, log.New(os.Stdout, "[ENGINE] ", log.LstdFlags))

	verifier := runtime.Verifier{Secret: []byte(cfg.Server.JWTSecret)}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.HTTPErrorHandler = jsonErrorHandler(logger)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	authHandler := &AuthHandler{
		Store:    st,
		Secret:   []byte(cfg.Server.JWTSecret),
		TokenTTL: cfg.Server.TokenTTL,
		Logger:   logger,
	}
	authHandler.Register(e.Group("/api/auth"))
	if cfg.Server.SeedUsers {
		if err := authHandler.SeedDefaultUsers(ctx); err != nil {
			return fmt.Errorf("seeding users: %w", err)
		}
	}

	authed := runtime.EchoAuthMiddleware(verifier)
	admin := runtime.RequireAdmin()

	docsHandler := &DocumentsHandler{Store: st, Corpus: idx, Logger: logger}
	docsHandler.Register(e.Group("/api/documents", authed), admin)

	analytics := &AnalyticsHandler{Store: st, Categorizer: reasoner, Logger: logger}
	analytics.Register(e.Group("/api/analytics", authed, admin))

	chat := NewChatHandler(engine, verifier, hist, analytics, metrics, cfg.Workflow.EventBuffer, log.New(os.Stdout, "[CHAT] ", log.LstdFlags))
	chat.Register(e)
	chat.RegisterHistory(e.Group("/api/chat", authed))

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(cfg.Server.Address) }()
	logger.Printf("listening on %s", cfg.Server.Address)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// jsonErrorHandler renders every handler error as the JSON error envelope.
func jsonErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = fmt.Sprintf("%v", he.Message)
		}
		if code >= http.StatusInternalServerError {
			logger.Printf("%s %s -> %d: %v", c.Request().Method, c.Request().URL.Path, code, err)
		}
		if jerr := c.JSON(code, HTTPError{Error: msg}); jerr != nil {
			logger.Printf("writing error response: %v", jerr)
		}
	}
}
