package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/labstack/echo/v4"

	"github.com/akdey/DevOpsDebugger/internal/corpus"
	"github.com/akdey/DevOpsDebugger/internal/store"
)

// DocumentsHandler manages the corpus documents: persistence in Postgres
// plus immediate indexing for retrieval.
type DocumentsHandler struct {
	Store  *store.Store
	Corpus *corpus.Index
	Logger *log.Logger
}

func (h *DocumentsHandler) Register(g *echo.Group, admin echo.MiddlewareFunc) {
	g.GET("", h.list)
	g.POST("", h.create, admin)
	g.POST("/fetch", h.fetchFromURL, admin)
}

func (h *DocumentsHandler) list(c echo.Context) error {
	docs, err := h.Store.ListDocuments(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if docs == nil {
		docs = []store.DocumentRecord{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *DocumentsHandler) create(c echo.Context) error {
	var req CreateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title and content are required")
	}
	userID, _ := c.Get("user_id").(string)
	id, err := h.Store.CreateDocument(c.Request().Context(), req.Title, req.Content, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Corpus.Add(corpus.Document{ID: id, Title: req.Title, Content: req.Content}); err != nil {
		// Persisted but not searchable until the next reindex.
		h.Logger.Printf("indexing document %s failed: %v", id, err)
	}
	return c.JSON(http.StatusCreated, DocumentResponse{ID: id, Title: req.Title})
}

// fetchFromURL downloads a page, extracts its readable text and stores it as
// a corpus document.
func (h *DocumentsHandler) fetchFromURL(c echo.Context) error {
	var req FetchDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pageURL, err := url.Parse(req.URL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid url")
	}

	httpReq, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch url")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch url")
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "could not extract readable content")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = article.Title
	}
	if title == "" {
		title = pageURL.Host
	}
	content := strings.TrimSpace(article.TextContent)
	if content == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "page has no readable text")
	}

	userID, _ := c.Get("user_id").(string)
	id, err := h.Store.CreateDocument(c.Request().Context(), title, content, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Corpus.Add(corpus.Document{ID: id, Title: title, Content: content}); err != nil {
		h.Logger.Printf("indexing document %s failed: %v", id, err)
	}
	return c.JSON(http.StatusCreated, DocumentResponse{ID: id, Title: title})
}
