// Package api exposes an admin HTTP surface over a running crawl service.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/newsledger"
	"github.com/pevans/newsledger/articles"
	"github.com/pevans/newsledger/logger"
)

// Crawler is the part of the crawler the API uses.
type Crawler interface {
	Verify(ctx context.Context, content string) (*newsledger.Verification, error)
	Submit(ctx context.Context, rawURL string) (newsledger.Outcome, error)
	Repository() articles.Repository
}

// Scheduler starts and reports crawl cycles.
type Scheduler interface {
	Trigger() error
	Status() newsledger.Status
}

// Server serves the admin API.
type Server struct {
	crawler   Crawler
	scheduler Scheduler
	log       logger.Interface
}

// NewServer creates a server. scheduler may be nil when no service runs, in
// which case the crawl endpoint is unavailable.
func NewServer(crawler Crawler, scheduler Scheduler, log logger.Interface) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{crawler: crawler, scheduler: scheduler, log: log}
}

// SetupRouter configures the Gin router with all admin routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/status", s.HandleStatus)
	api.POST("/crawl", s.HandleCrawl)
	api.POST("/verify", s.HandleVerify)
	api.POST("/articles", s.HandleSubmitArticle)
	api.GET("/articles/:id", s.HandleGetArticle)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String())
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Store    string             `json:"store"`
	Articles int                `json:"articles"`
	Service  *newsledger.Status `json:"service,omitempty"`
}

// HandleStatus handles GET /api/v1/status.
func (s *Server) HandleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	repo := s.crawler.Repository()

	resp := StatusResponse{Store: "ok"}
	if s.scheduler != nil {
		status := s.scheduler.Status()
		resp.Service = &status
	}

	if err := repo.Ping(ctx); err != nil {
		s.log.Warn("Store ping failed", "error", err)
		resp.Store = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	count, err := repo.Count(ctx)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal_error", "Failed to count articles")
		return
	}
	resp.Articles = count

	c.JSON(http.StatusOK, resp)
}

// HandleCrawl handles POST /api/v1/crawl.
func (s *Server) HandleCrawl(c *gin.Context) {
	if s.scheduler == nil {
		abortWithError(c, http.StatusServiceUnavailable, "unavailable", "Crawl service is not running")
		return
	}

	if err := s.scheduler.Trigger(); err != nil {
		if errors.Is(err, newsledger.ErrCycleRunning) {
			abortWithError(c, http.StatusConflict, "cycle_running", err.Error())
			return
		}
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// VerifyRequest is the body of POST /api/v1/verify.
type VerifyRequest struct {
	Content string `json:"content" binding:"required"`
}

// HandleVerify handles POST /api/v1/verify.
func (s *Server) HandleVerify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "bad_request", "Content is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		abortWithError(c, http.StatusBadRequest, "bad_request", "Content is required")
		return
	}

	result, err := s.crawler.Verify(c.Request.Context(), req.Content)
	if err != nil {
		s.log.Error("Verification failed", "error", err)
		abortWithError(c, http.StatusInternalServerError, "internal_error", "Verification failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

// SubmitRequest is the body of POST /api/v1/articles.
type SubmitRequest struct {
	URL string `json:"url" binding:"required"`
}

// HandleSubmitArticle handles POST /api/v1/articles. The URL runs through
// the crawl pipeline; the reply is the terminal outcome.
func (s *Server) HandleSubmitArticle(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "bad_request", "Valid URL is required")
		return
	}

	outcome, err := s.crawler.Submit(c.Request.Context(), req.URL)
	if errors.Is(err, newsledger.ErrInvalidURL) {
		abortWithError(c, http.StatusBadRequest, "invalid_url", err.Error())
		return
	}
	if err != nil {
		s.log.Error("Article submission failed", "url", req.URL, "error", err)
		abortWithError(c, http.StatusInternalServerError, "internal_error", "Failed to submit article")
		return
	}

	c.JSON(submitStatus(outcome.State), outcome)
}

// submitStatus maps a submission outcome to its HTTP status. An article
// that was stored is created even when anchoring failed; the outcome body
// carries the anchor error.
func submitStatus(state newsledger.State) int {
	switch state {
	case newsledger.StateSkipped, newsledger.StateAlreadyPersisted:
		return http.StatusConflict
	case newsledger.StateExtractFailed:
		return http.StatusUnprocessableEntity
	case newsledger.StatePersistFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusCreated
	}
}

// HandleGetArticle handles GET /api/v1/articles/:id.
func (s *Server) HandleGetArticle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_id", "Invalid article ID: "+err.Error())
		return
	}

	article, err := s.crawler.Repository().Get(c.Request.Context(), id)
	if errors.Is(err, articles.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "not_found", "Article with ID "+id.String()+" not found")
		return
	}
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal_error", "Failed to get article")
		return
	}

	c.JSON(http.StatusOK, article)
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Admin API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
