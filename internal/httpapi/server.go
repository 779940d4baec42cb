// Package httpapi exposes the query engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/engine"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/provider"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Ingester runs document ingestion for the ingest endpoint.
type Ingester interface {
	Ingest(ctx context.Context, docs []ingest.Document, preFailures []ingest.Failure) (*ingest.Report, error)
}

// Server provides the HTTP endpoints for querying and ingestion.
type Server struct {
	echo     *echo.Echo
	engine   *engine.Engine
	ingester Ingester
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(eng *engine.Engine, ingester Ingester, logger *zap.Logger, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:     e,
		engine:   eng,
		ingester: ingester,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
	v1.POST("/ingest", s.handleIngest)
	v1.GET("/stats", s.handleStats)
	v1.GET("/providers", s.handleListProviders)
	v1.POST("/providers/select", s.handleSelectProvider)
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Answer     string          `json:"answer"`
	Provider   string          `json:"provider"`
	Sources    []engine.Source `json:"sources"`
	Truncated  bool            `json:"truncated"`
	DurationMS int64           `json:"duration_ms"`
}

// IngestRequest is the request body for POST /api/v1/ingest.
type IngestRequest struct {
	Path string `json:"path"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	CollectionName string `json:"collection_name"`
	VectorsCount   uint64 `json:"vectors_count"`
	PointsCount    uint64 `json:"points_count"`
	Status         string `json:"status"`
}

// ProvidersResponse is the response body for GET /api/v1/providers.
type ProvidersResponse struct {
	Providers []provider.Descriptor `json:"providers"`
	Current   string                `json:"current"`
}

// SelectProviderRequest is the request body for POST /api/v1/providers/select.
type SelectProviderRequest struct {
	ID string `json:"id"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealth reports liveness and vector store reachability.
func (s *Server) handleHealth(c echo.Context) error {
	now := time.Now().UTC()
	if err := s.engine.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "degraded",
			Ready:     false,
			Timestamp: now,
		})
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Ready:     true,
		Timestamp: now,
	})
}

// handleAsk answers a question grounded in the indexed documents.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := s.engine.Ask(c.Request().Context(), engine.QueryRequest{
		Question: req.Question,
		TopK:     req.TopK,
		Provider: req.Provider,
	})
	if err != nil {
		return askError(err)
	}

	return c.JSON(http.StatusOK, AskResponse{
		Answer:     resp.Answer,
		Provider:   resp.Provider,
		Sources:    resp.Sources,
		Truncated:  resp.Truncated,
		DurationMS: resp.Duration.Milliseconds(),
	})
}

// askError maps query pipeline failures to HTTP status codes. Stage and
// provider context from StageError lands in the response message.
func askError(err error) error {
	switch {
	case errors.Is(err, engine.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	case errors.Is(err, provider.ErrUnknownProvider):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrEmbeddingUnavailable),
		errors.Is(err, engine.ErrRetrievalUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, engine.ErrGenerationFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// handleIngest indexes the documents under the given directory.
func (s *Server) handleIngest(c echo.Context) error {
	if s.ingester == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "ingestion is not configured")
	}

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path field is required")
	}

	docs, failures, err := ingest.ScanDir(req.Path, s.logger)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	report, err := s.ingester.Ingest(c.Request().Context(), docs, failures)
	if err != nil {
		if errors.Is(err, ingest.ErrNoDocuments) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(http.StatusOK, report)
}

// handleStats reports live collection statistics.
func (s *Server) handleStats(c echo.Context) error {
	info, err := s.engine.Stats(c.Request().Context())
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(http.StatusOK, StatsResponse{
		CollectionName: info.Name,
		VectorsCount:   info.VectorCount,
		PointsCount:    info.PointCount,
		Status:         info.Status,
	})
}

// handleListProviders lists the registered completion backends.
func (s *Server) handleListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, ProvidersResponse{
		Providers: s.engine.Providers(),
		Current:   s.engine.CurrentProvider(),
	})
}

// handleSelectProvider switches the current completion backend.
func (s *Server) handleSelectProvider(c echo.Context) error {
	var req SelectProviderRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid provider select request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id field is required")
	}

	if err := s.engine.SelectProvider(req.ID); err != nil {
		if errors.Is(err, provider.ErrUnknownProvider) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, ProvidersResponse{
		Providers: s.engine.Providers(),
		Current:   s.engine.CurrentProvider(),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
