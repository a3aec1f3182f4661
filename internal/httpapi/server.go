// Package httpapi exposes the coordinator over HTTP.
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

	"github.com/fyrsmithlabs/trackd/internal/coordinator"
	"github.com/fyrsmithlabs/trackd/internal/gates"
	"github.com/fyrsmithlabs/trackd/internal/item"
	"github.com/fyrsmithlabs/trackd/internal/lifecycle"
	"github.com/fyrsmithlabs/trackd/internal/store"
)

// Server provides the HTTP endpoints for trackd.
type Server struct {
	echo        *echo.Echo
	coordinator coordinator.Service
	logger      *zap.Logger
	config      *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server over the coordinator.
func NewServer(coord coordinator.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 9480}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewMetrics(logger).Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:        e,
		coordinator: coord,
		logger:      logger,
		config:      cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/items", s.handleCreateItem)
	v1.GET("/items/:id", s.handleShowItem)
	v1.PATCH("/items/:id", s.handleUpdateItem)
	v1.POST("/items/:id/advance", s.handleAdvanceItem)
	v1.POST("/items/:id/transition", s.handleTransitionItem)

	v1.POST("/tasks", s.handleCreateTask)
	v1.PATCH("/tasks/:id", s.handleUpdateTask)
	v1.POST("/tasks/:id/transition", s.handleTransitionTask)
	v1.GET("/backlog", s.handleBacklog)

	v1.POST("/ideas", s.handleCreateIdea)
	v1.POST("/ideas/:id/advance", s.handleAdvanceIdea)
	v1.POST("/ideas/:id/convert", s.handleConvertIdea)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateItem(c echo.Context) error {
	var req coordinator.CreateWorkItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	wi, err := s.coordinator.CreateWorkItem(c.Request().Context(), &req)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, wi)
}

func (s *Server) handleShowItem(c echo.Context) error {
	view, err := s.coordinator.Show(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleUpdateItem(c echo.Context) error {
	var req coordinator.UpdateWorkItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	wi, err := s.coordinator.UpdateWorkItem(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, wi)
}

func (s *Server) handleAdvanceItem(c echo.Context) error {
	result, err := s.coordinator.Advance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// TransitionRequest is the body for explicit state transitions.
type TransitionRequest struct {
	Target item.State `json:"target"`
}

func (s *Server) handleTransitionItem(c echo.Context) error {
	var req TransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	wi, err := s.coordinator.Transition(c.Request().Context(), c.Param("id"), req.Target)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, wi)
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var req coordinator.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := s.coordinator.CreateTask(c.Request().Context(), &req)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) handleUpdateTask(c echo.Context) error {
	var req coordinator.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := s.coordinator.UpdateTask(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleTransitionTask(c echo.Context) error {
	var req TransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := s.coordinator.TransitionTask(c.Request().Context(), c.Param("id"), req.Target)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleBacklog(c echo.Context) error {
	tasks, err := s.coordinator.Backlog(c.Request().Context())
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCreateIdea(c echo.Context) error {
	var req coordinator.CreateIdeaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	idea, err := s.coordinator.CreateIdea(c.Request().Context(), &req)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, idea)
}

// IdeaTransitionRequest is the body for idea advancement.
type IdeaTransitionRequest struct {
	Target item.IdeaState `json:"target"`
}

func (s *Server) handleAdvanceIdea(c echo.Context) error {
	var req IdeaTransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	idea, err := s.coordinator.AdvanceIdea(c.Request().Context(), c.Param("id"), req.Target)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusOK, idea)
}

// ConvertIdeaRequest is the body for idea conversion.
type ConvertIdeaRequest struct {
	Type item.WorkItemType `json:"type"`
}

func (s *Server) handleConvertIdea(c echo.Context) error {
	var req ConvertIdeaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	wi, err := s.coordinator.ConvertIdea(c.Request().Context(), c.Param("id"), req.Type)
	if err != nil {
		return s.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, wi)
}

// domainError translates coordinator errors onto HTTP statuses. A failed
// gate is 422 with the block report as the body; optimistic concurrency
// conflicts and illegal transitions are 409; unknown entities are 404.
func (s *Server) domainError(c echo.Context, err error) error {
	var (
		gate        *coordinator.GateNotSatisfiedError
		illegal     *lifecycle.IllegalTransitionError
		illegalIdea *lifecycle.IllegalIdeaTransitionError
		forbidden   *gates.ForbiddenPhaseError
		ceiling     *item.EffortCeilingError
	)
	switch {
	case errors.As(err, &gate):
		return c.JSON(http.StatusUnprocessableEntity, gate.Report)
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &illegal), errors.As(err, &illegalIdea), errors.As(err, &forbidden):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &ceiling):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.logger.Error("internal error", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
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
