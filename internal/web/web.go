package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chorecal/internal/config"
	appLog "chorecal/internal/log"
	"chorecal/internal/reconcile"
	"chorecal/internal/store"
)

// SyncController is the part of the reconciler the API exposes.
type SyncController interface {
	PullAndMerge(ctx context.Context) error
	Status() reconcile.Status
}

// Server provides the HTTP API over a TaskStore.
type Server struct {
	cfg   *config.Config
	store *store.TaskStore
	sync  SyncController
	e     *echo.Echo
	now   func() time.Time
}

// NewServer constructs a new Server and registers its routes.
func NewServer(cfg *config.Config, ts *store.TaskStore, sc SyncController) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	s := &Server{
		cfg:   cfg,
		store: ts,
		sync:  sc,
		e:     e,
		now:   time.Now,
	}

	e.Use(middleware.Recover())
	e.Use(requestLogger())
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+cfg.Listen)
		e.Use(s.basicAuth())
	}

	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- s.e.Start(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.e.GET("/health", s.handleHealth)

	api := s.e.Group("/api")
	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks/:id", s.handleGetTask)
	api.PATCH("/tasks/:id", s.handlePatchTask)
	api.DELETE("/tasks/:id", s.handleDeleteTask)

	api.GET("/persons", s.handleListPersons)
	api.POST("/persons", s.handleCreatePerson)
	api.GET("/persons/:id", s.handleGetPerson)
	api.GET("/persons/:id/tasks", s.handlePersonTasks)

	api.GET("/sync", s.handleSyncStatus)
	api.POST("/sync", s.handleSyncNow)
	api.GET("/changes", s.handleChanges)

	api.GET("/calendar.ics", s.handleExportCalendar)
	api.POST("/calendar.ics", s.handleImportCalendar)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuth guards every route except /health.
func (s *Server) basicAuth() echo.MiddlewareFunc {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
		Validator: func(u, p string, _ echo.Context) (bool, error) {
			return secureCompare(u, username) && secureCompare(p, password), nil
		},
		Realm: "chorecal",
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			appLog.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// errorHandler renders every error as {"error": "..."}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		appLog.Error("http handler failed", err, "path", c.Path())
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if err := c.JSON(code, errorResponse{Error: msg}); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}
