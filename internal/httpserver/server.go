// Package httpserver exposes the local control surface: push-to-talk style
// turn control, health and Prometheus metrics. It binds to loopback by
// default and is not meant to face the network.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller is the slice of the agent the control surface drives.
type Controller interface {
	StartTurn() error
	StopTurn()
	SetEmotion(emotion string)
	Recording() bool
	ConversationID() string
}

// Server bundles the echo instance and its routes.
type Server struct {
	e    *echo.Echo
	ctrl Controller
}

// New constructs the server around a controller.
func New(ctrl Controller) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{e: e, ctrl: ctrl}

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/turns/start", s.startTurn)
	e.POST("/turns/stop", s.stopTurn)
	e.PUT("/emotion", s.setEmotion)

	return s
}

// Handler exposes the routes for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.e.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"recording":    s.ctrl.Recording(),
		"conversation": s.ctrl.ConversationID(),
	})
}

func (s *Server) startTurn(c echo.Context) error {
	if err := s.ctrl.StartTurn(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) stopTurn(c echo.Context) error {
	s.ctrl.StopTurn()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) setEmotion(c echo.Context) error {
	var body struct {
		Emotion string `json:"emotion"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
	}
	s.ctrl.SetEmotion(body.Emotion)
	return c.NoContent(http.StatusNoContent)
}
