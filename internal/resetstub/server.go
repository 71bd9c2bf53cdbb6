// Package resetstub is a local stand-in for the remote data-reset
// collaborator, useful when developing suites against the harness without a
// real backend.
package resetstub

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Hook is invoked on every reset request. A nil hook makes reset a no-op.
type Hook func(ctx context.Context) error

// Server exposes POST /reset and GET /healthz.
type Server struct {
	srv    *http.Server
	log    *slog.Logger
	hook   Hook
	resets atomic.Int64
}

// New builds the server. addr is a listen address like ":8080".
func New(addr string, hook Hook, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{log: log, hook: hook}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/reset", s.handleReset)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) handleReset(c *gin.Context) {
	if s.hook != nil {
		if err := s.hook(c.Request.Context()); err != nil {
			s.log.Error("reset hook failed", slog.Any("error", err))
			c.Status(http.StatusInternalServerError)
			return
		}
	}
	n := s.resets.Add(1)
	s.log.Info("reset", slog.Int64("total", n))
	c.Status(http.StatusNoContent)
}

// Resets returns how many resets have been served.
func (s *Server) Resets() int64 {
	return s.resets.Load()
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
