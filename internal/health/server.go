// Package health exposes the liveness endpoint hosting platforms poll and
// the heartbeat that keeps a sleeping instance awake.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// AliveMessage is the fixed body of GET /.
const AliveMessage = "Bot is running and awake!"

const shutdownTimeout = 10 * time.Second

// Server serves /, /healthz and /metrics.
type Server struct {
	started time.Time
	router  *gin.Engine
	addr    string
}

func NewServer(port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		started: time.Now(),
		router:  gin.New(),
		addr:    fmt.Sprintf(":%d", port),
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.router.GET("/", s.alive)
	s.router.HEAD("/", s.alive)
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) alive(c *gin.Context) {
	c.String(http.StatusOK, AliveMessage)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "video-bot",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("[Health] HTTP request")
	}
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("[Health] Listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("[Health] Forced shutdown")
	}
	<-errCh
	log.Info("[Health] Stopped")
	return nil
}
