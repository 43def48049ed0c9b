// Package server exposes the canvas over HTTP: the WebSocket session endpoint,
// the account endpoints, health and metrics.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pixelcanvas/internal/auth"
	"pixelcanvas/internal/canvas"
	"pixelcanvas/internal/credit"
	"pixelcanvas/internal/session"
)

const tracerName = "pixelcanvas/internal/server"

// Options configures a Server.
type Options struct {
	AllowAnonymous bool
	Session        session.Config
	Logger         *slog.Logger
	// Registry receives the server's collectors and backs /metrics. A private
	// registry is created when nil.
	Registry *prometheus.Registry
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Canvas is the cell storage behind a Server. *canvas.Store implements it.
type Canvas interface {
	Contains(p canvas.Position) bool
	WriteCell(p canvas.Position, c canvas.Color, author canvas.AuthorID) error
	ReadCell(p canvas.Position) (canvas.Color, canvas.AuthorID, error)
	ReadAll() (canvas.Snapshot, error)
}

var _ Canvas = (*canvas.Store)(nil)

// Server wires the canvas store, the session hub, the credit limiter and the
// account service to HTTP.
type Server struct {
	store   Canvas
	hub     *session.Hub
	auth    *auth.Service
	limiter *credit.Limiter

	opts     Options
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	upgrader websocket.Upgrader
	router   *gin.Engine
}

// New builds a Server and its routes.
func New(store Canvas, hub *session.Hub, authSvc *auth.Service, limiter *credit.Limiter, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Session.SendBuffer <= 0 {
		opts.Session = session.DefaultConfig()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	s := &Server{
		store:   store,
		hub:     hub,
		auth:    authSvc,
		limiter: limiter,
		opts:    opts,
		logger:  opts.Logger.With("component", "server"),
		metrics: NewMetrics(opts.Registry),
		tracer:  opts.TracerProvider.Tracer(tracerName),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the session registry.
func (s *Server) Hub() *session.Hub {
	return s.hub
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/session", s.handleSession)

	a := r.Group("/auth")
	a.POST("/register", s.handleRegister)
	a.POST("/login", s.handleLogin)
	a.POST("/logout", s.handleLogout)
	a.GET("/user", s.handleUser)

	r.GET("/api/cell", s.handleCell)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})))

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"dur", time.Since(start).Round(time.Millisecond),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.hub.Len(),
	})
}

// handleCell reports the stored color and author of one cell.
func (s *Server) handleCell(c *gin.Context) {
	pos, err := canvas.ParsePosition(c.Query("x") + "," + c.Query("y"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	col, author, err := s.store.ReadCell(pos)
	switch {
	case errors.Is(err, canvas.ErrOutOfBounds):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("read cell", "pos", pos.String(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "canvas unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"x":      pos.X,
		"y":      pos.Y,
		"color":  col.String(),
		"author": uint32(author),
	})
}
