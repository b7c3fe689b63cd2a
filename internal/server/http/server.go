// Package http exposes the agent over a gin HTTP API: task lifecycle,
// event timelines, and the answer/approval response contract for paused
// runs.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aide/internal/agent/ports"
	"aide/internal/logging"
	"aide/internal/tools/builtin"
)

// Engine is the run surface the server needs.
type Engine interface {
	Start(ctx context.Context, userID, taskID string) error
	Continue(ctx context.Context, userID, taskID string) error
}

// Config shapes the HTTP server.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// Server wires the agent surface into a gin router.
type Server struct {
	engine    Engine
	tasks     builtin.TaskDirectory
	events    ports.EventStore
	scheduler ports.ContinuationScheduler
	logger    logging.Logger
	http      *http.Server
}

// NewServer builds the router and the underlying http.Server.
func NewServer(cfg Config, engine Engine, tasks builtin.TaskDirectory, events ports.EventStore, sched ports.ContinuationScheduler) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-User-ID"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		engine:    engine,
		tasks:     tasks,
		events:    events,
		scheduler: sched,
		logger:    logging.NewComponentLogger("HTTPServer"),
	}
	s.routes(router)

	addr := cfg.Host
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := cfg.Port
	if port <= 0 {
		port = 8080
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", addr, port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/tasks", s.handleCreateTask)
	api.GET("/tasks", s.handleListTasks)
	api.GET("/tasks/:id", s.handleGetTask)
	api.GET("/tasks/:id/events", s.handleListEvents)
	api.POST("/tasks/:id/start", s.handleStartTask)
	api.POST("/tasks/:id/continue", s.handleContinueTask)
	api.POST("/events/:eventID/answer", s.handleAnswer)
	api.POST("/events/:eventID/approval", s.handleApproval)
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
