package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	DB "emberdb/internal/db"
	"emberdb/pkg/logger"
)

type Server struct {
	router *gin.Engine
	db     *DB.DB
	http   *http.Server
}

// New creates a new server instance that will listen on addr
func New(db *DB.DB, addr string) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		db:     db,
		router: router,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleHealthCheck())

	s.router.GET("/v1/keys/:key", s.handleGet())
	s.router.PUT("/v1/keys/:key", s.handlePut())
	s.router.DELETE("/v1/keys/:key", s.handleDelete())

	s.router.POST("/v1/flush", s.handleFlush())
	s.router.GET("/v1/stats", s.handleStats())
}

// Run serves until Shutdown is called. Run after Shutdown returns nil
// without listening.
func (s *Server) Run() error {
	logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serve on %s", s.http.Addr)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
