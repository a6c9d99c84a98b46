// Package server exposes a small read-only status API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	http *http.Server
	log  *logrus.Entry
}

func New(addr string, router *gin.Engine, log *logrus.Entry) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.WithField("component", "status-api"),
	}
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.http.Addr).Info("status api listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// RouteEnricher registers a group of routes.
type RouteEnricher interface {
	EnrichRoutes(router *gin.Engine)
}

// NewRouter builds the gin engine with recovery and request logging through log.
func NewRouter(env string, log *logrus.Entry, handlers ...RouteEnricher) *gin.Engine {
	if env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	for _, h := range handlers {
		h.EnrichRoutes(router)
	}
	return router
}

func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
			"took":   time.Since(started),
		}).Debug("http request")
	}
}
