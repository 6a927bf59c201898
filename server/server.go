// Package server exposes the result queries and the ingestion operations over
// HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nonsonwune/examresults/ingest"
	"github.com/nonsonwune/examresults/logging"
	"github.com/nonsonwune/examresults/query"
)

// Pinger reports store liveness for /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config holds the HTTP settings.
type Config struct {
	Addr           string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadBytes int64
}

// Server is the HTTP front of the query and ingestion services.
type Server struct {
	config     Config
	query      *query.Service
	ingest     *ingest.Service
	store      Pinger
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server
}

// New builds the router. store may be nil, in which case /healthz only
// reports the process as alive.
func New(config Config, q *query.Service, in *ingest.Service, store Pinger, logger *zap.Logger) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = ingest.DefaultMaxUploadBytes
	}
	s := &Server{
		config: config,
		query:  q,
		ingest: in,
		store:  store,
		logger: logging.OrNop(logger),
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = s.config.MaxUploadBytes
	router.Use(requestID())
	router.Use(accessLog(s.logger))
	router.Use(recovery(s.logger))

	router.GET("/healthz", s.health)

	results := router.Group("/api/results")
	results.Use(rateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	{
		cohort := results.Group("/:exam/:year")
		cohort.GET("/students/:matricule", s.findStudent)
		cohort.GET("/students/:matricule/ranking", s.candidateRanking)
		cohort.GET("/leaderboard", s.leaderboard)
		cohort.GET("/statistics", s.statistics)
		cohort.GET("/schools/:etablissement", s.studentsBySchool)
		cohort.GET("/regions", s.regionIndex)
		cohort.GET("/regions/:wilaya", s.studentsByRegion)
	}

	admin := router.Group("/api/admin")
	{
		admin.POST("/analyze", s.analyze)
		admin.POST("/ingest", s.ingestFile)
		admin.GET("/uploads", s.uploads)
		admin.DELETE("/:exam/:year", s.clear)
		admin.POST("/:exam/:year/ranks", s.recalculateRanks)
		admin.GET("/:exam/:year/audit", s.audit)
		admin.POST("/:exam/:year/repair", s.repair)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: "route not found", Code: codeNotFound})
	})
	return router
}

func (s *Server) health(c *gin.Context) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.PingContext(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.config.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
