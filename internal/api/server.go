// Package api implements the REST surface: job CRUD, manual triggers,
// execution-log queries, statistics and export/import.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/webcron/internal/database"
	"github.com/jonesrussell/webcron/internal/domain"
	"github.com/jonesrussell/webcron/internal/logger"
	"github.com/jonesrussell/webcron/internal/schedule"
	"github.com/jonesrussell/webcron/internal/scheduler"
)

const (
	// ReadHeaderTimeout bounds how long the server waits for request headers.
	ReadHeaderTimeout = 10 * time.Second
	// ShutdownTimeout bounds graceful server shutdown.
	ShutdownTimeout = 5 * time.Second
)

// JobStore is the job persistence surface the handlers need.
type JobStore interface {
	Create(ctx context.Context, job *domain.CronJob) error
	GetByID(ctx context.Context, id string) (*domain.CronJob, error)
	List(ctx context.Context) ([]*domain.CronJob, error)
	Update(ctx context.Context, job *domain.CronJob) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// LogStore is the execution-log query surface the handlers need.
type LogStore interface {
	List(ctx context.Context, filter database.LogFilter, page, limit int) ([]*domain.ExecutionLog, int, error)
	Stats(ctx context.Context, startDate, endDate *time.Time) (*domain.LogStats, error)
}

// TagStore is the tag persistence surface the handlers need.
type TagStore interface {
	ListAll(ctx context.Context) ([]*domain.Tag, error)
	NamesForJob(ctx context.Context, jobID string) ([]string, error)
	ReplaceJobTags(ctx context.Context, jobID string, names []string) error
}

// Engine is the scheduling engine surface the handlers need.
type Engine interface {
	Register(job *domain.CronJob) error
	Update(ctx context.Context, jobID string) error
	Remove(jobID string)
	ExecuteManually(ctx context.Context, jobID string) (*domain.ExecutionLog, error)
	JobState(jobID string) (*scheduler.JobState, bool)
	JobStates() []scheduler.JobState
}

// LogSweeper triggers retention sweeps on demand.
type LogSweeper interface {
	SweepNow(ctx context.Context, retentionDays *int) (int64, error)
}

// Server wires the HTTP surface over the engine and the stores.
type Server struct {
	logger  logger.Interface
	jobs    JobStore
	logs    LogStore
	tags    TagStore
	engine  Engine
	sweeper LogSweeper
	parser  *schedule.Parser
	limiter *TriggerLimiter

	router *gin.Engine
	srv    *http.Server
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(
	log logger.Interface,
	jobs JobStore,
	logs LogStore,
	tags TagStore,
	engine Engine,
	sweeper LogSweeper,
	parser *schedule.Parser,
	addr string,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:  log,
		jobs:    jobs,
		logs:    logs,
		tags:    tags,
		engine:  engine,
		sweeper: sweeper,
		parser:  parser,
		limiter: NewTriggerLimiter(DefaultTriggerWindow),
		router:  gin.New(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
	s.registerRoutes()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving. It blocks until the listener fails or the server is
// shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}

// registerRoutes installs the API routes.
func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	apiGroup := s.router.Group("/api")
	{
		jobs := apiGroup.Group("/jobs")
		{
			jobs.GET("", s.handleListJobs)
			jobs.POST("", s.handleCreateJob)
			jobs.GET("/:id", s.handleGetJob)
			jobs.PUT("/:id", s.handleUpdateJob)
			jobs.DELETE("/:id", s.handleDeleteJob)
			jobs.PUT("/:id/toggle", s.handleToggleJob)
			jobs.POST("/:id/trigger", s.handleTriggerJob)
			jobs.GET("/:id/logs", s.handleJobLogs)
		}

		logs := apiGroup.Group("/logs")
		{
			logs.GET("/search", s.handleSearchLogs)
			logs.GET("/stats", s.handleLogStats)
			logs.POST("/cleanup", s.handleLogCleanup)
		}

		data := apiGroup.Group("/data")
		{
			data.GET("/export", s.handleExport)
			data.POST("/import", s.handleImport)
			data.POST("/import/file", s.handleImportFile)
			data.POST("/validate", s.handleValidateImport)
		}

		apiGroup.GET("/scheduler/status", s.handleSchedulerStatus)
	}
}

// requestLogger logs each request with method, path, status and latency.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String())
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSchedulerStatus returns the live registry snapshot alongside the
// total number of stored jobs, so drift between store and registry shows.
func (s *Server) handleSchedulerStatus(c *gin.Context) {
	total, err := s.jobs.Count(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to count jobs", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to read scheduler status")
		return
	}

	states := s.engine.JobStates()
	if states == nil {
		states = []scheduler.JobState{}
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":      states,
		"scheduled": len(states),
		"totalJobs": total,
	})
}
