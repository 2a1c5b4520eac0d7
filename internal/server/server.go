// Package server exposes the orchestration core over HTTP: run creation and
// inspection, the chunked upload protocol, package management and workspace
// administration. Authentication is token-based; authorization follows the
// layered role model.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/account"
	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/logqueue"
	"github.com/askanna-io/askanna-core/internal/packages"
	"github.com/askanna-io/askanna-core/internal/run"
	"github.com/askanna-io/askanna-core/internal/store"
	"github.com/askanna-io/askanna-core/internal/tracking"
)

// Server wires the HTTP surface to the services behind it.
type Server struct {
	store    store.Store
	files    *filestore.Service
	logs     *logqueue.Queue
	runs     *run.Service
	tracking *tracking.Service
	packages *packages.Service
	accounts *account.Service

	httpServer *http.Server
}

// Deps carries the collaborators a Server needs.
type Deps struct {
	Store    store.Store
	Files    *filestore.Service
	Logs     *logqueue.Queue
	Runs     *run.Service
	Tracking *tracking.Service
	Packages *packages.Service
	Accounts *account.Service
}

// New builds a Server.
func New(deps Deps) *Server {
	return &Server{
		store:    deps.Store,
		files:    deps.Files,
		logs:     deps.Logs,
		runs:     deps.Runs,
		tracking: deps.Tracking,
		packages: deps.Packages,
		accounts: deps.Accounts,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), s.requestContext())

	v1 := engine.Group("/v1")
	{
		v1.POST("/job/:suuid/run/request/batch", s.createRun)

		v1.GET("/run/:suuid", s.runDetail)
		v1.PATCH("/run/:suuid/status/", s.updateRunStatus)
		v1.GET("/run/:suuid/log", s.runLog)
		v1.POST("/run/:suuid/log/", s.appendRunLog)
		v1.GET("/run/:suuid/result", s.runResult)
		v1.PUT("/run/:suuid/metric/", s.updateMetrics)
		v1.PATCH("/run/:suuid/variable/", s.updateVariables)

		v1.POST("/package/", s.createPackage)

		v1.PUT("/storage/file/:suuid/part/", s.uploadPart)
		v1.POST("/storage/file/:suuid/complete/", s.completeFile)
		v1.GET("/storage/file/:suuid/download/", s.downloadFile)

		v1.POST("/workspace/", s.createWorkspace)
		v1.POST("/workspace/:suuid/project/", s.createProject)
		v1.POST("/workspace/:suuid/invite/", s.createInvitation)
		v1.POST("/workspace/:suuid/invite/:membership/accept/", s.acceptInvitation)
	}
	return engine
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// requestLogger emits one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Handled request")
	}
}
