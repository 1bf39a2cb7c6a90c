// Package api exposes ingestion and scoring over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/ingest"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/records"
	"github.com/spigell/resume-matcher/internal/scoring"
)

const DefaultTopN = 5

type Store interface {
	Ping(ctx context.Context) error
	FindPosition(ctx context.Context, jobID string) (*records.Position, error)
	ListCandidates(ctx context.Context) iter.Seq2[records.Candidate, error]
	ListPositions(ctx context.Context) iter.Seq2[records.Position, error]
	ApprovalsForPosition(ctx context.Context, jobID string) ([]records.Approval, error)
}

type Ingester interface {
	Run(ctx context.Context, kind records.Kind, docs []document.Document) (*ingest.Report, error)
}

type Matcher interface {
	MatchPosition(ctx context.Context, jobID string, topN int) (*scoring.Ranking, error)
	MatchCandidate(ctx context.Context, candidateID string, topN int) (*scoring.Ranking, error)
}

type Server struct {
	store    Store
	ingester Ingester
	matcher  Matcher
	logger   *zap.Logger
	router   *gin.Engine

	ingestRoots map[records.Kind]string
}

type Option func(*options)

type options struct {
	corsOrigins []string
	ingestRoots map[records.Kind]string
}

// WithCORSOrigins allows browser clients from origins. "*" allows any.
func WithCORSOrigins(origins ...string) Option {
	return func(o *options) { o.corsOrigins = origins }
}

// WithIngestRoot lets POST /ingest read documents of kind from files under dir.
// Kinds without a root cannot be ingested over HTTP.
func WithIngestRoot(kind records.Kind, dir string) Option {
	return func(o *options) {
		if o.ingestRoots == nil {
			o.ingestRoots = make(map[records.Kind]string)
		}
		o.ingestRoots[kind] = dir
	}
}

func New(store Store, ingester Ingester, matcher Matcher, log *zap.Logger, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		store:    store,
		ingester: ingester,
		matcher:  matcher,
		logger:   logger.WithFields(log, zap.String("component", "api")),
		router:   gin.New(),

		ingestRoots: o.ingestRoots,
	}

	s.router.Use(gin.Recovery(), s.accessLog())
	if len(o.corsOrigins) > 0 {
		cfg := cors.DefaultConfig()
		if len(o.corsOrigins) == 1 && o.corsOrigins[0] == "*" {
			cfg.AllowAllOrigins = true
		} else {
			cfg.AllowOrigins = o.corsOrigins
		}
		s.router.Use(cors.New(cfg))
	}

	s.router.GET("/health", s.health)
	s.router.GET("/candidates", s.listCandidates)
	s.router.GET("/positions", s.listPositions)
	s.router.POST("/ingest", s.ingest)
	s.router.POST("/positions/:job_id/matches", s.matchPosition)
	s.router.GET("/positions/:job_id/approvals", s.approvals)
	s.router.POST("/candidates/:candidate_id/matches", s.matchCandidate)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is done, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(started)),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listCandidates(c *gin.Context) {
	out := make([]records.Candidate, 0)
	for cand, err := range s.store.ListCandidates(c.Request.Context()) {
		if err != nil {
			s.fail(c, err)
			return
		}
		out = append(out, cand)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listPositions(c *gin.Context) {
	out := make([]records.Position, 0)
	for p, err := range s.store.ListPositions(c.Request.Context()) {
		if err != nil {
			s.fail(c, err)
			return
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, out)
}

type ingestRequest struct {
	Kind  string   `json:"kind" binding:"required"`
	Paths []string `json:"paths" binding:"required,min=1"`
}

func (s *Server) ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	kind, err := records.ParseKind(req.Kind)
	if err != nil {
		s.fail(c, err)
		return
	}

	paths, err := s.resolvePaths(kind, req.Paths)
	if err != nil {
		s.fail(c, err)
		return
	}

	report, err := s.ingester.Run(c.Request.Context(), kind, document.FromPaths(paths...))
	if err != nil && report == nil {
		s.fail(c, err)
		return
	}
	if err != nil {
		// Cancelled mid-batch; the partial report goes out with the error.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// resolvePaths reads relative paths against the ingest root of kind. Absolute
// paths are kept when they lie under the root. Anything else is rejected.
func (s *Server) resolvePaths(kind records.Kind, paths []string) ([]string, error) {
	root := s.ingestRoots[kind]
	if root == "" {
		return nil, fmt.Errorf("%w: no ingest directory configured for %s documents", records.ErrValidation, kind)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve ingest directory: %w", err)
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel := p
		if filepath.IsAbs(p) {
			if rel, err = filepath.Rel(root, filepath.Clean(p)); err != nil {
				rel = ".."
			}
		}
		if rel == "." || !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("%w: path %q is outside the %s directory", records.ErrValidation, p, kind)
		}
		out = append(out, filepath.Join(root, rel))
	}
	return out, nil
}

func (s *Server) matchPosition(c *gin.Context) {
	top, ok := s.topN(c)
	if !ok {
		return
	}
	ranking, err := s.matcher.MatchPosition(c.Request.Context(), c.Param("job_id"), top)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

func (s *Server) matchCandidate(c *gin.Context) {
	top, ok := s.topN(c)
	if !ok {
		return
	}
	ranking, err := s.matcher.MatchCandidate(c.Request.Context(), c.Param("candidate_id"), top)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

func (s *Server) approvals(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("job_id")
	if _, err := s.store.FindPosition(ctx, jobID); err != nil {
		s.fail(c, err)
		return
	}
	approvals, err := s.store.ApprovalsForPosition(ctx, jobID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, approvals)
}

// topN reads ?top=, defaulting to DefaultTopN. 0 asks for every match.
func (s *Server) topN(c *gin.Context) (int, bool) {
	raw := c.Query("top")
	if raw == "" {
		return DefaultTopN, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, records.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, records.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ingest.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
