// Package httpapi is the engine's HTTP surface: telemetry ingest, learner
// state, exam-form assembly, suggestion/retention lanes, evidence search and
// health. All responses are JSON; errors use the {error, issues?} envelope.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yinkev/studyin/internal/config"
	"github.com/yinkev/studyin/internal/content"
	"github.com/yinkev/studyin/internal/logging"
	"github.com/yinkev/studyin/internal/search"
	"github.com/yinkev/studyin/internal/services"
)

// Server holds the wired runtime and the read-only request-time assets.
type Server struct {
	cfg     *config.Config
	rt      *services.Runtime
	catalog *content.Catalog
	index   *search.Index
	log     *zap.Logger

	router *gin.Engine
}

// New builds the server. The evidence index is loaded once at construction;
// a missing chunk file yields an empty index and /api/search answers 404.
func New(cfg *config.Config, rt *services.Runtime, catalog *content.Catalog, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	chunks, skipped, err := search.LoadChunks(cfg.EvidencePath)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		logging.Search("evidence load: %d malformed lines skipped", skipped)
	}

	s := &Server{
		cfg:     cfg,
		rt:      rt,
		catalog: catalog,
		index:   search.NewIndex(chunks),
		log:     log,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestID(),
		accessLog(s.log),
		corsPolicy(),
		deadline(s.cfg.RequestTimeout),
	)

	api := r.Group("/api")
	api.POST("/attempts", s.handleAttempts)
	api.POST("/sessions", s.handleSessions)
	api.GET("/learner-state", s.handleGetLearnerState)
	api.PATCH("/learner-state", s.handlePatchLearnerState)
	api.POST("/forms/build", s.handleBuildForm)
	api.POST("/suggest", s.handleSuggest)
	api.GET("/retention/queue", s.handleRetentionQueue)
	api.GET("/search", s.handleSearch)
	api.GET("/health", s.handleHealth)
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the listener fails.
func (s *Server) Run() error {
	s.log.Info("http surface listening", zap.String("addr", s.cfg.Addr))
	logging.HTTP("listening on %s", s.cfg.Addr)
	return s.router.Run(s.cfg.Addr)
}
