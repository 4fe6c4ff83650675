// Package api exposes the Session Turn API: start, submit, next, precache,
// end. JSON only, no templates, no static assets — grounded on
// internal/api/router.go's route-group structure with the HTML/websocket/
// searxng surface removed.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"tutorcore/internal/config"
	"tutorcore/internal/generation"
	"tutorcore/internal/grader"
	"tutorcore/internal/precache"
	"tutorcore/internal/skill"
	"tutorcore/internal/store"
)

// Server bundles the Session Turn API's collaborators. One per process.
type Server struct {
	cfg       *config.Config
	rdb       *redis.Client
	repo      store.Repository
	pipeline  *generation.Pipeline
	precache  *precache.Engine
	localG    *grader.Local
	llmG      *grader.LLM
	skillEst  *skill.Estimator
}

func NewServer(
	cfg *config.Config,
	rdb *redis.Client,
	repo store.Repository,
	pipeline *generation.Pipeline,
	precacheEngine *precache.Engine,
	localGrader *grader.Local,
	llmGrader *grader.LLM,
	skillEst *skill.Estimator,
) *Server {
	return &Server{
		cfg:      cfg,
		rdb:      rdb,
		repo:     repo,
		pipeline: pipeline,
		precache: precacheEngine,
		localG:   localGrader,
		llmG:     llmGrader,
		skillEst: skillEst,
	}
}

// SetupRouter wires the health/config endpoints and the Session Turn API
// under a single gin.Engine, matching the teacher's SetupRouter shape
// (auth middleware guarding everything past setup) with the HTML template
// loading and static file serving stripped.
func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", healthHandler)
	r.GET("/config", configHandler(s.cfg))

	sessions := r.Group("/sessions")
	sessions.POST("", s.startSession)

	scoped := sessions.Group("/:id")
	scoped.Use(sessionAuthMiddleware(s.cfg))
	{
		scoped.POST("/submit", s.submitAnswer)
		scoped.GET("/next", s.nextItem)
		scoped.POST("/precache", s.precacheTrigger)
		scoped.POST("/end", s.endSession)
	}

	return r
}
