// Package httpapi is the HTTP ingress shell: gin routing over the
// pipeline.
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/example/reservoir/internal/pipeline"
	"github.com/example/reservoir/internal/platform/logger"
)

// Server wires pipeline.Deps to gin routes.
type Server struct {
	deps   pipeline.Deps
	log    *logger.Logger
	Engine *gin.Engine
}

// New builds a Server with every route registered.
func New(deps pipeline.Deps, log *logger.Logger) *Server {
	s := &Server{deps: deps, log: log.With("component", "HTTPServer")}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(attachTraceContext())
	engine.Use(requestLogger(log))
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	s.registerRoutes(engine)
	s.Engine = engine
	return s
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/healthcheck", s.handleHealthcheck)

	r.POST("/v1/chat/completions", s.handleChatCompletions)
	r.POST("/partition/:partition/v1/chat/completions", s.handleChatCompletions)
	r.POST("/partition/:partition/instance/:instance/v1/chat/completions", s.handleChatCompletions)

	r.POST("/echo", s.handleEcho)

	r.GET("/api/tags", s.handleTags)
	r.POST("/api/show", s.handleShow)

	r.GET("/partition/:partition/command/view/:n", s.handleView)
	r.GET("/partition/:partition/instance/:instance/command/view/:n", s.handleView)
	r.GET("/partition/:partition/command/search/:n", s.handleSearch)
	r.GET("/partition/:partition/instance/:instance/command/search/:n", s.handleSearch)
}

// scopeFromParams resolves (partition, instance): bare
// /v1/chat/completions defaults both to "default"; /partition/<P>/...
// sets partition=instance=P; /partition/<P>/instance/<I>/... sets
// partition=P, instance=I.
func (s *Server) scopeFromParams(c *gin.Context) (string, string) {
	partition := c.Param("partition")
	if partition == "" {
		return "default", "default"
	}
	instance := c.Param("instance")
	if instance == "" {
		instance = partition
	}
	return partition, instance
}
