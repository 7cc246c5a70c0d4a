package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/reservoir/internal/chatmodel"
	"github.com/example/reservoir/internal/graphstore"
	"github.com/example/reservoir/internal/pipeline"
	"github.com/example/reservoir/internal/reserr"
)

func (s *Server) handleHealthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleChatCompletions is the main ingress: POST /v1/chat/completions
// and its /partition/.../instance/... variants.
func (s *Server) handleChatCompletions(c *gin.Context) {
	var req chatmodel.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	partition, instance := s.scopeFromParams(c)
	outcome, err := pipeline.Run(c.Request.Context(), s.deps, pipeline.Input{
		Partition: partition,
		Instance:  instance,
		Request:   req,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome.Response)
}

// handleEcho is a diagnostic endpoint that reflects the request body.
func (s *Server) handleEcho(c *gin.Context) {
	var body map[string]any
	_ = c.ShouldBindJSON(&body)
	c.JSON(http.StatusOK, body)
}

// handleTags mimics a local-LLM runtime's model-discovery endpoint so
// clients hard-coded to it accept the proxy as a drop-in.
func (s *Server) handleTags(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": []gin.H{
		{
			"name":        "reservoir:latest",
			"model":       "reservoir:latest",
			"modified_at": "2024-01-01T00:00:00Z",
			"size":        0,
			"digest":      "",
			"details": gin.H{
				"format":             "proxy",
				"family":             "reservoir",
				"parameter_size":     "",
				"quantization_level": "",
			},
		},
	}})
}

func (s *Server) handleShow(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"license":    "",
		"modelfile":  "",
		"parameters": "",
		"template":   "",
		"details": gin.H{
			"format": "proxy",
			"family": "reservoir",
		},
	})
}

// handleView serves GET /partition/<P>[/instance/<I>]/command/view/<N>:
// the last N messages for scope.
func (s *Server) handleView(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
		return
	}
	partition, instance := s.scopeFromParams(c)
	nodes, err := s.deps.Store.GetLastMessages(c.Request.Context(), partition, instance, n)
	if err != nil {
		writeErr(c, &reserr.StoreUnavailable{Op: "view", Cause: err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toWireNodes(nodes)})
}

// handleSearch serves GET
// /partition/<P>[/instance/<I>]/command/search/<N>?term=<T>&semantic=<bool>:
// keyword or semantic search, up to N results.
func (s *Server) handleSearch(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
		return
	}
	term := c.Query("term")
	semantic := strings.EqualFold(c.Query("semantic"), "true")
	partition, instance := s.scopeFromParams(c)

	var nodes []graphstore.MessageNode
	if semantic {
		vec, embedErr := s.deps.Embed.Embed(c.Request.Context(), term)
		if embedErr != nil {
			c.JSON(http.StatusOK, gin.H{"messages": []gin.H{}})
			return
		}
		nodes, err = s.deps.Store.FindSimilar(c.Request.Context(), vec, partition, instance, "user", n)
	} else {
		nodes, err = s.deps.Store.GetLastMessages(c.Request.Context(), partition, instance, n)
		nodes = filterKeyword(nodes, term)
	}
	if err != nil {
		writeErr(c, &reserr.StoreUnavailable{Op: "search", Cause: err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toWireNodes(nodes)})
}

func filterKeyword(nodes []graphstore.MessageNode, term string) []graphstore.MessageNode {
	if term == "" {
		return nodes
	}
	needle := strings.ToLower(term)
	out := make([]graphstore.MessageNode, 0, len(nodes))
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Content), needle) {
			out = append(out, n)
		}
	}
	return out
}

func toWireNodes(nodes []graphstore.MessageNode) []chatmodel.Message {
	out := make([]chatmodel.Message, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, chatmodel.Message{Role: n.Role, Content: n.Content})
	}
	return out
}

func writeErr(c *gin.Context, err error) {
	switch e := err.(type) {
	case *reserr.BadRequest:
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": e.Error()}})
	case *reserr.UpstreamError:
		// Forwarded as 5xx with the upstream status and body preserved
		// verbatim in the payload.
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"message": e.Body, "upstream_status": e.Status}})
	case *reserr.StoreUnavailable:
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": e.Error()}})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error()}})
	}
}
