package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/beliefgraph/beliefgraph/internal/core"
	"github.com/beliefgraph/beliefgraph/internal/core/confidence"
	"github.com/beliefgraph/beliefgraph/internal/core/contradiction"
)

type Server struct {
	Engine *core.Engine
	logger *zap.Logger
}

func NewServer(engine *core.Engine, logger *zap.Logger) *Server {
	return &Server{Engine: engine, logger: logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/messages", s.AddMessages)
	r.POST("/search", s.Search)

	r.GET("/nodes/:uuid/confidence", s.GetConfidence)
	r.GET("/nodes/:uuid/confidence/metadata", s.GetConfidenceMetadata)
	r.POST("/nodes/:uuid/confidence", s.UpdateConfidence)

	r.GET("/confidence/low", s.LowConfidenceNodes)
	r.GET("/confidence/summary", s.ConfidenceSummary)
	r.GET("/contradictions/summary", s.ContradictionSummary)

	r.POST("/maintenance/decay", s.RunDecay)

	return r
}

type AddMessageRequest struct {
	GroupID  string `json:"group_id" binding:"required"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content" binding:"required"`
	} `json:"messages" binding:"required"`
}

func (s *Server) AddMessages(c *gin.Context) {
	var req AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	var results []*core.EpisodeResult
	for _, msg := range req.Messages {
		result, err := s.Engine.AddEpisode(c.Request.Context(), req.GroupID, "message", msg.Content)
		if err != nil {
			s.logger.Error("failed to add episode", zap.String("group_id", req.GroupID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
			return
		}
		results = append(results, result)
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "episodes": results})
}

type SearchRequest struct {
	GroupID string `json:"group_id" binding:"required"`
	Query   string `json:"query" binding:"required"`
	Limit   int    `json:"limit"`
}

func (s *Server) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	results, err := s.Engine.Search(c.Request.Context(), req.GroupID, req.Query, req.Limit)
	if err != nil {
		s.logger.Error("search failed", zap.String("group_id", req.GroupID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) GetConfidence(c *gin.Context) {
	conf, err := s.Engine.Confidence.GetConfidence(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read confidence"})
		return
	}
	if conf == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no confidence record"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": c.Param("uuid"), "confidence": *conf})
}

func (s *Server) GetConfidenceMetadata(c *gin.Context) {
	meta, err := s.Engine.Confidence.GetMetadata(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read confidence metadata"})
		return
	}
	if meta == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no confidence record"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

type UpdateConfidenceRequest struct {
	Trigger  string                 `json:"trigger" binding:"required"`
	Reason   string                 `json:"reason"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *Server) UpdateConfidence(c *gin.Context) {
	var req UpdateConfidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	update, err := s.Engine.Confidence.UpdateConfidence(c.Request.Context(), c.Param("uuid"),
		confidence.Trigger(req.Trigger), req.Reason, req.Metadata)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update confidence"})
		return
	}
	if update == nil {
		c.JSON(http.StatusOK, gin.H{"status": "no-op"})
		return
	}
	c.JSON(http.StatusOK, update)
}

func (s *Server) LowConfidenceNodes(c *gin.Context) {
	threshold := 0.3
	if v := c.Query("threshold"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = parsed
		}
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	nodes, err := s.Engine.Confidence.LowConfidenceNodes(c.Request.Context(), threshold, groupIDsQuery(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list low confidence nodes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func (s *Server) ConfidenceSummary(c *gin.Context) {
	summary, err := s.Engine.Confidence.ConfidenceSummary(c.Request.Context(), groupIDsQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build confidence summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) ContradictionSummary(c *gin.Context) {
	summary, err := contradiction.Summarize(c.Request.Context(), s.Engine.Driver, groupIDsQuery(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build contradiction summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) RunDecay(c *gin.Context) {
	stats := s.Engine.Scheduler.RunDecayCycle(c.Request.Context(), groupIDsQuery(c))
	c.JSON(http.StatusOK, stats)
}

func groupIDsQuery(c *gin.Context) []string {
	raw := c.Query("group_ids")
	if raw == "" {
		return nil
	}
	var groups []string
	for _, g := range strings.Split(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
