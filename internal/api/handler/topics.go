package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dariov/coursekb/internal/service"
)

// TopicsHandler accepts topic-analysis launches for course groups.
type TopicsHandler struct {
	analyzer *service.TopicsAnalyzer
}

// NewTopicsHandler creates a new topics handler.
func NewTopicsHandler(analyzer *service.TopicsAnalyzer) *TopicsHandler {
	return &TopicsHandler{analyzer: analyzer}
}

// Start handles POST /api/v1/groups/:id/topics-analysis: 202 on acceptance,
// 409 when an analysis is already running for the group.
func (h *TopicsHandler) Start(c *gin.Context) {
	err := h.analyzer.Launch(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	case errors.Is(err, service.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "Topic analysis is already running for this group"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// Result handles GET /api/v1/groups/:id/topics-analysis.
func (h *TopicsHandler) Result(c *gin.Context) {
	result, status, err := h.analyzer.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No topic analysis found for this group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "result": result})
}
