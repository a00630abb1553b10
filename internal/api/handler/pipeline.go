package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/service"
)

// PipelineHandler accepts pipeline launches and exposes run observability.
// Launches return 202 immediately; outcomes surface through the
// ingestion-status endpoint and the notification stream.
type PipelineHandler struct {
	courses      *service.CourseService
	orchestrator *service.PipelineOrchestrator
	transcriber  *service.TranscriptionStage
	ingester     *service.IngestionStage
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(courses *service.CourseService, orchestrator *service.PipelineOrchestrator, transcriber *service.TranscriptionStage, ingester *service.IngestionStage) *PipelineHandler {
	return &PipelineHandler{
		courses:      courses,
		orchestrator: orchestrator,
		transcriber:  transcriber,
		ingester:     ingester,
	}
}

// StartCreate handles POST /api/v1/courses/:id/pipeline (multipart): the
// full build pipeline for a course without a knowledge base.
func (h *PipelineHandler) StartCreate(c *gin.Context) {
	course, ok := h.lookup(c)
	if !ok {
		return
	}
	files, err := ReadMultipartFiles(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deep, _ := strconv.ParseBool(c.PostForm("deep_processing"))

	runID, err := h.orchestrator.LaunchCreate(c.Request.Context(), course, files, deep)
	h.accepted(c, runID, err)
}

// StartUpdate handles POST /api/v1/courses/:id/pipeline/update (multipart):
// new materials added to an existing knowledge base.
func (h *PipelineHandler) StartUpdate(c *gin.Context) {
	course, ok := h.lookup(c)
	if !ok {
		return
	}
	files, err := ReadMultipartFiles(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deep, _ := strconv.ParseBool(c.PostForm("deep_processing"))

	runID, err := h.orchestrator.LaunchUpdate(c.Request.Context(), course, files, deep)
	h.accepted(c, runID, err)
}

type deleteAndUpdateRequest struct {
	MaterialIDs []string `json:"material_ids" binding:"required,min=1"`
}

// StartDeleteAndUpdate handles DELETE /api/v1/courses/:id/pipeline/materials:
// remove materials and re-sync the knowledge base.
func (h *PipelineHandler) StartDeleteAndUpdate(c *gin.Context) {
	course, ok := h.lookup(c)
	if !ok {
		return
	}
	var req deleteAndUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	runID, err := h.orchestrator.LaunchDeleteAndUpdate(c.Request.Context(), course, req.MaterialIDs)
	h.accepted(c, runID, err)
}

// IngestionStatus handles GET /api/v1/courses/:id/ingestion-status.
func (h *PipelineHandler) IngestionStatus(c *gin.Context) {
	course, ok := h.lookup(c)
	if !ok {
		return
	}
	summary, err := h.ingester.Inspect(c.Request.Context(), course)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to inspect ingestion job: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Preprocess handles POST /api/v1/courses/:id/preprocess: the standalone
// transcription pass, outside any pipeline run.
func (h *PipelineHandler) Preprocess(c *gin.Context) {
	course, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := h.transcriber.Run(c.Request.Context(), course.ID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Transcription failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *PipelineHandler) lookup(c *gin.Context) (*domain.Course, bool) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load course: " + err.Error()})
		}
		return nil, false
	}
	return course, true
}

func (h *PipelineHandler) accepted(c *gin.Context, runID string, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "accepted"})
	case errors.Is(err, service.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "A pipeline is already running for this course"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
