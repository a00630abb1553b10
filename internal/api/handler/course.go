package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/service"
)

// CourseHandler handles course registration and reads.
type CourseHandler struct {
	courses  *service.CourseService
	enricher *service.EnrichmentStage
}

// NewCourseHandler creates a new course handler.
func NewCourseHandler(courses *service.CourseService, enricher *service.EnrichmentStage) *CourseHandler {
	return &CourseHandler{courses: courses, enricher: enricher}
}

type createCourseRequest struct {
	Title     string         `json:"title" binding:"required"`
	TeacherID string         `json:"teacher_id" binding:"required"`
	GroupID   string         `json:"group_id"`
	Language  string         `json:"language"`
	Settings  domain.JSONMap `json:"settings"`
}

// Create handles POST /api/v1/courses.
func (h *CourseHandler) Create(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	course, err := h.courses.Create(c.Request.Context(), service.CreateCourseInput{
		Title:     req.Title,
		TeacherID: req.TeacherID,
		GroupID:   req.GroupID,
		Language:  req.Language,
		Settings:  req.Settings,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create course: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, course)
}

// Get handles GET /api/v1/courses/:id.
func (h *CourseHandler) Get(c *gin.Context) {
	course, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, course)
}

// Analysis handles GET /api/v1/courses/:id/analysis. Missing description or
// sample questions are generated on demand; populated fields are returned
// as they are.
func (h *CourseHandler) Analysis(c *gin.Context) {
	course, ok := h.lookup(c)
	if !ok {
		return
	}
	if !course.HasKnowledgeBase() {
		c.JSON(http.StatusConflict, gin.H{"error": "Course has no knowledge base yet"})
		return
	}

	if err := h.enricher.Run(c.Request.Context(), course); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Analysis failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description":      course.Description,
		"sample_questions": course.SampleQuestions,
	})
}

// SampleQuestions handles GET /api/v1/courses/:id/sample-questions.
func (h *CourseHandler) SampleQuestions(c *gin.Context) {
	course, ok := h.lookup(c)
	if !ok {
		return
	}
	questions := course.SampleQuestions
	if questions == nil {
		questions = domain.StringArray{}
	}
	c.JSON(http.StatusOK, gin.H{"sample_questions": questions})
}

func (h *CourseHandler) lookup(c *gin.Context) (*domain.Course, bool) {
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
