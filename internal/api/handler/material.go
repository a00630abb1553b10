package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dariov/coursekb/internal/service"
)

// MaterialHandler handles synchronous material uploads and deletes, outside
// any pipeline run.
type MaterialHandler struct {
	courses   *service.CourseService
	processor *service.MaterialProcessor
	materials service.MaterialStore
}

// NewMaterialHandler creates a new material handler.
func NewMaterialHandler(courses *service.CourseService, processor *service.MaterialProcessor, materials service.MaterialStore) *MaterialHandler {
	return &MaterialHandler{courses: courses, processor: processor, materials: materials}
}

// List handles GET /api/v1/courses/:id/materials.
func (h *MaterialHandler) List(c *gin.Context) {
	materials, err := h.courses.Materials(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list materials: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"materials": materials, "count": len(materials)})
}

// Upload handles POST /api/v1/courses/:id/materials (multipart). Files are
// stored and registered immediately; a stale terminal ingestion status is
// cleared so the next pipeline run picks the new files up.
func (h *MaterialHandler) Upload(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load course: " + err.Error()})
		}
		return
	}

	files, err := ReadMultipartFiles(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deep, _ := strconv.ParseBool(c.PostForm("deep_processing"))

	materials, err := h.processor.ProcessFiles(c.Request.Context(), course, files, deep)
	if err != nil {
		// Partial success: report what committed alongside the failures.
		c.JSON(http.StatusMultiStatus, gin.H{
			"materials": materials,
			"error":     err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"materials": materials, "count": len(materials)})
}

type deleteMaterialsRequest struct {
	MaterialIDs []string `json:"material_ids" binding:"required,min=1"`
}

// Delete handles DELETE /api/v1/courses/:id/materials: removes the named
// materials and their stored artifacts without touching the knowledge base.
func (h *MaterialHandler) Delete(c *gin.Context) {
	courseID := c.Param("id")
	var req deleteMaterialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	deleted := 0
	for _, id := range req.MaterialIDs {
		material, err := h.materials.Get(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Material not found: " + id})
			return
		}
		if material.CourseID != courseID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Material does not belong to this course: " + id})
			return
		}
		if err := h.processor.DeleteMaterial(c.Request.Context(), material); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete material: " + err.Error()})
			return
		}
		deleted++
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ReadMultipartFiles extracts the uploaded files from a multipart form.
func ReadMultipartFiles(c *gin.Context) ([]service.UploadedFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, errors.New("invalid multipart form: " + err.Error())
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, errors.New("no files provided")
	}

	files := make([]service.UploadedFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, errors.New("failed to open " + header.Filename + ": " + err.Error())
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errors.New("failed to read " + header.Filename + ": " + err.Error())
		}
		files = append(files, service.UploadedFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}
