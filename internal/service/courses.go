package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariov/coursekb/internal/domain"
	"github.com/dariov/coursekb/internal/storage"
)

// CreateCourseInput is the data needed to register a new course.
type CreateCourseInput struct {
	Title     string
	TeacherID string
	GroupID   string
	Language  string
	Settings  domain.JSONMap
}

// CourseService covers course registration and reads.
type CourseService struct {
	courses   CourseStore
	materials MaterialStore
	store     storage.ObjectStorage
}

// NewCourseService creates a course service.
func NewCourseService(courses CourseStore, materials MaterialStore, store storage.ObjectStorage) *CourseService {
	return &CourseService{courses: courses, materials: materials, store: store}
}

// Create registers a course and seeds its storage prefix so later uploads
// and the build workflow share one location.
func (s *CourseService) Create(ctx context.Context, input CreateCourseInput) (*domain.Course, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("course title is required")
	}
	if strings.TrimSpace(input.TeacherID) == "" {
		return nil, fmt.Errorf("teacher id is required")
	}

	course := &domain.Course{
		ID:        uuid.New().String(),
		Title:     strings.TrimSpace(input.Title),
		TeacherID: input.TeacherID,
		GroupID:   input.GroupID,
		Language:  input.Language,
		Settings:  input.Settings,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("materials/%s/.keep", course.ID)
	if err := s.store.Upload(ctx, key, strings.NewReader(""), 0, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("seed storage prefix: %w", err)
	}
	return course, nil
}

// Get returns one course, mapping a missing row to ErrCourseNotFound.
func (s *CourseService) Get(ctx context.Context, id string) (*domain.Course, error) {
	course, err := s.courses.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return course, nil
}

// Materials returns a course's materials.
func (s *CourseService) Materials(ctx context.Context, courseID string) ([]domain.Material, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	return s.materials.ListByCourse(ctx, courseID)
}
