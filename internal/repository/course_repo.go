package repository

import (
	"context"

	"github.com/dariov/coursekb/internal/domain"
	"gorm.io/gorm"
)

// CourseRepository handles course data operations.
type CourseRepository struct {
	db *gorm.DB
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *domain.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

// Get retrieves a course by its ID.
func (r *CourseRepository) Get(ctx context.Context, id string) (*domain.Course, error) {
	var course domain.Course
	if err := r.db.WithContext(ctx).First(&course, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// ListByTeacher retrieves all courses owned by a teacher.
func (r *CourseRepository) ListByTeacher(ctx context.Context, teacherID string) ([]domain.Course, error) {
	var courses []domain.Course
	if err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("created_at DESC").
		Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// ListByGroup retrieves all courses in a course group.
func (r *CourseRepository) ListByGroup(ctx context.Context, groupID string) ([]domain.Course, error) {
	var courses []domain.Course
	if err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// TransitionIngestionStatus updates ingestion_status only when the current
// value is one of the given predecessor states. Returns false when the
// precondition did not hold, so concurrent writers cannot silently clobber
// each other's transitions.
func (r *CourseRepository) TransitionIngestionStatus(ctx context.Context, id string, from []domain.IngestionStatus, to domain.IngestionStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Course{}).
		Where("id = ? AND ingestion_status IN ?", id, from).
		Update("ingestion_status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetIngestionStatus unconditionally updates ingestion_status.
func (r *CourseRepository) SetIngestionStatus(ctx context.Context, id string, status domain.IngestionStatus) error {
	return r.db.WithContext(ctx).Model(&domain.Course{}).
		Where("id = ?", id).
		Update("ingestion_status", status).Error
}

// SetExecutionARN persists the in-flight workflow execution id.
func (r *CourseRepository) SetExecutionARN(ctx context.Context, id, arn string) error {
	return r.db.WithContext(ctx).Model(&domain.Course{}).
		Where("id = ?", id).
		Update("execution_arn", arn).Error
}

// SetKnowledgeBase persists the knowledge-base/data-source pair in a single
// UPDATE. The two ids are never written separately.
func (r *CourseRepository) SetKnowledgeBase(ctx context.Context, id, knowledgeBaseID, dataSourceID string) error {
	return r.db.WithContext(ctx).Model(&domain.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"knowledge_base_id": knowledgeBaseID,
			"data_source_id":    dataSourceID,
		}).Error
}

// SetIngestionJobID persists the id of the running ingestion job.
func (r *CourseRepository) SetIngestionJobID(ctx context.Context, id, jobID string) error {
	return r.db.WithContext(ctx).Model(&domain.Course{}).
		Where("id = ?", id).
		Update("ingestion_job_id", jobID).Error
}

// SetDescription updates the cached course summary.
func (r *CourseRepository) SetDescription(ctx context.Context, id, description string) error {
	return r.db.WithContext(ctx).Model(&domain.Course{}).
		Where("id = ?", id).
		Update("description", description).Error
}

// SetSampleQuestions updates the generated sample questions.
func (r *CourseRepository) SetSampleQuestions(ctx context.Context, id string, questions []string) error {
	return r.db.WithContext(ctx).Model(&domain.Course{}).
		Where("id = ?", id).
		Update("sample_questions", domain.StringArray(questions)).Error
}

// Delete removes a course by ID.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Course{}, "id = ?", id).Error
}
