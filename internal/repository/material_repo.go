package repository

import (
	"context"

	"github.com/dariov/coursekb/internal/domain"
	"gorm.io/gorm"
)

// MaterialRepository handles material data operations.
type MaterialRepository struct {
	db *gorm.DB
}

// NewMaterialRepository creates a new MaterialRepository.
func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create inserts a new material record.
func (r *MaterialRepository) Create(ctx context.Context, material *domain.Material) error {
	return r.db.WithContext(ctx).Create(material).Error
}

// Get retrieves a material by its ID.
func (r *MaterialRepository) Get(ctx context.Context, id string) (*domain.Material, error) {
	var material domain.Material
	if err := r.db.WithContext(ctx).First(&material, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

// GetByStorageURI retrieves a material by its object-storage URI. Used to map
// ingestion failure reasons back onto materials.
func (r *MaterialRepository) GetByStorageURI(ctx context.Context, uri string) (*domain.Material, error) {
	var material domain.Material
	if err := r.db.WithContext(ctx).First(&material, "storage_uri = ?", uri).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

// ListByCourse retrieves all materials of a course.
func (r *MaterialRepository) ListByCourse(ctx context.Context, courseID string) ([]domain.Material, error) {
	var materials []domain.Material
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("uploaded_at ASC").
		Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

// SetTranscriptionURI records the transcribed version of a material.
func (r *MaterialRepository) SetTranscriptionURI(ctx context.Context, id, uri string) error {
	return r.db.WithContext(ctx).Model(&domain.Material{}).
		Where("id = ?", id).
		Update("transcription_uri", uri).Error
}

// SetStatus updates the human-readable processing status of a material.
func (r *MaterialRepository) SetStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&domain.Material{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Delete removes a material by ID.
func (r *MaterialRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Material{}, "id = ?", id).Error
}

// DeleteByCourse removes all materials of a course, returning the count.
func (r *MaterialRepository) DeleteByCourse(ctx context.Context, courseID string) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&domain.Material{}, "course_id = ?", courseID)
	return res.RowsAffected, res.Error
}
