package domain

import (
	"strings"
	"time"
)

// Material represents a single uploaded course file and its processing state.
// Status is human-readable progress or error text, written by the
// transcription stage and by ingestion-failure reconciliation.
type Material struct {
	ID               string    `gorm:"type:text;primaryKey" json:"id"`
	CourseID         string    `gorm:"type:text;not null;index:idx_materials_course" json:"course_id"`
	Title            string    `gorm:"type:text;not null" json:"title"`
	Type             string    `gorm:"type:text;not null" json:"type"`
	StorageURI       string    `gorm:"type:text;not null;index:idx_materials_storage_uri" json:"storage_uri"`
	TranscriptionURI string    `gorm:"type:text" json:"transcription_uri,omitempty"`
	Status           string    `gorm:"type:text" json:"status,omitempty"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// TableName returns the database table name for Material.
func (Material) TableName() string {
	return "materials"
}

// NeedsTranscription reports whether the material is an audio/video file
// without a transcribed version yet.
func (m *Material) NeedsTranscription() bool {
	return (strings.HasPrefix(m.Type, "audio/") || strings.HasPrefix(m.Type, "video/")) &&
		m.TranscriptionURI == ""
}
