package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// IngestionStatus is the externally observable state of a course's build
// pipeline. The empty string models "never ingested" (NULL in the database).
type IngestionStatus string

const (
	IngestionStatusNone       IngestionStatus = ""
	IngestionStatusInProgress IngestionStatus = "IN_PROGRESS"
	IngestionStatusCompleted  IngestionStatus = "COMPLETED"
	IngestionStatusError      IngestionStatus = "ERROR"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// JSONMap stores free-form settings as a JSON column.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Course represents an instructor's course and the external knowledge-base
// resources tied to it. KnowledgeBaseID and DataSourceID are set together or
// not at all; IngestionStatus must end in COMPLETED or ERROR once a pipeline
// run has returned.
type Course struct {
	ID              string          `gorm:"type:text;primaryKey" json:"id"`
	Title           string          `gorm:"type:text;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description"`
	TeacherID       string          `gorm:"type:text;not null;index:idx_courses_teacher" json:"teacher_id"`
	GroupID         string          `gorm:"type:text;index:idx_courses_group" json:"group_id,omitempty"`
	KnowledgeBaseID string          `gorm:"type:text" json:"knowledge_base_id,omitempty"`
	DataSourceID    string          `gorm:"type:text" json:"data_source_id,omitempty"`
	IngestionJobID  string          `gorm:"type:text" json:"ingestion_job_id,omitempty"`
	ExecutionARN    string          `gorm:"type:text" json:"execution_arn,omitempty"`
	IngestionStatus IngestionStatus `gorm:"type:text;index:idx_courses_ingestion_status" json:"ingestion_status"`
	SampleQuestions StringArray     `gorm:"type:text" json:"sample_questions"`
	Settings        JSONMap         `gorm:"type:text" json:"settings,omitempty"`
	Language        string          `gorm:"type:text" json:"language,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Course.
func (Course) TableName() string {
	return "courses"
}

// FilterStructure returns the group-supplied metadata filter schema used by
// the document structuring step, in declaration order.
func (c *Course) FilterStructure() []string {
	raw, ok := c.Settings["knowledge_base_filter_structure"]
	if !ok {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	filters := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			filters = append(filters, s)
		}
	}
	return filters
}

// HasKnowledgeBase reports whether the external knowledge-base pair exists.
func (c *Course) HasKnowledgeBase() bool {
	return c.KnowledgeBaseID != "" && c.DataSourceID != ""
}
