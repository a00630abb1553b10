package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldCourseID is the course a pipeline run operates on
	FieldCourseID = "course_id"

	// FieldRunID is the pipeline run ID
	FieldRunID = "run_id"

	// FieldStage is the pipeline stage currently executing
	FieldStage = "stage"

	// FieldMaterialID is the material being processed
	FieldMaterialID = "material_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldUserID is the user receiving notifications for a run
	FieldUserID = "user_id"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the retry attempt number
	FieldAttempt = "attempt"
)
