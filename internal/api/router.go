package api

import (
	"github.com/gin-gonic/gin"

	"github.com/dariov/coursekb/internal/api/handler"
	"github.com/dariov/coursekb/internal/api/middleware"
	"github.com/dariov/coursekb/internal/service"
)

// RouterDeps carries the services the router wires into handlers.
type RouterDeps struct {
	Courses      *service.CourseService
	Materials    service.MaterialStore
	Processor    *service.MaterialProcessor
	Orchestrator *service.PipelineOrchestrator
	Transcriber  *service.TranscriptionStage
	Ingester     *service.IngestionStage
	Enricher     *service.EnrichmentStage
	Topics       *service.TopicsAnalyzer
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps RouterDeps, mode string, cors middleware.CORSConfig) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cors))

	healthHandler := handler.NewHealthHandler()
	courseHandler := handler.NewCourseHandler(deps.Courses, deps.Enricher)
	materialHandler := handler.NewMaterialHandler(deps.Courses, deps.Processor, deps.Materials)
	pipelineHandler := handler.NewPipelineHandler(deps.Courses, deps.Orchestrator, deps.Transcriber, deps.Ingester)
	topicsHandler := handler.NewTopicsHandler(deps.Topics)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Courses
		v1.POST("/courses", courseHandler.Create)
		v1.GET("/courses/:id", courseHandler.Get)
		v1.GET("/courses/:id/analysis", courseHandler.Analysis)
		v1.GET("/courses/:id/sample-questions", courseHandler.SampleQuestions)

		// Materials (synchronous, outside any pipeline)
		v1.GET("/courses/:id/materials", materialHandler.List)
		v1.POST("/courses/:id/materials", materialHandler.Upload)
		v1.DELETE("/courses/:id/materials", materialHandler.Delete)

		// Pipeline launches and observability
		v1.POST("/courses/:id/pipeline", pipelineHandler.StartCreate)
		v1.POST("/courses/:id/pipeline/update", pipelineHandler.StartUpdate)
		v1.DELETE("/courses/:id/pipeline/materials", pipelineHandler.StartDeleteAndUpdate)
		v1.GET("/courses/:id/ingestion-status", pipelineHandler.IngestionStatus)
		v1.POST("/courses/:id/preprocess", pipelineHandler.Preprocess)

		// Group topic analysis
		v1.POST("/groups/:id/topics-analysis", topicsHandler.Start)
		v1.GET("/groups/:id/topics-analysis", topicsHandler.Result)
	}

	return r
}
