package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/sfn"

	"github.com/dariov/coursekb/internal/api"
	"github.com/dariov/coursekb/internal/api/middleware"
	"github.com/dariov/coursekb/internal/config"
	"github.com/dariov/coursekb/internal/external"
	"github.com/dariov/coursekb/internal/logger"
	"github.com/dariov/coursekb/internal/repository"
	"github.com/dariov/coursekb/internal/service"
	"github.com/dariov/coursekb/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	courseRepo := repository.NewCourseRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	runRepo := repository.NewRunRepository(db)

	ctx := context.Background()

	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Workflow.Region),
	}
	if cfg.Storage.AccessKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Storage.AccessKey, cfg.Storage.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		logger.Fatal("Failed to load AWS config: %v", err)
	}

	store, err := storage.NewS3Storage(awsCfg, &storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Fatal("Failed to ensure storage bucket: %v", err)
	}

	sfnClient := sfn.NewFromConfig(awsCfg)
	agentClient := bedrockagent.NewFromConfig(awsCfg)
	runtimeClient := bedrockagentruntime.NewFromConfig(awsCfg)

	executor := external.NewSFNWorkflowExecutor(sfnClient, cfg.Workflow.KnowledgeBaseMachine)
	preprocessor := external.NewSFNTranscriptionPreprocessor(sfnClient, cfg.Workflow.PreprocessingMachine,
		cfg.Pipeline.PollInterval, cfg.Workflow.PreprocessHeartbeatMin)
	structurer := external.NewSFNDocumentStructurer(sfnClient, cfg.Workflow.StructuringMachine,
		cfg.Pipeline.PollInterval, cfg.Pipeline.PollTimeout)
	ingestionRunner := external.NewBedrockIngestionRunner(agentClient)
	inference := external.NewBedrockInferenceService(runtimeClient, cfg.Inference.ModelARN)

	var notifier external.Notifier
	if cfg.Notifier.Endpoint != "" {
		notifier = external.NewHTTPNotifier(cfg.Notifier.Endpoint, cfg.Notifier.APIKey)
	}

	guard := service.NewGuard(runRepo)
	processor := service.NewMaterialProcessor(courseRepo, materialRepo, store, structurer, cfg.Pipeline.UploadWorkers)
	builder := service.NewKnowledgeBaseBuilder(courseRepo, executor,
		cfg.Workflow.Region, cfg.Storage.Bucket, cfg.Pipeline.PollInterval, cfg.Pipeline.PollTimeout)
	transcriber := service.NewTranscriptionStage(materialRepo, preprocessor)
	ingester := service.NewIngestionStage(courseRepo, materialRepo, ingestionRunner,
		cfg.Pipeline.PollInterval, cfg.Pipeline.PollTimeout)
	enricher := service.NewEnrichmentStage(courseRepo, inference,
		cfg.Pipeline.RetryAttempts, cfg.Pipeline.RetryDelay)
	courseService := service.NewCourseService(courseRepo, materialRepo, store)
	orchestrator := service.NewPipelineOrchestrator(
		courseRepo, materialRepo, runRepo, guard,
		processor, builder, transcriber, ingester, enricher,
		notifier, "coursekb", cfg.Notifier.LinkBase)
	topics := service.NewTopicsAnalyzer(courseRepo, guard, inference)

	// Runs interrupted by the previous process are finalized before the API
	// starts accepting new launches.
	if err := orchestrator.RecoverStale(ctx); err != nil {
		logger.Fatal("Failed to recover stale pipeline runs: %v", err)
	}

	router := api.SetupRouter(api.RouterDeps{
		Courses:      courseService,
		Materials:    materialRepo,
		Processor:    processor,
		Orchestrator: orchestrator,
		Transcriber:  transcriber,
		Ingester:     ingester,
		Enricher:     enricher,
		Topics:       topics,
	}, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}

	// Let in-flight pipeline runs settle their terminal writes.
	done := make(chan struct{})
	go func() {
		orchestrator.Wait()
		topics.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for in-flight pipeline runs")
	}

	logger.Info("Server stopped")
}
