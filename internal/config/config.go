package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Inference InferenceConfig `mapstructure:"inference"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type WorkflowConfig struct {
	Region                 string `mapstructure:"region"`
	KnowledgeBaseMachine   string `mapstructure:"knowledge_base_machine"`
	PreprocessingMachine   string `mapstructure:"preprocessing_machine"`
	StructuringMachine     string `mapstructure:"structuring_machine"`
	PreprocessHeartbeatMin int    `mapstructure:"preprocess_heartbeat_min"`
}

type InferenceConfig struct {
	Region   string `mapstructure:"region"`
	ModelARN string `mapstructure:"model_arn"`
}

type NotifierConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	LinkBase string `mapstructure:"link_base"`
}

type PipelineConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	UploadWorkers int           `mapstructure:"upload_workers"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/coursekb.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "coursekb-content")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("workflow.region", "us-east-1")
	v.SetDefault("workflow.knowledge_base_machine", "CreateKnowledgeBaseInfrastructure")
	v.SetDefault("workflow.preprocessing_machine", "PreprocessingTranscriptions")
	v.SetDefault("workflow.structuring_machine", "StructureDocuments")
	v.SetDefault("workflow.preprocess_heartbeat_min", 5)
	v.SetDefault("inference.region", "us-east-1")
	v.SetDefault("inference.model_arn", "anthropic.claude-3-7-sonnet-20250219-v1:0")
	v.SetDefault("pipeline.poll_interval", 15*time.Second)
	v.SetDefault("pipeline.poll_timeout", 30*time.Minute)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_delay", 30*time.Second)
	v.SetDefault("pipeline.upload_workers", 2)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("storage.bucket", "CONTENT_BUCKET")
	v.BindEnv("storage.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("storage.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("storage.region", "AWS_REGION")
	v.BindEnv("workflow.region", "AWS_REGION")
	v.BindEnv("inference.region", "AWS_REGION")
	v.BindEnv("inference.model_arn", "INFERENCE_MODEL_ARN")
	v.BindEnv("notifier.endpoint", "NOTIFIER_ENDPOINT")
	v.BindEnv("notifier.api_key", "NOTIFIER_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
