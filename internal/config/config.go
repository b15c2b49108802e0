package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Auth      AuthConfig
	Detector  DetectorConfig
	Upload    UploadConfig
	Cache     CacheConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	PresignExpiry   time.Duration
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
	Name     string
}

// URL returns the AMQP connection URL
func (q QueueConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", q.User, q.Password, q.Host, q.Port, q.Vhost)
}

// AuthConfig holds token and login settings
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	LoginRateLimit float64
	LoginBurst     int
}

// DetectorConfig holds the detection loop and model client settings
type DetectorConfig struct {
	ModelURL            string
	Timeout             time.Duration
	MaxRetries          uint64
	ConfidenceThreshold float64
	FrameWidth          int
	FrameHeight         int
	MaxFrames           int
	ProgressEvery       int
	ProgressInterval    time.Duration
	Classes             []string
	FFmpegPath          string
	FFprobePath         string
	TempDir             string
}

// UploadConfig holds limits for video uploads
type UploadConfig struct {
	MaxSize           int64
	AllowedExtensions []string
}

// CacheConfig holds report cache settings
type CacheConfig struct {
	ReportTTL time.Duration
}

// LoggingConfig mirrors logging.Config
type LoggingConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds the metrics server settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds jaeger settings
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	AgentHost   string
	AgentPort   int
	SampleRate  float64
}

// SchedulerConfig controls the stale job sweeper run by the API
type SchedulerConfig struct {
	Enabled           bool
	Interval          time.Duration
	RequeueAfter      time.Duration
	ProcessingTimeout time.Duration
	BatchSize         int
}

// Load reads configuration from file and environment variables.
// A .env file next to the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values that have no usable default
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.tokenTTL must be positive")
	}
	if c.Detector.FrameWidth <= 0 || c.Detector.FrameHeight <= 0 {
		return errors.New("detector frame size must be positive")
	}
	if len(c.Detector.Classes) == 0 {
		return errors.New("detector.classes must not be empty")
	}
	for _, class := range c.Detector.Classes {
		if !isToolClass(class) {
			return fmt.Errorf("detector.classes: unknown class %q", class)
		}
	}
	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return errors.New("detector.confidenceThreshold must be between 0 and 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "60s")
	v.SetDefault("server.shutdownTimeout", "10s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "tooldetect")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "tooldetect")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.presignExpiry", "15m")

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")
	v.SetDefault("queue.name", "detection_jobs")

	// Auth defaults
	v.SetDefault("auth.tokenTTL", "12h")
	v.SetDefault("auth.loginRateLimit", 1.0)
	v.SetDefault("auth.loginBurst", 5)

	// Detector defaults
	v.SetDefault("detector.modelURL", "http://localhost:9100")
	v.SetDefault("detector.timeout", "10s")
	v.SetDefault("detector.maxRetries", 3)
	v.SetDefault("detector.confidenceThreshold", 0.25)
	v.SetDefault("detector.frameWidth", 1280)
	v.SetDefault("detector.frameHeight", 720)
	v.SetDefault("detector.maxFrames", 0)
	v.SetDefault("detector.progressEvery", 100)
	v.SetDefault("detector.progressInterval", "30s")
	v.SetDefault("detector.classes", []string{
		"drill", "hammer", "pliers", "scissors", "screwdriver", "tape-measure", "wrench",
	})
	v.SetDefault("detector.ffmpegPath", "ffmpeg")
	v.SetDefault("detector.ffprobePath", "ffprobe")
	v.SetDefault("detector.tempDir", "/tmp/tooldetect")

	// Upload defaults
	v.SetDefault("upload.maxSize", 500*1024*1024) // 500MB
	v.SetDefault("upload.allowedExtensions", []string{".mp4", ".avi", ".mov", ".mkv", ".webm"})

	// Cache defaults
	v.SetDefault("cache.reportTTL", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.requeueAfter", "10m")
	v.SetDefault("scheduler.processingTimeout", "1h")
	v.SetDefault("scheduler.batchSize", 50)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "tooldetect")
	v.SetDefault("tracing.agentHost", "localhost")
	v.SetDefault("tracing.agentPort", 6831)
	v.SetDefault("tracing.sampleRate", 1.0)
}

func isToolClass(name string) bool {
	for _, class := range models.ToolClasses {
		if class == name {
			return true
		}
	}
	return false
}
