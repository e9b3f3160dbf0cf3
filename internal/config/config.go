// Package config loads runtime configuration for the queue client, worker
// pools, and scheduler from environment variables, following the same
// getEnv-with-defaults layering the logging package uses for its own
// settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arlojenkins/exq/internal/logger"
)

// Config holds process-wide configuration shared by the manager, worker
// pools, and scheduler.
type Config struct {
	// Name labels this process in its startup log. Defaults to the OS
	// hostname. The process registry and backup lists are keyed by the OS
	// hostname, not by Name.
	Name string

	// RedisHost, RedisPort, RedisDB, and RedisPassword address the shared
	// Redis instance.
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	RedisTimeout  time.Duration

	// Namespace prefixes every key this process touches.
	Namespace string

	// Queues lists the queues this process subscribes to and each one's
	// concurrency. Concurrency falls back to Concurrency when a queue
	// entry omits it.
	Queues []QueueSpec

	// Concurrency is the default per-queue worker concurrency.
	Concurrency int

	// MaxRetries is the default retry budget for jobs enqueued without an
	// explicit retry value.
	MaxRetries int

	// PollTimeout is how often each worker pool checks its queue for a
	// free slot and a ready job.
	PollTimeout time.Duration

	// SchedulerEnable turns on the C5 poll loop that promotes due
	// schedule/retry entries.
	SchedulerEnable bool

	// SchedulerPollTimeout is the scheduler's poll interval.
	SchedulerPollTimeout time.Duration

	// GenServerTimeout bounds how long a single job handler may run
	// before its context is cancelled.
	GenServerTimeout time.Duration

	// Logging configuration, loaded the same way regardless of Non-goals
	// scoped out of the domain feature set.
	Logging *logger.Config
}

// QueueSpec is one subscribed queue and its concurrency.
type QueueSpec struct {
	Name        string
	Concurrency int
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() (*Config, error) {
	hostname, _ := os.Hostname()

	cfg := &Config{
		Name:                 getEnv("EXQ_NAME", hostname),
		RedisHost:            getEnv("EXQ_REDIS_HOST", "localhost"),
		RedisPort:            getEnvAsInt("EXQ_REDIS_PORT", 6379),
		RedisDB:              getEnvAsInt("EXQ_REDIS_DB", 0),
		RedisPassword:        getEnv("EXQ_REDIS_PASSWORD", ""),
		RedisTimeout:         getEnvAsDuration("EXQ_REDIS_TIMEOUT", 5*time.Second),
		Namespace:            getEnv("EXQ_NAMESPACE", "exq"),
		Queues:               parseQueues(getEnv("EXQ_QUEUES", "default:5")),
		Concurrency:          getEnvAsInt("EXQ_CONCURRENCY", 5),
		MaxRetries:           getEnvAsInt("EXQ_MAX_RETRIES", 25),
		PollTimeout:          getEnvAsDuration("EXQ_POLL_TIMEOUT", 200*time.Millisecond),
		SchedulerEnable:      getEnvAsBool("EXQ_SCHEDULER_ENABLE", true),
		SchedulerPollTimeout: getEnvAsDuration("EXQ_SCHEDULER_POLL_TIMEOUT", 200*time.Millisecond),
		GenServerTimeout:     getEnvAsDuration("EXQ_GENSERVER_TIMEOUT", 30*time.Second),
		Logging:              loadLoggingConfig(),
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("EXQ_NAME cannot be empty")
	}
	if cfg.RedisHost == "" {
		return nil, fmt.Errorf("EXQ_REDIS_HOST cannot be empty")
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("EXQ_CONCURRENCY must be at least 1")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("EXQ_MAX_RETRIES cannot be negative")
	}
	if len(cfg.Queues) == 0 {
		return nil, fmt.Errorf("EXQ_QUEUES must name at least one queue")
	}
	if cfg.SchedulerEnable {
		if cfg.SchedulerPollTimeout < 50*time.Millisecond {
			return nil, fmt.Errorf("EXQ_SCHEDULER_POLL_TIMEOUT too short: %v (minimum 50ms)", cfg.SchedulerPollTimeout)
		}
		if cfg.SchedulerPollTimeout > time.Minute {
			return nil, fmt.Errorf("EXQ_SCHEDULER_POLL_TIMEOUT too long: %v (maximum 1m)", cfg.SchedulerPollTimeout)
		}
	}

	if err := cfg.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return cfg, nil
}

// RedisAddr formats the host:port pair for go-redis.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func loadLoggingConfig() *logger.Config {
	cfg := logger.DefaultConfig()

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		cfg.Level = logger.LogLevel(level)
	}
	if format := getEnv("LOG_FORMAT", ""); format != "" {
		cfg.Format = logger.LogFormat(format)
	}

	cfg.Console.Enabled = getEnvAsBool("LOG_CONSOLE_ENABLED", true)
	cfg.Console.Color = getEnvAsBool("LOG_COLOR", true)
	cfg.Console.BufferSize = getEnvAsInt("LOG_CONSOLE_BUFFER_SIZE", 65536)
	cfg.Console.FlushInterval = getEnvAsDuration("LOG_CONSOLE_FLUSH_INTERVAL", 100*time.Millisecond)

	cfg.File.Enabled = getEnvAsBool("LOG_FILE_ENABLED", false)
	cfg.File.Path = getEnv("LOG_FILE_PATH", "/var/log/exq/exq.log")
	cfg.File.MaxSizeMB = getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100)
	cfg.File.MaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5)
	cfg.File.MaxAgeDays = getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 30)
	cfg.File.Compress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.File.BufferSize = getEnvAsInt("LOG_FILE_BUFFER_SIZE", 10000)
	cfg.File.BatchSize = getEnvAsInt("LOG_FILE_BATCH_SIZE", 100)
	cfg.File.BatchInterval = getEnvAsDuration("LOG_FILE_BATCH_INTERVAL", 100*time.Millisecond)

	cfg.Elasticsearch.Enabled = getEnvAsBool("LOG_ES_ENABLED", false)
	cfg.Elasticsearch.Mode = getEnv("LOG_ES_MODE", "self-managed")
	cfg.Elasticsearch.Addresses = getEnvAsStringSlice("LOG_ES_ADDRESSES", []string{"http://localhost:9200"})
	cfg.Elasticsearch.Username = getEnv("LOG_ES_USERNAME", "")
	cfg.Elasticsearch.Password = getEnv("LOG_ES_PASSWORD", "")
	cfg.Elasticsearch.CloudID = getEnv("LOG_ES_CLOUD_ID", "")
	cfg.Elasticsearch.APIKey = getEnv("LOG_ES_API_KEY", "")
	cfg.Elasticsearch.IndexPrefix = getEnv("LOG_ES_INDEX_PREFIX", "exq-logs")
	cfg.Elasticsearch.BulkSize = getEnvAsInt("LOG_ES_BULK_SIZE", 100)
	cfg.Elasticsearch.FlushInterval = getEnvAsDuration("LOG_ES_FLUSH_INTERVAL", 5*time.Second)
	cfg.Elasticsearch.Workers = getEnvAsInt("LOG_ES_WORKERS", 2)
	cfg.Elasticsearch.MaxRetries = getEnvAsInt("LOG_ES_MAX_RETRIES", 3)
	cfg.Elasticsearch.RetryBackoff = getEnvAsDuration("LOG_ES_RETRY_BACKOFF", 1*time.Second)
	cfg.Elasticsearch.CircuitBreaker = getEnvAsBool("LOG_ES_CIRCUIT_BREAKER", true)
	cfg.Elasticsearch.FailureThreshold = getEnvAsInt("LOG_ES_FAILURE_THRESHOLD", 5)
	cfg.Elasticsearch.ResetTimeout = getEnvAsDuration("LOG_ES_RESET_TIMEOUT", 30*time.Second)

	return cfg
}
