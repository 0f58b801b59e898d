package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-api"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"clover"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for pipeline outcome events (executions, deliveries)
	KafkaEventTopic string `env:"KAFKA_EVENT_TOPIC" env-default:"crm-pipeline-events"`
	// Kafka topic for CRM activity records written by automations
	KafkaActivityTopic string `env:"KAFKA_ACTIVITY_TOPIC" env-default:"crm-activities"`

	// Transactional email API base URL
	EmailAPIURL string `env:"EMAIL_API_URL" env-default:""`
	// Transactional email API token
	EmailAPIToken string `env:"EMAIL_API_TOKEN" env-default:""`
	// From address for automation emails
	EmailFromAddress string `env:"EMAIL_FROM_ADDRESS" env-default:"no-reply@clover.local"`

	// Webhook delivery settings
	// Per-attempt delivery timeout
	WebhookAttemptTimeout time.Duration `env:"WEBHOOK_ATTEMPT_TIMEOUT" env-default:"10s"`
	// Cap on delivery response body captured in the audit log
	WebhookResponseBodyLimit int `env:"WEBHOOK_RESPONSE_BODY_LIMIT" env-default:"1024"`

	// Rate limit applied to inbound webhook receivers (per webhook id)
	InboundRateLimit int `env:"INBOUND_RATE_LIMIT" env-default:"120"`
	// Inbound rate limit window
	InboundRateWindow time.Duration `env:"INBOUND_RATE_WINDOW" env-default:"1m"`
	// Rate limit applied to the trigger endpoint (per tenant)
	TriggerRateLimit int `env:"TRIGGER_RATE_LIMIT" env-default:"600"`
	// Trigger rate limit window
	TriggerRateWindow time.Duration `env:"TRIGGER_RATE_WINDOW" env-default:"1m"`
	// Max keys tracked by the in-process rate limit fallback
	RateLimitFallbackMaxKeys int `env:"RATE_LIMIT_FALLBACK_MAX_KEYS" env-default:"10000"`

	// Redis Streams settings
	// Trigger job stream name
	RedisStreamsJobQueue string `env:"REDIS_STREAMS_JOB_QUEUE" env-default:"clover:triggers"`
	// Consumer group name
	RedisStreamsConsumerGroup string `env:"REDIS_STREAMS_CONSUMER_GROUP" env-default:"clover-workers"`
	// Consumer name (defaults to hostname if empty)
	RedisStreamsConsumerName string `env:"REDIS_STREAMS_CONSUMER_NAME" env-default:""`
	// Dead letter stream name
	RedisStreamsDLQ string `env:"REDIS_STREAMS_DLQ" env-default:"clover:dlq"`
	// Number of queue worker goroutines
	QueueWorkerCount int `env:"QUEUE_WORKER_COUNT" env-default:"4"`
	// Attempts before a trigger job is dead-lettered
	QueueMaxJobAttempts int `env:"QUEUE_MAX_JOB_ATTEMPTS" env-default:"3"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}
