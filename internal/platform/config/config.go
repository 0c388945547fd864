package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean; every field has a dev-friendly
// default.
type Config struct {
	Env  string
	Addr string

	// Postgres DSN; empty means run on in-memory stores (dev/tests).
	PostgresURL string

	Redis RedisConfig
	Kafka KafkaConfig
	AI    AIConfig

	// BlobDir is the filesystem root for raw messages and attachments when
	// no external object store is wired.
	BlobDir string

	// Workers is the size of the pipeline worker pool.
	Workers int

	// MessageTimeout bounds end-to-end processing of one delivery. It must
	// stay under the queue delivery lease so a stalled worker releases the
	// message before another consumer picks it up.
	MessageTimeout time.Duration

	// MaxRedeliveries before a message is diverted to quarantine.
	MaxRedeliveries int

	// MaxAttachmentBytes caps stored attachment size; larger parts are
	// skipped with a log line.
	MaxAttachmentBytes int64

	// ReplyFrom is the sender address stamped on acknowledgment replies.
	ReplyFrom string

	// OperatorToken guards organization onboarding and billing endpoints.
	// Empty disables those endpoints entirely.
	OperatorToken string
}

// RedisConfig carries connection settings for the usage metering store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig carries the durable queue topology.
type KafkaConfig struct {
	Brokers         []string
	InboundTopic    string
	QuarantineTopic string
	ConsumerGroup   string
}

// AIConfig carries the extraction capability endpoint. The API key normally
// arrives via the secret store at process start; AI_API_KEY is the local
// override.
type AIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	MaxAttempts    int
	MaxInputChars  int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Env:         envOr("MAILROOM_ENV", "dev"),
		Addr:        envOr("MAILROOM_ADDR", ":8080"),
		PostgresURL: os.Getenv("MAILROOM_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("MAILROOM_REDIS_URL"),
			PoolSize:     envInt("MAILROOM_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MAILROOM_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("MAILROOM_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("MAILROOM_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("MAILROOM_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         splitList(envOr("MAILROOM_KAFKA_BROKERS", "localhost:9092")),
			InboundTopic:    envOr("MAILROOM_INBOUND_TOPIC", "mailroom.inbound"),
			QuarantineTopic: envOr("MAILROOM_QUARANTINE_TOPIC", "mailroom.quarantine"),
			ConsumerGroup:   envOr("MAILROOM_CONSUMER_GROUP", "mailroom-pipeline"),
		},
		AI: AIConfig{
			BaseURL:        envOr("MAILROOM_AI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         os.Getenv("AI_API_KEY"),
			Model:          envOr("MAILROOM_AI_MODEL", "gpt-4o-mini"),
			RequestTimeout: envDuration("MAILROOM_AI_TIMEOUT", 30*time.Second),
			MaxAttempts:    envInt("MAILROOM_AI_MAX_ATTEMPTS", 3),
			MaxInputChars:  envInt("MAILROOM_AI_MAX_INPUT_CHARS", 100_000),
		},
		BlobDir:            envOr("MAILROOM_BLOB_DIR", "./data/blobs"),
		Workers:            envInt("MAILROOM_WORKERS", 4),
		MessageTimeout:     envDuration("MAILROOM_MESSAGE_TIMEOUT", 2*time.Minute),
		MaxRedeliveries:    envInt("MAILROOM_MAX_REDELIVERIES", 5),
		MaxAttachmentBytes: int64(envInt("MAILROOM_MAX_ATTACHMENT_MB", 25)) * 1024 * 1024,
		ReplyFrom:          envOr("MAILROOM_REPLY_FROM", "project@mailroom.example"),
		OperatorToken:      os.Getenv("MAILROOM_OPERATOR_TOKEN"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
