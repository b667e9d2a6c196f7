package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
	GeoIPDBPath        string

	StoreDriver string
	DatabaseURL string
	DBMaxConns  int

	QueueDriver        string
	QueueBufferSize    int
	QueueMaxDeliveries int
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisStream        string
	RedisDLQStream     string
	RedisGroup         string
	RedisConsumer      string
	RedisClaimMinIdle  time.Duration
	NATSURL            string
	NATSSubject        string
	NATSQueue          string
	NATSAckWait        time.Duration
	WorkerEnabled      bool
	WorkerConcurrency  int
	FinalizeTimeout    time.Duration
	ProviderRatePerSec float64
	ProviderRateBurst  int

	ReplicateAPIToken   string
	ReplicateBaseURL    string
	ImageModel          string
	VideoModel          string
	CardModel           string
	ModelVersions       map[string]string
	PollInterval        time.Duration
	PollMaxAttempts     int
	RetryMaxAttempts    int
	RetryBaseDelay      time.Duration
	ProviderHTTPTimeout time.Duration

	StorageDriver     string
	StoragePath       string
	StorageBaseURL    string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool
	S3PublicBaseURL   string
	MaxAssetBytes     int64

	ImageCost int64
	VideoCost int64
	CardCost  int64
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           strings.ToLower(os.Getenv("LOG_LEVEL")),
		Port:               port,
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          os.Getenv("JWT_ISSUER"),
		JWTAudience:        os.Getenv("JWT_AUDIENCE"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),

		QueueDriver:        strings.ToLower(getEnv("QUEUE_DRIVER", "local")),
		QueueBufferSize:    getEnvInt("QUEUE_BUFFER_SIZE", 512),
		QueueMaxDeliveries: getEnvInt("QUEUE_MAX_DELIVERIES", 3),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RedisStream:        getEnv("REDIS_STREAM", "generation_jobs"),
		RedisDLQStream:     getEnv("REDIS_DLQ_STREAM", "generation_jobs_dlq"),
		RedisGroup:         getEnv("REDIS_GROUP", "generation_workers"),
		RedisConsumer:      getEnv("REDIS_CONSUMER", hostnameOr("worker-1")),
		RedisClaimMinIdle:  time.Second * time.Duration(getEnvInt("REDIS_CLAIM_MIN_IDLE_SECONDS", 300)),
		NATSURL:            getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubject:        getEnv("NATS_SUBJECT", "generation.jobs"),
		NATSQueue:          getEnv("NATS_QUEUE", "generation-workers"),
		NATSAckWait:        time.Second * time.Duration(getEnvInt("NATS_ACK_WAIT_SECONDS", 300)),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		FinalizeTimeout:    time.Second * time.Duration(getEnvInt("FINALIZE_TIMEOUT_SECONDS", 30)),
		ProviderRatePerSec: getEnvFloat("PROVIDER_RATE_PER_SECOND", 5),
		ProviderRateBurst:  getEnvInt("PROVIDER_RATE_BURST", 10),

		ReplicateAPIToken:   os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:    getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ImageModel:          getEnv("IMAGE_MODEL", "black-forest-labs/flux-kontext-pro"),
		VideoModel:          getEnv("VIDEO_MODEL", "google/veo-3-fast"),
		CardModel:           getEnv("CARD_MODEL", "black-forest-labs/flux-kontext-pro"),
		PollInterval:        time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 5)),
		PollMaxAttempts:     getEnvInt("POLL_MAX_ATTEMPTS", 60),
		RetryMaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 6),
		RetryBaseDelay:      time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 1000)),
		ProviderHTTPTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_HTTP_TIMEOUT_SECONDS", 60)),

		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", "filesystem")),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		MaxAssetBytes:     int64(getEnvInt("MAX_ASSET_MB", 200)) << 20,

		ImageCost: int64(getEnvInt("IMAGE_COST", 1)),
		VideoCost: int64(getEnvInt("VIDEO_COST", 10)),
		CardCost:  int64(getEnvInt("CARD_COST", 2)),
	}

	cfg.ModelVersions = map[string]string{}
	for _, pair := range [][2]string{
		{cfg.ImageModel, "IMAGE_MODEL_VERSION"},
		{cfg.VideoModel, "VIDEO_MODEL_VERSION"},
		{cfg.CardModel, "CARD_MODEL_VERSION"},
	} {
		if v := strings.TrimSpace(os.Getenv(pair[1])); v != "" {
			cfg.ModelVersions[pair[0]] = v
		}
	}

	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.QueueDriver {
	case "local", "redis", "nats":
	default:
		return nil, fmt.Errorf("unsupported QUEUE_DRIVER %q", cfg.QueueDriver)
	}
	if cfg.QueueDriver == "redis" && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required for the redis queue")
	}
	if cfg.StorageDriver == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required for s3 storage")
	}

	return cfg, nil
}

// ModelForKind returns the configured default model for a generation kind.
func (c *Config) ModelForKind(kind string) string {
	switch kind {
	case "video":
		return c.VideoModel
	case "card":
		return c.CardModel
	default:
		return c.ImageModel
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
