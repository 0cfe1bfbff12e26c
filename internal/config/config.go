package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendNative = "native"
	BackendONNX   = "onnx"

	AuthLocal = "local"
	AuthOkta  = "okta"
)

type Config struct {
	Port     string
	LogLevel string

	ModelBackend    string
	ModelDir        string
	ModelMetadata   string
	ONNXLibraryPath string

	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	HistoryCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	HeatmapDir    string
	PublicBaseURL string
	S3Bucket      string
	S3Endpoint    string
	S3Region      string
	S3AccessKey   string
	S3SecretKey   string

	AuthMode     string
	JWTSecret    string
	TokenTTL     time.Duration
	OktaDomain   string
	OktaClientID string

	CORSOrigin string
	MaxUpload  int64
}

// Load reads the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	modelDir := getEnv("MODEL_DIR", "models")
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ModelBackend:    strings.ToLower(getEnv("MODEL_BACKEND", BackendNative)),
		ModelDir:        modelDir,
		ModelMetadata:   getEnv("MODEL_METADATA", filepath.Join(modelDir, "model_metadata.json")),
		ONNXLibraryPath: os.Getenv("ONNX_LIBRARY_PATH"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "pneumo.analyses"),

		HeatmapDir:    getEnv("HEATMAP_DIR", filepath.Join("static", "heatmaps")),
		PublicBaseURL: os.Getenv("PUBLIC_BASE_URL"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3Region:      getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),

		AuthMode:     strings.ToLower(getEnv("AUTH_MODE", AuthLocal)),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		OktaDomain:   os.Getenv("OKTA_DOMAIN"),
		OktaClientID: os.Getenv("OKTA_CLIENT_ID"),

		CORSOrigin: getEnv("CORS_ORIGIN", "*"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.HistoryCacheTTL, err = getDuration("HISTORY_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	maxMB, err := getInt("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	cfg.MaxUpload = int64(maxMB) << 20

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.ModelBackend {
	case BackendNative, BackendONNX:
	default:
		return fmt.Errorf("MODEL_BACKEND must be %q or %q, got %q", BackendNative, BackendONNX, c.ModelBackend)
	}
	switch c.AuthMode {
	case AuthLocal:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=%s", AuthLocal)
		}
	case AuthOkta:
		if c.OktaDomain == "" {
			return fmt.Errorf("OKTA_DOMAIN is required when AUTH_MODE=%s", AuthOkta)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthLocal, AuthOkta, c.AuthMode)
	}
	if c.MaxUpload <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
