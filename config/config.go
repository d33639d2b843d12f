package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers understood by storage.NewSigner.
const (
	StorageDriverMinio = "minio"
	StorageDriverS3    = "s3"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBLogSQL   bool

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// 对象存储
	StorageDriver  string // minio or s3
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string
	AWSRegion      string
	S3Bucket       string
	S3Endpoint     string // optional, for S3-compatible endpoints
	SignedURLTTL   time.Duration

	JWTSecret      string
	JWTTTL         time.Duration
	NewUserCredits int

	PolarWebhookSecret string
	ProductSmall       string
	ProductMedium      string
	ProductLarge       string

	GenerationStream string

	GenerateRatePerMin int
	GenerateBurst      int

	SweepSchedule   string
	SweepStaleAfter time.Duration
	SweepGiveUp     time.Duration

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for the password
		DBName:     getEnv("DB_NAME", "songforge"),
		DBLogSQL:   getEnvBool("DB_LOG_SQL", false),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverMinio)),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "songforge"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:       getEnv("S3_BUCKET_NAME", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		SignedURLTTL:   getEnvDuration("SIGNED_URL_TTL", time.Hour),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTTTL:         getEnvDuration("JWT_TTL", 7*24*time.Hour),
		NewUserCredits: getEnvInt("NEW_USER_CREDITS", 0),

		PolarWebhookSecret: os.Getenv("POLAR_WEBHOOK_SECRET"),
		ProductSmall:       getEnv("POLAR_PRODUCT_SMALL", "a5b834f5-b586-4c77-a3ea-ca5b87cac1e9"),
		ProductMedium:      getEnv("POLAR_PRODUCT_MEDIUM", "20e6fbda-4fec-4336-996e-50abbe2821f0"),
		ProductLarge:       getEnv("POLAR_PRODUCT_LARGE", "65ba7330-719e-4a8c-b396-87f3dc04cf1a"),

		GenerationStream: getEnv("GENERATION_STREAM", "generate-song-event"),

		GenerateRatePerMin: getEnvInt("GENERATE_RATE_PER_MIN", 6),
		GenerateBurst:      getEnvInt("GENERATE_BURST", 3),

		SweepSchedule:   getEnv("SWEEP_SCHEDULE", "@every 10m"),
		SweepStaleAfter: getEnvDuration("SWEEP_STALE_AFTER", 30*time.Minute),
		SweepGiveUp:     getEnvDuration("SWEEP_GIVE_UP_AFTER", 24*time.Hour),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 7),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// Validate reports configuration that would make the server unusable.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	switch c.StorageDriver {
	case StorageDriverMinio:
		if c.MinioBucket == "" {
			return fmt.Errorf("MINIO_BUCKET must be set when STORAGE_DRIVER=minio")
		}
	case StorageDriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET_NAME must be set when STORAGE_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive")
	}
	return nil
}

// RedisAddr returns host:port for the Redis clients.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
