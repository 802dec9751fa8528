package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Settings is the process configuration read from the environment.
type Settings struct {
	Port        string
	CORSOrigins []string

	LogFile  string
	LogLevel string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimezone string
	SQLitePath string

	JWTSecret string
	JWTTTL    time.Duration

	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageUseSSL    bool
	StorageBucket    string
	StorageRegion    string
	StoragePublicURL string
	StorageURLTTL    time.Duration

	UploadConcurrency int
	UploadTimeout     time.Duration
	MaxUploadMB       int64
}

// Load reads .env (if present) and the environment.
func Load() Settings {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on env vars")
	}

	return Settings{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getList("CORS_ALLOWED_ORIGINS", "*"),

		LogFile:  getEnv("LOG_FILE", "./logs/app.log"),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "drone_routes"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBTimezone: getEnv("DB_TIMEZONE", "UTC"),
		SQLitePath: getEnv("SQLITE_PATH", "drone_routes.db"),

		JWTSecret: getEnv("JWT_SECRET", "supersecret"),
		JWTTTL:    getDuration("JWT_TTL", 7*24*time.Hour),

		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		StorageUseSSL:    getBool("STORAGE_USE_SSL", false),
		StorageBucket:    getEnv("STORAGE_BUCKET", "drone-photos"),
		StorageRegion:    getEnv("STORAGE_REGION", "us-east-1"),
		StoragePublicURL: getEnv("STORAGE_PUBLIC_URL", ""),
		StorageURLTTL:    getDuration("STORAGE_URL_TTL", time.Hour),

		UploadConcurrency: getInt("UPLOAD_CONCURRENCY", 16),
		UploadTimeout:     getDuration("UPLOAD_TIMEOUT", 30*time.Second),
		MaxUploadMB:       int64(getInt("MAX_UPLOAD_MB", 100)),
	}
}

// getEnv reads an environment variable or returns the provided default
func getEnv(key, defaultValue string) string {
	if v, exists := os.LookupEnv(key); exists {
		return v
	}
	return defaultValue
}

// getList splits a comma separated setting, dropping empty entries.
func getList(key, defaultValue string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, defaultValue), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getInt(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		logrus.WithField(key, raw).Warn("Invalid integer setting, using default")
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.WithField(key, raw).Warn("Invalid boolean setting, using default")
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		logrus.WithField(key, raw).Warn("Invalid duration setting, using default")
		return defaultValue
	}
	return v
}
