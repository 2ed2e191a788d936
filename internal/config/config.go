package config

import (
    "os"
    "strconv"
    "time"

    "github.com/joho/godotenv"
    "github.com/sirupsen/logrus"
)

type Config struct {
    MetaAPIURL    string
    GoogleAPIURL  string
    CRMAPIURL     string
    SinkURL       string
    SinkSecret    string
    Port          string
    LogLevel      string
    HTTPTimeout   time.Duration
    RetryAttempts int

    // Merge engine
    MergeWorkers  int
    FailFast      bool

    // Collaborators
    ExportDir     string
    RedisURL      string
    CacheTTL      time.Duration
}

func Load() *Config {
    // Load .env file if it exists
    if err := godotenv.Load(); err != nil {
        logrus.Warn("No .env file found, using environment variables")
    }

    return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
    return &Config{
        MetaAPIURL:    getEnv("META_API_URL", ""),
        GoogleAPIURL:  getEnv("GOOGLE_API_URL", ""),
        CRMAPIURL:     getEnv("CRM_API_URL", ""),
        SinkURL:       getEnv("SINK_URL", ""),
        SinkSecret:    getEnv("SINK_SECRET", "cerberus_secret_example"),
        Port:          getEnv("PORT", "8080"),
        LogLevel:      getEnv("LOG_LEVEL", "info"),
        HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
        RetryAttempts: getEnvInt("RETRY_ATTEMPTS", 3),
        MergeWorkers:  getEnvInt("MERGE_WORKERS", 4),
        FailFast:      getEnvBool("FAIL_FAST", false),
        ExportDir:     getEnv("EXPORT_DIR", "."),
        RedisURL:      getEnv("REDIS_URL", ""),
        CacheTTL:      getEnvDuration("CACHE_TTL", 10*time.Minute),
    }
}

func getEnv(key, defaultValue string) string {
    if value := os.Getenv(key); value != "" {
        return value
    }
    return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
    value, err := strconv.Atoi(getEnv(key, ""))
    if err != nil {
        return defaultValue
    }
    return value
}

func getEnvBool(key string, defaultValue bool) bool {
    value, err := strconv.ParseBool(getEnv(key, ""))
    if err != nil {
        return defaultValue
    }
    return value
}

// getEnvDuration accepts Go duration strings ("30s") and plain seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
    raw := getEnv(key, "")
    if raw == "" {
        return defaultValue
    }
    if d, err := time.ParseDuration(raw); err == nil {
        return d
    }
    if secs, err := strconv.Atoi(raw); err == nil {
        return time.Duration(secs) * time.Second
    }
    return defaultValue
}
