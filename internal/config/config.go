package config

import (
	"os"
	"strconv"
)

// DatabaseConfig holds PostgreSQL database connection settings for the deployment registry.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// AuthConfig controls sessions and WebSocket token checks of the runtime gateway.
type AuthConfig struct {
	Required       bool
	SessionDBPath  string
	SessionTTLMin  int
	CookieName     string
	CookieSecure   bool
	WSRequireToken bool
	WSAuthTimeout  int
}

// RestCallConfig controls the outbound REST proxy.
type RestCallConfig struct {
	TimeoutSec    int
	AllowUnlisted bool
	MaxBodyBytes  int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string
	Port        string
	RuntimeDir  string
	APIKey      string
	PublicHost  string
	Timezone    string
	ServiceName string
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Auth        AuthConfig
	RestCall    RestCallConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:     getEnv("APP_HOST", "localhost:8080"),
		Port:        getEnv("PORT", "8080"),
		RuntimeDir:  getEnv("RUNTIME_CONFIG_DIR", "."),
		APIKey:      getEnv("API_KEY", ""),
		PublicHost:  getEnv("PUBLIC_HOST", "localhost"),
		Timezone:    getEnv("TZ", "UTC"),
		ServiceName: getEnv("OTEL_SERVICE_NAME", "webdsl"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			Region:    getEnv("MINIO_REGION", "us-east-1"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Auth: AuthConfig{
			Required:       getEnvBool("AUTH_REQUIRED", false),
			SessionDBPath:  getEnv("SESSION_DB_PATH", "sessions.db"),
			SessionTTLMin:  getEnvInt("SESSION_TTL_MIN", 720),
			CookieName:     getEnv("SESSION_COOKIE_NAME", "webdsl_session"),
			CookieSecure:   getEnvBool("SESSION_COOKIE_SECURE", false),
			WSRequireToken: getEnvBool("WS_REQUIRE_TOKEN", true),
			WSAuthTimeout:  getEnvInt("WS_AUTH_TIMEOUT_SEC", 5),
		},
		RestCall: RestCallConfig{
			TimeoutSec:    getEnvInt("RESTCALL_TIMEOUT_SEC", 30),
			AllowUnlisted: getEnvBool("RESTCALL_ALLOW_UNLISTED", false),
			MaxBodyBytes:  getEnvInt("RESTCALL_MAX_BODY_BYTES", 10<<20),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
