package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the ingestion service reads from the environment.
type Config struct {
	Port    string
	GinMode string

	// Database
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Geolocation
	GeoIPDBPath string
	GeoTimeout  time.Duration

	// Attack mode defaults (per-site settings override the threshold)
	AttackThreshold int     // requests per minute before the spike check fires
	AdmissionRate   float64 // per-IP requests per second while attack mode is active
	AdmissionBurst  int

	// Session reconciliation
	SessionWindow time.Duration // how far back to look for an adoptable session
}

// Load reads configuration from the environment. A .env file is loaded
// first if present; missing keys fall back to defaults so the service
// can boot in development with nothing configured.
func Load() Config {
	// .env is optional
	_ = godotenv.Load(".env")

	return Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "release"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnv("HUSH_DB_HOST", "localhost"),
		DBPort:      getEnv("HUSH_DB_PORT", "5432"),
		DBUser:      getEnv("HUSH_DB_USER", "postgres"),
		DBPassword:  getEnv("HUSH_DB_PASSWORD", ""),
		DBName:      getEnv("HUSH_DB_NAME", "hushmetrics"),
		DBSSLMode:   getEnv("HUSH_DB_SSLMODE", "disable"),

		GeoIPDBPath: getEnv("GEOIP_DB_PATH", "GeoLite2-City.mmdb"),
		GeoTimeout:  getDuration("GEOIP_TIMEOUT", 150*time.Millisecond),

		AttackThreshold: getInt("ATTACK_MODE_THRESHOLD", 200),
		AdmissionRate:   getFloat("ATTACK_MODE_ADMISSION_RATE", 2),
		AdmissionBurst:  getInt("ATTACK_MODE_ADMISSION_BURST", 10),

		SessionWindow: getDuration("SESSION_WINDOW", 5*time.Minute),
	}
}

// ConnectionString builds the PostgreSQL connection string. DATABASE_URL
// wins when set; otherwise the discrete variables are assembled.
func (c Config) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
