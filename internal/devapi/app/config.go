package app

import (
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/pmboard/pkg/httpx"
	"github.com/aussiebroadwan/pmboard/pkg/jwtx"
)

type Config struct {
	Issuer        string        // issuer claim of access tokens (default: pmboard-devapi)
	AccessTTL     time.Duration // access token lifetime (default: 15m)
	RefreshTTL    time.Duration // refresh token lifetime (default: 7d)
	RotateRefresh bool          // issue a new refresh token on every refresh (default: false)

	AdminUsername string // seeded admin account (default: admin)
	AdminPassword string // generated and logged once when empty
	Seed          bool   // load demo projects, sprints and tasks on first start (default: true)

	DatabaseFile   string // SQLite file (default: ./devapi.db)
	SigningKeyFile string // PKCS8 Ed25519 PEM; a key is generated per start when empty
	Pepper         string // appended to passwords before hashing

	AuthLimit httpx.RateLimitConfig // RATELIMIT_DEVAPI_AUTH_*
	APILimit  httpx.RateLimitConfig // RATELIMIT_DEVAPI_API_*

	Env                  string
	LogLevel             string
	LogFormat            string
	Port                 int
	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration
}

func LoadConfig() Config {
	return Config{
		Issuer:        getEnvOrDefault("DEVAPI_ISSUER", "pmboard-devapi"),
		AccessTTL:     getEnvDurationOrDefault("DEVAPI_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:    getEnvDurationOrDefault("DEVAPI_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		RotateRefresh: getEnvBoolOrDefault("DEVAPI_ROTATE_REFRESH", false),

		AdminUsername: getEnvOrDefault("DEVAPI_ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("DEVAPI_ADMIN_PASSWORD"),
		Seed:          getEnvBoolOrDefault("DEVAPI_SEED", true),

		DatabaseFile:   getEnvOrDefault("DEVAPI_DATABASE_FILE", "devapi.db"),
		SigningKeyFile: os.Getenv("DEVAPI_SIGNING_KEY_FILE"),
		Pepper:         os.Getenv("DEVAPI_PEPPER"),

		AuthLimit: httpx.ParseRateLimitFromEnv("DEVAPI_AUTH", httpx.AuthLimit),
		APILimit:  httpx.ParseRateLimitFromEnv("DEVAPI_API", httpx.APILimit),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("DEVAPI_PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if intValue, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s", "1h") or plain
// integer minutes.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return defaultValue
}
