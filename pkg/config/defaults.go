// Package config provides centralized default values for the DDAP admin console
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

// getEnvSecret is getEnvString without echoing the value.
func getEnvSecret(key string) string {
	val := os.Getenv(key)
	if val != "" {
		log.Printf("Config override: %s=<redacted>", key)
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	log.Printf("Config override: %s=%v", key, out)
	return out
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	CORSAllowedOrigins []string
	MetricsEnabled     bool

	// DAM Configuration
	DefaultRealm      string
	DamRegistryPath   string
	DamRequestTimeout time.Duration
	DamRetryBackoffs  []time.Duration

	// Realm Cache Configuration
	MaxRealms               int
	RealmIdleTimeout        time.Duration
	RealmCleanupInterval    time.Duration
	RealmCleanupVerbose     bool
	StatusBroadcastInterval time.Duration

	// SSE Configuration
	SSEHeartbeatIntervalSeconds int

	// Logging
	LogLevel     string
	LogJSON      bool
	LogDirectory string
	LogToFile    bool

	// Auth
	AdminPasswordHash string
	JWTSecret         string
	JWTTTL            time.Duration

	// Alert Email
	ResendAPIKey       string
	AlertEmailTo       []string
	AlertEmailFrom     string
	AlertEmailInterval time.Duration
	ConsoleURL         string

	// Fake DAM
	FakeDamPort      string
	FakeDamDBPath    string
	TursoDatabaseURL string
	TursoAuthToken   string

	// Database Pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
)

func init() {
	Load()
}

// Load (re)reads every setting from the environment. It runs once at init;
// tests call it again after changing the environment.
func Load() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8085")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200"})
	MetricsEnabled = getEnvBool("METRICS_ENABLED", true)

	// DAM Configuration
	DefaultRealm = getEnvString("DDAP_DEFAULT_REALM", "master")
	DamRegistryPath = getEnvString("DDAP_DAM_REGISTRY", "config/dams.yaml")
	DamRequestTimeout = getEnvDuration("DAM_REQUEST_TIMEOUT", 20*time.Second)
	DamRetryBackoffs = []time.Duration{
		getEnvDuration("DAM_RETRY_FIRST_BACKOFF", 200*time.Millisecond),
		getEnvDuration("DAM_RETRY_SECOND_BACKOFF", time.Second),
	}

	// Realm Cache Configuration
	MaxRealms = getEnvInt("MAX_REALMS", 50)
	RealmIdleTimeout = time.Duration(getEnvInt("REALM_IDLE_TIMEOUT_MINUTES", 120)) * time.Minute
	RealmCleanupInterval = time.Duration(getEnvInt("REALM_CLEANUP_INTERVAL_MINUTES", 10)) * time.Minute
	RealmCleanupVerbose = getEnvBool("REALM_CLEANUP_VERBOSE", false)
	StatusBroadcastInterval = getEnvDuration("STATUS_BROADCAST_INTERVAL", 5*time.Second)

	// SSE Configuration
	SSEHeartbeatIntervalSeconds = getEnvInt("SSE_HEARTBEAT_INTERVAL_SECONDS", 30)

	// Logging
	LogLevel = getEnvString("LOG_LEVEL", "INFO")
	LogJSON = getEnvBool("LOG_JSON", false)
	LogDirectory = getEnvString("LOG_DIRECTORY", "log")
	LogToFile = getEnvBool("LOG_TO_FILE", false)

	// Auth
	AdminPasswordHash = getEnvSecret("ADMIN_PASSWORD_HASH")
	JWTSecret = getEnvSecret("JWT_SECRET")
	JWTTTL = getEnvDuration("JWT_TTL", 12*time.Hour)

	// Alert Email
	ResendAPIKey = getEnvSecret("RESEND_API_KEY")
	AlertEmailTo = getEnvList("ALERT_EMAIL_TO", nil)
	AlertEmailFrom = getEnvString("ALERT_EMAIL_FROM", "noreply@ddap.local")
	AlertEmailInterval = getEnvDuration("ALERT_EMAIL_INTERVAL", 30*time.Minute)
	ConsoleURL = getEnvString("DDAP_CONSOLE_URL", "")

	// Fake DAM
	FakeDamPort = getEnvString("FAKEDAM_PORT", "8081")
	FakeDamDBPath = getEnvString("FAKEDAM_DB_PATH", "fakedam.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvSecret("TURSO_AUTH_TOKEN")

	// Database Pool
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
}
