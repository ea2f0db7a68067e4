package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string

	RedisURL string
	NATSURL  string

	// Firebase Cloud Messaging. Either the inline service account fields or a
	// credentials file; both empty disables FCM.
	FirebaseProjectID       string
	FirebaseClientEmail     string
	FirebasePrivateKey      string
	FirebaseCredentialsFile string

	// Apple Push Notification service (token based auth).
	APNsAuthKeyPath string
	APNsKeyID       string
	APNsTeamID      string
	APNsTopic       string
	APNsProduction  bool

	ExpoPushEnabled bool

	Push PushConfig

	WorkerCount int
}

// PushConfig holds the fan-out and presentation settings.
type PushConfig struct {
	SendTimeout      time.Duration // per provider call
	MaxConcurrency   int           // upper bound of parallel sends per dispatch
	FinalizeAttempts int           // store attempts for the terminal status update

	WebIcon  string
	WebBadge string
	WebTag   string
}

// DefaultPushConfig returns sensible defaults.
func DefaultPushConfig() PushConfig {
	return PushConfig{
		SendTimeout:      5 * time.Second,
		MaxConcurrency:   8,
		FinalizeAttempts: 3,
		WebIcon:          "/icon-192x192.png",
		WebBadge:         "/badge-72x72.png",
		WebTag:           "user-notification",
	}
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	push := DefaultPushConfig()
	push.SendTimeout = durationEnv("PUSH_SEND_TIMEOUT", push.SendTimeout)
	push.MaxConcurrency = intEnv("PUSH_MAX_CONCURRENCY", push.MaxConcurrency)
	push.FinalizeAttempts = intEnv("FINALIZE_ATTEMPTS", push.FinalizeAttempts)
	push.WebIcon = stringEnv("PUSH_WEB_ICON", push.WebIcon)
	push.WebBadge = stringEnv("PUSH_WEB_BADGE", push.WebBadge)
	push.WebTag = stringEnv("PUSH_WEB_TAG", push.WebTag)

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  stringEnv("DB_SSLMODE", "require"),

		ServerPort: stringEnv("SERVER_PORT", "8080"),

		RedisURL: stringEnv("REDIS_URL", "redis://localhost:6379"),
		NATSURL:  os.Getenv("NATS_URL"),

		FirebaseProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseClientEmail:     os.Getenv("FIREBASE_CLIENT_EMAIL"),
		FirebasePrivateKey:      os.Getenv("FIREBASE_PRIVATE_KEY"),
		FirebaseCredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),

		APNsAuthKeyPath: os.Getenv("APNS_AUTH_KEY_PATH"),
		APNsKeyID:       os.Getenv("APNS_KEY_ID"),
		APNsTeamID:      os.Getenv("APNS_TEAM_ID"),
		APNsTopic:       os.Getenv("APNS_TOPIC"),
		APNsProduction:  os.Getenv("APNS_MODE") == "production",

		ExpoPushEnabled: boolEnv("EXPO_PUSH_ENABLED", false),

		Push: push,

		WorkerCount: intEnv("WORKER_COUNT", 2),
	}, nil
}

// FCMConfigured reports whether any Firebase credentials were supplied.
func (c *Config) FCMConfigured() bool {
	return c.FirebaseCredentialsFile != "" ||
		(c.FirebaseProjectID != "" && c.FirebaseClientEmail != "" && c.FirebasePrivateKey != "")
}

// APNsConfigured reports whether the APNs token credentials are complete.
// A key path starting with '#' is treated as commented out.
func (c *Config) APNsConfigured() bool {
	return len(c.APNsMissing()) == 0
}

// APNsMissing lists the APNs settings that are still empty.
func (c *Config) APNsMissing() []string {
	keyPath := c.APNsAuthKeyPath
	if strings.HasPrefix(keyPath, "#") {
		keyPath = ""
	}
	fields := []struct{ key, value string }{
		{"APNS_AUTH_KEY_PATH", keyPath},
		{"APNS_KEY_ID", c.APNsKeyID},
		{"APNS_TEAM_ID", c.APNsTeamID},
		{"APNS_TOPIC", c.APNsTopic},
	}

	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.key)
		}
	}
	return missing
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func boolEnv(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
