package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBase            string
	RealtimeURL        string
	HTTPTimeout        time.Duration
	SessionBackend     string
	SessionDir         string
	SessionSecret      string
	DeviceID           string
	DatabaseURL        string
	LogLevel           string
	LogFormat          string
	NotifyProvider     string
	NotifyWebhook      string
	NotifyToken        string
	PaymentDelay       time.Duration
	ResendCooldown     time.Duration
	ReconnectMax       time.Duration
	SandboxPort        string
	RateLimitPerMinute int
	RateLimitBurst     int
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory.
func Load() Config {
	_ = godotenv.Load()

	apiBase := os.Getenv("PATIENT_API_BASE")
	if apiBase == "" {
		apiBase = "http://localhost:8090"
	}
	sessionDir := os.Getenv("PATIENT_SESSION_DIR")
	if sessionDir == "" {
		if home, err := os.UserConfigDir(); err == nil {
			sessionDir = home + string(os.PathSeparator) + "qms-patient"
		} else {
			sessionDir = ".qms-patient"
		}
	}
	backend := os.Getenv("PATIENT_SESSION_BACKEND")
	if backend == "" {
		backend = "file"
	}
	port := os.Getenv("SANDBOX_PORT")
	if port == "" {
		port = "8090"
	}

	return Config{
		APIBase:            apiBase,
		RealtimeURL:        os.Getenv("PATIENT_REALTIME_URL"),
		HTTPTimeout:        readDurationSeconds("PATIENT_HTTP_TIMEOUT_SECONDS", 15),
		SessionBackend:     backend,
		SessionDir:         sessionDir,
		SessionSecret:      os.Getenv("PATIENT_SESSION_SECRET"),
		DeviceID:           os.Getenv("PATIENT_DEVICE_ID"),
		DatabaseURL:        os.Getenv("DB_DSN"),
		LogLevel:           readString("PATIENT_LOG_LEVEL", "info"),
		LogFormat:          readString("PATIENT_LOG_FORMAT", "text"),
		NotifyProvider:     readString("PATIENT_NOTIFY_PROVIDER", "stdout"),
		NotifyWebhook:      os.Getenv("PATIENT_NOTIFY_WEBHOOK_URL"),
		NotifyToken:        os.Getenv("PATIENT_NOTIFY_WEBHOOK_TOKEN"),
		PaymentDelay:       readDurationMillis("PATIENT_PAYMENT_DELAY_MS", 1500),
		ResendCooldown:     readDurationSeconds("PATIENT_RESEND_COOLDOWN_SECONDS", 60),
		ReconnectMax:       readDurationSeconds("PATIENT_RECONNECT_MAX_SECONDS", 30),
		SandboxPort:        port,
		RateLimitPerMinute: readInt("SANDBOX_RATE_LIMIT_PER_MIN", 600),
		RateLimitBurst:     readInt("SANDBOX_RATE_LIMIT_BURST", 120),
	}
}

func readString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
