package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool accepts 1/0, true/false, yes/no (any case).
func GetEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

// GetEnvDuration parses a time.Duration ("50ms", "3s"). A bare integer is
// read as seconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// Settings is the process configuration read from the environment.
type Settings struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	PlayersConfig   string
	PollInterval    time.Duration
	GracePeriod     time.Duration
	NetTimeout      time.Duration
	StartupTimeout  time.Duration
	MaxDialAttempts int
	UIPage          string
	QueueSize       int
	MQTTBroker      string
	MQTTTopic       string
	MQTTClientID    string
	SpoolDir        string
	// RCVerbose forces verbose RC consoles on top of the players file.
	RCVerbose bool
	// WSAllowedOrigins are cross-origin pages permitted to open /ws.
	WSAllowedOrigins []string
}

// FromEnv reads Settings from the environment, applying defaults.
func FromEnv() Settings {
	s := Settings{
		HTTPAddr:        GetEnv("HTTP_ADDR", ":8080"),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		LogFormat:       GetEnv("LOG_FORMAT", "json"),
		PlayersConfig:   GetEnv("PLAYERS_CONFIG", "players.yaml"),
		PollInterval:    GetEnvDuration("POLL_INTERVAL", 50*time.Millisecond),
		GracePeriod:     GetEnvDuration("GRACE_PERIOD", 3*time.Second),
		NetTimeout:      GetEnvDuration("NET_TIMEOUT", 3*time.Second),
		StartupTimeout:  GetEnvDuration("STARTUP_TIMEOUT", 10*time.Second),
		MaxDialAttempts: GetEnvInt("MAX_DIAL_ATTEMPTS", 2),
		UIPage:          GetEnv("UI_PAGE", "web/index.html"),
		QueueSize:       GetEnvInt("QUEUE_SIZE", 64),
		MQTTBroker:      GetEnv("MQTT_BROKER", ""),
		MQTTTopic:       GetEnv("MQTT_TOPIC", "vlcsync/commands"),
		MQTTClientID:    GetEnv("MQTT_CLIENT_ID", "vlcsync"),
		SpoolDir:        GetEnv("SPOOL_DIR", ""),
		RCVerbose:       GetEnvBool("RC_VERBOSE", false),
	}
	for _, o := range strings.Split(GetEnv("WS_ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			s.WSAllowedOrigins = append(s.WSAllowedOrigins, o)
		}
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 50 * time.Millisecond
	}
	if s.MaxDialAttempts < 1 {
		s.MaxDialAttempts = 1
	}
	if s.QueueSize < 1 {
		s.QueueSize = 1
	}
	return s
}
