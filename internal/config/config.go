package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Emergency EmergencyConfig
	Voice     VoiceConfig
	Reminders ReminderConfig
	History   HistoryConfig
	User      UserConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

type EmergencyConfig struct {
	VerificationTimeout time.Duration
	EscalationTimeout   time.Duration
	ResolveRevertDelay  time.Duration
	InactivityTimeout   time.Duration
}

type VoiceConfig struct {
	Keywords        []string
	SpeechMinLength int
}

type ReminderConfig struct {
	PollInterval time.Duration
}

type HistoryConfig struct {
	DBPath     string
	BufferSize int
}

type UserConfig struct {
	ID        string
	Latitude  float64
	Longitude float64
	Address   string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 20),
		},
		Emergency: EmergencyConfig{
			VerificationTimeout: getEnvDuration("VERIFICATION_TIMEOUT", 30*time.Second),
			EscalationTimeout:   getEnvDuration("ESCALATION_TIMEOUT", 120*time.Second),
			ResolveRevertDelay:  getEnvDuration("RESOLVE_REVERT_DELAY", 3*time.Second),
			InactivityTimeout:   getEnvDuration("INACTIVITY_TIMEOUT", 15*time.Minute),
		},
		Voice: VoiceConfig{
			Keywords:        getEnvList("EMERGENCY_KEYWORDS", nil),
			SpeechMinLength: getEnvInt("SPEECH_MIN_LENGTH", 10),
		},
		Reminders: ReminderConfig{
			PollInterval: getEnvDuration("REMINDER_POLL_INTERVAL", 30*time.Second),
		},
		History: HistoryConfig{
			DBPath:     getEnv("HISTORY_DB_PATH", ":memory:"),
			BufferSize: getEnvInt("HISTORY_BUFFER_SIZE", 64),
		},
		User: UserConfig{
			ID:        getEnv("USER_ID", "user-1"),
			Latitude:  getEnvFloat("LOCATION_LAT", 0),
			Longitude: getEnvFloat("LOCATION_LON", 0),
			Address:   getEnv("LOCATION_ADDRESS", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 rps")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Emergency.VerificationTimeout < time.Second {
		return fmt.Errorf("verification timeout must be at least 1 second")
	}
	if c.Emergency.EscalationTimeout < time.Second {
		return fmt.Errorf("escalation timeout must be at least 1 second")
	}
	if c.Emergency.ResolveRevertDelay <= 0 {
		return fmt.Errorf("resolve revert delay must be positive")
	}
	if c.Emergency.InactivityTimeout < 0 {
		return fmt.Errorf("inactivity timeout must not be negative")
	}

	if c.Voice.SpeechMinLength < 1 {
		return fmt.Errorf("invalid speech min length: %d", c.Voice.SpeechMinLength)
	}
	if c.Reminders.PollInterval < time.Second {
		return fmt.Errorf("reminder poll interval must be at least 1 second")
	}
	if c.History.BufferSize < 1 {
		return fmt.Errorf("history buffer size must be at least 1")
	}

	if c.User.Latitude < -90 || c.User.Latitude > 90 {
		return fmt.Errorf("invalid latitude: %v", c.User.Latitude)
	}
	if c.User.Longitude < -180 || c.User.Longitude > 180 {
		return fmt.Errorf("invalid longitude: %v", c.User.Longitude)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
