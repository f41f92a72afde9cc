package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Gateway   GatewayConfig
	Reconnect ReconnectConfig
	Exchange  ExchangeConfig
	Store     StoreConfig
	Events    EventsConfig
	Dev       DevConfig
}

type AppConfig struct {
	Environment     string
	LogFilePath     string `validate:"required"`
	WireLogFilePath string `validate:"required"`
}

type GatewayConfig struct {
	WebSocketURL string `validate:"required,url"`
	APIBaseURL   string `validate:"required,url"`
	UserID       string
	Username     string
	Token        string
	HistoryLimit int `validate:"min=1,max=200"`
}

type ReconnectConfig struct {
	BaseDelay        time.Duration `validate:"gt=0"`
	MaxDelay         time.Duration `validate:"gtefield=BaseDelay"`
	MaxAttempts      int           `validate:"min=0"`
	HandshakeTimeout time.Duration `validate:"gt=0"`
}

type ExchangeConfig struct {
	Timeout time.Duration `validate:"gt=0"`
}

type StoreConfig struct {
	Driver   string `validate:"oneof=file redis memory"`
	FilePath string
	RedisURL string
	Key      string `validate:"required"`
}

type EventsConfig struct {
	Topic   string `validate:"required"`
	NatsURL string // empty disables forwarding
}

// DevConfig configures the local development gateway only.
type DevConfig struct {
	Port      string
	JWTSecret string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Environment:     getEnv("GO_ENV", "development"),
			LogFilePath:     getEnv("LOG_FILE_PATH", "logs/client.log"),
			WireLogFilePath: getEnv("WIRE_LOG_FILE_PATH", "logs/wire.log"),
		},
		Gateway: GatewayConfig{
			WebSocketURL: getEnv("WS_URL", "ws://localhost:8000/ws"),
			APIBaseURL:   getEnv("API_BASE_URL", "http://localhost:8000"),
			UserID:       getEnv("CHAT_USER_ID", ""),
			Username:     getEnv("CHAT_USERNAME", ""),
			Token:        getEnv("CHAT_TOKEN", ""),
			HistoryLimit: getEnvAsInt("HISTORY_LIMIT", 50),
		},
		Reconnect: ReconnectConfig{
			BaseDelay:        getEnvAsDuration("RECONNECT_BASE_DELAY", time.Second),
			MaxDelay:         getEnvAsDuration("RECONNECT_MAX_DELAY", 30*time.Second),
			MaxAttempts:      getEnvAsInt("RECONNECT_MAX_ATTEMPTS", 5),
			HandshakeTimeout: getEnvAsDuration("HANDSHAKE_TIMEOUT", 10*time.Second),
		},
		Exchange: ExchangeConfig{
			Timeout: getEnvAsDuration("EXCHANGE_TIMEOUT", 30*time.Second),
		},
		Store: StoreConfig{
			Driver:   getEnv("SESSION_STORE", "file"),
			FilePath: getEnv("SESSION_FILE", ".chat_session.json"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
			Key:      getEnv("SESSION_KEY", "current_conversation_id"),
		},
		Events: EventsConfig{
			Topic:   getEnv("EVENTS_TOPIC", "chat_session_events"),
			NatsURL: getEnv("NATS_URL", ""),
		},
		Dev: DevConfig{
			Port:      getEnv("DEV_PORT", "8000"),
			JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
		},
	}
}

// Validate checks the loaded values before anything is wired from them.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
