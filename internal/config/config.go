package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ack store backends.
const (
	AckStoreFile    = "file"
	AckStoreMongoDB = "mongodb"
	AckStoreMemory  = "memory"
)

// Alert presentation modes.
const (
	PresentSingle = "single"
	PresentBatch  = "batch"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Inventory InventoryConfig
	Alerts    AlertsConfig
	AckStore  AckStoreConfig
	MongoDB   MongoDBConfig
	WhatsApp  WhatsAppConfig
	Kafka     KafkaConfig
	Sheets    SheetsConfig
	LogLevel  string
}

// ServerConfig holds HTTP server related options. CORS is enabled only when
// CORSOrigins is not empty.
type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

// InventoryConfig points at the upstream inventory REST API.
type InventoryConfig struct {
	BaseURL             string
	ItemsPath           string
	Token               string
	Timeout             time.Duration
	PollInterval        time.Duration
	DeriveMissingStatus bool
}

// AlertsConfig controls how queued alerts are presented.
type AlertsConfig struct {
	PresentationMode string
	RemoteAckSync    bool
	NotifyTimeout    time.Duration
}

// AckStoreConfig selects where acknowledged ids are persisted.
type AckStoreConfig struct {
	Backend  string
	FilePath string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// WhatsAppConfig contains credentials for the Meta WhatsApp Cloud API. Alerts
// and the periodic stock digest are pushed to Recipient when AccessToken is set.
type WhatsAppConfig struct {
	AccessToken    string
	PhoneNumberID  string
	BaseURL        string
	APIVersion     string
	Recipient      string
	DigestSchedule string
}

// Enabled reports whether WhatsApp notifications were configured.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != ""
}

// DigestEnabled reports whether the scheduled stock digest should run.
func (c WhatsAppConfig) DigestEnabled() bool {
	return c.Enabled() && c.DigestSchedule != "" && c.DigestSchedule != "off"
}

// KafkaConfig configures the alert event publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether Kafka publishing was configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// SheetsConfig contains configuration for mirroring the inventory table into
// Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	Range           string
	Schedule        string
}

// Enabled reports whether the Sheets mirror was configured.
func (c SheetsConfig) Enabled() bool {
	return c.CredentialsPath != "" && c.SpreadsheetID != ""
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	timeout, err := getDuration("INVENTORY_API_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getDuration("POLL_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := getDuration("NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	deriveMissing, err := getBool("STATUS_DERIVE_MISSING", false)
	if err != nil {
		return nil, err
	}
	remoteSync, err := getBool("REMOTE_ACK_SYNC", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getenvWithDefault("APP_PORT", "8080"),
			CORSOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Inventory: InventoryConfig{
			BaseURL:             os.Getenv("INVENTORY_API_URL"),
			ItemsPath:           getenvWithDefault("INVENTORY_ITEMS_PATH", "/api/v1/items/"),
			Token:               os.Getenv("INVENTORY_API_TOKEN"),
			Timeout:             timeout,
			PollInterval:        pollInterval,
			DeriveMissingStatus: deriveMissing,
		},
		Alerts: AlertsConfig{
			PresentationMode: strings.ToLower(getenvWithDefault("ALERT_PRESENTATION_MODE", PresentSingle)),
			RemoteAckSync:    remoteSync,
			NotifyTimeout:    notifyTimeout,
		},
		AckStore: AckStoreConfig{
			Backend:  strings.ToLower(getenvWithDefault("ACK_STORE", AckStoreFile)),
			FilePath: getenvWithDefault("ACK_FILE_PATH", "data/state.json"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "stockwatch"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:    os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:  os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:        getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:     getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			Recipient:      os.Getenv("WHATSAPP_ALERT_RECIPIENT"),
			// 08:00 every day.
			DigestSchedule: strings.TrimSpace(getenvWithDefault("STOCK_DIGEST_SCHEDULE", "0 8 * * *")),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenvWithDefault("KAFKA_ALERT_TOPIC", "stock.alerts"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			Range:           getenvWithDefault("SHEETS_MIRROR_RANGE", "Inventory!A1:F"),
			Schedule:        getenvWithDefault("SHEETS_MIRROR_SCHEDULE", "@every 5m"),
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.Inventory.BaseURL == "" {
		return errors.New("INVENTORY_API_URL must be provided")
	}
	if c.Inventory.ItemsPath == "" {
		return errors.New("INVENTORY_ITEMS_PATH must not be empty")
	}
	if c.Inventory.PollInterval < time.Second {
		return errors.New("POLL_INTERVAL must be at least 1s")
	}
	if c.Inventory.Timeout <= 0 {
		return errors.New("INVENTORY_API_TIMEOUT must be positive")
	}

	switch c.Alerts.PresentationMode {
	case PresentSingle, PresentBatch:
	default:
		return fmt.Errorf("ALERT_PRESENTATION_MODE must be %q or %q", PresentSingle, PresentBatch)
	}

	switch c.AckStore.Backend {
	case AckStoreFile:
		if c.AckStore.FilePath == "" {
			return errors.New("ACK_FILE_PATH must be provided for the file ack store")
		}
	case AckStoreMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided for the mongodb ack store")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must not be empty")
		}
	case AckStoreMemory:
	default:
		return fmt.Errorf("unsupported ACK_STORE %q", c.AckStore.Backend)
	}

	if c.WhatsApp.Enabled() {
		switch {
		case c.WhatsApp.PhoneNumberID == "":
			return errors.New("WHATSAPP_PHONE_NUMBER_ID must be provided")
		case c.WhatsApp.Recipient == "":
			return errors.New("WHATSAPP_ALERT_RECIPIENT must be provided")
		case c.WhatsApp.BaseURL == "":
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		case c.WhatsApp.APIVersion == "":
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("KAFKA_ALERT_TOPIC must not be empty")
	}

	if c.Sheets.Enabled() {
		if c.Sheets.Range == "" {
			return errors.New("SHEETS_MIRROR_RANGE must not be empty")
		}
		if c.Sheets.Schedule == "" {
			return errors.New("SHEETS_MIRROR_SCHEDULE must not be empty")
		}
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
