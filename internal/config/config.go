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

var (
	ErrMissingBotToken    = errors.New("BOT_TOKEN environment variable is required")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseURL  string
	SnapshotPath string
	MapURL       string

	Telegram  TelegramConfig
	WhatsApp  WhatsAppConfig
	Admin     AdminConfig
	Sessions  SessionConfig
	Dispatch  DispatchConfig
	Firebase  FirebaseConfig
	Geocoding GeocodingConfig
}

type TelegramConfig struct {
	Token         string
	UseWebhook    bool
	PublicBaseURL string
	WebhookPath   string
	WebhookSecret string
	// GroupChatID is the broadcast destination; 0 disables group notifications.
	GroupChatID int64
}

type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	// AppSecret enables X-Hub-Signature-256 checks on webhook deliveries.
	AppSecret  string
	APIBaseURL string
}

// Enabled reports whether the WhatsApp transport has enough credentials to run.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

type AdminConfig struct {
	// Token is the shared admin token; empty leaves admin routes open, as before.
	Token     string
	JWTSecret string
}

type SessionConfig struct {
	// TTL of 0 keeps abandoned sessions forever.
	TTL           time.Duration
	SweepInterval time.Duration
}

type DispatchConfig struct {
	QueueSize  int
	JobTimeout time.Duration
}

type FirebaseConfig struct {
	CredentialsBase64 string
	CredentialsFile   string
	Topic             string
}

type GeocodingConfig struct {
	GoogleMapsAPIKey string
}

// Load reads .env (if present) and the process environment.
// A missing bot credential or database URL is a hard error.
func Load() (Config, error) {
	return load(true)
}

// LoadForTools is Load for maintenance commands, which never talk to Telegram.
func LoadForTools() (Config, error) {
	return load(false)
}

func load(requireBot bool) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:          getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SnapshotPath: getEnv("SNAPSHOT_FILE", "./reports.json"),
		MapURL:       os.Getenv("MAP_URL"),
		Telegram: TelegramConfig{
			Token:         getEnv("BOT_TOKEN", os.Getenv("TELEGRAM_TOKEN")),
			PublicBaseURL: strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")),
			WebhookPath:   getEnv("WEBHOOK_PATH", "/webhook/telegram"),
			WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("WHATSAPP_VERIFY_TOKEN"),
			AppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
			APIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		},
		Admin: AdminConfig{
			Token:     os.Getenv("ADMIN_TOKEN"),
			JWTSecret: getEnv("APP_JWT_SECRET", os.Getenv("ADMIN_TOKEN")),
		},
		Sessions: SessionConfig{
			SweepInterval: time.Minute,
		},
		Dispatch: DispatchConfig{
			QueueSize:  64,
			JobTimeout: 30 * time.Second,
		},
		Firebase: FirebaseConfig{
			CredentialsBase64: os.Getenv("FIREBASE_CREDENTIALS_BASE64"),
			CredentialsFile:   os.Getenv("FIREBASE_CREDENTIALS_FILE"),
			Topic:             getEnv("FCM_TOPIC", "reports"),
		},
		Geocoding: GeocodingConfig{
			GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
		},
	}

	if requireBot && cfg.Telegram.Token == "" {
		return Config{}, ErrMissingBotToken
	}
	if cfg.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}

	if v := os.Getenv("GROUP_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GROUP_CHAT_ID %q: %w", v, err)
		}
		cfg.Telegram.GroupChatID = id
	}

	var err error
	if cfg.Telegram.UseWebhook, err = getEnvBool("USE_WEBHOOK", false); err != nil {
		return Config{}, err
	}
	if cfg.Dispatch.QueueSize, err = getEnvInt("DISPATCH_QUEUE_SIZE", cfg.Dispatch.QueueSize); err != nil {
		return Config{}, err
	}
	if cfg.Sessions.TTL, err = getEnvDuration("SESSION_TTL", 0); err != nil {
		return Config{}, err
	}
	if cfg.Sessions.SweepInterval, err = getEnvDuration("SESSION_SWEEP_INTERVAL", cfg.Sessions.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.Dispatch.JobTimeout, err = getEnvDuration("DISPATCH_JOB_TIMEOUT", cfg.Dispatch.JobTimeout); err != nil {
		return Config{}, err
	}

	if cfg.Dispatch.QueueSize < 1 {
		cfg.Dispatch.QueueSize = 1
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// TelegramWebhookURL joins the public base URL and webhook path without doubling the path.
func (c Config) TelegramWebhookURL() string {
	base := strings.TrimSpace(c.Telegram.PublicBaseURL)
	if base == "" {
		return ""
	}
	path := strings.TrimSpace(c.Telegram.WebhookPath)
	if path == "" {
		path = "/webhook/telegram"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if strings.HasSuffix(base, path) {
		return base
	}
	return strings.TrimRight(base, "/") + path
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return d, nil
}
