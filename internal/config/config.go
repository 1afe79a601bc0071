package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type ServerConfig struct {
	Port         string
	Env          string
	AllowOrigins string
	// Rate limit per IP per minute on the public API
	RateLimit int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
}

type StripeConfig struct {
	SecretKey       string
	WebhookSecret   string
	AlbumPriceCents int64
	Currency        string
	SuccessURL      string
	CancelURL       string
}

type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string
	FromName     string
	FrontendURL  string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type RedisConfig struct {
	URL     string
	Channel string
}

type HubConfig struct {
	Addr string
}

// BootstrapConfig provisions one event on startup when Slug is set.
type BootstrapConfig struct {
	Slug            string
	Title           string
	StaffPIN        string
	RegistrationURL string
	MaxPhotos       int
}

// StationConfig is shared by the console and big-screen binaries.
type StationConfig struct {
	StoreURL     string
	PushURL      string
	EventID      uint
	HTTPAddr     string
	KVPath       string
	PollInterval time.Duration
}

type ConsoleConfig struct {
	StationConfig
	StaffPIN    string
	DedupWindow time.Duration
}

type BigScreenConfig struct {
	StationConfig
	QRSize int
}

// VisitorConfig is the local API of a photo or viewer station.
type VisitorConfig struct {
	StationConfig
	StationType string
	StationID   string
	// Gallery stations lock unpaid albums even when free preview is on
	Gallery bool
}

type Config struct {
	Server      ServerConfig
	DatabaseURL string
	R2          R2Config
	Stripe      StripeConfig
	Email       EmailConfig
	JWT         JWTConfig
	Redis       RedisConfig
	Hub         HubConfig
	Bootstrap   BootstrapConfig
	Console     ConsoleConfig
	BigScreen   BigScreenConfig
	Station     VisitorConfig
}

// LoadConfig reads the environment. Call godotenv.Load first to pick up a
// .env file.
func LoadConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnv("PORT", "8080")
	cfg.Server.Env = getEnv("APP_ENV", "development")
	cfg.Server.AllowOrigins = getEnv("ALLOW_ORIGINS", "http://localhost:5173")
	cfg.Server.RateLimit = getEnvInt("RATE_LIMIT", 120)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// R2 config
	cfg.R2.AccountID = os.Getenv("R2_ACCOUNT_ID")
	cfg.R2.AccessKeyID = os.Getenv("R2_ACCESS_KEY_ID")
	cfg.R2.SecretAccessKey = os.Getenv("R2_SECRET_ACCESS_KEY")
	cfg.R2.Bucket = os.Getenv("R2_BUCKET")
	cfg.R2.PublicURL = os.Getenv("R2_PUBLIC_URL")

	cfg.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Stripe.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.Stripe.AlbumPriceCents = int64(getEnvInt("ALBUM_PRICE_CENTS", 1500))
	cfg.Stripe.Currency = strings.ToLower(getEnv("ALBUM_CURRENCY", "usd"))
	cfg.Stripe.SuccessURL = getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:5173/album/{ALBUM_CODE}?paid=1")
	cfg.Stripe.CancelURL = getEnv("CHECKOUT_CANCEL_URL", "http://localhost:5173/album/{ALBUM_CODE}")

	cfg.Email.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.Email.FromAddress = os.Getenv("EMAIL_FROM_ADDRESS")
	cfg.Email.FromName = getEnv("EMAIL_FROM_NAME", "OurPhotos")
	cfg.Email.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:5173")

	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 12*time.Hour)

	cfg.Redis.URL = os.Getenv("REDIS_URL")
	cfg.Redis.Channel = getEnv("BROADCAST_CHANNEL", "kiosk-notifications")

	cfg.Hub.Addr = getEnv("HUB_ADDR", ":8081")

	cfg.Bootstrap.Slug = os.Getenv("BOOTSTRAP_EVENT_SLUG")
	cfg.Bootstrap.Title = getEnv("BOOTSTRAP_EVENT_TITLE", cfg.Bootstrap.Slug)
	cfg.Bootstrap.StaffPIN = os.Getenv("BOOTSTRAP_STAFF_PIN")
	cfg.Bootstrap.RegistrationURL = os.Getenv("BOOTSTRAP_REGISTRATION_URL")
	cfg.Bootstrap.MaxPhotos = getEnvInt("BOOTSTRAP_MAX_PHOTOS", 5)

	cfg.Console.StationConfig = loadStation("CONSOLE", ":8090", "console.db")
	cfg.Console.StaffPIN = os.Getenv("CONSOLE_STAFF_PIN")
	cfg.Console.DedupWindow = getEnvDuration("CONSOLE_DEDUP_WINDOW", 30*time.Second)

	cfg.BigScreen.StationConfig = loadStation("BIGSCREEN", ":8091", "bigscreen.db")
	cfg.BigScreen.QRSize = getEnvInt("BIGSCREEN_QR_SIZE", 320)

	cfg.Station.StationConfig = loadStation("STATION", ":8092", "station.db")
	cfg.Station.StationType = getEnv("STATION_TYPE", "photobooth")
	cfg.Station.StationID = os.Getenv("STATION_ID")
	cfg.Station.Gallery = getEnvBool("STATION_GALLERY", false)

	return cfg
}

func loadStation(prefix, addr, kvPath string) StationConfig {
	return StationConfig{
		StoreURL:     getEnv(prefix+"_STORE_URL", getEnv("STORE_URL", "http://localhost:8080")),
		PushURL:      getEnv(prefix+"_PUSH_URL", getEnv("PUSH_URL", "ws://localhost:8081")),
		EventID:      uint(getEnvInt(prefix+"_EVENT_ID", getEnvInt("EVENT_ID", 0))),
		HTTPAddr:     getEnv(prefix+"_HTTP_ADDR", addr),
		KVPath:       getEnv(prefix+"_KV_PATH", kvPath),
		PollInterval: getEnvDuration(prefix+"_POLL_INTERVAL", 5*time.Second),
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
