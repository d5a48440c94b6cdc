package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadOnce sync.Once

// Config returns the value of an environment variable, loading .env on first use.
func Config(key string) string {
	loadOnce.Do(func() {
		if err := godotenv.Load(); err != nil {
			slog.Info("no .env file found, using process environment")
		}
	})
	return os.Getenv(key)
}

func getEnv(key, def string) string {
	if v := Config(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if raw := Config(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if raw := Config(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

// Paymob holds the gateway credentials and protocol settings.
type Paymob struct {
	BaseURL       string
	APIKey        string
	HMACKey       string
	IntegrationID int
	IframeID      string
	Currency      string
	HMACScheme    string
	KeyExpiration int
	Timeout       time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
}

// String never prints the secrets.
func (p Paymob) String() string {
	return fmt.Sprintf("Paymob{BaseURL:%s IntegrationID:%d IframeID:%s Currency:%s HMACScheme:%s Timeout:%s}",
		p.BaseURL, p.IntegrationID, p.IframeID, p.Currency, p.HMACScheme, p.Timeout)
}

func LoadPaymob() Paymob {
	return Paymob{
		BaseURL:       getEnv("PAYMOB_BASE_URL", "https://accept.paymob.com/api"),
		APIKey:        Config("PAYMOB_API_KEY"),
		HMACKey:       Config("PAYMOB_HMAC_KEY"),
		IntegrationID: parseInt("PAYMOB_INTEGRATION_ID", 0),
		IframeID:      Config("PAYMOB_IFRAME_ID"),
		Currency:      getEnv("PAYMOB_CURRENCY", "EGP"),
		HMACScheme:    getEnv("PAYMOB_HMAC_SCHEME", "transaction-v1"),
		KeyExpiration: parseInt("PAYMOB_KEY_EXPIRATION", 3600),
		Timeout:       parseDuration("PAYMOB_TIMEOUT", 10*time.Second),
		MaxAttempts:   parseInt("PAYMOB_MAX_ATTEMPTS", 3),
		RetryBackoff:  parseDuration("PAYMOB_RETRY_BACKOFF", 300*time.Millisecond),
	}
}

// App holds the process-level settings.
type App struct {
	Port              string
	FrontendURL       string
	JWTSecret         string
	RedisAddr         string
	StaleSessionAfter time.Duration
	StaleScanEvery    time.Duration
	Seed              bool
}

func LoadApp() App {
	return App{
		Port:              getEnv("APP_PORT", "8002"),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:5173"),
		JWTSecret:         Config("JWT_SECRET"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		StaleSessionAfter: parseDuration("STALE_SESSION_AFTER", 2*time.Hour),
		StaleScanEvery:    parseDuration("STALE_SCAN_INTERVAL", 10*time.Minute),
		Seed:              Config("DB_SEED") == "true",
	}
}

// SMTP is consumed by the receipt mailer.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func LoadSMTP() SMTP {
	return SMTP{
		Host:     Config("SMTP_HOST"),
		Port:     parseInt("SMTP_PORT", 587),
		Username: Config("SMTP_USERNAME"),
		Password: Config("SMTP_PASSWORD"),
		From:     Config("SMTP_FROM"),
	}
}
