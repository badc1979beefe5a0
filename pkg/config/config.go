package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPPort int
	GRPCPort int

	MySQLDSN  string
	RedisAddr string
	CartTTL   time.Duration

	CheckoutAPIURL    string
	CheckoutSecretKey string
	PublicBaseURL     string

	Currency              string
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal

	SendGridAPIKey string
	MailFrom       string

	WorkerCount int
	QueueSize   int
}

// Load reads the process environment, seeded from a .env file when present.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the process environment only.
func FromEnv() Config {
	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnvInt("HTTP_PORT", 8080),
		GRPCPort: getEnvInt("GRPC_PORT", 50051),

		MySQLDSN:  getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true"),
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		CartTTL:   getEnvDuration("CART_TTL", 30*24*time.Hour),

		CheckoutAPIURL:    getEnv("CHECKOUT_API_URL", "http://localhost:12111"),
		CheckoutSecretKey: getEnv("CHECKOUT_SECRET_KEY", ""),
		PublicBaseURL:     getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		Currency:              getEnv("CURRENCY", "usd"),
		FreeShippingThreshold: getEnvDecimal("FREE_SHIPPING_THRESHOLD", decimal.RequireFromString("50.00")),
		ShippingFee:           getEnvDecimal("SHIPPING_FEE", decimal.RequireFromString("4.99")),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		MailFrom:       getEnv("MAIL_FROM", "orders@localhost"),

		WorkerCount: getEnvPositiveInt("WORKER_COUNT", 4),
		QueueSize:   getEnvPositiveInt("QUEUE_SIZE", 1000),
	}
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvPositiveInt(key string, def int) int {
	if n := getEnvInt(key, def); n > 0 {
		return n
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return def
	}
	return d
}
