package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Auth configuration
	JWTAccessSecret string
	TokenTTLHours   int

	// Lola (upstream reseller) configuration
	LolaAPIKey  string
	LolaBaseURL string

	// Cryptomus payment gateway configuration
	CryptomusAPIKey     string
	CryptomusMerchantID string
	CryptomusBaseURL    string
	CallbackRoute       string
	ReturnRoute         string

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	// Provisioning configuration
	UpstreamTimeoutSeconds int
	PurchaseLockSeconds    int

	// Proxy endpoint table override (JSON, keyed by provider id)
	ProxyEndpointsJSON string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                   getEnv("PORT", "8080"),
		Mode:                   getEnv("GIN_MODE", "debug"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		TokenTTLHours:          getEnvInt("TOKEN_TTL_HOURS", 1),
		LolaAPIKey:             getEnv("LOLA_API_KEY", ""),
		LolaBaseURL:            getEnv("LOLA_BASE_URL", "https://resell.lightningproxies.net/api"),
		CryptomusAPIKey:        getEnv("CRYPTOMUS_API_KEY", ""),
		CryptomusMerchantID:    getEnv("CRYPTOMUS_MERCHANT_ID", ""),
		CryptomusBaseURL:       getEnv("CRYPTOMUS_BASE_URL", "https://api.cryptomus.com/v1"),
		CallbackRoute:          getEnv("CRYPTOMUS_CALLBACK_ROUTE", ""),
		ReturnRoute:            getEnv("CRYPTOMUS_RETURN_ROUTE", ""),
		BrevoAPIKey:            getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:         getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:          getEnv("BREVO_FROM_NAME", "ProxyHub"),
		UpstreamTimeoutSeconds: getEnvInt("UPSTREAM_TIMEOUT_SECONDS", 15),
		PurchaseLockSeconds:    getEnvInt("PURCHASE_LOCK_SECONDS", 30),
		ProxyEndpointsJSON:     getEnv("PROXY_ENDPOINTS_JSON", ""),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
