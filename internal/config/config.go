package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource    string
	Port        string
	Env         string
	AutoMigrate bool

	AuthJWTSecret string

	ProviderBaseURL   string
	ProviderSecretKey string
	ProviderNetwork   string
	// AllowSimulatedFallback lets the relay endpoints answer with placeholder
	// addresses and hashes when the provider is down.
	AllowSimulatedFallback bool

	StarknetRPCURL  string
	WalletBridgeURL string
	TokenAddress    string
	TokenDecimals   int32

	CheckoutProcessor     string
	CheckoutBaseURL       string
	CheckoutPublicKey     string
	CheckoutWebhookSecret string

	HTTPClientTimeout time.Duration
}

// Load reads configuration from the environment, after loading a .env file
// if one is present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on process environment")
	}

	cfg := &Config{
		DBSource:              os.Getenv("DB_SOURCE"),
		Port:                  getEnv("SERVER_PORT", "8787"),
		Env:                   getEnv("ENVIRONMENT", "development"),
		AuthJWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
		ProviderBaseURL:       getEnv("PROVIDER_BASE_URL", "https://api.chipipay.com"),
		ProviderSecretKey:     os.Getenv("PROVIDER_SECRET_KEY"),
		ProviderNetwork:       getEnv("PROVIDER_NETWORK", "sepolia"),
		StarknetRPCURL:        os.Getenv("STARKNET_RPC_URL"),
		WalletBridgeURL:       os.Getenv("WALLET_BRIDGE_URL"),
		TokenAddress:          getEnv("TOKEN_ADDRESS", "0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d"),
		CheckoutProcessor:     getEnv("CHECKOUT_PROCESSOR", "chipay"),
		CheckoutBaseURL:       getEnv("CHECKOUT_BASE_URL", "https://pay.chipipay.com/checkout"),
		CheckoutPublicKey:     os.Getenv("CHECKOUT_PUBLIC_KEY"),
		CheckoutWebhookSecret: os.Getenv("CHECKOUT_WEBHOOK_SECRET"),
	}

	for _, req := range []struct{ key, value string }{
		{"DB_SOURCE", cfg.DBSource},
		{"AUTH_JWT_SECRET", cfg.AuthJWTSecret},
		{"CHECKOUT_WEBHOOK_SECRET", cfg.CheckoutWebhookSecret},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("%s environment variable is required", req.key)
		}
	}

	var err error
	if cfg.AutoMigrate, err = getBool("AUTO_MIGRATE", false); err != nil {
		return nil, err
	}
	if cfg.AllowSimulatedFallback, err = getBool("ALLOW_SIMULATED_FALLBACK", false); err != nil {
		return nil, err
	}

	decimals, err := strconv.ParseInt(getEnv("TOKEN_DECIMALS", "18"), 10, 32)
	if err != nil || decimals < 0 || decimals > 77 {
		return nil, fmt.Errorf("TOKEN_DECIMALS must be an integer between 0 and 77")
	}
	cfg.TokenDecimals = int32(decimals)

	if cfg.HTTPClientTimeout, err = time.ParseDuration(getEnv("HTTP_CLIENT_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("invalid HTTP_CLIENT_TIMEOUT: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
