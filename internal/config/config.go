// Package config содержит логику чтения конфигурации сервиса numbermarket.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса numbermarket.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	RentalAPIAddress   string `env:"RENTAL_API_ADDRESS"`
	RentalAPIKey       string `env:"RENTAL_API_KEY"`
	PaymentAPIAddress  string `env:"PAYMENT_API_ADDRESS"`
	PaymentAccessToken string `env:"PAYMENT_ACCESS_TOKEN"`
	BridgeSecret       string `env:"BRIDGE_SECRET"`
	NotifyWebhookURL   string `env:"NOTIFY_WEBHOOK_URL"`
	CatalogFile        string `env:"CATALOG_FILE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRentalAddress := cfg.RentalAPIAddress
	envRentalKey := cfg.RentalAPIKey
	envPaymentAddress := cfg.PaymentAPIAddress
	envPaymentToken := cfg.PaymentAccessToken
	envBridgeSecret := cfg.BridgeSecret
	envNotifyWebhook := cfg.NotifyWebhookURL
	envCatalogFile := cfg.CatalogFile

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (empty enables in-memory stores)")
	flag.StringVar(&cfg.RentalAPIAddress, "r", "", "SMS rental provider address")
	flag.StringVar(&cfg.RentalAPIKey, "k", "", "SMS rental provider API key")
	flag.StringVar(&cfg.PaymentAPIAddress, "p", "", "payment gateway address")
	flag.StringVar(&cfg.PaymentAccessToken, "t", "", "payment gateway access token")
	flag.StringVar(&cfg.BridgeSecret, "s", "", "shared secret for the messaging bridge")
	flag.StringVar(&cfg.NotifyWebhookURL, "w", "", "webhook URL for asynchronous notifications")
	flag.StringVar(&cfg.CatalogFile, "c", "services.json", "path to the product catalog file")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRentalAddress != "" {
		cfg.RentalAPIAddress = envRentalAddress
	}
	if envRentalKey != "" {
		cfg.RentalAPIKey = envRentalKey
	}
	if envPaymentAddress != "" {
		cfg.PaymentAPIAddress = envPaymentAddress
	}
	if envPaymentToken != "" {
		cfg.PaymentAccessToken = envPaymentToken
	}
	if envBridgeSecret != "" {
		cfg.BridgeSecret = envBridgeSecret
	}
	if envNotifyWebhook != "" {
		cfg.NotifyWebhookURL = envNotifyWebhook
	}
	if envCatalogFile != "" {
		cfg.CatalogFile = envCatalogFile
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
