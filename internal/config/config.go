package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9090"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Auth      Auth      `envPrefix:"JWT_"`
	Payment   Payment   `envPrefix:"PAYMENT_"`
	Download  Download  `envPrefix:"DOWNLOAD_"`
	Braintree Braintree `envPrefix:"BRAINTREE_"`
	SES       SES       `envPrefix:"SES_"`
}

type Auth struct {
	Secret string        `env:"SECRET,required,notEmpty"`
	Issuer string        `env:"ISSUER" envDefault:"marketplace"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
}

type Payment struct {
	SuccessRate float64 `env:"SUCCESS_RATE" envDefault:"0.95"`
}

type Download struct {
	TTL          time.Duration `env:"TTL" envDefault:"168h"`
	MaxDownloads int           `env:"MAX_DOWNLOADS" envDefault:"5"`
	RateLimit    int           `env:"RATE_LIMIT" envDefault:"10"`
	RateWindow   time.Duration `env:"RATE_WINDOW" envDefault:"1h"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT" envDefault:"sandbox"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

func (b Braintree) Enabled() bool {
	return b.MerchantID != "" && b.PublicKey != "" && b.PrivateKey != ""
}

type SES struct {
	Region          string `env:"REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Sender          string `env:"SENDER"`
}

func (s SES) Enabled() bool {
	return s.Sender != ""
}

// Load parses the process environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
