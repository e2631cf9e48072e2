package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const devJWTSecret = "regdesk-development-only"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database `envPrefix:"DATABASE_"`
	Auth        Auth     `envPrefix:"AUTH_"`
	Redis       Redis    `envPrefix:"REDIS_"`

	BrainTree    Braintree    `envPrefix:"BRAINTREE_"`
	Registration Registration `envPrefix:"REGISTRATION_"`
}

type Database struct {
	Driver       string `env:"DRIVER" envDefault:"sqlite"`
	URL          string `env:"URL" envDefault:"file:regdesk.db?_foreign_keys=on"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
	Issuer    string `env:"ISSUER" envDefault:"regdesk"`
}

// Redis is optional; an empty Addr logs notifications instead.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Queue    string `env:"QUEUE" envDefault:"regdesk:notifications"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

type Registration struct {
	VoucherAttemptsPerMinute int           `env:"VOUCHER_ATTEMPTS_PER_MINUTE" envDefault:"10"`
	InvoiceDueGrace          time.Duration `env:"INVOICE_DUE_GRACE" envDefault:"24h"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		log.Println("[config] AUTH_JWT_SECRET not set, using the development secret")
		cfg.Auth.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment.Name == "development"
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		return errors.New("AUTH_JWT_SECRET is required outside development")
	}
	if c.Registration.VoucherAttemptsPerMinute <= 0 {
		return errors.New("REGISTRATION_VOUCHER_ATTEMPTS_PER_MINUTE must be positive")
	}
	return nil
}
