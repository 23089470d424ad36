package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds every setting the API reads from the environment.
type Config struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	GinMode     string   `env:"GIN_MODE" envDefault:"debug"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	JWTSecret   string   `env:"JWT_SECRET"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173"`

	Database DatabaseConfig
	Approval ApprovalConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"prs"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// ApprovalConfig tunes the request lifecycle.
type ApprovalConfig struct {
	// Requests whose total is at or below this amount are approved on submit.
	AutoApproveThreshold string `env:"PRS_AUTO_APPROVE_THRESHOLD" envDefault:"50"`
	NumberMaxAttempts    int    `env:"PRS_NUMBER_MAX_ATTEMPTS" envDefault:"5"`
}

// AdminConfig names the administrator created on startup when the user table has none by that name.
type AdminConfig struct {
	Username string `env:"PRS_ADMIN_USERNAME"`
	Password string `env:"PRS_ADMIN_PASSWORD"`
	Email    string `env:"PRS_ADMIN_EMAIL" envDefault:"admin@prs.local"`
}

// Load reads configs/.env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if _, err := cfg.Approval.Threshold(); err != nil {
		return nil, err
	}
	if cfg.Approval.NumberMaxAttempts < 1 {
		return nil, fmt.Errorf("PRS_NUMBER_MAX_ATTEMPTS must be at least 1, got %d", cfg.Approval.NumberMaxAttempts)
	}
	if cfg.Admin.Username != "" && len(cfg.Admin.Password) < 6 {
		return nil, fmt.Errorf("PRS_ADMIN_PASSWORD must be at least 6 characters when PRS_ADMIN_USERNAME is set")
	}
	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			return nil, fmt.Errorf("JWT_SECRET is required in release mode")
		}
		cfg.JWTSecret = "default_super_secret_key" // development fallback only
	}

	return &cfg, nil
}

// Threshold parses the auto-approve amount.
func (a ApprovalConfig) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(a.AutoApproveThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid PRS_AUTO_APPROVE_THRESHOLD %q: %w", a.AutoApproveThreshold, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("PRS_AUTO_APPROVE_THRESHOLD must not be negative, got %s", d)
	}
	return d, nil
}

// DSN builds the postgres connection URL.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}
