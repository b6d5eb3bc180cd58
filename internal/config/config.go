package config

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries every tunable the server reads from the environment.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"secret_key_change_me"`

	// Notification generator
	MaxUnreadNotifications int `env:"NOTIFY_MAX_UNREAD" envDefault:"100"`
	RetentionDays          int `env:"NOTIFY_RETENTION_DAYS" envDefault:"90"`

	// Event fanout
	FanoutBuffer int `env:"FANOUT_BUFFER" envDefault:"16"`

	// Rich text
	MaxContentLength int `env:"RICHTEXT_MAX_LENGTH" envDefault:"50000"`
}

// Load reads .env (if present) and parses the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading env vars from system")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}
	return cfg
}
