package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port               string        `mapstructure:"port"`
	Storage            string        `mapstructure:"storage"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ReminderInterval   time.Duration `mapstructure:"reminder_interval"`
	ReminderLeadTime   time.Duration `mapstructure:"reminder_lead_time"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`

	Database Database `mapstructure:",squash"`
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `mapstructure:"db_host"`
	Port     string `mapstructure:"db_port"`
	User     string `mapstructure:"db_user"`
	Password string `mapstructure:"db_password"`
	Name     string `mapstructure:"db_name"`
	SSLMode  string `mapstructure:"db_sslmode"`
	MaxConns int32  `mapstructure:"db_max_conns"`
}

// SetupCommon registers defaults and binds environment variables. Keys map
// to upper-case env names, e.g. db_host reads DB_HOST. A .env file in the
// working directory is loaded first when present.
func SetupCommon() {
	_ = godotenv.Load()

	viper.SetDefault("port", "8080")
	viper.SetDefault("storage", StoragePostgres)
	viper.SetDefault("request_timeout", "15s")
	viper.SetDefault("reminder_interval", "5m")
	viper.SetDefault("reminder_lead_time", "24h")
	viper.SetDefault("cors_allowed_origins", "*")

	viper.SetDefault("db_host", "localhost")
	viper.SetDefault("db_port", "5432")
	viper.SetDefault("db_user", "postgres")
	viper.SetDefault("db_password", "postgres")
	viper.SetDefault("db_name", "communityevents")
	viper.SetDefault("db_sslmode", "disable")
	viper.SetDefault("db_max_conns", 20)

	viper.SetDefault("debug", false)
	viper.SetDefault("log_level", "")

	viper.AutomaticEnv()
}

// New unmarshals and validates the configuration.
func New() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	var origins []string
	for _, o := range cfg.CORSAllowedOrigins {
		origins = append(origins, splitList(o)...)
	}
	cfg.CORSAllowedOrigins = origins
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("invalid storage %q: want %q or %q", c.Storage, StoragePostgres, StorageMemory)
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("reminder_interval must be positive, got %s", c.ReminderInterval)
	}
	if c.ReminderLeadTime <= 0 {
		return fmt.Errorf("reminder_lead_time must be positive, got %s", c.ReminderLeadTime)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("db_max_conns must be positive, got %d", c.Database.MaxConns)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
