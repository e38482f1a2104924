package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
		BotName  string `yaml:"bot_name"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Enabled         bool   `yaml:"enabled"`
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	API struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		FreeMaxActiveAppointments int `yaml:"free_max_active_appointments"`
		FreeMaxActiveServices     int `yaml:"free_max_active_services"`
		MaxAdvanceDays            int `yaml:"max_advance_days"`
	} `yaml:"booking"`

	Reminders struct {
		Enabled             bool `yaml:"enabled"`
		PollIntervalMinutes int  `yaml:"poll_interval_minutes"`
		LeadTimeHours       int  `yaml:"lead_time_hours"`
		RatePerSecond       int  `yaml:"rate_per_second"`
	} `yaml:"reminders"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
	} `yaml:"sheets"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/zapisly.db"
	}
	if cfg.Booking.FreeMaxActiveAppointments == 0 {
		cfg.Booking.FreeMaxActiveAppointments = 15
	}
	if cfg.Booking.FreeMaxActiveServices == 0 {
		cfg.Booking.FreeMaxActiveServices = 3
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) RedisCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 60 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) ReminderPollInterval() time.Duration {
	if c.Reminders.PollIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Reminders.PollIntervalMinutes) * time.Minute
}

func (c *Config) ReminderLeadTime() time.Duration {
	if c.Reminders.LeadTimeHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Reminders.LeadTimeHours) * time.Hour
}
