package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DBName         = "bot.db"
	secretPath     = "/run/secrets/telegram_bot_token"
	defaultCfgPath = "config.yaml"
)

type Config struct {
	TelegramToken string `yaml:"-"`
	AdminID       int64  `yaml:"admin_id"`

	DBName   string `yaml:"db_path"`
	Timezone string `yaml:"timezone"`

	ReminderInterval time.Duration `yaml:"reminder_interval"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	ValidateSchedule bool          `yaml:"validate_schedule"`
	TutorInfo        string        `yaml:"tutor_info"`

	Logging LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		DBName:           DBName,
		Timezone:         "Europe/Moscow",
		ReminderInterval: time.Minute,
		SessionTTL:       30 * time.Minute,
		ValidateSchedule: true,
		TutorInfo:        "Репетитор по математике и физике. Занятия онлайн и очно.",
		Logging:          LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load собирает конфиг: значения по умолчанию, затем yaml-файл, затем окружение.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultCfgPath
	}
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.TelegramToken = getBotToken()
	if cfg.TelegramToken == "" {
		return nil, errors.New("telegram token not found: neither docker secret nor TELEGRAM_BOT_TOKEN is set")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("ADMIN_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ADMIN_ID: %w", err)
		}
		cfg.AdminID = id
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("TUTOR_INFO"); v != "" {
		cfg.TutorInfo = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("REMINDER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REMINDER_INTERVAL: %w", err)
		}
		cfg.ReminderInterval = d
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = d
	}
	if v := os.Getenv("VALIDATE_SCHEDULE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("VALIDATE_SCHEDULE: %w", err)
		}
		cfg.ValidateSchedule = b
	}
	return nil
}

func (c *Config) Validate() error {
	if c.AdminID == 0 {
		return errors.New("ADMIN_ID is required")
	}
	if c.ReminderInterval <= 0 {
		return errors.New("reminder interval must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location is only valid after Validate succeeded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getBotToken() string {
	if data, err := os.ReadFile(secretPath); err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" {
			return token
		}
	}
	return strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
}
