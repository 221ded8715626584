package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aiact/compliance/internal/models"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Documents     DocumentsConfig     `yaml:"documents"`
	Exports       ExportsConfig       `yaml:"exports"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenExpiry  time.Duration `yaml:"access_token_expiry"`
	RefreshTokenExpiry time.Duration `yaml:"refresh_token_expiry"`
}

type NotificationsConfig struct {
	MinSeverity models.Severity   `yaml:"min_severity"`
	Slack       SlackNotifyConfig `yaml:"slack"`
	Email       EmailNotifyConfig `yaml:"email"`
}

type SlackNotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type EmailNotifyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	CORSAllowOrigin string        `yaml:"cors_allow_origin"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig is optional. With Enabled=false async exports are unavailable.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DocumentsConfig selects how DOCX documents are turned into PDF.
type DocumentsConfig struct {
	// Converter is "native" (gofpdf) or "soffice" (LibreOffice subprocess).
	Converter         string        `yaml:"converter"`
	SofficePath       string        `yaml:"soffice_path"`
	ConversionTimeout time.Duration `yaml:"conversion_timeout"`
	IssuerName        string        `yaml:"issuer_name"`
}

type ExportsConfig struct {
	Workers   int           `yaml:"workers"`
	ResultTTL time.Duration `yaml:"result_ttl"`
}

type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads the YAML config at path. A .env file in the working directory
// is loaded first so its variables can be referenced as ${VAR} in the YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {

		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "aiact"
	}
	if c.Database.Database == "" {
		c.Database.Database = "aiact"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "change-me-in-production"

		fmt.Println("WARNING: Using default JWT secret. Set auth.jwt_secret in production!")
	}
	if c.Auth.AccessTokenExpiry == 0 {
		c.Auth.AccessTokenExpiry = 15 * time.Minute
	}
	if c.Auth.RefreshTokenExpiry == 0 {
		c.Auth.RefreshTokenExpiry = 7 * 24 * time.Hour
	}

	if c.Notifications.MinSeverity == "" {
		c.Notifications.MinSeverity = models.SeverityHigh
	}
	if c.Notifications.Email.SMTPPort == 0 {
		c.Notifications.Email.SMTPPort = 587
	}

	if c.Documents.Converter == "" {
		c.Documents.Converter = "native"
	}
	if c.Documents.SofficePath == "" {
		c.Documents.SofficePath = "soffice"
	}
	if c.Documents.ConversionTimeout == 0 {
		c.Documents.ConversionTimeout = 30 * time.Second
	}
	if c.Documents.IssuerName == "" {
		c.Documents.IssuerName = "AI Act Compliance Platform"
	}

	if c.Exports.Workers == 0 {
		c.Exports.Workers = 2
	}
	if c.Exports.ResultTTL == 0 {
		c.Exports.ResultTTL = 24 * time.Hour
	}
}
