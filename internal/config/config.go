package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultStoreTimeoutMs = 5000
	defaultServerPort     = 8080
	defaultRateLimit      = 120
	defaultPollInterval   = 60
)

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Server   ServerConfig   `yaml:"server"`
	Email    EmailConfig    `yaml:"email"`
	Inbox    InboxConfig    `yaml:"inbox,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig bounds every catalog read/write made during ingestion
type StoreConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

func (s StoreConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// ServerConfig holds the inbound webhook listener settings
type ServerConfig struct {
	Addr               string `yaml:"addr"`                  // e.g., "127.0.0.1"; empty listens on all interfaces
	Port               int    `yaml:"port"`                  // e.g., 8080
	WebhookSecret      string `yaml:"webhook_secret"`        // Shared secret expected from the mail provider
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"` // Per remote IP
}

func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Addr, s.Port)
}

// InboxConfig holds IMAP settings for polling survey replies
type InboxConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Provider        string `yaml:"provider"`          // "gmail", "outlook", "imap"
	Server          string `yaml:"server"`            // e.g., "imap.gmail.com"
	Port            int    `yaml:"port"`              // e.g., 993
	Email           string `yaml:"email"`             // Mailbox receiving reply+<id>@ addresses
	Password        string `yaml:"password"`          // App password (not main password)
	Folder          string `yaml:"folder"`            // Folder to poll (default: "INBOX")
	AutoArchive     bool   `yaml:"auto_archive"`      // Move handled replies to the archive folder
	ArchiveFolder   string `yaml:"archive_folder"`    // Folder to archive replies to (default: "Enkat")
	PollIntervalSec int    `yaml:"poll_interval_sec"` // Seconds between polls in watch mode
}

func (i InboxConfig) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalSec) * time.Second
}

type EmailConfig struct {
	Provider    string     `yaml:"provider"`     // "smtp", "resend", "sendgrid"
	From        string     `yaml:"from"`         // Sender of survey invitations
	ReplyDomain string     `yaml:"reply_domain"` // Domain of the reply+<id>@ address
	Language    string     `yaml:"language"`     // Invitation template: "sv" or "en"
	APIKey      string     `yaml:"api_key,omitempty"`
	SMTP        SMTPConfig `yaml:"smtp,omitempty"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".enkat", "config.yaml")
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "enkat.db"
	}
	return filepath.Join(home, ".enkat", "enkat.db")
}

func Load(path string) (*Config, error) {
	if err := checkFilePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Default returns a configuration usable without a config file
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath()
	}
	if c.Store.TimeoutMs == 0 {
		c.Store.TimeoutMs = defaultStoreTimeoutMs
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = defaultRateLimit
	}
	if c.Email.Provider == "" {
		c.Email.Provider = "smtp"
	}
	if c.Email.Language == "" {
		c.Email.Language = "sv"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	// Inbox defaults
	if c.Inbox.Folder == "" {
		c.Inbox.Folder = "INBOX"
	}
	if c.Inbox.ArchiveFolder == "" {
		c.Inbox.ArchiveFolder = "Enkat"
	}
	if c.Inbox.PollIntervalSec == 0 {
		c.Inbox.PollIntervalSec = defaultPollInterval
	}
	if c.Inbox.Provider == "gmail" && c.Inbox.Server == "" {
		c.Inbox.Server = "imap.gmail.com"
		c.Inbox.Port = 993
	}
	if c.Inbox.Provider == "outlook" && c.Inbox.Server == "" {
		c.Inbox.Server = "outlook.office365.com"
		c.Inbox.Port = 993
	}
}

// applyEnvOverrides lets deployments keep secrets out of the config file
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ENKAT_WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}
	if v := os.Getenv("ENKAT_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("ENKAT_EMAIL_API_KEY"); v != "" {
		c.Email.APIKey = v
	}
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks the settings needed to send invitations
func (c *Config) Validate() error {
	if c.Email.From == "" {
		return fmt.Errorf("email: from address is required")
	}
	if c.Email.ReplyDomain == "" {
		return fmt.Errorf("email: reply_domain is required")
	}

	switch c.Email.Provider {
	case "smtp":
		if c.Email.SMTP.Host == "" {
			return fmt.Errorf("email.smtp: host is required")
		}
		if c.Email.SMTP.Port == 0 {
			return fmt.Errorf("email.smtp: port is required")
		}
	case "resend", "sendgrid":
		if c.Email.APIKey == "" {
			return fmt.Errorf("email: api_key is required for provider %q", c.Email.Provider)
		}
	default:
		return fmt.Errorf("email: unknown provider %q (smtp, resend or sendgrid)", c.Email.Provider)
	}

	return nil
}

// ValidateInbox validates inbox configuration (only called when inbox polling is used)
func (c *Config) ValidateInbox() error {
	if !c.Inbox.Enabled {
		return fmt.Errorf("inbox: polling is not enabled in config")
	}
	if c.Inbox.Email == "" {
		return fmt.Errorf("inbox: email address is required")
	}
	if c.Inbox.Password == "" {
		return fmt.Errorf("inbox: password (app password) is required")
	}
	if c.Inbox.Server == "" {
		return fmt.Errorf("inbox: IMAP server is required")
	}
	if c.Inbox.Port == 0 {
		return fmt.Errorf("inbox: IMAP port is required")
	}
	return nil
}
