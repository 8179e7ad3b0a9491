package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"dawncrm/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var configOnce sync.Once

var globalConfig *Config

var globalErr error

var customConfigPath string // Custom config path set via --config flag

//go:embed config.sample.json
var sampleConfig []byte

const (
	CONFIG_DIR_PATH  = "dawncrm"
	CONFIG_FILE_PATH = "config.json"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0600
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DAWNCRM_"

// Config represents the application configuration.
type Config struct {
	DatabasePath string       `json:"database_path,omitempty"`
	Remote       RemoteConfig `json:"remote"`
	Sync         SyncConfig   `json:"sync"`
	Log          LogConfig    `json:"log"`
	Notify       NotifyConfig `json:"notify"`
	Backup       BackupConfig `json:"backup"`

	Output     string `json:"output,omitempty" validate:"omitempty,oneof=table json yaml"`
	DateFormat string `json:"date_format,omitempty"` // Go time format string, defaults to "2006-01-02"
}

// RemoteConfig points at the shared database. An empty URL keeps the CRM
// local-only.
type RemoteConfig struct {
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Migrate  bool   `json:"migrate,omitempty"`
}

type SyncConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalSeconds int    `json:"interval_seconds,omitempty" validate:"gte=0"`
	Strategy        string `json:"strategy,omitempty" validate:"omitempty,oneof=replace merge"`
}

type LogConfig struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days,omitempty" validate:"gte=0"`
}

// NotifyConfig holds the customer notification channels. A channel with no
// endpoint is disabled.
type NotifyConfig struct {
	Email    EmailConfig    `json:"email"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type EmailConfig struct {
	Endpoint   string `json:"endpoint,omitempty" validate:"omitempty,url"`
	ServiceID  string `json:"service_id,omitempty" validate:"required_with=Endpoint"`
	TemplateID string `json:"template_id,omitempty" validate:"required_with=Endpoint"`
	PublicKey  string `json:"public_key,omitempty" validate:"required_with=Endpoint"`
}

type WhatsAppConfig struct {
	WebhookURL string `json:"webhook_url,omitempty" validate:"omitempty,url"`
	Token      string `json:"token,omitempty"`
}

// BackupConfig configures S3-compatible export uploads.
type BackupConfig struct {
	Bucket          string `json:"bucket,omitempty"`
	Region          string `json:"region,omitempty" validate:"required_with=Bucket"`
	Endpoint        string `json:"endpoint,omitempty" validate:"omitempty,url"`
	Prefix          string `json:"prefix,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || u.Scheme == "" {
			return utils.ErrInvalidConfig("remote.url", "must be a URL such as postgres://user@host/db")
		}
	}
	if c.Sync.Enabled && c.Remote.URL == "" {
		return utils.ErrInvalidConfig("sync.enabled", "sync needs remote.url")
	}
	return nil
}

// SyncInterval returns the periodic push interval. Zero means the sync
// manager default.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

func (c *Config) GetDateFormat() string {
	if c.DateFormat == "" {
		return "2006-01-02" // Default to yyyy-mm-dd
	}
	return c.DateFormat
}

// ResolvedDatabasePath expands ~ and environment variables in DatabasePath.
func (c *Config) ResolvedDatabasePath() (string, error) {
	return utils.ExpandPath(c.DatabasePath)
}

// SetCustomConfigPath sets a custom config path to use instead of the default user config directory.
// If path is empty or ".", it uses "./dawncrm/config.json" (current directory).
// If path is a directory, it looks for "config.json" inside it.
// This must be called before GetConfig() is called for the first time.
func SetCustomConfigPath(path string) {
	if path == "" || path == "." {
		customConfigPath = filepath.Join(".", CONFIG_DIR_PATH, CONFIG_FILE_PATH)
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		customConfigPath = filepath.Join(path, CONFIG_FILE_PATH)
	} else {
		customConfigPath = path
	}
}

// GetConfig loads the configuration once per process.
func GetConfig() (*Config, error) {
	configOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			globalErr = err
			return
		}
		globalConfig, globalErr = Load(path)
	})
	return globalConfig, globalErr
}

func GetConfigPath() (string, error) {
	if customConfigPath != "" {
		return customConfigPath, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

// Load reads the config at path, falling back to the embedded sample when
// the file does not exist. A .env file in the working directory is loaded
// first and DAWNCRM_* variables override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Warnf("Ignoring unreadable .env file: %v", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		utils.Debugf("No config at %s, using defaults", path)
		data = sampleConfig
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envBinding maps one DAWNCRM_* variable onto a config field.
type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

var envBindings = []envBinding{
	{"DB_PATH", func(c *Config, v string) error { c.DatabasePath = v; return nil }},
	{"REMOTE_URL", func(c *Config, v string) error {
		c.Remote.URL = v
		c.Sync.Enabled = v != ""
		return nil
	}},
	{"REMOTE_USER", func(c *Config, v string) error { c.Remote.Username = v; return nil }},
	{"SYNC_INTERVAL", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			secs, serr := strconv.Atoi(v)
			if serr != nil {
				return utils.ErrInvalidConfig(EnvPrefix+"SYNC_INTERVAL", "expected a duration like 30s")
			}
			d = time.Duration(secs) * time.Second
		}
		c.Sync.IntervalSeconds = int(d / time.Second)
		return nil
	}},
	{"LOG_FILE", func(c *Config, v string) error { c.Log.File = v; return nil }},
	{"S3_BUCKET", func(c *Config, v string) error { c.Backup.Bucket = v; return nil }},
	{"S3_REGION", func(c *Config, v string) error { c.Backup.Region = v; return nil }},
	{"S3_ENDPOINT", func(c *Config, v string) error { c.Backup.Endpoint = v; return nil }},
	{"WHATSAPP_WEBHOOK", func(c *Config, v string) error { c.Notify.WhatsApp.WebhookURL = v; return nil }},
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return nil
}

// WriteSample writes the embedded sample config to path unless a file
// already exists there. It reports whether a file was written.
func WriteSample(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), CONFIG_DIR_PERM); err != nil {
		return false, fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, sampleConfig, CONFIG_FILE_PERM); err != nil {
		return false, fmt.Errorf("failed to write config: %w", err)
	}
	return true, nil
}

// Sample returns a copy of the embedded sample config.
func Sample() []byte {
	return append([]byte(nil), sampleConfig...)
}
