package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
)

// Config represents the application configuration
type Config struct {
	App     AppConfig     `yaml:"app"`
	Marketo MarketoConfig `yaml:"marketo"`
	Source  SourceConfig  `yaml:"source"`
	Sync    SyncConfig    `yaml:"sync"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	LogLevel string `yaml:"log_level"`
	TestMode bool   `yaml:"test_mode"`
}

// MarketoConfig contains Marketo SOAP API settings
type MarketoConfig struct {
	UserID            string `yaml:"user_id"`
	EncryptionKey     string `yaml:"encryption_key"`
	Subdomain         string `yaml:"subdomain"`
	Endpoint          string `yaml:"endpoint"`
	APIVersion        string `yaml:"api_version"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

// SourceConfig selects where leads are imported from
type SourceConfig struct {
	Type            string                `yaml:"type"`
	CSV             CSVSourceConfig       `yaml:"csv"`
	S3              S3SourceConfig        `yaml:"s3"`
	GoogleWorkspace WorkspaceSourceConfig `yaml:"google_workspace"`
}

// CSVSourceConfig reads leads from a local CSV file
type CSVSourceConfig struct {
	Path  string            `yaml:"path"`
	Types map[string]string `yaml:"types"`
}

// S3SourceConfig reads leads from a CSV object in S3
type S3SourceConfig struct {
	Region string            `yaml:"region"`
	Bucket string            `yaml:"bucket"`
	Key    string            `yaml:"key"`
	Types  map[string]string `yaml:"types"`
}

// WorkspaceSourceConfig reads leads from the Google Workspace directory
type WorkspaceSourceConfig struct {
	Domain                string   `yaml:"domain"`
	SuperAdminEmail       string   `yaml:"super_admin_email"`
	ServiceAccountKeyPath string   `yaml:"service_account_key_path"`
	Groups                []string `yaml:"groups"`
}

// SyncConfig contains synchronization settings
type SyncConfig struct {
	BatchSize         int   `yaml:"batch_size"`
	DedupEnabled      *bool `yaml:"dedup_enabled"`
	RetryAttempts     int   `yaml:"retry_attempts"`
	RetryDelaySeconds int   `yaml:"retry_delay_seconds"`
}

// StoreConfig contains local state settings
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig contains server mode settings
type ServerConfig struct {
	Port            int    `yaml:"port"`
	ScheduleEnabled bool   `yaml:"schedule_enabled"`
	Schedule        string `yaml:"schedule"`
}

// Source types
const (
	SourceCSV             = "csv"
	SourceS3              = "s3"
	SourceGoogleWorkspace = "google_workspace"
)

// Load loads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read the configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Substitute environment variables
	configData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(configData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return &config, nil
}

// Save writes the configuration to a YAML file
func Save(config *Config, configPath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}

// FindConfigFile searches for configuration file in common locations
func FindConfigFile() (string, error) {
	locations := []string{
		"./config.yaml",
		"./config.yml",
		"~/.config/marketo-sync/config.yaml",
		"~/.config/marketo-sync/config.yml",
	}

	for _, location := range locations {
		// Expand home directory
		if strings.HasPrefix(location, "~/") {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			location = filepath.Join(homeDir, location[2:])
		}

		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}

	return "", fmt.Errorf("no configuration file found in any of these locations: %v", locations)
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}

	if c.Marketo.APIVersion == "" {
		c.Marketo.APIVersion = "2_3"
	}

	if c.Marketo.TimeoutSeconds == 0 {
		c.Marketo.TimeoutSeconds = 30
	}

	// Per-call retries for transport errors, 429 and 5xx
	if c.Marketo.RetryAttempts == 0 {
		c.Marketo.RetryAttempts = 3
	}

	if c.Marketo.RetryDelaySeconds == 0 {
		c.Marketo.RetryDelaySeconds = 2
	}

	if c.Source.Type == "" {
		c.Source.Type = SourceCSV
	}

	if c.Source.S3.Region == "" {
		c.Source.S3.Region = "us-east-1"
	}

	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 300
	}

	if c.Sync.DedupEnabled == nil {
		enabled := true
		c.Sync.DedupEnabled = &enabled
	}

	if c.Sync.RetryAttempts == 0 {
		c.Sync.RetryAttempts = 3
	}

	if c.Sync.RetryDelaySeconds == 0 {
		c.Sync.RetryDelaySeconds = 30
	}

	if c.Store.Path == "" {
		c.Store.Path = "./data/marketo-sync.db"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Server.Schedule == "" {
		c.Server.Schedule = "0 */6 * * *" // Every 6 hours by default
	}
}

// Dedup reports whether Marketo de-duplication is enabled for batch syncs
func (c *Config) Dedup() bool {
	return c.Sync.DedupEnabled == nil || *c.Sync.DedupEnabled
}

// RetryDelay returns the base delay between retries
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Sync.RetryDelaySeconds) * time.Second
}

// CallRetryDelay returns the base delay between retries of one SOAP call
func (c *Config) CallRetryDelay() time.Duration {
	return time.Duration(c.Marketo.RetryDelaySeconds) * time.Second
}

// Timeout returns the Marketo HTTP timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Marketo.TimeoutSeconds) * time.Second
}

// MarketoOptions returns the SOAP client options for this configuration;
// callers add the logger and observer
func (c *Config) MarketoOptions() marketo.Options {
	return marketo.Options{
		UserID:        c.Marketo.UserID,
		EncryptionKey: c.Marketo.EncryptionKey,
		Endpoint:      c.Marketo.Endpoint,
		Subdomain:     c.Marketo.Subdomain,
		APIVersion:    c.Marketo.APIVersion,
		Timeout:       c.Timeout(),
		RetryAttempts: c.Marketo.RetryAttempts,
		RetryDelay:    c.CallRetryDelay(),
	}
}
