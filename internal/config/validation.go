package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidateOptions provides options for validation
type ValidateOptions struct {
	SkipCredentials bool // Skip Marketo credential validation (useful during setup)
}

// maxBatchSize is the largest lead list Marketo accepts in one syncMultipleLeads call
const maxBatchSize = 1000

// Validate validates the configuration and returns any errors
func (c *Config) Validate() error {
	return c.ValidateWithOptions(ValidateOptions{})
}

// ValidateWithOptions validates the configuration with custom options
func (c *Config) ValidateWithOptions(opts ValidateOptions) error {
	var errors ValidationErrors

	// Validate App config
	if c.App.LogLevel != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		if !contains(validLevels, c.App.LogLevel) {
			errors = append(errors, ValidationError{
				Field:   "app.log_level",
				Message: fmt.Sprintf("must be one of: %v", validLevels),
			})
		}
	}

	// Validate Marketo config
	if !opts.SkipCredentials {
		if c.Marketo.UserID == "" {
			errors = append(errors, ValidationError{
				Field:   "marketo.user_id",
				Message: "user id is required",
			})
		}
		if c.Marketo.EncryptionKey == "" {
			errors = append(errors, ValidationError{
				Field:   "marketo.encryption_key",
				Message: "encryption key is required",
			})
		}
	}

	if c.Marketo.Endpoint == "" && c.Marketo.Subdomain == "" {
		errors = append(errors, ValidationError{
			Field:   "marketo.subdomain",
			Message: "subdomain or endpoint is required",
		})
	}

	if c.Marketo.Endpoint != "" {
		if u, err := url.Parse(c.Marketo.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "marketo.endpoint",
				Message: fmt.Sprintf("invalid URL: %s", c.Marketo.Endpoint),
			})
		}
	}

	if c.Marketo.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "marketo.timeout_seconds",
			Message: "timeout must be non-negative",
		})
	}

	if c.Marketo.RetryAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "marketo.retry_attempts",
			Message: "retry attempts must be non-negative",
		})
	}

	if c.Marketo.RetryDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "marketo.retry_delay_seconds",
			Message: "retry delay seconds must be non-negative",
		})
	}

	errors = append(errors, c.validateSource()...)

	// Validate Sync config
	if c.Sync.BatchSize < 0 || c.Sync.BatchSize > maxBatchSize {
		errors = append(errors, ValidationError{
			Field:   "sync.batch_size",
			Message: fmt.Sprintf("batch size must be between 1 and %d", maxBatchSize),
		})
	}

	if c.Sync.RetryAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.retry_attempts",
			Message: "retry attempts must be non-negative",
		})
	}

	if c.Sync.RetryDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.retry_delay_seconds",
			Message: "retry delay seconds must be non-negative",
		})
	}

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	// Validate cron schedule if scheduling is enabled
	if c.Server.ScheduleEnabled {
		if c.Server.Schedule == "" {
			errors = append(errors, ValidationError{
				Field:   "server.schedule",
				Message: "schedule must be provided when schedule_enabled is true",
			})
		} else if _, err := cron.ParseStandard(c.Server.Schedule); err != nil {
			errors = append(errors, ValidationError{
				Field:   "server.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateSource() ValidationErrors {
	var errors ValidationErrors

	switch c.Source.Type {
	case "", SourceCSV:
		if c.Source.CSV.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "source.csv.path",
				Message: "CSV path is required",
			})
		} else if _, err := os.Stat(c.Source.CSV.Path); os.IsNotExist(err) {
			errors = append(errors, ValidationError{
				Field:   "source.csv.path",
				Message: fmt.Sprintf("CSV file not found: %s", c.Source.CSV.Path),
			})
		}
	case SourceS3:
		if c.Source.S3.Bucket == "" {
			errors = append(errors, ValidationError{
				Field:   "source.s3.bucket",
				Message: "bucket is required",
			})
		}
		if c.Source.S3.Key == "" {
			errors = append(errors, ValidationError{
				Field:   "source.s3.key",
				Message: "object key is required",
			})
		}
	case SourceGoogleWorkspace:
		gws := c.Source.GoogleWorkspace
		if gws.Domain == "" {
			errors = append(errors, ValidationError{
				Field:   "source.google_workspace.domain",
				Message: "domain is required",
			})
		}
		if gws.SuperAdminEmail == "" {
			errors = append(errors, ValidationError{
				Field:   "source.google_workspace.super_admin_email",
				Message: "super admin email is required",
			})
		}
		if gws.ServiceAccountKeyPath == "" {
			errors = append(errors, ValidationError{
				Field:   "source.google_workspace.service_account_key_path",
				Message: "service account key path is required",
			})
		} else if _, err := os.Stat(gws.ServiceAccountKeyPath); os.IsNotExist(err) {
			errors = append(errors, ValidationError{
				Field:   "source.google_workspace.service_account_key_path",
				Message: fmt.Sprintf("service account key file not found: %s", gws.ServiceAccountKeyPath),
			})
		}
		for i, group := range gws.Groups {
			if !strings.Contains(group, "@") {
				errors = append(errors, ValidationError{
					Field:   fmt.Sprintf("source.google_workspace.groups[%d]", i),
					Message: fmt.Sprintf("invalid email format: %s", group),
				})
			}
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "source.type",
			Message: fmt.Sprintf("must be one of: %v", []string{SourceCSV, SourceS3, SourceGoogleWorkspace}),
		})
	}

	return errors
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
