package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gobeyondidentity/marketo-sync/internal/config"
	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
	"github.com/gobeyondidentity/marketo-sync/internal/source"
	"github.com/gobeyondidentity/marketo-sync/internal/store"
)

// checkEmail is looked up to test the Marketo credentials; a "lead not found"
// fault proves the signature was accepted
const checkEmail = "marketo-sync-check@example.invalid"

// LeadChecker is the lookup used for the Marketo connectivity check
type LeadChecker interface {
	GetByEmail(ctx context.Context, email string) (*marketo.Lead, error)
}

// Validator handles setup validation and connectivity testing
type Validator struct {
	config *config.Config
	logger *logrus.Logger
	out    io.Writer

	newChecker func(cfg *config.Config) (LeadChecker, error)
	newSource func(cfg *config.Config, logger logrus.FieldLogger) (source.Source, error)
}

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Component string        `json:"component"`
	Status    string        `json:"status"`
	Message   string        `json:"message"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ValidationSummary contains overall validation results
type ValidationSummary struct {
	OverallStatus string              `json:"overall_status"`
	TotalChecks   int                 `json:"total_checks"`
	Passed        int                 `json:"passed"`
	Failed        int                 `json:"failed"`
	Results       []*ValidationResult `json:"results"`
	Duration      time.Duration       `json:"duration"`
}

// NewValidator creates a new setup validator printing to stdout
func NewValidator(cfg *config.Config) *Validator {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Only show errors during validation

	return &Validator{
		config:    cfg,
		logger:    logger,
		out:       os.Stdout,
		newChecker: newMarketoChecker,
		newSource: func(cfg *config.Config, logger logrus.FieldLogger) (source.Source, error) {
			return source.New(cfg.Source, logger)
		},
	}
}

func newMarketoChecker(cfg *config.Config) (LeadChecker, error) {
	opts := cfg.MarketoOptions()
	opts.Timeout = 10 * time.Second

	client, err := marketo.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return client.Leads, nil
}

// ValidateSetup performs comprehensive setup validation
func (v *Validator) ValidateSetup() (*ValidationSummary, error) {
	startTime := time.Now()

	fmt.Fprintln(v.out, "🔍 Validating Marketo Sync Setup")
	fmt.Fprintln(v.out, "════════════════════════════════")
	fmt.Fprintln(v.out)

	summary := &ValidationSummary{
		Results: make([]*ValidationResult, 0),
	}

	v.addResult(summary, v.validateConfiguration())
	v.addResult(summary, v.validateEnvironment())
	v.addResult(summary, v.validateMarketo())
	v.addResult(summary, v.validateSource())
	v.addResult(summary, v.validateStore())

	summary.Duration = time.Since(startTime)
	summary.TotalChecks = len(summary.Results)

	for _, result := range summary.Results {
		if result.Status == "PASS" {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if summary.Failed == 0 {
		summary.OverallStatus = "PASS"
	} else {
		summary.OverallStatus = "FAIL"
	}

	v.printSummary(summary)

	return summary, nil
}

// validateConfiguration validates the configuration structure
func (v *Validator) validateConfiguration() *ValidationResult {
	fmt.Fprint(v.out, "📋 Configuration validation... ")
	start := time.Now()

	if err := v.config.Validate(); err != nil {
		return v.fail("Configuration", "Configuration validation failed", err.Error(), start)
	}

	return v.pass("Configuration", "Configuration is valid", "", start)
}

// validateEnvironment checks credentials and the files the configuration points at
func (v *Validator) validateEnvironment() *ValidationResult {
	fmt.Fprint(v.out, "🌍 Environment validation... ")
	start := time.Now()

	var issues []string

	if v.config.Marketo.UserID == "" || v.config.Marketo.EncryptionKey == "" {
		issues = append(issues, "Marketo user id and encryption key must be set in config.yaml")
	}

	switch v.config.Source.Type {
	case config.SourceCSV:
		if _, err := os.Stat(v.config.Source.CSV.Path); err != nil {
			issues = append(issues, fmt.Sprintf("CSV file not readable: %s", v.config.Source.CSV.Path))
		}
	case config.SourceGoogleWorkspace:
		keyPath := v.config.Source.GoogleWorkspace.ServiceAccountKeyPath
		if _, err := os.Stat(keyPath); err != nil {
			issues = append(issues, fmt.Sprintf("Service account file not found: %s", keyPath))
		}
	case config.SourceS3:
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" && os.Getenv("AWS_PROFILE") == "" {
			v.logger.Debug("No AWS credentials in environment, relying on the default credential chain")
		}
	}

	if len(issues) > 0 {
		return v.fail("Environment", "Environment setup issues found", fmt.Sprintf("Issues: %v", issues), start)
	}

	return v.pass("Environment", "Environment is properly configured", "", start)
}

// validateMarketo looks up a placeholder lead to test the endpoint and credentials
func (v *Validator) validateMarketo() *ValidationResult {
	fmt.Fprint(v.out, "🟣 Marketo connectivity... ")
	start := time.Now()

	checker, err := v.newChecker(v.config)
	if err != nil {
		return v.fail("Marketo", "Failed to create Marketo client", err.Error(), start)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = checker.GetByEmail(ctx, checkEmail)
	var fault *marketo.Fault
	switch {
	case err == nil, errors.Is(err, marketo.ErrLeadNotFound):
		return v.pass("Marketo", "Marketo API is accessible", fmt.Sprintf("Endpoint: %s", v.endpoint()), start)
	case errors.As(err, &fault):
		return v.fail("Marketo", "Marketo rejected the request", fault.Error(), start)
	default:
		return v.fail("Marketo", "Failed to connect to Marketo API", err.Error(), start)
	}
}

// validateSource reads the configured source once
func (v *Validator) validateSource() *ValidationResult {
	fmt.Fprint(v.out, "📥 Lead source... ")
	start := time.Now()

	src, err := v.newSource(v.config, v.logger)
	if err != nil {
		return v.fail("Source", "Failed to create lead source", err.Error(), start)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	leads, err := src.Fetch(ctx)
	if err != nil {
		return v.fail("Source", "Failed to read leads", err.Error(), start)
	}

	return v.pass("Source", fmt.Sprintf("Read %d leads", len(leads)), fmt.Sprintf("Source: %s", src.Name()), start)
}

// validateStore opens the local store, which fails while another process holds it
func (v *Validator) validateStore() *ValidationResult {
	fmt.Fprint(v.out, "💾 Local store... ")
	start := time.Now()

	s, err := store.Open(v.config.Store.Path)
	if err != nil {
		return v.fail("Store", "Failed to open local store", err.Error(), start)
	}
	defer s.Close()

	path, _ := filepath.Abs(v.config.Store.Path)
	return v.pass("Store", "Local store is writable", fmt.Sprintf("Path: %s", path), start)
}

func (v *Validator) endpoint() string {
	if v.config.Marketo.Endpoint != "" {
		return v.config.Marketo.Endpoint
	}
	return marketo.EndpointFor(v.config.Marketo.Subdomain, v.config.Marketo.APIVersion)
}

func (v *Validator) pass(component, message, details string, start time.Time) *ValidationResult {
	fmt.Fprintln(v.out, "✅ PASS")
	return &ValidationResult{
		Component: component,
		Status:    "PASS",
		Message:   message,
		Details:   details,
		Duration:  time.Since(start),
	}
}

func (v *Validator) fail(component, message, details string, start time.Time) *ValidationResult {
	fmt.Fprintln(v.out, "❌ FAIL")
	return &ValidationResult{
		Component: component,
		Status:    "FAIL",
		Message:   message,
		Details:   details,
		Duration:  time.Since(start),
	}
}

// addResult adds a validation result to the summary
func (v *Validator) addResult(summary *ValidationSummary, result *ValidationResult) {
	summary.Results = append(summary.Results, result)
}

// printSummary prints the validation summary
func (v *Validator) printSummary(summary *ValidationSummary) {
	fmt.Fprintln(v.out)
	fmt.Fprintln(v.out, "📊 Validation Summary")
	fmt.Fprintln(v.out, "════════════════════")

	if summary.OverallStatus == "PASS" {
		fmt.Fprintf(v.out, "✅ Overall Status: %s\n", summary.OverallStatus)
	} else {
		fmt.Fprintf(v.out, "❌ Overall Status: %s\n", summary.OverallStatus)
	}

	fmt.Fprintf(v.out, "📈 Results: %d passed, %d failed (total: %d)\n",
		summary.Passed, summary.Failed, summary.TotalChecks)
	fmt.Fprintf(v.out, "⏱️  Duration: %v\n", summary.Duration.Round(time.Millisecond))

	if summary.Failed > 0 {
		fmt.Fprintln(v.out)
		fmt.Fprintln(v.out, "❌ Failed Checks:")
		for _, result := range summary.Results {
			if result.Status == "FAIL" {
				fmt.Fprintf(v.out, "   • %s: %s\n", result.Component, result.Message)
				if result.Details != "" {
					fmt.Fprintf(v.out, "     Details: %s\n", result.Details)
				}
			}
		}

		fmt.Fprintln(v.out)
		fmt.Fprintln(v.out, "💡 Next Steps:")
		fmt.Fprintln(v.out, "   1. Fix the issues listed above")
		fmt.Fprintln(v.out, "   2. Run validation again: ./marketo-sync setup validate")
		fmt.Fprintln(v.out, "   3. Once all checks pass, try a test sync with app.test_mode: ./marketo-sync run")
	} else {
		fmt.Fprintln(v.out)
		fmt.Fprintln(v.out, "🎉 All checks passed! Your setup is ready.")
		fmt.Fprintln(v.out, "💡 Next Steps:")
		fmt.Fprintln(v.out, "   1. Try a sync: ./marketo-sync run")
		fmt.Fprintln(v.out, "   2. Look up a lead: ./marketo-sync lead get email someone@example.com")
		fmt.Fprintln(v.out, "   3. Start server mode: ./marketo-sync server")
	}
}
