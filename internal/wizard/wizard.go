package wizard

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gobeyondidentity/marketo-sync/internal/config"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorTeal  = "\033[36m"
	colorRed   = "\033[31m"
)

// Wizard handles interactive configuration setup
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
	config *config.Config
	eof    bool
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return newWizard(os.Stdin, os.Stdout)
}

func newWizard(in io.Reader, out io.Writer) *Wizard {
	// Create reader with larger buffer to handle long keys
	return &Wizard{
		reader: bufio.NewReaderSize(in, 8192),
		out:    out,
		config: &config.Config{},
	}
}

// Run starts the interactive configuration wizard
func (w *Wizard) Run() error {
	w.println("Welcome to the Marketo Sync Configuration Wizard!")
	w.println("This wizard will help you set up your configuration for syncing leads into Marketo.")
	w.println()

	// Application settings
	if err := w.configureApp(); err != nil {
		return fmt.Errorf("failed to configure app settings: %w", err)
	}

	// Marketo settings
	if err := w.configureMarketo(); err != nil {
		return fmt.Errorf("failed to configure Marketo: %w", err)
	}

	// Lead source
	if err := w.configureSource(); err != nil {
		return fmt.Errorf("failed to configure lead source: %w", err)
	}

	// Sync settings
	if err := w.configureSync(); err != nil {
		return fmt.Errorf("failed to configure sync settings: %w", err)
	}

	// Server settings
	if err := w.configureServer(); err != nil {
		return fmt.Errorf("failed to configure server settings: %w", err)
	}

	// Set defaults and validate (skip credentials if they were left for later)
	w.config.SetDefaults()
	skipCredentials := w.config.Marketo.EncryptionKey == ""
	if err := w.config.ValidateWithOptions(config.ValidateOptions{SkipCredentials: skipCredentials}); err != nil {
		w.printf("%sConfiguration validation failed: %v%s\n", colorRed, err, colorReset)
		w.println("Please review your settings and try again.")
		w.println()
		w.println("You can:")
		w.println("1. Create the missing files and run the wizard again")
		w.println("2. Edit the generated config.yaml manually")
		w.println("3. Use './marketo-sync validate-config' to check your configuration")
		return nil // Exit gracefully without showing CLI help
	}

	// Save configuration
	return w.saveConfiguration()
}

// configureApp configures application-level settings
func (w *Wizard) configureApp() error {
	w.printf("%sApplication Settings%s\n", colorTeal, colorReset)
	w.println("═══════════════════════")

	w.config.App.LogLevel = w.promptWithDefault("Log level (debug, info, warn, error)", "info")

	testMode := w.promptYesNo("Enable test mode? (recommended for first run)", true)
	w.config.App.TestMode = testMode

	if testMode {
		w.println("Test mode enabled - no leads will be written to Marketo")
	}

	w.println()
	return nil
}

// configureMarketo configures the SOAP API credentials and endpoint
func (w *Wizard) configureMarketo() error {
	w.printf("%sMarketo Configuration%s\n", colorTeal, colorReset)
	w.println("══════════════════════")

	w.println("SOAP API Setup:")
	w.println("Find the user id and encryption key under Admin > Integration > SOAP API.")
	w.println()

	if w.promptYesNo("Import credentials from a .env file?", false) {
		path := w.promptRequired("Path to .env file")
		if userID, key := w.importEnvFile(path); userID != "" || key != "" {
			w.config.Marketo.UserID = userID
			w.config.Marketo.EncryptionKey = key
		}
	}

	if w.config.Marketo.UserID == "" {
		w.config.Marketo.UserID = w.promptRequired("SOAP user id")
	}

	if w.config.Marketo.EncryptionKey == "" {
		w.config.Marketo.EncryptionKey = w.promptEncryptionKey("SOAP encryption key")
	}

	if w.config.Marketo.EncryptionKey == "" {
		w.printf("%sEncryption key not set - you'll need to add it to config.yaml manually%s\n", colorRed, colorReset)
	} else {
		w.println("Encryption key configured")
	}

	w.config.Marketo.Subdomain = w.promptRequired("Instance subdomain (e.g., 100-AEK-913)")
	w.config.Marketo.APIVersion = w.promptWithDefault("API version", "2_3")
	w.config.Marketo.TimeoutSeconds = w.promptIntWithDefault("Request timeout (seconds)", 30)

	w.println()
	return nil
}

// configureSource configures where leads are read from
func (w *Wizard) configureSource() error {
	w.printf("%sLead Source%s\n", colorTeal, colorReset)
	w.println("════════════")

	for {
		sourceType := w.promptWithDefault("Source type (csv, s3, google_workspace)", config.SourceCSV)
		switch sourceType {
		case config.SourceCSV:
			w.config.Source.Type = sourceType
			w.configureCSVSource()
		case config.SourceS3:
			w.config.Source.Type = sourceType
			w.configureS3Source()
		case config.SourceGoogleWorkspace:
			w.config.Source.Type = sourceType
			w.configureWorkspaceSource()
		default:
			w.printf("%sUnknown source type %q%s\n", colorRed, sourceType, colorReset)
			if w.eof {
				return fmt.Errorf("no source type selected")
			}
			continue
		}
		break
	}

	w.println()
	return nil
}

func (w *Wizard) configureCSVSource() {
	path := w.absPath(w.promptRequired("Path to leads CSV file"))
	w.checkFile(path, "CSV file")
	w.config.Source.CSV.Path = path
}

func (w *Wizard) configureS3Source() {
	w.config.Source.S3.Region = w.promptWithDefault("AWS region", "us-east-1")
	w.config.Source.S3.Bucket = w.promptRequired("S3 bucket")
	w.config.Source.S3.Key = w.promptRequired("S3 object key")
	w.println("AWS credentials are read from the environment or shared credentials file.")
}

func (w *Wizard) configureWorkspaceSource() {
	domain := w.promptRequired("Google Workspace domain (e.g., company.com)")
	w.config.Source.GoogleWorkspace.Domain = domain

	defaultAdmin := fmt.Sprintf("admin@%s", domain)
	w.config.Source.GoogleWorkspace.SuperAdminEmail = w.promptWithDefault("Super admin email", defaultAdmin)

	w.println("\nService Account Setup:")
	w.println("You need a Google Cloud service account with domain-wide delegation.")
	w.println("See: https://developers.google.com/admin-sdk/directory/v1/guides/delegation")

	keyPath := w.absPath(w.promptRequired("Path to service account JSON file"))
	w.checkFile(keyPath, "Service account file")
	w.config.Source.GoogleWorkspace.ServiceAccountKeyPath = keyPath

	w.println("Enter group email addresses to limit the sync to their members.")
	w.println("Press Enter on an empty line to sync all active users.")

	var groups []string
	for {
		group := w.prompt(fmt.Sprintf("Group %d email (or press Enter to finish)", len(groups)+1))
		if group == "" {
			break
		}

		// Basic email validation
		if !strings.Contains(group, "@") {
			w.printf("%sPlease enter a valid email address%s\n", colorRed, colorReset)
			continue
		}

		groups = append(groups, group)
		w.printf("Added: %s\n", group)
	}
	w.config.Source.GoogleWorkspace.Groups = groups
}

// configureSync configures synchronization settings
func (w *Wizard) configureSync() error {
	w.printf("%sSynchronization Settings%s\n", colorTeal, colorReset)
	w.println("═══════════════════════════")

	w.config.Sync.BatchSize = w.promptIntWithDefault("Leads per syncMultipleLeads call", 300)

	dedup := w.promptYesNo("Let Marketo de-duplicate leads by email?", true)
	w.config.Sync.DedupEnabled = &dedup

	w.config.Sync.RetryAttempts = w.promptIntWithDefault("Retry attempts for failed batches", 3)
	w.config.Sync.RetryDelaySeconds = w.promptIntWithDefault("Retry delay (seconds)", 30)

	w.config.Store.Path = w.promptWithDefault("Local state file", "./data/marketo-sync.db")

	w.println()
	return nil
}

// configureServer configures server mode settings
func (w *Wizard) configureServer() error {
	w.printf("%sServer Mode Configuration%s\n", colorTeal, colorReset)
	w.println("════════════════════════════")

	w.config.Server.Port = w.promptIntWithDefault("HTTP server port", 8080)

	enableScheduling := w.promptYesNo("Enable automatic sync scheduling?", false)
	w.config.Server.ScheduleEnabled = enableScheduling

	if enableScheduling {
		w.println("\nSchedule Configuration:")
		w.println("Enter a cron schedule expression.")
		w.println("Examples:")
		w.println("  '0 */6 * * *'   - Every 6 hours")
		w.println("  '0 0 * * *'     - Daily at midnight")
		w.println("  '0 9 * * 1-5'   - Weekdays at 9 AM")

		schedule := w.promptWithDefault("Cron schedule", "0 */6 * * *")
		w.config.Server.Schedule = schedule

		w.printf("Scheduled sync: %s\n", schedule)
	} else {
		w.config.Server.Schedule = "0 */6 * * *" // Default, but disabled
		w.println("Manual sync only - use the CLI or HTTP API to trigger syncs")
	}

	w.println()
	return nil
}

// saveConfiguration saves the configuration to a file
func (w *Wizard) saveConfiguration() error {
	w.printf("%sSave Configuration%s\n", colorTeal, colorReset)
	w.println("════════════════════")

	configPath := w.promptWithDefault("Configuration file path", "./config.yaml")

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		overwrite := w.promptYesNo(fmt.Sprintf("File %s already exists. Overwrite?", configPath), false)
		if !overwrite {
			w.printf("%sConfiguration not saved%s\n", colorRed, colorReset)
			return fmt.Errorf("user chose not to overwrite existing file")
		}
	}

	if err := config.Save(w.config, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	w.printf("Configuration saved to: %s\n", configPath)
	w.println()

	w.showNextSteps(configPath)

	return nil
}

// showNextSteps displays next steps for the user
func (w *Wizard) showNextSteps(configPath string) {
	w.printf("%sSetup Complete!%s\n", colorTeal, colorReset)
	w.println("═════════════════")
	w.println()

	if w.config.Marketo.EncryptionKey == "" {
		w.printf("%sImportant: Your encryption key is not set!%s\n", colorRed, colorReset)
		w.printf("   Edit %s and add your Marketo encryption key to:\n", configPath)
		w.println("   marketo.encryption_key: \"your-encryption-key\"")
		w.println()
	}

	w.println("Next steps:")
	w.println("1. Validate setup:    ./marketo-sync setup validate")
	w.println("2. Test sync:         ./marketo-sync run")
	w.println("3. Start server:      ./marketo-sync server")
	w.println()
	w.println("Documentation:")
	w.println("   - Run './marketo-sync --help' for command options")
	w.printf("   - Server API will be available at http://localhost:%d\n", w.config.Server.Port)
	w.printf("   - Health check: curl http://localhost:%d/health\n", w.config.Server.Port)
	w.println()

	if w.config.App.TestMode {
		w.println("Test mode is enabled - no leads will be written to Marketo")
		w.println("   Set 'test_mode: false' in config when ready for production")
	}
}

func (w *Wizard) absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, path)
}

func (w *Wizard) checkFile(path, what string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		w.printf("%sWarning: File does not exist at %s%s\n", colorRed, path, colorReset)
		w.println("Make sure to place the file there before running sync.")
	} else {
		w.printf("%s found\n", what)
	}
}

// Helper methods for prompting user input

func (w *Wizard) printf(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *Wizard) println(args ...interface{}) {
	fmt.Fprintln(w.out, args...)
}

func (w *Wizard) prompt(question string) string {
	w.printf("%s: ", question)
	input, err := w.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			w.eof = true
		} else {
			w.printf("Error reading input: %v\n", err)
		}
	}
	return strings.TrimSpace(input)
}

func (w *Wizard) promptRequired(question string) string {
	for {
		value := w.prompt(question)
		if value != "" || w.eof {
			return value
		}
		w.printf("%sThis field is required%s\n", colorRed, colorReset)
	}
}

func (w *Wizard) promptWithDefault(question, defaultValue string) string {
	value := w.prompt(fmt.Sprintf("%s [%s]", question, defaultValue))
	if value == "" {
		return defaultValue
	}
	return value
}

func (w *Wizard) promptYesNo(question string, defaultValue bool) bool {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	for {
		response := w.prompt(fmt.Sprintf("%s [%s]", question, defaultStr))
		if response == "" {
			return defaultValue
		}

		response = strings.ToLower(response)
		if response == "y" || response == "yes" {
			return true
		}
		if response == "n" || response == "no" {
			return false
		}

		w.printf("%sPlease enter 'y' or 'n'%s\n", colorRed, colorReset)
		if w.eof {
			return defaultValue
		}
	}
}

func (w *Wizard) promptIntWithDefault(question string, defaultValue int) int {
	for {
		response := w.prompt(fmt.Sprintf("%s [%d]", question, defaultValue))
		if response == "" {
			return defaultValue
		}

		if value, err := strconv.Atoi(response); err == nil {
			return value
		}

		w.printf("%sPlease enter a valid number%s\n", colorRed, colorReset)
		if w.eof {
			return defaultValue
		}
	}
}

// promptEncryptionKey accepts the key itself, an environment reference such
// as ${MARKETO_ENCRYPTION_KEY}, or an empty line to fill it in later
func (w *Wizard) promptEncryptionKey(question string) string {
	w.printf("%s\n", question)
	w.println("Enter the key, an environment reference like ${MARKETO_ENCRYPTION_KEY}, or leave empty to set it later.")

	key := w.prompt("Encryption key")
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "${") || w.validateEncryptionKey(key) {
		return key
	}
	return ""
}

// importEnvFile reads MARKETO_USER_ID and MARKETO_ENCRYPTION_KEY from a
// KEY=VALUE file
func (w *Wizard) importEnvFile(path string) (userID, encryptionKey string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.printf("%sError reading %s: %v%s\n", colorRed, path, err, colorReset)
		return "", ""
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "export "))
		name, value, ok := strings.Cut(line, "=")
		if !ok || strings.HasPrefix(line, "#") {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		switch strings.TrimSpace(name) {
		case "MARKETO_USER_ID":
			userID = value
		case "MARKETO_ENCRYPTION_KEY":
			if w.validateEncryptionKey(value) {
				encryptionKey = value
			}
		}
	}

	if userID == "" && encryptionKey == "" {
		w.printf("%sCould not find Marketo credentials in %s%s\n", colorRed, path, colorReset)
		return "", ""
	}

	w.println("Credentials imported from file")
	return userID, encryptionKey
}

func (w *Wizard) validateEncryptionKey(key string) bool {
	if strings.ContainsAny(key, " \t") {
		w.printf("%sEncryption key should not contain whitespace%s\n", colorRed, colorReset)
		return false
	}

	// Marketo generates long alphanumeric keys
	if len(key) < 20 {
		w.printf("%sKey seems short (%d chars). Make sure you copied the complete key%s\n", colorRed, len(key), colorReset)
		return false
	}

	return true
}
