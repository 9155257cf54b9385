package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gobeyondidentity/marketo-sync/internal/config"
	"github.com/gobeyondidentity/marketo-sync/internal/logger"
	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
	"github.com/gobeyondidentity/marketo-sync/internal/metrics"
	"github.com/gobeyondidentity/marketo-sync/internal/server"
	"github.com/gobeyondidentity/marketo-sync/internal/setup"
	"github.com/gobeyondidentity/marketo-sync/internal/source"
	"github.com/gobeyondidentity/marketo-sync/internal/store"
	"github.com/gobeyondidentity/marketo-sync/internal/sync"
	"github.com/gobeyondidentity/marketo-sync/internal/wizard"
)

var (
	cfgFile string
	cfg     *config.Config

	dryRun       bool
	historyLimit int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "marketo-sync",
	Short: "Marketo SOAP lead synchronization tool",
	Long: `A tool for reading, creating and updating Marketo leads through the
Marketo SOAP API, and for importing leads in bulk from CSV files, S3 or Google Workspace.

This application supports two modes:
- One-shot mode: Run synchronization once and exit
- Server mode: Run continuously with scheduled synchronization and HTTP API`,
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run lead synchronization once",
	Long: `Read leads from the configured source and push them to Marketo in
syncMultipleLeads batches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync()
	},
}

// validateConfigCmd represents the validate-config command
var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file for syntax and required fields.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateConfig()
	},
}

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run in server mode with HTTP API and optional scheduling",
	Long: `Run the application in server mode. This provides an HTTP API for manual sync runs,
lead lookups, health checks, and metrics. If scheduling is enabled in configuration,
sync runs will start according to the specified cron schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	Long:  `Show the most recent sync runs recorded in the local store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showHistory()
	},
}

// setupCmd represents the setup command
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup and configuration wizard",
	Long:  `Interactive setup wizard to help configure marketo-sync for first-time use.`,
}

// setupWizardCmd represents the setup wizard subcommand
var setupWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Run interactive configuration wizard",
	Long:  `Run an interactive wizard to create configuration file with guided prompts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetupWizard()
	},
}

// setupValidateCmd represents the setup validate subcommand
var setupValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current setup and connectivity",
	Long:  `Validate configuration file, credentials, lead source and local store, and test connectivity to Marketo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetupValidation()
	},
}

// setupDocsCmd represents the setup docs subcommand
var setupDocsCmd = &cobra.Command{
	Use:   "docs [output-dir]",
	Short: "Generate setup and API documentation",
	Long:  `Generate documentation including setup guide, API reference, lead keys and troubleshooting.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir := "./docs"
		if len(args) > 0 {
			outputDir = args[0]
		}
		return runDocsGeneration(outputDir)
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print version information for marketo-sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("marketo-sync version %s\n", server.Version)
		fmt.Printf("Marketo SOAP API %s\n", marketo.DefaultAPIVersion)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "read and batch leads without writing to Marketo")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of runs to show")

	// Add setup subcommands
	setupCmd.AddCommand(setupWizardCmd)
	setupCmd.AddCommand(setupValidateCmd)
	setupCmd.AddCommand(setupDocsCmd)

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(leadCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	var err error

	if cfgFile != "" {
		// Use config file from the flag
		cfg, err = config.Load(cfgFile)
	} else {
		// Find config file in standard locations
		cfgFile, err = config.FindConfigFile()
		if err != nil {
			// Commands that need a config report it themselves
			return
		}
		cfg, err = config.Load(cfgFile)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Set defaults
	cfg.SetDefaults()
}

// requireConfig returns the loaded configuration or explains how to create one
func requireConfig() (*config.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no config file found - run 'setup wizard' first or pass --config")
	}
	return cfg, nil
}

// newMarketoClient creates the SOAP client from configuration. observer may be nil.
func newMarketoClient(cfg *config.Config, log logrus.FieldLogger, observer marketo.Observer) (*marketo.Client, error) {
	opts := cfg.MarketoOptions()
	opts.Logger = log
	opts.Observer = observer

	client, err := marketo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Marketo client: %w", err)
	}
	return client, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runSync executes the main synchronization logic
func runSync() error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	if dryRun {
		cfg.App.TestMode = true
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Setup logger
	log := logger.Setup(cfg.App.LogLevel, cfg.App.TestMode)

	// Log process start info
	logger.LogProcessStart(log, cfg.Source.Type, cfg.App.LogLevel)
	log.Info("Starting main sync process")

	src, err := source.New(cfg.Source, log)
	if err != nil {
		log.Errorf("Failed to create lead source: %v", err)
		return fmt.Errorf("failed to create lead source: %w", err)
	}

	client, err := newMarketoClient(cfg, log, nil)
	if err != nil {
		log.Error(err)
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Errorf("Failed to open store: %v", err)
		return err
	}
	defer st.Close()

	engine := sync.NewEngine(src, client.Leads, st, cfg, log)

	ctx, stop := signalContext()
	defer stop()

	run, err := engine.Run(ctx, sync.TriggerCLI)
	if err != nil {
		log.Errorf("Sync process failed: %v", err)
		return err
	}

	// Log final results
	if len(run.Errors) > 0 {
		log.Warnf("Sync completed with %d errors", len(run.Errors))
		for _, syncErr := range run.Errors {
			log.Errorf("Sync error: %s", syncErr)
		}
	} else {
		log.Info("Sync process completed successfully")
	}

	return nil
}

// validateConfig validates the configuration file
func validateConfig() error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed:\n%v\n", err)
		return err
	}

	fmt.Printf("✅ Configuration file '%s' is valid\n", cfgFile)
	if cfg.Marketo.Endpoint != "" {
		fmt.Printf("   - Marketo endpoint: %s\n", cfg.Marketo.Endpoint)
	} else {
		fmt.Printf("   - Marketo endpoint: %s\n", marketo.EndpointFor(cfg.Marketo.Subdomain, cfg.Marketo.APIVersion))
	}
	fmt.Printf("   - Lead source: %s\n", cfg.Source.Type)
	fmt.Printf("   - Batch size: %d (dedup %t)\n", cfg.Sync.BatchSize, cfg.Dedup())
	fmt.Printf("   - Test mode: %t\n", cfg.App.TestMode)
	fmt.Printf("   - Log level: %s\n", cfg.App.LogLevel)

	return nil
}

// runServer executes server mode
func runServer() error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Setup logger
	log := logger.Setup(cfg.App.LogLevel, cfg.App.TestMode)

	if cfg.Server.ScheduleEnabled {
		log.Infof("Scheduling enabled with cron: %s", cfg.Server.Schedule)
	} else {
		log.Info("Scheduling disabled - manual sync only")
	}

	collector := metrics.NewCollector()

	src, err := source.New(cfg.Source, log)
	if err != nil {
		log.Errorf("Failed to create lead source: %v", err)
		return fmt.Errorf("failed to create lead source: %w", err)
	}

	client, err := newMarketoClient(cfg, log, collector)
	if err != nil {
		log.Error(err)
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Errorf("Failed to open store: %v", err)
		return err
	}
	defer st.Close()

	engine := sync.NewEngine(src, client.Leads, st, cfg, log)
	engine.SetObserver(collector)

	srv := server.NewServer(cfg, engine, client.Leads, st, collector, log)
	return srv.Start()
}

// showHistory prints recent sync runs from the store
func showHistory() error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Runs(historyLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No sync runs recorded")
		return nil
	}

	for _, run := range runs {
		mode := ""
		if run.DryRun {
			mode = " (test mode)"
		}
		fmt.Printf("#%d %s %s%s from %s: %d read, %d created, %d updated, %d failed, %d skipped in %v\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.Trigger, mode, run.Source,
			run.LeadsRead, run.LeadsCreated, run.LeadsUpdated, run.LeadsFailed, run.LeadsSkipped,
			run.Duration().Round(time.Millisecond))
		for _, runErr := range run.Errors {
			fmt.Printf("    %s\n", runErr)
		}
	}

	return nil
}

// runSetupWizard executes the interactive configuration wizard
func runSetupWizard() error {
	w := wizard.NewWizard()
	return w.Run()
}

// runSetupValidation executes setup validation
func runSetupValidation() error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	validator := setup.NewValidator(cfg)
	summary, err := validator.ValidateSetup()
	if err != nil {
		return err
	}

	// Exit with error code if validation failed
	if summary.OverallStatus != "PASS" {
		os.Exit(1)
	}

	return nil
}

// runDocsGeneration generates documentation
func runDocsGeneration(outputDir string) error {
	fmt.Printf("Generating documentation in %s...\n", outputDir)
	return setup.GenerateDocumentation(outputDir)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
