package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gobeyondidentity/marketo-sync/internal/logger"
	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
	"github.com/gobeyondidentity/marketo-sync/internal/store"
)

var (
	leadEmail   string
	leadID      int64
	leadAttrs   map[string]string
	leadNoDedup bool
	leadTimeout time.Duration
)

// leadCmd groups the direct lead operations
var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Look up and sync individual leads",
}

var leadGetCmd = &cobra.Command{
	Use:   "get <key> <value>",
	Short: "Get a lead by key",
	Long: `Get a lead by a named key (id, cookie, email, lead_owner_email,
salesforce_account_id, salesforce_contact_id, salesforce_lead_id,
salesforce_lead_owner_id, salesforce_opportunity_id) or a Marketo key type
such as EMAIL or IDNUM.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getLead(args[0], args[1])
	},
}

var leadSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create or update a lead",
	Example: `  marketo-sync lead sync --email jane@example.com --attr FirstName=Jane --attr Company=Acme
  marketo-sync lead sync --id 42 --attr Title=CTO`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return syncLead()
	},
}

var leadIDCmd = &cobra.Command{
	Use:   "id <email>",
	Short: "Show the Marketo id cached for an email",
	Long:  `Show the Marketo lead id recorded by earlier sync runs, without calling Marketo.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cachedLeadID(args[0])
	},
}

func init() {
	leadCmd.PersistentFlags().DurationVar(&leadTimeout, "timeout", time.Minute, "time limit for the Marketo call")

	leadSyncCmd.Flags().StringVar(&leadEmail, "email", "", "lead email")
	leadSyncCmd.Flags().Int64Var(&leadID, "id", 0, "Marketo lead id")
	leadSyncCmd.Flags().StringToStringVar(&leadAttrs, "attr", nil, "lead attribute as Name=value (repeatable)")
	leadSyncCmd.Flags().BoolVar(&leadNoDedup, "no-dedup", false, "always create a new lead")

	leadCmd.AddCommand(leadGetCmd)
	leadCmd.AddCommand(leadSyncCmd)
	leadCmd.AddCommand(leadIDCmd)
}

// leadLogger writes to stderr so stdout only carries the lead JSON
func leadLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logger.LineFormatter{})
	if level, err := logrus.ParseLevel(cfg.App.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return log
}

func printLead(lead *marketo.Lead) error {
	data, err := json.MarshalIndent(lead, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// getLead looks a lead up with getLead
func getLead(keyName, value string) error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	// Reject a bad key before building a client
	if _, err := marketo.NewLeadKey(keyName, value); err != nil {
		return err
	}

	log := leadLogger()
	client, err := newMarketoClient(cfg, log, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), leadTimeout)
	defer cancel()

	lead, err := client.Leads.GetByKey(ctx, keyName, value)
	if err != nil {
		return err
	}

	rememberLeadID(lead, log)
	return printLead(lead)
}

// syncLead creates or updates one lead with syncLead, or syncMultipleLeads
// when de-duplication is turned off
func syncLead() error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	if leadEmail == "" && leadID == 0 {
		return fmt.Errorf("--email or --id is required")
	}

	log := leadLogger()
	client, err := newMarketoClient(cfg, log, nil)
	if err != nil {
		return err
	}

	lead := client.Leads.New(leadAttrs)
	if leadEmail != "" {
		lead.Email = leadEmail
	}
	lead.ID = leadID

	if cfg.App.TestMode {
		log.Infof("TEST MODE: Would sync lead %s", describe(lead))
		return printLead(lead)
	}

	ctx, cancel := context.WithTimeout(context.Background(), leadTimeout)
	defer cancel()

	var synced *marketo.Lead
	if leadNoDedup {
		leads, statuses, err := client.Leads.SyncMultiple(ctx, []*marketo.Lead{lead}, marketo.WithDedup(false))
		if err != nil {
			return err
		}
		if len(statuses) > 0 && statuses[0].Status == marketo.SyncStatusFailed {
			return fmt.Errorf("failed to sync lead %s: %s", describe(lead), statuses[0].Error)
		}
		synced = leads[0]
	} else {
		synced, err = lead.Sync(ctx)
		if err != nil {
			return err
		}
	}

	log.Infof("Synced lead %s (id %d)", describe(synced), synced.ID)
	rememberLeadID(synced, log)
	return printLead(synced)
}

// cachedLeadID reads the lead id cache
func cachedLeadID(email string) error {
	if _, err := requireConfig(); err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.LeadID(email)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no cached id for %s - run a sync or 'lead get email %s'", email, email)
	}
	if err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}

// rememberLeadID records the lead id in the store when it is not held by a
// running server
func rememberLeadID(lead *marketo.Lead, log logrus.FieldLogger) {
	if lead.Email == "" || lead.ID == 0 {
		return
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Debugf("Skipping lead id cache: %v", err)
		return
	}
	defer st.Close()

	if err := st.CacheLeadID(lead.Email, lead.ID); err != nil {
		log.Warnf("Failed to cache lead id: %v", err)
	}
}

func describe(lead *marketo.Lead) string {
	if lead.Email != "" {
		return lead.Email
	}
	return fmt.Sprintf("#%d", lead.ID)
}
