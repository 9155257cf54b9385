package setup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
)

// GenerateDocumentation creates setup documentation files
func GenerateDocumentation(outputDir string) error {
	return generateDocumentation(outputDir, os.Stdout)
}

func generateDocumentation(outputDir string, out io.Writer) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	guides := map[string]string{
		"SETUP.md":           setupGuide,
		"API.md":             apiGuide,
		"LEAD_KEYS.md":       leadKeysGuide(),
		"TROUBLESHOOTING.md": troubleshootingGuide,
	}

	for name, content := range guides {
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	fmt.Fprintf(out, "✅ Documentation generated in %s\n", outputDir)
	return nil
}

// leadKeysGuide documents the lookup names accepted by "lead get" and GET /leads
func leadKeysGuide() string {
	var b strings.Builder
	b.WriteString("# Lead Keys\n\n")
	b.WriteString("Leads are looked up by a key type and a value. Either the friendly name or the\n")
	b.WriteString("Marketo key type can be used:\n\n")
	b.WriteString("| Name | Key type |\n|------|----------|\n")

	names := marketo.NamedKeyNames()
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "| `%s` | `%s` |\n", name, marketo.NamedKeys[name])
	}

	b.WriteString("\nExample:\n\n```bash\n./marketo-sync lead get email jane@example.com\n```\n")
	return b.String()
}

const setupGuide = `# Marketo Sync Setup Guide

## Quick Start

### 1. Run the Setup Wizard
` + "```bash" + `
./marketo-sync setup wizard
` + "```" + `

This will guide you through:
- Application configuration (log level, test mode)
- Marketo SOAP credentials (user id, encryption key, subdomain)
- Lead source (CSV file, S3 object or Google Workspace directory)
- Sync settings (batch size, de-duplication, retries)
- Server mode settings (port, scheduling)

### 2. Validate Setup
` + "```bash" + `
./marketo-sync setup validate
` + "```" + `

### 3. Run Your First Sync
Keep ` + "`app.test_mode: true`" + ` for the first run; leads are read and batched but nothing is written to Marketo.

` + "```bash" + `
./marketo-sync run
` + "```" + `

## Marketo Credentials

The SOAP API signs every request with the user id and encryption key found in
Marketo under Admin > Integration > SOAP API. The endpoint is derived from the
instance subdomain:

` + "```" + `
https://<subdomain>.mktoapi.com/soap/mktows/2_3
` + "```" + `

Set ` + "`marketo.endpoint`" + ` to override it. Credentials can reference environment variables:

` + "```yaml" + `
marketo:
  user_id: "${MARKETO_USER_ID}"
  encryption_key: "${MARKETO_ENCRYPTION_KEY}"
  subdomain: "100-AEK-913"
` + "```" + `

## Lead Sources

### CSV
The header row names the lead attributes. ` + "`Email`" + ` and ` + "`Id`" + ` columns map to the lead email and Marketo id.

` + "```yaml" + `
source:
  type: csv
  csv:
    path: ./leads.csv
    types:
      AnnualRevenue: integer
` + "```" + `

### S3
The same CSV format, read from an S3 object using the default AWS credential chain.

` + "```yaml" + `
source:
  type: s3
  s3:
    region: us-east-1
    bucket: marketing-exports
    key: leads/latest.csv
` + "```" + `

### Google Workspace
Active users of the domain, optionally limited to members of the listed groups.
The service account needs domain-wide delegation with the read-only directory scopes.

` + "```yaml" + `
source:
  type: google_workspace
  google_workspace:
    domain: example.com
    super_admin_email: admin@example.com
    service_account_key_path: ./service-account.json
    groups:
      - marketing@example.com
` + "```" + `

## Scheduling

` + "```yaml" + `
server:
  schedule_enabled: true
  schedule: "0 */6 * * *"  # Every 6 hours
` + "```" + `
`

const apiGuide = `# Marketo Sync API Reference

When running in server mode (` + "`./marketo-sync server`" + `), the application provides an HTTP API.
By default the server listens on port 8080.

## Endpoints

| Method | Path | Description |
|--------|------|-------------|
| GET | /health | Health, version and schedule |
| POST | /sync | Run a sync now; 409 if one is already running |
| GET | /stats | Run counters since start |
| GET | /history?limit=20 | Recent sync runs from the local store |
| GET | /metrics | Prometheus metrics |
| GET | /leads/{key}/{value} | Look up a lead, e.g. /leads/email/jane@example.com |
| POST | /leads | Sync one lead |
| POST | /leads/batch?dedup=false | Sync several leads in one call |
| POST | /scheduler/start | Start the scheduler |
| POST | /scheduler/stop | Stop the scheduler |
| GET | /scheduler/status | Scheduler state and next run |
| GET | /version | Build version |

## Lead Bodies

` + "```json" + `
{
  "email": "jane@example.com",
  "attributes": {"FirstName": "Jane", "Company": "Acme"}
}
` + "```" + `

Batches wrap leads in ` + "`{\"leads\": [...]}`" + `. In test mode the lead endpoints echo the
input without calling Marketo.

## Errors

| Status | Meaning |
|--------|---------|
| 400 | Invalid lead key or request body |
| 404 | Lead not found |
| 409 | A sync run is already in progress |
| 501 | Operation not supported by the client |
| 502 | Marketo returned a SOAP fault |
| 500 | Other errors |
`

const troubleshootingGuide = `# Marketo Sync Troubleshooting

## Authentication Failed
Marketo rejects requests whose signature does not match. Check:
- ` + "`marketo.user_id`" + ` and ` + "`marketo.encryption_key`" + ` are copied exactly
- The system clock is correct; the signature includes the request timestamp

## Lead Not Found
` + "`lead get`" + ` returns "lead not found" when Marketo answers with fault 20103. Try
another key type, e.g. ` + "`id`" + ` instead of ` + "`email`" + `.

## Batch Failures
Batches are retried ` + "`sync.retry_attempts`" + ` times with a growing delay. A batch that still
fails counts all its leads as failed; see ` + "`./marketo-sync history`" + ` or GET /history.

## Store Locked
Only one process can open the local store. Stop the server before running
` + "`./marketo-sync run`" + ` against the same ` + "`store.path`" + `.

## Debug Logging
` + "```yaml" + `
app:
  log_level: debug
` + "```" + `
`
