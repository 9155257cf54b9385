package setup

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateDocumentation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")
	var out bytes.Buffer

	if err := generateDocumentation(dir, &out); err != nil {
		t.Fatalf("Failed to generate documentation: %v", err)
	}

	for _, name := range []string{"SETUP.md", "API.md", "LEAD_KEYS.md", "TROUBLESHOOTING.md"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("Expected %s to be written: %v", name, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("Expected %s to have content", name)
		}
	}

	if !strings.Contains(out.String(), dir) {
		t.Errorf("Expected output to mention %s, got %q", dir, out.String())
	}
}

func TestLeadKeysGuide(t *testing.T) {
	guide := leadKeysGuide()

	for _, want := range []string{"| `email` | `EMAIL` |", "| `id` | `IDNUM` |", "| `salesforce_lead_id` | `SFDCLEADID` |"} {
		if !strings.Contains(guide, want) {
			t.Errorf("Expected guide to contain %q", want)
		}
	}
}
