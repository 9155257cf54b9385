package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
)

// CSVSource reads leads from a local CSV file
type CSVSource struct {
	path  string
	types map[string]string
}

// NewCSVSource creates a CSV source; types maps column names to Marketo attrTypes
func NewCSVSource(path string, types map[string]string) *CSVSource {
	return &CSVSource{path: path, types: types}
}

// Name describes the source for logs and run history
func (s *CSVSource) Name() string {
	return "csv:" + s.path
}

// Fetch parses the file into leads
func (s *CSVSource) Fetch(ctx context.Context) ([]*marketo.Lead, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	return ParseCSV(f, s.types)
}

// ParseCSV reads leads from CSV data. The header row names the attributes;
// the Email and Id columns (any case) fill Lead.Email and Lead.ID. Empty cells
// are left out so they do not blank fields in Marketo.
func ParseCSV(r io.Reader, types map[string]string) ([]*marketo.Lead, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	var leads []*marketo.Lead
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		lead := marketo.NewLead(nil)
		for i, name := range header {
			if i >= len(row) || name == "" {
				continue
			}
			value := strings.TrimSpace(row[i])
			if value == "" {
				continue
			}

			switch strings.ToLower(name) {
			case "email":
				lead.Email = value
			case "id":
				id, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid Id %q on CSV line %d", value, line)
				}
				lead.ID = id
			default:
				lead.SetTyped(name, value, types[name])
			}
		}
		leads = append(leads, lead)
	}

	return leads, nil
}
