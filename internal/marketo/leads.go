package marketo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// SyncStatus reports the outcome of syncing one lead
type SyncStatus struct {
	LeadID int64  `json:"lead_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Marketo sync statuses
const (
	SyncStatusCreated = "CREATED"
	SyncStatusUpdated = "UPDATED"
	SyncStatusFailed  = "FAILED"
)

// Leads implements the Marketo lead operations
type Leads struct {
	client *Client
}

// New creates a lead attached to this service, so Lead.Sync and Lead.Reload work
func (s *Leads) New(attrs map[string]string) *Lead {
	lead := NewLead(attrs)
	lead.proxy = s
	return lead
}

// Get implements getLead for a lead key
func (s *Leads) Get(ctx context.Context, key LeadKey) (*Lead, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var resp successGetLead
	if err := s.client.call(ctx, "getLead", &paramsGetLead{LeadKey: key}, &resp); err != nil {
		return nil, fmt.Errorf("failed to get lead by %s: %w", key.Type, err)
	}

	if len(resp.Result.LeadRecordList) == 0 {
		return nil, fmt.Errorf("no lead with %s %q: %w", key.Type, key.Value, ErrLeadNotFound)
	}

	return leadFromRecord(resp.Result.LeadRecordList[0], s), nil
}

// GetByKey looks a lead up by a named key ("email") or key type ("EMAIL")
func (s *Leads) GetByKey(ctx context.Context, typeOrName, value string) (*Lead, error) {
	key, err := NewLeadKey(typeOrName, value)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, key)
}

// GetByLead looks a lead up by the most specific key the given lead carries
func (s *Leads) GetByLead(ctx context.Context, lead *Lead) (*Lead, error) {
	key, err := lead.Key()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, key)
}

// GetByNamedKey dispatches a friendly lookup name to Get. Names match
// case-insensitively, like NewLeadKey.
func (s *Leads) GetByNamedKey(ctx context.Context, name, value string) (*Lead, error) {
	keyType, ok := NamedKeys[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &InvalidKeyError{KeyType: name, Value: value, Reason: "unknown named key"}
	}
	return s.GetByKey(ctx, string(keyType), value)
}

// GetByID gets the lead by its Marketo id
func (s *Leads) GetByID(ctx context.Context, id int64) (*Lead, error) {
	return s.GetByNamedKey(ctx, "id", strconv.FormatInt(id, 10))
}

// GetByCookie gets the lead by its Munchkin cookie
func (s *Leads) GetByCookie(ctx context.Context, cookie string) (*Lead, error) {
	return s.GetByNamedKey(ctx, "cookie", cookie)
}

// GetByEmail gets the lead by email
func (s *Leads) GetByEmail(ctx context.Context, email string) (*Lead, error) {
	return s.GetByNamedKey(ctx, "email", email)
}

// GetByLeadOwnerEmail gets the lead by its owner's email
func (s *Leads) GetByLeadOwnerEmail(ctx context.Context, email string) (*Lead, error) {
	return s.GetByNamedKey(ctx, "lead_owner_email", email)
}

// GetBySalesforceAccountID gets the lead by SFDC account id
func (s *Leads) GetBySalesforceAccountID(ctx context.Context, id string) (*Lead, error) {
	return s.GetByNamedKey(ctx, "salesforce_account_id", id)
}

// GetBySalesforceContactID gets the lead by SFDC contact id
func (s *Leads) GetBySalesforceContactID(ctx context.Context, id string) (*Lead, error) {
	return s.GetByNamedKey(ctx, "salesforce_contact_id", id)
}

// GetBySalesforceLeadID gets the lead by SFDC lead id
func (s *Leads) GetBySalesforceLeadID(ctx context.Context, id string) (*Lead, error) {
	return s.GetByNamedKey(ctx, "salesforce_lead_id", id)
}

// GetBySalesforceLeadOwnerID gets the lead by SFDC lead owner id
func (s *Leads) GetBySalesforceLeadOwnerID(ctx context.Context, id string) (*Lead, error) {
	return s.GetByNamedKey(ctx, "salesforce_lead_owner_id", id)
}

// GetBySalesforceOpportunityID gets the lead by SFDC opportunity id
func (s *Leads) GetBySalesforceOpportunityID(ctx context.Context, id string) (*Lead, error) {
	return s.GetByNamedKey(ctx, "salesforce_opportunity_id", id)
}

// Sync implements syncLead, creating or updating the lead and returning the
// record Marketo stored
func (s *Leads) Sync(ctx context.Context, lead *Lead) (*Lead, error) {
	if lead == nil {
		return nil, &InvalidKeyError{Reason: "lead is empty"}
	}

	params := &paramsSyncLead{
		LeadRecord:    lead.toRecord(),
		ReturnLead:    true,
		MarketoCookie: lead.Cookie,
	}

	var resp successSyncLead
	if err := s.client.call(ctx, "syncLead", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to sync lead: %w", err)
	}

	if resp.Result.SyncStatus.Status == SyncStatusFailed {
		return nil, fmt.Errorf("failed to sync lead: %s", resp.Result.SyncStatus.Error)
	}

	if resp.Result.LeadRecord != nil {
		synced := leadFromRecord(*resp.Result.LeadRecord, s)
		synced.Cookie = lead.Cookie
		return synced, nil
	}

	leadID := resp.Result.LeadID
	if leadID == 0 {
		leadID = resp.Result.SyncStatus.LeadID
	}
	if leadID != 0 {
		lead.ID = leadID
	}
	lead.proxy = s
	return lead, nil
}

type syncOptions struct {
	dedupEnabled bool
}

// SyncOption adjusts a SyncMultiple call
type SyncOption func(*syncOptions)

// WithDedup toggles Marketo de-duplication for SyncMultiple (enabled by default)
func WithDedup(enabled bool) SyncOption {
	return func(o *syncOptions) {
		o.dedupEnabled = enabled
	}
}

// SyncMultiple implements syncMultipleLeads. The returned leads are the
// records Marketo sent back, or the input leads with their ids filled in from
// the positional sync statuses when the response carries no records.
func (s *Leads) SyncMultiple(ctx context.Context, leads []*Lead, opts ...SyncOption) ([]*Lead, []SyncStatus, error) {
	if len(leads) == 0 {
		return nil, nil, nil
	}

	options := syncOptions{dedupEnabled: true}
	for _, opt := range opts {
		opt(&options)
	}

	params := &paramsSyncMultipleLeads{
		LeadRecords:  make([]leadRecord, 0, len(leads)),
		DedupEnabled: options.dedupEnabled,
	}
	for i, lead := range leads {
		if lead == nil {
			return nil, nil, &InvalidKeyError{Reason: fmt.Sprintf("lead %d is empty", i)}
		}
		params.LeadRecords = append(params.LeadRecords, lead.toRecord())
	}

	var resp successSyncMultipleLeads
	if err := s.client.call(ctx, "syncMultipleLeads", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to sync %d leads: %w", len(leads), err)
	}

	statuses := make([]SyncStatus, 0, len(resp.Result.SyncStatusList))
	for _, st := range resp.Result.SyncStatusList {
		statuses = append(statuses, SyncStatus{LeadID: st.LeadID, Status: st.Status, Error: st.Error})
	}

	if len(resp.Result.LeadRecordList) > 0 {
		synced := make([]*Lead, 0, len(resp.Result.LeadRecordList))
		for _, record := range resp.Result.LeadRecordList {
			synced = append(synced, leadFromRecord(record, s))
		}
		return synced, statuses, nil
	}

	for i, lead := range leads {
		lead.proxy = s
		if i < len(statuses) && statuses[i].LeadID != 0 {
			lead.ID = statuses[i].LeadID
		}
	}
	return leads, statuses, nil
}

// LeadSelector selects leads for GetMultiple
type LeadSelector struct {
	Keys []LeadKey
}

// GetMultiple is not supported by this client
func (s *Leads) GetMultiple(ctx context.Context, selector LeadSelector) ([]*Lead, error) {
	return nil, fmt.Errorf("getMultipleLeads: %w", ErrNotImplemented)
}

// Merge is not supported by this client
func (s *Leads) Merge(ctx context.Context, winning LeadKey, losing []LeadKey) error {
	return fmt.Errorf("mergeLeads: %w", ErrNotImplemented)
}

// Activity is not supported by this client
func (s *Leads) Activity(ctx context.Context, key LeadKey) error {
	return fmt.Errorf("getLeadActivity: %w", ErrNotImplemented)
}

// Changes is not supported by this client
func (s *Leads) Changes(ctx context.Context, startPosition string) error {
	return fmt.Errorf("getLeadChanges: %w", ErrNotImplemented)
}
