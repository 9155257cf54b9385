package marketo

import (
	"sort"
	"strconv"
	"strings"
)

// KeyType identifies the field Marketo uses to look a lead up
type KeyType string

// Lead key types understood by getLead
const (
	KeyTypeID                    KeyType = "IDNUM"
	KeyTypeCookie                KeyType = "COOKIE"
	KeyTypeEmail                 KeyType = "EMAIL"
	KeyTypeLeadOwnerEmail        KeyType = "LEADOWNEREMAIL"
	KeyTypeSalesforceAccountID   KeyType = "SFDCACCOUNTID"
	KeyTypeSalesforceContactID   KeyType = "SFDCCONTACTID"
	KeyTypeSalesforceLeadID      KeyType = "SFDCLEADID"
	KeyTypeSalesforceLeadOwnerID KeyType = "SFDCLEADOWNERID"
	KeyTypeSalesforceOpportunity KeyType = "SFDCOPPTYID"
)

// NamedKeys maps the friendly lookup names to their key types
var NamedKeys = map[string]KeyType{
	"id":                        KeyTypeID,
	"cookie":                    KeyTypeCookie,
	"email":                     KeyTypeEmail,
	"lead_owner_email":          KeyTypeLeadOwnerEmail,
	"salesforce_account_id":     KeyTypeSalesforceAccountID,
	"salesforce_contact_id":     KeyTypeSalesforceContactID,
	"salesforce_lead_id":        KeyTypeSalesforceLeadID,
	"salesforce_lead_owner_id":  KeyTypeSalesforceLeadOwnerID,
	"salesforce_opportunity_id": KeyTypeSalesforceOpportunity,
}

var keyTypes = map[KeyType]bool{
	KeyTypeID:                    true,
	KeyTypeCookie:                true,
	KeyTypeEmail:                 true,
	KeyTypeLeadOwnerEmail:        true,
	KeyTypeSalesforceAccountID:   true,
	KeyTypeSalesforceContactID:   true,
	KeyTypeSalesforceLeadID:      true,
	KeyTypeSalesforceLeadOwnerID: true,
	KeyTypeSalesforceOpportunity: true,
}

// LeadKey is the typed lookup handle sent to getLead
type LeadKey struct {
	Type  KeyType `xml:"keyType" json:"key_type"`
	Value string  `xml:"keyValue" json:"key_value"`
}

// ParseKeyType resolves a named key ("email") or a key type ("EMAIL"),
// case-insensitively
func ParseKeyType(typeOrName string) (KeyType, bool) {
	name := strings.ToLower(strings.TrimSpace(typeOrName))
	if kt, ok := NamedKeys[name]; ok {
		return kt, true
	}
	kt := KeyType(strings.ToUpper(name))
	if keyTypes[kt] {
		return kt, true
	}
	return "", false
}

// NewLeadKey builds a LeadKey from a named key or key type and a value
func NewLeadKey(typeOrName, value string) (LeadKey, error) {
	kt, ok := ParseKeyType(typeOrName)
	if !ok {
		return LeadKey{}, &InvalidKeyError{KeyType: typeOrName, Value: value, Reason: "unknown key type"}
	}
	if strings.TrimSpace(value) == "" {
		return LeadKey{}, &InvalidKeyError{KeyType: typeOrName, Value: value, Reason: "empty key value"}
	}
	if kt == KeyTypeID {
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return LeadKey{}, &InvalidKeyError{KeyType: typeOrName, Value: value, Reason: "lead id must be numeric"}
		}
	}
	return LeadKey{Type: kt, Value: value}, nil
}

// Validate reports whether the key could have been built by NewLeadKey
func (k LeadKey) Validate() error {
	_, err := NewLeadKey(string(k.Type), k.Value)
	return err
}

// NamedKeyNames returns the friendly lookup names in sorted order
func NamedKeyNames() []string {
	names := make([]string, 0, len(NamedKeys))
	for name := range NamedKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
