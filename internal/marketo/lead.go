package marketo

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
)

// emailAttribute is the Marketo attribute name mirrored by Lead.Email
const emailAttribute = "Email"

// Lead is a Marketo lead record with a dynamic attribute list
type Lead struct {
	ID                 int64
	Email              string
	ForeignSysPersonID string
	ForeignSysType     string
	// Cookie is the Munchkin tracking cookie, sent as marketoCookie on sync
	Cookie string

	attributes map[string]string
	types      map[string]string
	proxy      *Leads
}

// NewLead creates a lead with the given attributes
func NewLead(attrs map[string]string) *Lead {
	lead := &Lead{
		attributes: make(map[string]string),
		types:      make(map[string]string),
	}
	for name, value := range attrs {
		lead.Set(name, value)
	}
	return lead
}

// Set assigns an attribute value, keeping any known type
func (l *Lead) Set(name, value string) {
	if name == emailAttribute {
		l.Email = value
		return
	}
	if l.attributes == nil {
		l.attributes = make(map[string]string)
	}
	l.attributes[name] = value
}

// SetTyped assigns an attribute value together with its Marketo attrType
func (l *Lead) SetTyped(name, value, attrType string) {
	l.Set(name, value)
	if attrType == "" || name == emailAttribute {
		return
	}
	if l.types == nil {
		l.types = make(map[string]string)
	}
	l.types[name] = attrType
}

// Get returns an attribute value and whether it is set
func (l *Lead) Get(name string) (string, bool) {
	if name == emailAttribute {
		return l.Email, l.Email != ""
	}
	value, ok := l.attributes[name]
	return value, ok
}

// Delete removes an attribute
func (l *Lead) Delete(name string) {
	if name == emailAttribute {
		l.Email = ""
		return
	}
	delete(l.attributes, name)
	delete(l.types, name)
}

// Type returns the Marketo attrType recorded for an attribute
func (l *Lead) Type(name string) string {
	return l.types[name]
}

// Names returns the attribute names in sorted order
func (l *Lead) Names() []string {
	names := make([]string, 0, len(l.attributes))
	for name := range l.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attributes returns a copy of the attribute values
func (l *Lead) Attributes() map[string]string {
	attrs := make(map[string]string, len(l.attributes))
	for name, value := range l.attributes {
		attrs[name] = value
	}
	return attrs
}

// Key derives the most specific lookup key the lead carries
func (l *Lead) Key() (LeadKey, error) {
	switch {
	case l.ID != 0:
		return LeadKey{Type: KeyTypeID, Value: strconv.FormatInt(l.ID, 10)}, nil
	case l.Cookie != "":
		return LeadKey{Type: KeyTypeCookie, Value: l.Cookie}, nil
	case l.Email != "":
		return LeadKey{Type: KeyTypeEmail, Value: l.Email}, nil
	}
	return LeadKey{}, &InvalidKeyError{Reason: "lead has no id, cookie or email"}
}

// Sync pushes the lead through the Leads service it came from and returns
// the record Marketo stored
func (l *Lead) Sync(ctx context.Context) (*Lead, error) {
	if l.proxy == nil {
		return nil, ErrNoProxy
	}
	return l.proxy.Sync(ctx, l)
}

// Reload fetches the current record for this lead from Marketo
func (l *Lead) Reload(ctx context.Context) (*Lead, error) {
	if l.proxy == nil {
		return nil, ErrNoProxy
	}
	return l.proxy.GetByLead(ctx, l)
}

func (l *Lead) toRecord() leadRecord {
	record := leadRecord{
		ID:                 l.ID,
		Email:              l.Email,
		ForeignSysPersonID: l.ForeignSysPersonID,
		ForeignSysType:     l.ForeignSysType,
	}
	for _, name := range l.Names() {
		record.Attributes = append(record.Attributes, leadAttribute{
			Name:  name,
			Type:  l.types[name],
			Value: l.attributes[name],
		})
	}
	return record
}

func leadFromRecord(record leadRecord, proxy *Leads) *Lead {
	lead := NewLead(nil)
	lead.ID = record.ID
	lead.Email = record.Email
	lead.ForeignSysPersonID = record.ForeignSysPersonID
	lead.ForeignSysType = record.ForeignSysType
	lead.proxy = proxy
	for _, attr := range record.Attributes {
		if attr.Name == emailAttribute && lead.Email != "" {
			continue
		}
		lead.SetTyped(attr.Name, attr.Value, attr.Type)
	}
	return lead
}

type leadJSON struct {
	ID                 int64             `json:"id,omitempty"`
	Email              string            `json:"email,omitempty"`
	ForeignSysPersonID string            `json:"foreign_sys_person_id,omitempty"`
	ForeignSysType     string            `json:"foreign_sys_type,omitempty"`
	Cookie             string            `json:"cookie,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`
	Types              map[string]string `json:"types,omitempty"`
}

// MarshalJSON encodes the lead for the HTTP API
func (l *Lead) MarshalJSON() ([]byte, error) {
	return json.Marshal(leadJSON{
		ID:                 l.ID,
		Email:              l.Email,
		ForeignSysPersonID: l.ForeignSysPersonID,
		ForeignSysType:     l.ForeignSysType,
		Cookie:             l.Cookie,
		Attributes:         l.attributes,
		Types:              l.types,
	})
}

// UnmarshalJSON decodes a lead from the HTTP API representation
func (l *Lead) UnmarshalJSON(data []byte) error {
	var raw leadJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := NewLead(nil)
	for name, value := range raw.Attributes {
		decoded.SetTyped(name, value, raw.Types[name])
	}
	if raw.Email != "" {
		decoded.Email = raw.Email
	}
	decoded.ID = raw.ID
	decoded.ForeignSysPersonID = raw.ForeignSysPersonID
	decoded.ForeignSysType = raw.ForeignSysType
	decoded.Cookie = raw.Cookie
	decoded.proxy = l.proxy
	*l = *decoded
	return nil
}
