package marketo

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	mktowsNS       = "http://www.marketo.com/mktows/"
)

type requestEnvelope struct {
	XMLName xml.Name      `xml:"SOAP-ENV:Envelope"`
	EnvNS   string        `xml:"xmlns:SOAP-ENV,attr"`
	NS1     string        `xml:"xmlns:ns1,attr"`
	Header  requestHeader `xml:"SOAP-ENV:Header"`
	Body    requestBody   `xml:"SOAP-ENV:Body"`
}

type requestHeader struct {
	Auth authenticationHeader `xml:"ns1:AuthenticationHeader"`
}

type authenticationHeader struct {
	UserID    string `xml:"mktowsUserId"`
	Signature string `xml:"requestSignature"`
	Timestamp string `xml:"requestTimestamp"`
}

type requestBody struct {
	Payload interface{}
}

type responseEnvelope struct {
	Body struct {
		Fault   *Fault `xml:"Fault"`
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

type leadAttribute struct {
	Name  string `xml:"attrName"`
	Type  string `xml:"attrType,omitempty"`
	Value string `xml:"attrValue"`
}

type leadRecord struct {
	ID                 int64           `xml:"Id,omitempty"`
	Email              string          `xml:"Email,omitempty"`
	ForeignSysPersonID string          `xml:"ForeignSysPersonId,omitempty"`
	ForeignSysType     string          `xml:"ForeignSysType,omitempty"`
	Attributes         []leadAttribute `xml:"leadAttributeList>attribute"`
}

type syncStatus struct {
	LeadID int64  `xml:"leadId"`
	Status string `xml:"status"`
	Error  string `xml:"error"`
}

type paramsGetLead struct {
	XMLName xml.Name `xml:"ns1:paramsGetLead"`
	LeadKey LeadKey  `xml:"leadKey"`
}

type successGetLead struct {
	XMLName xml.Name `xml:"successGetLead"`
	Result  struct {
		Count          int          `xml:"count"`
		LeadRecordList []leadRecord `xml:"leadRecordList>leadRecord"`
	} `xml:"result"`
}

type paramsSyncLead struct {
	XMLName       xml.Name   `xml:"ns1:paramsSyncLead"`
	LeadRecord    leadRecord `xml:"leadRecord"`
	ReturnLead    bool       `xml:"returnLead"`
	MarketoCookie string     `xml:"marketoCookie,omitempty"`
}

type successSyncLead struct {
	XMLName xml.Name `xml:"successSyncLead"`
	Result  struct {
		LeadID     int64       `xml:"leadId"`
		SyncStatus syncStatus  `xml:"syncStatus"`
		LeadRecord *leadRecord `xml:"leadRecord"`
	} `xml:"result"`
}

type paramsSyncMultipleLeads struct {
	XMLName      xml.Name     `xml:"ns1:paramsSyncMultipleLeads"`
	LeadRecords  []leadRecord `xml:"leadRecordList>leadRecord"`
	DedupEnabled bool         `xml:"dedupEnabled"`
}

type successSyncMultipleLeads struct {
	XMLName xml.Name `xml:"successSyncMultipleLeads"`
	Result  struct {
		SyncStatusList []syncStatus `xml:"syncStatusList>syncStatus"`
		LeadRecordList []leadRecord `xml:"leadRecordList>leadRecord"`
	} `xml:"result"`
}

func encodeEnvelope(auth authenticationHeader, payload interface{}) ([]byte, error) {
	env := requestEnvelope{
		EnvNS:  soapEnvelopeNS,
		NS1:    mktowsNS,
		Header: requestHeader{Auth: auth},
		Body:   requestBody{Payload: payload},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("failed to encode SOAP envelope: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeEnvelope unpacks a response body into result, or returns the fault
// the service sent instead
func decodeEnvelope(data []byte, result interface{}) error {
	var env responseEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to decode SOAP envelope: %w", err)
	}
	if env.Body.Fault != nil {
		return env.Body.Fault
	}
	if result == nil {
		return nil
	}
	if err := xml.Unmarshal(env.Body.Content, result); err != nil {
		return fmt.Errorf("failed to decode SOAP body: %w", err)
	}
	return nil
}
