package marketo

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is matched by every lead key construction error.
	ErrInvalidKey = errors.New("invalid lead key")

	// ErrLeadNotFound is returned when Marketo has no lead for a key.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrNotImplemented is returned by lead operations this client does not support.
	ErrNotImplemented = errors.New("operation not implemented")

	// ErrNoProxy is returned by Lead methods that need a Leads service when
	// the lead was not created through one.
	ErrNoProxy = errors.New("lead has no leads service attached")
)

// Marketo service exception codes
const (
	codeLeadNotFound = "20103"
)

// InvalidKeyError reports a lead key that cannot be constructed
type InvalidKeyError struct {
	KeyType string
	Value   string
	Reason  string
}

func (e *InvalidKeyError) Error() string {
	if e.KeyType == "" {
		return "invalid lead key: " + e.Reason
	}
	return fmt.Sprintf("%q is not a valid lead key: %s", e.KeyType, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidKey) true for every InvalidKeyError
func (e *InvalidKeyError) Is(target error) bool {
	return target == ErrInvalidKey
}

// Fault represents a SOAP fault returned by the Marketo service
type Fault struct {
	Code   string      `xml:"faultcode"`
	String string      `xml:"faultstring"`
	Detail FaultDetail `xml:"detail>serviceException"`
}

// FaultDetail holds the Marketo serviceException carried by a fault
type FaultDetail struct {
	Name    string `xml:"name"`
	Message string `xml:"message"`
	Code    string `xml:"code"`
}

func (f *Fault) Error() string {
	if f.Detail.Code != "" {
		return fmt.Sprintf("marketo fault %s (%s): %s", f.Detail.Code, f.Code, f.Detail.Message)
	}
	return fmt.Sprintf("marketo fault (%s): %s", f.Code, f.String)
}

// Is maps Marketo service exception codes to sentinel errors
func (f *Fault) Is(target error) bool {
	return target == ErrLeadNotFound && f.Detail.Code == codeLeadNotFound
}

// HTTPError is returned when the endpoint answers with an error status and
// no SOAP fault
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return "failed to perform request: " + e.err.Error()
}

func (e *transportError) Unwrap() error {
	return e.err
}
