package marketo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultAPIVersion is the mktows version used when only a subdomain is configured
const DefaultAPIVersion = "2_3"

// Observer receives the outcome of every SOAP call
type Observer interface {
	ObserveCall(operation, status string, duration time.Duration)
}

// Options configures a Client
type Options struct {
	UserID        string
	EncryptionKey string
	// Endpoint is the full SOAP URL. When empty it is built from Subdomain
	// and APIVersion.
	Endpoint   string
	Subdomain  string
	APIVersion string

	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration

	HTTPClient *http.Client
	Logger     logrus.FieldLogger
	Observer   Observer
}

// Client handles Marketo SOAP API operations
type Client struct {
	userID        string
	encryptionKey string
	endpoint      string
	retryAttempts int
	retryDelay    time.Duration
	httpClient    *http.Client
	logger        logrus.FieldLogger
	observer      Observer
	tracer        trace.Tracer
	now           func() time.Time

	// Leads exposes the lead operations
	Leads *Leads
}

// EndpointFor returns the SOAP endpoint of a Marketo instance
func EndpointFor(subdomain, apiVersion string) string {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	return fmt.Sprintf("https://%s.mktoapi.com/soap/mktows/%s", subdomain, apiVersion)
}

// NewClient creates a new Marketo SOAP client
func NewClient(opts Options) (*Client, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("marketo user id is required")
	}
	if opts.EncryptionKey == "" {
		return nil, fmt.Errorf("marketo encryption key is required")
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		if opts.Subdomain == "" {
			return nil, fmt.Errorf("marketo endpoint or subdomain is required")
		}
		endpoint = EndpointFor(opts.Subdomain, opts.APIVersion)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}

	retryAttempts := opts.RetryAttempts
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	c := &Client{
		userID:        opts.UserID,
		encryptionKey: opts.EncryptionKey,
		endpoint:      strings.TrimSuffix(endpoint, "/"),
		retryAttempts: retryAttempts,
		retryDelay:    opts.RetryDelay,
		httpClient:    httpClient,
		logger:        logger,
		observer:      opts.Observer,
		tracer:        otel.Tracer("github.com/gobeyondidentity/marketo-sync/internal/marketo"),
		now:           time.Now,
	}
	c.Leads = &Leads{client: c}

	return c, nil
}

// Endpoint returns the SOAP URL the client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// call performs one SOAP operation, retrying transport failures and server
// errors that did not carry a fault
func (c *Client) call(ctx context.Context, operation string, params, result interface{}) error {
	ctx, span := c.tracer.Start(ctx, "marketo."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("marketo.operation", operation)),
	)
	defer span.End()

	start := time.Now()
	var err error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		err = c.doCall(ctx, operation, params, result)
		if err == nil || !retryable(err) || attempt == c.retryAttempts {
			break
		}

		delay := time.Duration(attempt) * c.retryDelay
		c.logger.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
		}).Warnf("Marketo call failed, retrying in %v: %v", delay, err)

		if waitErr := sleepContext(ctx, delay); waitErr != nil {
			err = waitErr
			break
		}
	}

	status := callStatus(err)
	if c.observer != nil {
		c.observer.ObserveCall(operation, status, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("marketo.status", status))

	return err
}

func (c *Client) doCall(ctx context.Context, operation string, params, result interface{}) error {
	auth := newAuthenticationHeader(c.userID, c.encryptionKey, c.now())
	body, err := encodeEnvelope(auth, params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Accept", "text/xml")
	req.Header.Set("SOAPAction", `"`+operation+`"`)

	c.logger.WithField("operation", operation).Debug("Calling Marketo SOAP API")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// Marketo reports faults with HTTP 500, so try the envelope first
	if err := decodeEnvelope(respBody, result); err != nil {
		var fault *Fault
		if errors.As(err, &fault) {
			return fault
		}
		if resp.StatusCode >= 400 {
			return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return err
	}

	if resp.StatusCode >= 400 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fault *Fault
	if errors.As(err, &fault) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.retryable()
	}
	var transportErr *transportError
	return errors.As(err, &transportErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func callStatus(err error) string {
	if err == nil {
		return "success"
	}
	var fault *Fault
	if errors.As(err, &fault) {
		return "fault"
	}
	return "error"
}
