package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/gobeyondidentity/marketo-sync/internal/config"
	"github.com/gobeyondidentity/marketo-sync/internal/marketo"
	"github.com/gobeyondidentity/marketo-sync/internal/metrics"
	"github.com/gobeyondidentity/marketo-sync/internal/store"
	syncengine "github.com/gobeyondidentity/marketo-sync/internal/sync"
)

// Mock sync engine for testing
type mockSyncEngine struct {
	err      error
	run      *store.SyncRun
	triggers []string
}

func (m *mockSyncEngine) Run(ctx context.Context, trigger string) (*store.SyncRun, error) {
	m.triggers = append(m.triggers, trigger)
	if m.err != nil {
		if errors.Is(m.err, syncengine.ErrRunInProgress) {
			return nil, m.err
		}
		return m.run, m.err
	}
	return m.run, nil
}

// Mock lead service for testing
type mockLeadService struct {
	leads  map[string]*marketo.Lead // keyed by email
	err    error
	synced []*marketo.Lead
}

func (m *mockLeadService) GetByKey(ctx context.Context, typeOrName, value string) (*marketo.Lead, error) {
	if m.err != nil {
		return nil, m.err
	}
	key, err := marketo.NewLeadKey(typeOrName, value)
	if err != nil {
		return nil, err
	}
	if key.Type == marketo.KeyTypeEmail {
		if lead, ok := m.leads[value]; ok {
			return lead, nil
		}
	}
	return nil, fmt.Errorf("no lead with %s %q: %w", key.Type, value, marketo.ErrLeadNotFound)
}

func (m *mockLeadService) Sync(ctx context.Context, lead *marketo.Lead) (*marketo.Lead, error) {
	if m.err != nil {
		return nil, m.err
	}
	lead.ID = 500
	m.synced = append(m.synced, lead)
	return lead, nil
}

func (m *mockLeadService) SyncMultiple(ctx context.Context, leads []*marketo.Lead, opts ...marketo.SyncOption) ([]*marketo.Lead, []marketo.SyncStatus, error) {
	if m.err != nil {
		return nil, nil, m.err
	}

	var statuses []marketo.SyncStatus
	for i, lead := range leads {
		lead.ID = int64(600 + i)
		statuses = append(statuses, marketo.SyncStatus{LeadID: lead.ID, Status: marketo.SyncStatusCreated})
	}
	m.synced = append(m.synced, leads...)
	return leads, statuses, nil
}

// Mock run history for testing
type mockHistory struct {
	runs      []*store.SyncRun
	lastLimit int
}

func (m *mockHistory) Runs(limit int) ([]*store.SyncRun, error) {
	m.lastLimit = limit
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

// Helper to create a test server without external dependencies
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.SetDefaults()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Reduce log noise during tests

	jane := marketo.NewLead(map[string]string{"FirstName": "Jane"})
	jane.ID = 42
	jane.Email = "jane@example.com"

	started := time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC)

	return &Server{
		config: cfg,
		logger: logger,
		stats:  NewStats(),
		syncEngine: &mockSyncEngine{
			run: &store.SyncRun{
				ID:           1,
				StartedAt:    started,
				FinishedAt:   started.Add(2 * time.Second),
				Source:       "mock",
				Trigger:      syncengine.TriggerAPI,
				LeadsRead:    6,
				LeadsCreated: 5,
				LeadsUpdated: 1,
				Batches:      1,
			},
		},
		leads: &mockLeadService{leads: map[string]*marketo.Lead{"jane@example.com": jane}},
		history: &mockHistory{runs: []*store.SyncRun{
			{ID: 3, Trigger: syncengine.TriggerSchedule},
			{ID: 2, Trigger: syncengine.TriggerAPI},
			{ID: 1, Trigger: syncengine.TriggerCLI},
		}},
		collector: metrics.NewCollector(),
	}
}

func serve(t *testing.T, server *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()

	router := mux.NewRouter()
	server.registerRoutes(router)

	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandleHealth(t *testing.T) {
	server := createTestServer(t)

	rr := serve(t, server, "GET", "/health", "")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", status)
	}

	var response HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Errorf("Failed to parse response: %v", err)
	}

	if response.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", response.Status)
	}
	if response.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, response.Version)
	}
	if response.Services["marketo"] != "ok" {
		t.Error("Expected marketo service to be ok")
	}
	if response.Services["store"] != "ok" {
		t.Error("Expected store service to be ok")
	}
	if response.SyncEnabled {
		t.Error("Expected sync to be disabled when no scheduler is configured")
	}
}

func TestHandleSync_Success(t *testing.T) {
	server := createTestServer(t)

	rr := serve(t, server, "POST", "/sync", "")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", status)
	}

	var response SyncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Errorf("Failed to parse response: %v", err)
	}

	if response.Status != "success" {
		t.Errorf("Expected status 'success', got '%s'", response.Status)
	}
	if response.Result == nil {
		t.Fatal("Expected result to be present")
	}
	if response.Result.LeadsCreated != 5 {
		t.Errorf("Expected 5 leads created, got %d", response.Result.LeadsCreated)
	}

	engine := server.syncEngine.(*mockSyncEngine)
	if len(engine.triggers) != 1 || engine.triggers[0] != syncengine.TriggerAPI {
		t.Errorf("Expected one api-triggered run, got %v", engine.triggers)
	}

	if stats := server.stats.GetStats(); stats.TotalSyncs != 1 || stats.TotalLeadsCreated != 5 {
		t.Errorf("Expected stats to record the run, got %+v", stats)
	}
}

func TestHandleSync_Error(t *testing.T) {
	server := createTestServer(t)
	server.syncEngine = &mockSyncEngine{err: errors.New("mock sync error")}

	rr := serve(t, server, "POST", "/sync", "")

	if status := rr.Code; status != http.StatusInternalServerError {
		t.Errorf("Expected status code 500, got %d", status)
	}

	var response SyncResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Errorf("Failed to parse response: %v", err)
	}

	if response.Status != "error" {
		t.Errorf("Expected status 'error', got '%s'", response.Status)
	}
	if response.Error == "" {
		t.Error("Expected error message to be present")
	}
	if server.stats.GetStats().FailedSyncs != 1 {
		t.Error("Expected failed sync to be recorded")
	}
}

func TestHandleSync_InProgress(t *testing.T) {
	server := createTestServer(t)
	server.syncEngine = &mockSyncEngine{err: syncengine.ErrRunInProgress}

	rr := serve(t, server, "POST", "/sync", "")

	if status := rr.Code; status != http.StatusConflict {
		t.Errorf("Expected status code 409, got %d", status)
	}
	if server.stats.GetStats().TotalSyncs != 0 {
		t.Error("Expected rejected sync not to be recorded")
	}
}

func TestHandleStats(t *testing.T) {
	server := createTestServer(t)
	server.stats.RecordRun(&store.SyncRun{LeadsCreated: 7, LeadsUpdated: 2}, nil)

	rr := serve(t, server, "GET", "/stats", "")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", status)
	}

	var response StatsSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Errorf("Failed to parse response: %v", err)
	}

	if response.TotalSyncs != 1 {
		t.Errorf("Expected 1 total sync, got %d", response.TotalSyncs)
	}
	if response.TotalLeadsCreated != 7 {
		t.Errorf("Expected 7 leads created, got %d", response.TotalLeadsCreated)
	}
}

func TestHandleMetrics(t *testing.T) {
	server := createTestServer(t)
	server.collector.ObserveCall("getLead", "success", 20*time.Millisecond)

	rr := serve(t, server, "GET", "/metrics", "")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", status)
	}
	if !strings.Contains(rr.Body.String(), `marketo_sync_soap_calls_total{operation="getLead",status="success"} 1`) {
		t.Errorf("Expected soap call counter in output, got:\n%s", rr.Body.String())
	}
}

func TestHandleHistory(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		expectStatus int
		expectCount  int
		expectLimit  int
	}{
		{name: "default limit", query: "", expectStatus: http.StatusOK, expectCount: 3, expectLimit: defaultHistoryLimit},
		{name: "explicit limit", query: "?limit=2", expectStatus: http.StatusOK, expectCount: 2, expectLimit: 2},
		{name: "invalid limit", query: "?limit=abc", expectStatus: http.StatusBadRequest},
		{name: "zero limit", query: "?limit=0", expectStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := createTestServer(t)

			rr := serve(t, server, "GET", "/history"+tt.query, "")

			if rr.Code != tt.expectStatus {
				t.Fatalf("Expected status code %d, got %d", tt.expectStatus, rr.Code)
			}
			if tt.expectStatus != http.StatusOK {
				return
			}

			var runs []*store.SyncRun
			if err := json.Unmarshal(rr.Body.Bytes(), &runs); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if len(runs) != tt.expectCount {
				t.Errorf("Expected %d runs, got %d", tt.expectCount, len(runs))
			}
			if got := server.history.(*mockHistory).lastLimit; got != tt.expectLimit {
				t.Errorf("Expected limit %d, got %d", tt.expectLimit, got)
			}
		})
	}
}

func TestHandleGetLead(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		leadErr      error
		expectStatus int
	}{
		{name: "named key", path: "/leads/email/jane@example.com", expectStatus: http.StatusOK},
		{name: "key type", path: "/leads/EMAIL/jane@example.com", expectStatus: http.StatusOK},
		{name: "unknown lead", path: "/leads/email/nobody@example.com", expectStatus: http.StatusNotFound},
		{name: "invalid key type", path: "/leads/phone/555", expectStatus: http.StatusBadRequest},
		{
			name:         "marketo fault",
			path:         "/leads/email/jane@example.com",
			leadErr:      fmt.Errorf("failed to get lead: %w", &marketo.Fault{Code: "SOAP-ENV:Client", Detail: marketo.FaultDetail{Code: "20014"}}),
			expectStatus: http.StatusBadGateway,
		},
		{
			name:         "not implemented",
			path:         "/leads/email/jane@example.com",
			leadErr:      marketo.ErrNotImplemented,
			expectStatus: http.StatusNotImplemented,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := createTestServer(t)
			server.leads.(*mockLeadService).err = tt.leadErr

			rr := serve(t, server, "GET", tt.path, "")

			if rr.Code != tt.expectStatus {
				t.Fatalf("Expected status code %d, got %d: %s", tt.expectStatus, rr.Code, rr.Body.String())
			}

			if tt.expectStatus != http.StatusOK {
				var response ErrorResponse
				if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
					t.Fatalf("Failed to parse error response: %v", err)
				}
				if response.Error == "" {
					t.Error("Expected error message in body")
				}
				return
			}

			var response LeadResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if response.Lead == nil || response.Lead.ID != 42 {
				t.Errorf("Expected lead 42, got %+v", response.Lead)
			}
		})
	}
}

func TestHandleSyncLead(t *testing.T) {
	server := createTestServer(t)

	rr := serve(t, server, "POST", "/leads", `{"email":"new@example.com","attributes":{"FirstName":"New"}}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response LeadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Status != "synced" || response.Lead.ID != 500 {
		t.Errorf("Expected synced lead 500, got %s %+v", response.Status, response.Lead)
	}
	if value, _ := response.Lead.Get("FirstName"); value != "New" {
		t.Errorf("Expected FirstName New, got %q", value)
	}
}

func TestHandleSyncLead_InvalidBody(t *testing.T) {
	server := createTestServer(t)

	rr := serve(t, server, "POST", "/leads", `{not json`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status code 400, got %d", rr.Code)
	}
}

func TestHandleSyncLead_TestMode(t *testing.T) {
	server := createTestServer(t)
	server.config.App.TestMode = true

	rr := serve(t, server, "POST", "/leads", `{"email":"new@example.com"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code 200, got %d", rr.Code)
	}
	if len(server.leads.(*mockLeadService).synced) != 0 {
		t.Error("Expected no lead to be synced in test mode")
	}
}

func TestHandleSyncLeads(t *testing.T) {
	server := createTestServer(t)

	rr := serve(t, server, "POST", "/leads/batch",
		`{"leads":[{"email":"a@example.com"},{"email":"b@example.com"}]}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response BatchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(response.Statuses) != 2 || response.Statuses[1].LeadID != 601 {
		t.Errorf("Expected two statuses ending with lead 601, got %+v", response.Statuses)
	}
	if len(response.Leads) != 2 || response.Leads[0].Email != "a@example.com" {
		t.Errorf("Expected leads to be echoed back, got %+v", response.Leads)
	}
}

func TestHandleSyncLeads_Dedup(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		expectDedup string
	}{
		{name: "dedup from config", query: "", expectDedup: "<dedupEnabled>true</dedupEnabled>"},
		{name: "dedup disabled", query: "?dedup=false", expectDedup: "<dedupEnabled>false</dedupEnabled>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestBody string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				buf := new(bytes.Buffer)
				_, _ = buf.ReadFrom(r.Body)
				requestBody = buf.String()
				w.Header().Set("Content-Type", "text/xml")
				fmt.Fprint(w, `<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns1="http://www.marketo.com/mktows/"><SOAP-ENV:Body><ns1:successSyncMultipleLeads><result><syncStatusList><syncStatus><leadId>7</leadId><status>CREATED</status><error xsi:nil="true" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"/></syncStatus></syncStatusList></result></ns1:successSyncMultipleLeads></SOAP-ENV:Body></SOAP-ENV:Envelope>`)
			}))
			defer ts.Close()

			client, err := marketo.NewClient(marketo.Options{UserID: "user", EncryptionKey: "key", Endpoint: ts.URL})
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}

			server := createTestServer(t)
			server.leads = client.Leads

			rr := serve(t, server, "POST", "/leads/batch"+tt.query, `{"leads":[{"email":"a@example.com"}]}`)

			if rr.Code != http.StatusOK {
				t.Fatalf("Expected status code 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(requestBody, tt.expectDedup) {
				t.Errorf("Expected request to contain %s, got:\n%s", tt.expectDedup, requestBody)
			}

			var response BatchResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if len(response.Leads) != 1 || response.Leads[0].ID != 7 {
				t.Errorf("Expected lead id 7 from sync status, got %+v", response.Leads)
			}
		})
	}
}

func TestHandleSyncLeads_NilLead(t *testing.T) {
	tests := []struct {
		name     string
		testMode bool
	}{
		{name: "live", testMode: false},
		{name: "test mode", testMode: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
			}))
			defer ts.Close()

			client, err := marketo.NewClient(marketo.Options{UserID: "user", EncryptionKey: "key", Endpoint: ts.URL})
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}

			server := createTestServer(t)
			server.leads = client.Leads
			server.config.App.TestMode = tt.testMode

			rr := serve(t, server, "POST", "/leads/batch", `{"leads":[{"email":"a@example.com"},null]}`)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected status code 400, got %d: %s", rr.Code, rr.Body.String())
			}

			var response ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if !strings.Contains(response.Error, "lead 1") {
				t.Errorf("Expected error to name lead 1, got %q", response.Error)
			}
			if calls != 0 {
				t.Errorf("Expected no Marketo calls, got %d", calls)
			}
		})
	}
}

func TestHandleSyncLeads_InvalidDedup(t *testing.T) {
	server := createTestServer(t)

	rr := serve(t, server, "POST", "/leads/batch?dedup=maybe", `{"leads":[]}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status code 400, got %d", rr.Code)
	}
}

func TestSchedulerRoutes_NoScheduler(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{"POST", "/scheduler/start"},
		{"POST", "/scheduler/stop"},
		{"GET", "/scheduler/status"},
	}

	for _, route := range routes {
		t.Run(route.path, func(t *testing.T) {
			server := createTestServer(t)
			server.scheduler = nil

			rr := serve(t, server, route.method, route.path, "")

			// When scheduler is nil, the route doesn't get registered, so we get 404
			if status := rr.Code; status != http.StatusNotFound {
				t.Errorf("Expected status code 404, got %d", status)
			}
		})
	}
}

func TestHandleVersion(t *testing.T) {
	server := createTestServer(t)

	rr := serve(t, server, "GET", "/version", "")

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", status)
	}

	var response map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Errorf("Failed to parse response: %v", err)
	}

	if response["version"] != Version {
		t.Errorf("Expected version %s, got %s", Version, response["version"])
	}
	if response["api_version"] != "2_3" {
		t.Errorf("Expected api_version 2_3, got %s", response["api_version"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid key", &marketo.InvalidKeyError{KeyType: "phone", Reason: "unknown key type"}, http.StatusBadRequest},
		{"lead not found", fmt.Errorf("get: %w", marketo.ErrLeadNotFound), http.StatusNotFound},
		{"not found fault", &marketo.Fault{Detail: marketo.FaultDetail{Code: "20103"}}, http.StatusNotFound},
		{"store miss", store.ErrNotFound, http.StatusNotFound},
		{"not implemented", marketo.ErrNotImplemented, http.StatusNotImplemented},
		{"other fault", &marketo.Fault{Detail: marketo.FaultDetail{Code: "20014"}}, http.StatusBadGateway},
		{"run in progress", syncengine.ErrRunInProgress, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestNewServer(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Server.ScheduleEnabled = true

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	server := NewServer(cfg, &mockSyncEngine{}, &mockLeadService{}, nil, nil, logger)

	if server.scheduler == nil {
		t.Error("Expected scheduler when scheduling is enabled")
	}
	if server.httpServer.Addr != ":8080" {
		t.Errorf("Expected address :8080, got %s", server.httpServer.Addr)
	}

	rr := serve(t, server, "GET", "/metrics", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected /metrics to be absent without a collector, got %d", rr.Code)
	}
}
