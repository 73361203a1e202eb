package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/staff-scheduler/internal/access"
	"github.com/example/staff-scheduler/internal/application"
	"github.com/example/staff-scheduler/internal/audit"
	"github.com/example/staff-scheduler/internal/persistence"
	"github.com/example/staff-scheduler/internal/ratelimit"
	"github.com/example/staff-scheduler/internal/testfixtures"
)

const testWorkspace = "ws-1"

type testServer struct {
	handler http.Handler
	store   *testfixtures.Store
	clock   *testfixtures.Clock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := testfixtures.NewStore()
	clock := testfixtures.NewClock(time.Time{})
	checker := access.NewStaticChecker()
	checker.SetGrant(testWorkspace, "admin", access.Grant{Capabilities: []string{access.CapabilityAdmin}})
	checker.SetGrant(testWorkspace, "manager", access.Grant{Capabilities: []string{access.CapabilityManageSessions}})
	checker.SetGrant(testWorkspace, "alice", access.Grant{Roles: []string{"trainer"}})
	checker.SetGrant(testWorkspace, "bob", access.Grant{Roles: []string{"trainer"}})

	logger := slog.New(slog.DiscardHandler)
	env := application.Env{
		Checker: checker,
		Guard:   ratelimit.NewMemoryGuard(nil, clock.NowFunc()),
		Audit:   audit.NewMemorySink(),
		Logger:  logger,
		NewID:   testfixtures.NewIDGenerator("id").NextFunc(),
		Now:     clock.NowFunc(),
	}

	handler := NewHandler(
		application.NewScheduleService(store, store, store, env),
		application.NewEditService(store, store, env),
		application.NewSlotService(store, store, store, store, store, env),
		application.NewRollupService(store, store, store, store, store, store, store, time.Minute, env),
		application.NewCatalogService(store, store, store, env),
		application.NewActivityService(store, env),
		logger,
	)
	router := NewRouter(RouterConfig{
		Handler:    handler,
		Middleware: []Middleware{RequestLogger(logger), RequirePrincipal(logger)},
	})

	return &testServer{handler: router, store: store, clock: clock}
}

func (s *testServer) seedSessionType(t *testing.T) {
	t.Helper()
	err := s.store.CreateSessionType(context.Background(), persistence.SessionType{
		ID:             "st-1",
		WorkspaceID:    testWorkspace,
		Name:           "Training",
		Category:       "training",
		HostingRoleIDs: []string{"trainer"},
		Slots: []persistence.SlotDefinition{
			{RoleID: "trainer", Label: "Trainer", Count: 2},
		},
	})
	if err != nil {
		t.Fatalf("seed session type: %v", err)
	}
}

func (s *testServer) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set(headerMemberID, actor)
		req.Header.Set(headerWorkspaceID, testWorkspace)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, req)
	return recorder
}

func patternBody() map[string]any {
	return map[string]any{
		"session_type_id": "st-1",
		"name":            "Evening training",
		"weekdays":        []int{3},
		"hour":            18,
		"minute":          0,
		"frequency":       "weekly",
	}
}

func TestCreatePatternEndpoint(t *testing.T) {
	server := newTestServer(t)
	server.seedSessionType(t)

	recorder := server.do(t, http.MethodPost, "/api/v1/patterns", "manager", patternBody())
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", recorder.Code, recorder.Body.String())
	}

	var response createPatternResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Occurrences) != 52 {
		t.Fatalf("occurrence count = %d, want 52", len(response.Occurrences))
	}
	if response.Pattern.Frequency != "weekly" {
		t.Fatalf("frequency = %q, want weekly", response.Pattern.Frequency)
	}
}

func TestIdentityHeadersRequired(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodPost, "/api/v1/patterns", "", patternBody())
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestValidationErrorsMapTo422(t *testing.T) {
	server := newTestServer(t)
	server.seedSessionType(t)

	body := patternBody()
	body["frequency"] = "daily"
	recorder := server.do(t, http.MethodPost, "/api/v1/patterns", "manager", body)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body %s", recorder.Code, recorder.Body.String())
	}

	var response errorBody
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := response.Fields["frequency"]; !ok {
		t.Fatalf("fields = %v, want frequency entry", response.Fields)
	}
}

func TestForbiddenWithoutCapability(t *testing.T) {
	server := newTestServer(t)
	server.seedSessionType(t)

	recorder := server.do(t, http.MethodPost, "/api/v1/patterns", "alice", patternBody())
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
}

func TestUpdateOccurrenceEndpoint(t *testing.T) {
	server := newTestServer(t)
	server.seedSessionType(t)

	created := server.do(t, http.MethodPost, "/api/v1/patterns", "manager", patternBody())
	if created.Code != http.StatusCreated {
		t.Fatalf("seed pattern status = %d", created.Code)
	}
	var seeded createPatternResponse
	if err := json.Unmarshal(created.Body.Bytes(), &seeded); err != nil {
		t.Fatalf("decode seed: %v", err)
	}

	recorder := server.do(t, http.MethodPatch, "/api/v1/occurrences/"+seeded.Occurrences[0].ID, "manager", map[string]any{
		"scope": "all",
		"changes": map[string]any{
			"time": "20:15",
		},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", recorder.Code, recorder.Body.String())
	}

	var response updateOccurrencesResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Updated) != 52 {
		t.Fatalf("updated count = %d, want 52", len(response.Updated))
	}
}

func TestClaimConflictMapsTo409(t *testing.T) {
	server := newTestServer(t)
	server.seedSessionType(t)

	created := server.do(t, http.MethodPost, "/api/v1/patterns", "manager", patternBody())
	var seeded createPatternResponse
	if err := json.Unmarshal(created.Body.Bytes(), &seeded); err != nil {
		t.Fatalf("decode seed: %v", err)
	}

	claim := map[string]any{
		"pattern_id": seeded.Pattern.ID,
		"date":       "2024-03-13",
		"role_id":    "trainer",
		"slot_index": 0,
	}
	first := server.do(t, http.MethodPost, "/api/v1/slots/claim", "alice", claim)
	if first.Code != http.StatusOK {
		t.Fatalf("first claim status = %d; body %s", first.Code, first.Body.String())
	}
	second := server.do(t, http.MethodPost, "/api/v1/slots/claim", "bob", claim)
	if second.Code != http.StatusConflict {
		t.Fatalf("second claim status = %d, want 409", second.Code)
	}
}

func TestRateLimitMapsTo429(t *testing.T) {
	server := newTestServer(t)
	server.seedSessionType(t)

	// The creation guard allows five calls per window; validation failures
	// still count against it.
	body := patternBody()
	body["frequency"] = "daily"
	for i := 0; i < 5; i++ {
		server.do(t, http.MethodPost, "/api/v1/patterns", "manager", body)
	}
	recorder := server.do(t, http.MethodPost, "/api/v1/patterns", "manager", body)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", recorder.Code)
	}

	var response errorBody
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !response.Retryable {
		t.Fatal("rate limited responses must be flagged retryable")
	}
}

func TestRollupEndpoint(t *testing.T) {
	server := newTestServer(t)
	server.seedSessionType(t)

	recorder := server.do(t, http.MethodPost, "/api/v1/rollups", "admin", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", recorder.Code, recorder.Body.String())
	}

	var response rollupResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.CheckpointID == "" {
		t.Fatal("checkpoint id missing from response")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
}
