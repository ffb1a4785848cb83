package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-cms/internal/adapter/storage/memory"
	"github.com/seu-repo/sigec-cms/internal/mocks"
	"github.com/seu-repo/sigec-cms/internal/service/session"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	log, _ := zap.NewDevelopment()
	store := memory.NewTransactionStore(log)
	registry := memory.NewConnectorRegistry()
	svc := session.NewService(store, registry, session.NewIDAllocator(1), mocks.NewMockMessageQueue(), log)
	handler := NewSessionHandler(svc, log)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/sessions/start", handler.Start)
	api.Post("/sessions/stop", handler.Stop)
	api.Get("/sessions", handler.List)
	api.Get("/sessions/:id", handler.Get)
	api.Get("/connectors", handler.Connectors)
	return app
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func startSession(t *testing.T, app *fiber.App, connector int) int64 {
	t.Helper()
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/sessions/start", fiber.Map{
		"connector_id": connector,
		"id_tag":       "TAG-001",
		"meter_start":  100,
	}))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body struct {
		TransactionID int64 `json:"transaction_id"`
	}
	decodeBody(t, resp, &body)
	return body.TransactionID
}

func TestSessionStart_Created(t *testing.T) {
	// Arrange
	app := newTestApp(t)

	// Act
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/sessions/start", fiber.Map{
		"connector_id": 1,
		"id_tag":       "TAG-001",
		"meter_start":  100,
	}))

	// Assert
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["transaction_id"].(float64) != 1 {
		t.Errorf("expected transaction_id 1, got %v", body["transaction_id"])
	}
}

func TestSessionStart_BadRequest(t *testing.T) {
	// Arrange
	app := newTestApp(t)

	// Act: empty idTag.
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/sessions/start", fiber.Map{
		"connector_id": 1,
		"meter_start":  100,
	}))

	// Assert
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSessionStart_Conflict(t *testing.T) {
	// Arrange
	app := newTestApp(t)
	first := startSession(t, app, 1)

	// Act
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/sessions/start", fiber.Map{
		"connector_id": 1,
		"id_tag":       "TAG-002",
		"meter_start":  0,
	}))

	// Assert
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var body struct {
		ActiveTransactionID int64 `json:"active_transaction_id"`
	}
	decodeBody(t, resp, &body)
	if body.ActiveTransactionID != first {
		t.Errorf("expected conflicting id %d, got %d", first, body.ActiveTransactionID)
	}
}

func TestSessionStop_Lifecycle(t *testing.T) {
	// Arrange
	app := newTestApp(t)
	id := startSession(t, app, 1)

	stop := func(meterStop int64) *http.Response {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/sessions/stop", fiber.Map{
			"transaction_id": id,
			"meter_stop":     meterStop,
		}))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp
	}

	// Act / Assert: meter below start is rejected, session stays active.
	if resp := stop(50); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad meter, got %d", resp.StatusCode)
	}

	// Valid stop succeeds.
	resp := stop(600)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["meter_stop"].(float64) != 600 {
		t.Errorf("expected meter_stop 600, got %v", body["meter_stop"])
	}

	// A second stop conflicts.
	if resp := stop(700); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for repeated stop, got %d", resp.StatusCode)
	}
}

func TestSessionStop_NotFound(t *testing.T) {
	// Arrange
	app := newTestApp(t)

	// Act
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/sessions/stop", fiber.Map{
		"transaction_id": 12345,
		"meter_stop":     100,
	}))

	// Assert
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSessionGet(t *testing.T) {
	// Arrange
	app := newTestApp(t)
	id := startSession(t, app, 2)

	// Act
	resp, err := app.Test(jsonRequest(t, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%d", id), nil))

	// Assert
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["connector_id"].(float64) != 2 {
		t.Errorf("expected connector_id 2, got %v", body["connector_id"])
	}

	// Unknown id and non-numeric id.
	if resp, _ := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/sessions/999", nil)); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", resp.StatusCode)
	}
	if resp, _ := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/sessions/abc", nil)); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", resp.StatusCode)
	}
}

func TestSessionList_Filters(t *testing.T) {
	// Arrange
	app := newTestApp(t)
	first := startSession(t, app, 1)
	startSession(t, app, 2)

	if resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/sessions/stop", fiber.Map{
		"transaction_id": first,
		"meter_stop":     900,
	})); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stop failed: err=%v status=%d", err, resp.StatusCode)
	}

	list := func(target string) (int, []map[string]interface{}) {
		resp, err := app.Test(jsonRequest(t, http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		var body struct {
			Sessions []map[string]interface{} `json:"sessions"`
			Count    int                      `json:"count"`
		}
		decodeBody(t, resp, &body)
		return body.Count, body.Sessions
	}

	// Act / Assert
	if count, _ := list("/api/v1/sessions"); count != 2 {
		t.Errorf("expected 2 sessions, got %d", count)
	}
	if count, sessions := list("/api/v1/sessions?status=Active"); count != 1 || sessions[0]["connector_id"].(float64) != 2 {
		t.Errorf("unexpected active sessions: %v", sessions)
	}
	if count, _ := list("/api/v1/sessions?connector_id=1&status=Completed"); count != 1 {
		t.Errorf("expected 1 completed session on connector 1, got %d", count)
	}

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/sessions?status=Bogus", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bogus status, got %d", resp.StatusCode)
	}
}

func TestConnectors_ReportsFleetState(t *testing.T) {
	// Arrange
	app := newTestApp(t)
	busyID := startSession(t, app, 2)
	first := startSession(t, app, 1)
	if resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/sessions/stop", fiber.Map{
		"transaction_id": first,
		"meter_stop":     900,
	})); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stop failed: err=%v status=%d", err, resp.StatusCode)
	}

	// Act
	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/connectors", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Assert
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Connectors []struct {
			ConnectorID         int    `json:"connector_id"`
			ActiveTransactionID *int64 `json:"active_transaction_id"`
		} `json:"connectors"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.Count != 2 || len(body.Connectors) != 2 {
		t.Fatalf("expected 2 connectors, got %+v", body)
	}
	if body.Connectors[0].ConnectorID != 1 || body.Connectors[0].ActiveTransactionID != nil {
		t.Errorf("expected connector 1 idle, got %+v", body.Connectors[0])
	}
	if body.Connectors[1].ConnectorID != 2 || body.Connectors[1].ActiveTransactionID == nil || *body.Connectors[1].ActiveTransactionID != busyID {
		t.Errorf("expected connector 2 busy with %d, got %+v", busyID, body.Connectors[1])
	}
}
