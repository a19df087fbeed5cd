package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/retailbase/possync/internal/netmon"
	"github.com/retailbase/possync/internal/sync/scheduler"
)

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestHandleHealthRejectsPost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	rec := httptest.NewRecorder()

	handleHealth(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	monitor := netmon.NewManualMonitor(true)
	sched := scheduler.New(nil, monitor, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	rec := httptest.NewRecorder()

	handleStatus(sched)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var status scheduler.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if !status.IsOnline {
		t.Error("IsOnline = false")
	}
}

func TestHandleTriggerOffline(t *testing.T) {
	monitor := netmon.NewManualMonitor(false)
	sched := scheduler.New(nil, monitor, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/trigger", nil)
	rec := httptest.NewRecorder()

	handleTrigger(sched, monitor)(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleTriggerOnline(t *testing.T) {
	monitor := netmon.NewManualMonitor(true)
	sched := scheduler.New(nil, monitor, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/trigger", nil)
	rec := httptest.NewRecorder()

	handleTrigger(sched, monitor)(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["started"] != true {
		t.Errorf("started = %v", body["started"])
	}
}

func TestHandleTriggerRejectsGet(t *testing.T) {
	monitor := netmon.NewManualMonitor(true)
	sched := scheduler.New(nil, monitor, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/trigger", nil)
	rec := httptest.NewRecorder()

	handleTrigger(sched, monitor)(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("POSSYNC_TEST_KEY", "set")
	if got := envOr("POSSYNC_TEST_KEY", "def"); got != "set" {
		t.Errorf("envOr = %q", got)
	}
	if got := envOr("POSSYNC_UNSET_KEY", "def"); got != "def" {
		t.Errorf("envOr = %q", got)
	}
}
