package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"oauth-token-proxy/internal/settings"
)

type errLoader struct{ err error }

func (l errLoader) Load() (*settings.Settings, error) { return nil, l.err }

func statusBody(t *testing.T, h *HealthHandler) map[string]string {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/proxy/status", http.NoBody), rec)

	if err := h.Status(c); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler(errLoader{}, "test")
	if err := h.Healthz(c); err != nil {
		t.Fatalf("Healthz() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStatus(t *testing.T) {
	loader := &memLoader{values: map[string]any{
		settings.KeyClientSecret: "s3cret",
		settings.KeyTokenURL:     "https://idp.example/token",
	}}
	body := statusBody(t, NewHealthHandler(loader, "1.2.3"))

	if body["status"] != "ok" {
		t.Errorf("body.status = %q, want %q", body["status"], "ok")
	}
	if body["version"] != "1.2.3" {
		t.Errorf("body.version = %q, want %q", body["version"], "1.2.3")
	}
	if body["token_host"] != "idp.example" {
		t.Errorf("body.token_host = %q, want %q", body["token_host"], "idp.example")
	}
	for k, v := range body {
		if v == "s3cret" {
			t.Errorf("body.%s leaks the client secret", k)
		}
	}
}

func TestStatus_SettingsUnavailable(t *testing.T) {
	body := statusBody(t, NewHealthHandler(errLoader{err: errors.New("no Settings file")}, "1.2.3"))

	if body["status"] != "degraded" {
		t.Errorf("body.status = %q, want %q", body["status"], "degraded")
	}
	if body["settings"] != "no Settings file" {
		t.Errorf("body.settings = %q, want %q", body["settings"], "no Settings file")
	}
}

func TestStatus_MissingTokenURL(t *testing.T) {
	loader := &memLoader{values: map[string]any{settings.KeyClientSecret: "s3cret"}}
	body := statusBody(t, NewHealthHandler(loader, "1.2.3"))

	if body["status"] != "degraded" {
		t.Errorf("body.status = %q, want %q", body["status"], "degraded")
	}
	if _, ok := body["token_host"]; ok {
		t.Errorf("unexpected token_host %q", body["token_host"])
	}
}
