package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"actionlane/pkg/actionlink"
	"actionlane/pkg/allowlist"
	"actionlane/services/proxy/internal/forward"
)

const testAccount = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func testRouter(t *testing.T, provider *httptest.Server) http.Handler {
	t.Helper()
	u, err := url.Parse(provider.URL)
	if err != nil {
		t.Fatalf("parse provider url: %v", err)
	}
	f := forward.New(allowlist.Policy{Scheme: "http", HostSuffix: u.Hostname(), PathPrefix: "/api/actions/"}, zerolog.Nop())
	f.HTTP = provider.Client()
	return newRouter(f, zerolog.Nop())
}

func postBlink(t *testing.T, h http.Handler, apiURL, body string) *httptest.ResponseRecorder {
	t.Helper()
	target := "/blink"
	if apiURL != "" {
		target += "?apiUrl=" + url.QueryEscape(apiURL)
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBlinkForwardsApprovedLink(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"transaction": "blob1"})
	}))
	defer provider.Close()

	rec := postBlink(t, testRouter(t, provider), provider.URL+"/api/actions/transfer", `{"account":"`+testAccount+`"}`)
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var desc actionlink.Descriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &desc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if desc.Kind != actionlink.KindSingle || desc.TxBlob != "blob1" {
		t.Fatalf("descriptor = %+v", desc)
	}
}

func TestBlinkRejectsDisallowedTarget(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider reached for disallowed target")
	}))
	defer provider.Close()

	rec := postBlink(t, testRouter(t, provider), "http://evil.example/api/actions/transfer", `{"account":"`+testAccount+`"}`)
	if rec.Code != 403 {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NOT_ALLOWED") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestBlinkRequiresParams(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer provider.Close()
	h := testRouter(t, provider)

	if rec := postBlink(t, h, "", `{"account":"x"}`); rec.Code != 400 {
		t.Fatalf("missing apiUrl: status = %d", rec.Code)
	}
	if rec := postBlink(t, h, provider.URL+"/api/actions/transfer", `{}`); rec.Code != 400 {
		t.Fatalf("missing account: status = %d", rec.Code)
	}
}

func TestBlinkMapsProviderFailure(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer provider.Close()

	rec := postBlink(t, testRouter(t, provider), provider.URL+"/api/actions/transfer", `{"account":"`+testAccount+`"}`)
	if rec.Code != 502 {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EXECUTION_FAILED") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
