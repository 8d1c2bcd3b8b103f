package forward

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"actionlane/pkg/actionlink"
	"actionlane/pkg/allowlist"
)

const testAccount = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// testForwarder points the allow-list at the test server's host so the
// fake resolver passes validation.
func testForwarder(t *testing.T, srv *httptest.Server) *Forwarder {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	f := New(allowlist.Policy{Scheme: "http", HostSuffix: u.Hostname(), PathPrefix: "/api/actions/"}, zerolog.Nop())
	f.HTTP = srv.Client()
	return f
}

func TestExecuteSingleTransaction(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"type": "transaction", "transaction": "blob1"})
	}))
	defer srv.Close()

	f := testForwarder(t, srv)
	desc, err := f.Execute(context.Background(), srv.URL+"/api/actions/transfer", testAccount)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if desc.Kind != actionlink.KindSingle || desc.TxBlob != "blob1" {
		t.Fatalf("descriptor = %+v", desc)
	}
	if gotBody["type"] != "transaction" || gotBody["account"] != testAccount {
		t.Fatalf("provider request body = %v", gotBody)
	}
}

func TestExecuteBatchDefaultsToSequential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"transactions": []string{"b1", "b2"}})
	}))
	defer srv.Close()

	f := testForwarder(t, srv)
	desc, err := f.Execute(context.Background(), srv.URL+"/api/actions/transfer", testAccount)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if desc.Kind != actionlink.KindBatch || desc.Mode != actionlink.ModeSequential {
		t.Fatalf("descriptor = %+v", desc)
	}
	if len(desc.TxBlobs) != 2 {
		t.Fatalf("blobs = %v", desc.TxBlobs)
	}
}

func TestExecuteRejectsMismatchedType(t *testing.T) {
	cases := []string{
		`{"type":"message","transaction":"b1"}`,
		`{"type":"transaction","transactions":["b1"]}`,
	}
	for _, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		f := testForwarder(t, srv)
		_, err := f.Execute(context.Background(), srv.URL+"/api/actions/transfer", testAccount)
		srv.Close()
		if !errors.Is(err, ErrUnsupportedPayload) {
			t.Fatalf("body %q: err = %v, want ErrUnsupportedPayload", body, err)
		}
	}
}

func TestExecuteRejectsParallelBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"transactions": []string{"b1"}, "mode": "parallel"})
	}))
	defer srv.Close()

	f := testForwarder(t, srv)
	if _, err := f.Execute(context.Background(), srv.URL+"/api/actions/transfer", testAccount); !errors.Is(err, ErrUnsupportedPayload) {
		t.Fatalf("err = %v, want ErrUnsupportedPayload", err)
	}
}

func TestExecuteRejectsDisallowedURL(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	f := testForwarder(t, srv)
	_, err := f.Execute(context.Background(), "https://evil.example/api/actions/transfer", testAccount)
	var nae *allowlist.NotAllowedError
	if !errors.As(err, &nae) {
		t.Fatalf("err = %v, want NotAllowedError", err)
	}
	if called {
		t.Fatal("disallowed URL reached the provider")
	}
}

func TestExecuteProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no route", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := testForwarder(t, srv)
	_, err := f.Execute(context.Background(), srv.URL+"/api/actions/transfer", testAccount)
	var efe *ExecutionFailedError
	if !errors.As(err, &efe) {
		t.Fatalf("err = %v, want ExecutionFailedError", err)
	}
	if efe.Status != http.StatusBadGateway || !strings.Contains(efe.Body, "no route") {
		t.Fatalf("error = %+v", efe)
	}
}

func TestExecuteRejectsTransactionlessReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message": "nothing to do"})
	}))
	defer srv.Close()

	f := testForwarder(t, srv)
	if _, err := f.Execute(context.Background(), srv.URL+"/api/actions/transfer", testAccount); !errors.Is(err, ErrUnsupportedPayload) {
		t.Fatalf("err = %v, want ErrUnsupportedPayload", err)
	}
}

func TestExecuteInvalidResponse(t *testing.T) {
	cases := []string{
		`{"transactions":["b1",""]}`,
		`not json`,
	}
	for _, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		f := testForwarder(t, srv)
		_, err := f.Execute(context.Background(), srv.URL+"/api/actions/transfer", testAccount)
		srv.Close()
		var ire *InvalidResponseError
		if !errors.As(err, &ire) {
			t.Fatalf("body %q: err = %v, want InvalidResponseError", body, err)
		}
	}
}

func TestExecuteUnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u, _ := url.Parse(srv.URL)
	srv.Close()

	f := New(allowlist.Policy{Scheme: "http", HostSuffix: u.Hostname(), PathPrefix: "/api/actions/"}, zerolog.Nop())
	f.Timeout = 500 * time.Millisecond
	if _, err := f.Execute(context.Background(), srv.URL+"/api/actions/transfer", testAccount); !errors.Is(err, ErrProviderUnreachable) {
		t.Fatalf("err = %v, want ErrProviderUnreachable", err)
	}
}
