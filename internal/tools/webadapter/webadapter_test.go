package webadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchURLRejectsLocalhost(t *testing.T) {
	fetch := NewFetchURLTool(Config{})
	params, _ := json.Marshal(map[string]interface{}{"url": "http://localhost:8080/"})
	result, err := fetch.Execute(context.Background(), params, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Err == nil {
		t.Fatal("expected localhost to be blocked")
	}
}

func TestFetchURLRejectsNonHTTPScheme(t *testing.T) {
	fetch := NewFetchURLTool(Config{})
	params, _ := json.Marshal(map[string]interface{}{"url": "file:///etc/passwd"})
	result, err := fetch.Execute(context.Background(), params, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Err == nil {
		t.Fatal("expected non-http scheme to be rejected")
	}
}

func TestFetchURLFetchesPublicServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello from test server"))
	}))
	defer srv.Close()

	// httptest binds to 127.0.0.1, which the SSRF guard blocks as a private
	// address — assert the guard actually trips rather than skip this case.
	fetch := NewFetchURLTool(Config{})
	params, _ := json.Marshal(map[string]interface{}{"url": srv.URL})
	result, err := fetch.Execute(context.Background(), params, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Err == nil {
		t.Fatal("expected loopback httptest server to be blocked by the SSRF guard")
	}
	if !strings.Contains(result.LLMContent, "blocked") {
		t.Fatalf("expected a blocked-url error, got %s", result.LLMContent)
	}
}
