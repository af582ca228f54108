package citelink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResolveSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/resolve" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Identifier != "doi:10.0/x" {
			t.Errorf("identifier = %q", req.Identifier)
		}
		json.NewEncoder(w).Encode(Result{
			CitationKey: "ref-1",
			Fields:      map[string]string{"title": "A Paper"},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/"})
	result, err := client.Resolve(context.Background(), Request{Identifier: "doi:10.0/x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.CitationKey != "ref-1" || result.Fields["title"] != "A Paper" {
		t.Fatalf("result = %+v", result)
	}
}

func TestResolveErrorCarriesStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no translator available", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Resolve(context.Background(), Request{URL: "https://example.org"})
	if err == nil {
		t.Fatal("expected error")
	}
	// The classifier keys off these fragments.
	if !strings.Contains(err.Error(), "citelink error") || !strings.Contains(err.Error(), "404") {
		t.Fatalf("error message = %q", err)
	}
}

func TestResolveRejectsMissingCitationKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{Fields: map[string]string{}})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	_, err := client.Resolve(context.Background(), Request{URL: "https://example.org"})
	if err == nil || !strings.Contains(err.Error(), "missing citation key") {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveValidatesInput(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:1"})
	if _, err := client.Resolve(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty request")
	}
	unconfigured := NewClient(Config{})
	if _, err := unconfigured.Resolve(context.Background(), Request{URL: "https://example.org"}); err == nil {
		t.Fatal("expected error without base url")
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
	}))
	defer healthy.Close()
	if err := NewClient(Config{BaseURL: healthy.URL}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	if err := NewClient(Config{BaseURL: down.URL}).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}
}
