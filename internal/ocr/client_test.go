package ocr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnalyze(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart upload, got %v", err)
		}
		if _, _, err := r.FormFile("image"); err != nil {
			t.Errorf("missing image part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"date": "2025-03-10 14:22:00",
			"total": "25.99",
			"vendor": {"name": "SuperMart"},
			"ocr_text": "SuperMart\nTotal 25.99"
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second)
	result, err := client.Analyze(context.Background(), "receipt.jpg", []byte("fake image"))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if gotAuth != "apikey test-key" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "apikey test-key")
	}
	if result.Total != "25.99" {
		t.Errorf("Total = %q, want 25.99", result.Total)
	}
	if result.Issuer != "SuperMart" {
		t.Errorf("Issuer = %q, want SuperMart", result.Issuer)
	}
	if result.RawText == "" {
		t.Error("RawText is empty")
	}
	want := time.Date(2025, 3, 10, 14, 22, 0, 0, time.UTC)
	if !result.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", result.Date, want)
	}
}

func TestAnalyzeMissingTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"date": "2025-03-10", "vendor": {"name": "SuperMart"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", 5*time.Second)
	_, err := client.Analyze(context.Background(), "receipt.jpg", []byte("img"))
	if !errors.Is(err, ErrMissingTotal) {
		t.Errorf("err = %v, want ErrMissingTotal", err)
	}
}

func TestAnalyzeInvalidDateIsNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"date": "soon", "total": "5.00", "vendor": {}, "ocr_text": ""}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", 5*time.Second)
	result, err := client.Analyze(context.Background(), "receipt.jpg", []byte("img"))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !result.Date.IsZero() {
		t.Errorf("Date = %v, want zero for unparseable vendor date", result.Date)
	}
}

func TestAnalyzeVendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", 5*time.Second)
	if _, err := client.Analyze(context.Background(), "receipt.jpg", []byte("img")); err == nil {
		t.Error("Analyze = nil error, want failure on vendor 500")
	}
}
