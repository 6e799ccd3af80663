package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewHTTP(Config{Endpoint: srv.URL, RatePerSec: 100})
	if err != nil {
		t.Fatalf("NewHTTP error: %v", err)
	}
	return p
}

func TestRateSuccess(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("from"); got != "USD" {
			t.Errorf("from = %q, want USD", got)
		}
		if got := r.URL.Query().Get("to"); got != "EUR" {
			t.Errorf("to = %q, want EUR", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"result":0.91}`))
	})

	got, err := p.Rate(context.Background(), "USD", "EUR")
	if err != nil {
		t.Fatalf("Rate error: %v", err)
	}
	if got != 0.91 {
		t.Fatalf("rate = %v, want 0.91", got)
	}
}

func TestRateFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream down", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"result":`))
			},
		},
		{
			name: "provider reports failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":false,"error":"unknown currency"}`))
			},
		},
		{
			name: "missing result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":true}`))
			},
		},
		{
			name: "non-positive rate",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"success":true,"result":0}`))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProvider(t, tt.handler)
			_, err := p.Rate(context.Background(), "USD", "EUR")
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *ProviderError", err)
			}
			if pe.Base != "USD" || pe.Target != "EUR" {
				t.Fatalf("pair = %s->%s, want USD->EUR", pe.Base, pe.Target)
			}
		})
	}
}

func TestNewHTTPRequiresEndpoint(t *testing.T) {
	t.Parallel()
	if _, err := NewHTTP(Config{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
