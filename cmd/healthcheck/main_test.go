package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProbeURL(t *testing.T) {
	tests := []struct {
		addr, path, want string
	}{
		{"", "/healthz", "http://localhost:8080/healthz"},
		{":9000", "/readyz", "http://localhost:9000/readyz"},
		{"0.0.0.0:8081", "/healthz", "http://localhost:8081/healthz"},
		{"8082", "/healthz", "http://localhost:8082/healthz"},
	}
	for _, tt := range tests {
		if got := probeURL(tt.addr, tt.path); got != tt.want {
			t.Errorf("probeURL(%q, %q) = %q, want %q", tt.addr, tt.path, got, tt.want)
		}
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if code := probe(srv.URL + "/healthz"); code != 0 {
		t.Errorf("healthy probe exit = %d, want 0", code)
	}
	if code := probe(srv.URL + "/readyz"); code != 1 {
		t.Errorf("unready probe exit = %d, want 1", code)
	}
	if code := probe("http://127.0.0.1:1/healthz"); code != 1 {
		t.Errorf("unreachable probe exit = %d, want 1", code)
	}
}
