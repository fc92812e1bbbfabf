package server

import (
	"net/http/httptest"
	"testing"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard allows any origin", []string{"*"}, "https://evil.example", true},
		{"wildcard allows missing origin", []string{"*"}, "", true},
		{"exact match", []string{"https://chat.example"}, "https://chat.example", true},
		{"match ignores case", []string{"https://Chat.Example"}, "HTTPS://chat.example", true},
		{"path in config is ignored", []string{"https://chat.example/app"}, "https://chat.example", true},
		{"different port rejected", []string{"http://localhost:8080"}, "http://localhost:9090", false},
		{"missing origin rejected by allowlist", []string{"http://localhost:8080"}, "", false},
		{"malformed origin rejected", []string{"http://localhost:8080"}, "localhost", false},
		{"empty policy rejects everything", nil, "http://localhost:8080", false},
		{"invalid config entries skipped", []string{"not a url", "http://ok.example"}, "http://ok.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, discardLogger())
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			if got := policy.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) with %v = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}
