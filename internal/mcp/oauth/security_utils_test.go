package oauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "" {
		t.Errorf("hashForLogging(\"\") = %q, want empty", got)
	}

	got := hashForLogging("user@example.com")
	if len(got) != 16 {
		t.Errorf("hash length = %d, want 16", len(got))
	}
	if got == "user@example.com" {
		t.Error("hash must not echo the input")
	}
	if got != hashForLogging("user@example.com") {
		t.Error("hash must be deterministic")
	}
	if got == hashForLogging("other@example.com") {
		t.Error("distinct inputs must hash differently")
	}
}

func TestHashForDisplay(t *testing.T) {
	if got := HashForDisplay(""); got != "<empty>" {
		t.Errorf("HashForDisplay(\"\") = %q, want <empty>", got)
	}
	if got := HashForDisplay("secret"); got != hashForLogging("secret") {
		t.Errorf("HashForDisplay(\"secret\") = %q, want the logging hash", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.10:52000",
			want:       "192.0.2.10",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.10",
			want:       "192.0.2.10",
		},
		{
			name:       "forwarded header ignored without trust",
			remoteAddr: "192.0.2.10:52000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			trustProxy: false,
			want:       "192.0.2.10",
		},
		{
			name:       "forwarded header honored with trust",
			remoteAddr: "192.0.2.10:52000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "first forwarded entry wins",
			remoteAddr: "192.0.2.10:52000",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 198.51.100.2, 192.0.2.1"},
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "real ip fallback with trust",
			remoteAddr: "192.0.2.10:52000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "real ip ignored without trust",
			remoteAddr: "192.0.2.10:52000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			trustProxy: false,
			want:       "192.0.2.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := getClientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
