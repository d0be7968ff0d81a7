package mainsvc

import (
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		wantErr bool
		want    string
	}{
		{"missing header", nil, true, ""},
		{"valid", []string{"Bearer abc123"}, false, "abc123"},
		{"wrong scheme", []string{"Basic abc123"}, true, ""},
		{"empty token", []string{"Bearer "}, true, ""},
		{"duplicate headers", []string{"Bearer a", "Bearer b"}, true, ""},
		{"null byte", []string{"Bearer a\x00b"}, true, ""},
		{"non-ascii", []string{"Bearer é"}, true, ""},
		{"repeated scheme", []string{"Bearer Bearer x"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for _, h := range tt.headers {
				req.Header.Add("Authorization", h)
			}
			got, err := bearerToken(req)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got token %q", got)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("bearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
