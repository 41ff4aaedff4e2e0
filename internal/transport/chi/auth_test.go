package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"auth disabled", nil, "/query", "", http.StatusOK},
		{"only empty keys", []string{"", ""}, "/query", "", http.StatusOK},
		{"missing header", []string{"secret"}, "/query", "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "/query", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"scheme without token", []string{"secret"}, "/rebuild", "Bearer", http.StatusUnauthorized},
		{"wrong token", []string{"secret"}, "/query", "Bearer wrong-key", http.StatusUnauthorized},
		{"valid token", []string{"secret"}, "/query", "Bearer secret", http.StatusOK},
		{"lowercase scheme", []string{"secret"}, "/status", "bearer secret", http.StatusOK},
		{"second key", []string{"key1", "key2"}, "/search", "Bearer key2", http.StatusOK},
		{"health exempt", []string{"secret"}, "/health", "", http.StatusOK},
		{"metrics exempt", []string{"secret"}, "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BearerAuthMiddleware(tt.keys)(okHandler())

			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("got %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != ErrorCodeUnauthorized {
				t.Errorf("error code: got %s, want %s", errResp.Code, ErrorCodeUnauthorized)
			}
		})
	}
}
