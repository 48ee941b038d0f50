package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{name: "explicit origin", allowed: []string{"https://learn.example.com"}, origin: "https://learn.example.com", method: http.MethodPost, wantOrigin: "https://learn.example.com", wantCreds: "true", wantStatus: http.StatusNoContent},
		{name: "wildcard no credentials", allowed: []string{"*"}, origin: "https://other.example.com", method: http.MethodPost, wantOrigin: "https://other.example.com", wantCreds: "", wantStatus: http.StatusNoContent},
		{name: "disallowed origin", allowed: []string{"https://learn.example.com"}, origin: "https://evil.example.com", method: http.MethodPost, wantOrigin: "", wantCreds: "", wantStatus: http.StatusNoContent},
		{name: "preflight", allowed: []string{"https://learn.example.com"}, origin: "https://learn.example.com", method: http.MethodOptions, wantOrigin: "https://learn.example.com", wantCreds: "true", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/users/journey", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Expected allow-origin %q, got %q", tt.wantOrigin, got)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Expected allow-credentials %q, got %q", tt.wantCreds, got)
			}
		})
	}
}
