package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"diffsync-server/pkg/jwt"
)

func okHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := GetUserID(r); got != wantUser {
			t.Errorf("GetUserID() = %q, want %q", got, wantUser)
		}
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestAuthMiddleware(t *testing.T) {
	secret := "middleware-secret"
	token, err := jwt.GenerateToken("client-1", time.Hour, secret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name       string
		required   bool
		header     string
		wantStatus int
		wantUser   string
	}{
		{name: "optional without header", wantStatus: http.StatusTeapot},
		{name: "optional with token", header: "Bearer " + token, wantStatus: http.StatusTeapot, wantUser: "client-1"},
		{name: "optional with bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "required without header", required: true, wantStatus: http.StatusUnauthorized},
		{name: "required with token", required: true, header: "Bearer " + token, wantStatus: http.StatusTeapot, wantUser: "client-1"},
		{name: "malformed header", required: true, header: "Token " + token, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AuthMiddleware(secret, tt.required)(okHandler(t, tt.wantUser))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{name: "wildcard echoes origin", allowed: "*", origin: "http://a.test", method: http.MethodGet, wantOrigin: "http://a.test", wantStatus: http.StatusTeapot},
		{name: "wildcard without origin", allowed: "*", method: http.MethodGet, wantOrigin: "*", wantStatus: http.StatusTeapot},
		{name: "listed origin", allowed: "http://a.test, http://b.test", origin: "http://b.test", method: http.MethodGet, wantOrigin: "http://b.test", wantStatus: http.StatusTeapot},
		{name: "unlisted origin", allowed: "http://a.test", origin: "http://evil.test", method: http.MethodGet, wantStatus: http.StatusTeapot},
		{name: "preflight", allowed: "*", origin: "http://a.test", method: http.MethodOptions, wantOrigin: "http://a.test", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORSMiddleware(tt.allowed, "GET,POST,OPTIONS", "Content-Type")(okHandler(t, ""))

			req := httptest.NewRequest(tt.method, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestLoggerMiddleware_PassesThrough(t *testing.T) {
	h := LoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("done"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	if rec.Code != http.StatusCreated || rec.Body.String() != "done" {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}
