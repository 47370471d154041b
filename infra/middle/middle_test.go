package middle

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRequestValidationMiddleware(t *testing.T) {
	handler := RequestValidationMiddleware()(okHandler())

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		wantStatus  int
	}{
		{"json api request", "POST", "/v1/checkout", "application/json", http.StatusOK},
		{"form api request rejected", "POST", "/v1/checkout", "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"form callback accepted", "POST", "/callback", "application/x-www-form-urlencoded", http.StatusOK},
		{"callback without content type", "POST", "/callback", "", http.StatusOK},
		{"api without content type", "POST", "/v1/checkout", "", http.StatusBadRequest},
		{"get passes through", "GET", "/v1/cards", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     2,
		window:   time.Minute,
	}

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", GetClientIP(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "10.0.0.3")
	assert.Equal(t, "10.0.0.3", GetClientIP(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.168.1.1:1234"
	assert.Equal(t, "192.168.1.1", GetClientIP(r))
}

func TestIsSecureRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/callback", nil)
	assert.False(t, IsSecureRequest(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, IsSecureRequest(r))

	r = httptest.NewRequest("GET", "https://example.com/callback", nil)
	assert.True(t, IsSecureRequest(r))
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	handler := PanicRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
