package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newEngine(RateLimitMiddleware(NewRateLimiter(0.001, 2)))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.1:1234", nil).Code)

	// limits are per client
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.2:1234", nil).Code)
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	first := rl.GetLimiter("10.0.0.1")
	assert.Same(t, first, rl.GetLimiter("10.0.0.1"))

	clock = clock.Add(time.Hour)
	rl.GetLimiter("10.0.0.2")
	assert.NotSame(t, first, rl.GetLimiter("10.0.0.1"))
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty list allows any", nil, "http://a.example", true},
		{"missing origin", nil, "", false},
		{"exact", []string{"http://a.example"}, "http://a.example", true},
		{"trailing slash", []string{"http://a.example/"}, "http://a.example", true},
		{"wildcard", []string{"*"}, "http://b.example", true},
		{"host only", []string{"a.example:8080"}, "https://a.example:8080", true},
		{"not listed", []string{"http://a.example"}, "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OriginAllowed(tt.allowed, tt.origin))
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := newEngine(CORSMiddleware([]string{"http://a.example"}))

	w := get(r, "10.0.0.1:1", http.Header{"Origin": {"http://a.example"}})
	assert.Equal(t, "http://a.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "10.0.0.1:1", http.Header{"Origin": {"http://evil.example"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://a.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	w := get(newEngine(SecurityHeadersMiddleware(false)), "10.0.0.1:1", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "https://cdn.jsdelivr.net")
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = get(newEngine(SecurityHeadersMiddleware(true)), "10.0.0.1:1", nil)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestIPWhitelist(t *testing.T) {
	wl := NewIPWhitelist([]string{"10.0.0.5", "192.168.1.0/24", "not-a-cidr/99"})

	assert.True(t, wl.IsAllowed("127.0.0.1"))
	assert.True(t, wl.IsAllowed("10.0.0.5"))
	assert.True(t, wl.IsAllowed("10.0.0.5:443"))
	assert.True(t, wl.IsAllowed("192.168.1.77"))
	assert.False(t, wl.IsAllowed("192.168.2.1"))
	assert.False(t, wl.IsAllowed("garbage"))

	assert.True(t, NewIPWhitelist(nil).IsAllowed("8.8.8.8"))

	r := newEngine(IPWhitelistMiddleware(wl))
	assert.Equal(t, http.StatusOK, get(r, "192.168.1.2:1000", nil).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "8.8.8.8:1000", nil).Code)
}

func TestInputValidator(t *testing.T) {
	iv := NewInputValidator()

	assert.True(t, iv.ValidateToken("aaaaaaaaaa.bbbbbbbbbb.cccccccccc"))
	assert.False(t, iv.ValidateToken("short.a.b"))
	assert.False(t, iv.ValidateToken("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))

	assert.True(t, iv.ValidateSubscriber("browser-1.lan"))
	assert.False(t, iv.ValidateSubscriber(""))
	assert.False(t, iv.ValidateSubscriber("bad name"))
}

func TestSecurityLoggerNilSafe(t *testing.T) {
	var sl *SecurityLogger
	require.NotPanics(t, func() {
		sl.LogFailedAuth("1.2.3.4", "x")
		sl.LogWebSocketConnected("1.2.3.4", "x")
	})
}
