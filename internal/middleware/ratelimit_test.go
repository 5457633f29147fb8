package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/db/models"
)

func TestRateLimitConfigProfiles(t *testing.T) {
	cases := []struct {
		name       string
		cfg        RateLimitConfig
		rpm, burst int
	}{
		{"default", DefaultRateLimitConfig(), 200, 50},
		{"auth", AuthRateLimitConfig(), 10, 5},
		{"upload", UploadRateLimitConfig(), 30, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.rpm, tc.cfg.RequestsPerMinute)
			assert.Equal(t, tc.burst, tc.cfg.BurstSize)
			assert.NotZero(t, tc.cfg.CleanupInterval)
		})
	}
}

func quietLimiter(t *testing.T, rpm, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour, // no sweeps while the test runs
	})
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("burst bounds total admissions", func(t *testing.T) {
		rl := quietLimiter(t, 600, 3)
		allowed := 0
		for i := 0; i < 5; i++ {
			if rl.Allow("uploader") {
				allowed++
			}
		}
		assert.Equal(t, 3, allowed)
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		rl := quietLimiter(t, 600, 2) // 10 tokens/sec
		for rl.Allow("refill") {
		}
		time.Sleep(120 * time.Millisecond)
		assert.True(t, rl.Allow("refill"), "a token should have refilled")
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl := quietLimiter(t, 60, 2)
		for rl.Allow("noisy") {
		}
		assert.True(t, rl.Allow("quiet"), "exhausting one key must not starve another")
	})
}

func TestRateLimiter_RemainingTokens(t *testing.T) {
	rl := quietLimiter(t, 60, 10)

	assert.Equal(t, 10, rl.RemainingTokens("never-seen"), "unseen key reports full burst")

	rl.Allow("seen")
	got := rl.RemainingTokens("seen")
	assert.GreaterOrEqual(t, got, 0)
	assert.Less(t, got, 10)
}

func TestRateLimitKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newCtx := func() *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:4321"
		c.Request = req
		return c
	}

	t.Run("principal wins over api key", func(t *testing.T) {
		c := newCtx()
		c.Set(PrincipalKey, auth.Principal{UserID: 123, Email: "dev@example.com"})
		c.Set("api_key", &models.APIKey{ID: 456})
		assert.Equal(t, "user:123", rateLimitKey(c))
	})

	t.Run("api key without principal", func(t *testing.T) {
		c := newCtx()
		c.Set("api_key", &models.APIKey{ID: 456})
		assert.Equal(t, "apikey:456", rateLimitKey(c))
	})

	t.Run("anonymous falls back to client ip", func(t *testing.T) {
		assert.Equal(t, "ip:192.0.2.10", rateLimitKey(newCtx()))
	})
}

func limitedGet(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	newRouter := func(rl *RateLimiter) *gin.Engine {
		r := gin.New()
		r.Use(RateLimitMiddleware(rl))
		r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
		return r
	}

	t.Run("allowed request carries limit headers", func(t *testing.T) {
		r := newRouter(quietLimiter(t, 120, 20))
		w := limitedGet(r, "10.0.0.1")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "120", w.Header().Get("X-RateLimit-Limit"))
		remaining, err := strconv.Atoi(w.Header().Get("X-RateLimit-Remaining"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, remaining, 0)
	})

	t.Run("exhausted client gets 429 with Retry-After", func(t *testing.T) {
		r := newRouter(quietLimiter(t, 1, 1))

		require.Equal(t, http.StatusOK, limitedGet(r, "10.0.0.2").Code)

		w := limitedGet(r, "10.0.0.2")
		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
	})
}

func TestRateLimiter_CleanupEvictsStaleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 600,
		BurstSize:         10,
		CleanupInterval:   10 * time.Millisecond,
	})
	defer rl.Stop()

	rl.Allow("stale-client")

	// Back-date the entry so the sweeper sees it as idle.
	rl.mu.Lock()
	if entry, ok := rl.entries["stale-client"]; ok {
		entry.lastUpdate = time.Now().Add(-11 * time.Minute)
	}
	rl.mu.Unlock()

	time.Sleep(60 * time.Millisecond)

	rl.mu.RLock()
	_, stillPresent := rl.entries["stale-client"]
	rl.mu.RUnlock()
	assert.False(t, stillPresent, "idle entry should have been swept")
}
