package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestRateLimiterRejectsAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := newRateLimiter(1, 2, zap.NewNop())
	frozen := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return frozen }

	router := gin.New()
	router.Use(limiter.middleware)
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(remote string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
		request.RemoteAddr = remote
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, request)
		return recorder
	}

	for attempt := 0; attempt < 2; attempt++ {
		if recorder := send("192.0.2.1:1000"); recorder.Code != http.StatusNoContent {
			t.Fatalf("attempt %d: unexpected status %d", attempt, recorder.Code)
		}
	}
	rejected := send("192.0.2.1:1000")
	if rejected.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rejected.Code)
	}
	if rejected.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	if recorder := send("192.0.2.2:1000"); recorder.Code != http.StatusNoContent {
		t.Fatalf("other client should not share the bucket, got %d", recorder.Code)
	}

	frozen = frozen.Add(time.Second)
	if recorder := send("192.0.2.1:1000"); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected a refilled token, got %d", recorder.Code)
	}
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	limiter := newRateLimiter(10, 10, zap.NewNop())
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	limiter.allow("idle")
	now = now.Add(limiterIdleTTL + time.Minute)
	for request := 1; request < limiterSweepEvery; request++ {
		limiter.allow("busy")
	}
	if _, ok := limiter.limiters["idle"]; ok {
		t.Fatalf("expected idle client limiter to be swept")
	}
	if _, ok := limiter.limiters["busy"]; !ok {
		t.Fatalf("expected busy client limiter to remain")
	}
}
