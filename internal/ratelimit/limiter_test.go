package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func clientKeyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`10\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
}

// =============================================================================
// Property: requests within the burst succeed, the next one is rejected
// =============================================================================

func testRateLimiter_BurstThenReject(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	rl := NewRateLimiter(Config{
		RPS:             0.001, // effectively no refill during the test
		Burst:           burst,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of burst %d rejected", i+1, burst)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request %d should exceed burst %d", burst+1, burst)
	}
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rapid.Check(t, testRateLimiter_BurstThenReject)
}

func FuzzRateLimiter_BurstThenReject(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_BurstThenReject))
}

// =============================================================================
// Property: clients are isolated from each other
// =============================================================================

func testRateLimiter_ClientsIsolated(t *rapid.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	a := clientKeyGenerator().Draw(t, "a")
	b := clientKeyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	if !rl.Allow(a) {
		t.Fatal("first request from a rejected")
	}
	if rl.Allow(a) {
		t.Fatal("a should be exhausted")
	}
	if !rl.Allow(b) {
		t.Fatal("b must not be affected by a's usage")
	}
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_ClientsIsolated(t *testing.T) {
	rapid.Check(t, testRateLimiter_ClientsIsolated)
}

func TestRateLimiter_CleanupDropsIdleLimiters(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 10, Burst: 10, CleanupInterval: time.Hour})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	rl.Cleanup()
	if rl.Len() != 2 {
		t.Fatalf("fresh limiters were cleaned up: Len = %d", rl.Len())
	}

	rl.cleanupBefore(time.Now().Add(time.Minute))
	if rl.Len() != 0 {
		t.Fatalf("idle limiters survived cleanup: Len = %d", rl.Len())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 10, Burst: 10, CleanupInterval: 10 * time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rl.Allow("10.0.0.1")
		}()
	}
	wg.Wait()

	rl.Stop()
	rl.Stop()
}

// =============================================================================
// Middleware
// =============================================================================

func TestRateLimitMiddleware_Returns429WhenExhausted(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	h := RateLimitMiddleware(rl, ClientKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/memos", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("192.0.2.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i+1, rec.Code)
		}
	}

	// Same host, different port: still the same client.
	rec := do("192.0.2.1:6000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing rate limit headers: %v", rec.Header())
	}

	if rec := do("192.0.2.2:5000"); rec.Code != http.StatusOK {
		t.Fatalf("other client: status %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware_EmptyKeyBypasses(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	h := RateLimitMiddleware(rl, func(*http.Request) string { return "" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}
	if rl.Len() != 0 {
		t.Fatalf("bypassed requests created limiters: %d", rl.Len())
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := ClientKey(req); got != "2001:db8::1" {
		t.Fatalf("ClientKey = %q", got)
	}
	req.RemoteAddr = "pipe"
	if got := ClientKey(req); got != "pipe" {
		t.Fatalf("ClientKey without port = %q", got)
	}
}
