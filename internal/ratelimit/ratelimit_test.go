package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestMemoryLimiter_AllowsUpToLimit(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Stop()
	ctx := context.Background()

	class := Class{Name: "test", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		d := l.Check(ctx, "1.2.3.4", class)
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
		if d.Remaining != 3-(i+1) {
			t.Errorf("request %d remaining = %d, want %d", i+1, d.Remaining, 3-(i+1))
		}
	}

	d := l.Check(ctx, "1.2.3.4", class)
	if d.Allowed {
		t.Fatal("request over limit allowed")
	}
	if d.Remaining != 0 {
		t.Errorf("denied remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter < 1 {
		t.Errorf("denied RetryAfter = %d, want >= 1", d.RetryAfter)
	}
}

func TestMemoryLimiter_IndependentKeys(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Stop()
	ctx := context.Background()

	class := Class{Name: "test", Limit: 1, Window: time.Minute}

	if d := l.Check(ctx, "a", class); !d.Allowed {
		t.Fatal("first request for key a denied")
	}
	if d := l.Check(ctx, "b", class); !d.Allowed {
		t.Fatal("key b affected by key a's quota")
	}
	if d := l.Check(ctx, "a", class); d.Allowed {
		t.Fatal("key a over limit allowed")
	}
}

func TestMemoryLimiter_IndependentClasses(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Stop()
	ctx := context.Background()

	small := Class{Name: "small", Limit: 1, Window: time.Minute}
	large := Class{Name: "large", Limit: 10, Window: time.Minute}

	_ = l.Check(ctx, "a", small)
	if d := l.Check(ctx, "a", small); d.Allowed {
		t.Fatal("small class over limit allowed")
	}
	if d := l.Check(ctx, "a", large); !d.Allowed {
		t.Fatal("large class shares small class counter")
	}
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	base := time.Now()
	clock := base
	l := NewMemoryLimiter().WithClock(func() time.Time { return clock })
	defer l.Stop()
	ctx := context.Background()

	class := Class{Name: "test", Limit: 1, Window: time.Minute}

	if d := l.Check(ctx, "a", class); !d.Allowed {
		t.Fatal("first request denied")
	}
	if d := l.Check(ctx, "a", class); d.Allowed {
		t.Fatal("second request in window allowed")
	}

	clock = base.Add(61 * time.Second)
	if d := l.Check(ctx, "a", class); !d.Allowed {
		t.Fatal("request after window reset denied")
	}
}

func TestMemoryLimiter_ConcurrentFairness(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Stop()
	ctx := context.Background()

	const n = 100
	const limit = 10
	class := Class{Name: "test", Limit: limit, Window: time.Minute}

	var allowed, denied atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if l.Check(ctx, "shared", class).Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != limit {
		t.Errorf("allowed = %d, want exactly %d", allowed.Load(), limit)
	}
	if denied.Load() != n-limit {
		t.Errorf("denied = %d, want exactly %d", denied.Load(), n-limit)
	}
}

func TestMiddleware_SetsQuotaHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewMemoryLimiter()
	defer l.Stop()

	class := Class{Name: "test", Limit: 2, Window: time.Minute}
	r := gin.New()
	r.GET("/x", Middleware(l, class, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want 1", got)
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset not set")
	}
}

func TestMiddleware_DeniesWithRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewMemoryLimiter()
	defer l.Stop()

	class := Class{Name: "test", Limit: 1, Window: time.Minute}
	r := gin.New()
	r.GET("/x", Middleware(l, class, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	// Exhaust the quota, then expect 429.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/x", nil)
		r.ServeHTTP(w, req)

		if i == 1 {
			if w.Code != http.StatusTooManyRequests {
				t.Fatalf("status = %d, want 429", w.Code)
			}
			if w.Header().Get("Retry-After") == "" {
				t.Error("Retry-After not set on denial")
			}
			if w.Header().Get("X-RateLimit-Remaining") != "0" {
				t.Error("X-RateLimit-Remaining should be 0 on denial")
			}
		}
	}
}
