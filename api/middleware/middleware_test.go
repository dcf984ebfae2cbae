package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyRejectsMissingHeader(t *testing.T) {
	handler := APIKey("secret", nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/duplicate", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAPIKeyRejectsMismatch(t *testing.T) {
	handler := APIKey("secret", nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/duplicate", nil)
	req.Header.Set("X-Api-Key", "wrong")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAPIKeyAllowsMatch(t *testing.T) {
	handler := APIKey("secret", nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/duplicate", nil)
	req.Header.Set("X-Api-Key", "secret")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

type fakeLimiter struct {
	allowed bool
	count   int64
	err     error
	scope   string
}

func (f *fakeLimiter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	f.scope = scope
	return f.allowed, f.count, f.err
}

func TestUploadThrottleBlocks(t *testing.T) {
	limiter := &fakeLimiter{allowed: false, count: 31}
	handler := UploadThrottle(30, time.Minute, limiter, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/request-upload", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if limiter.scope != "upload:203.0.113.9" {
		t.Fatalf("unexpected scope: %s", limiter.scope)
	}
}

func TestUploadThrottleAllows(t *testing.T) {
	limiter := &fakeLimiter{allowed: true, count: 1}
	handler := UploadThrottle(30, time.Minute, limiter, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/request-upload", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestUploadThrottleDependencyFailure(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	handler := UploadThrottle(30, time.Minute, limiter, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/request-upload", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestUploadThrottleDisabledWithoutLimit(t *testing.T) {
	handler := UploadThrottle(0, time.Minute, &fakeLimiter{}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/request-upload", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	handler := RequestID(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", "req-42")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got := resp.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("unexpected request id: %s", got)
	}
}

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	handler := RequestID(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id")
	}
}

func TestFrameAncestorsHeader(t *testing.T) {
	handler := FrameAncestors([]string{"https://docs.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/file/tok-1", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	policy := resp.Header().Get("Content-Security-Policy")
	if !strings.Contains(policy, "frame-ancestors 'self' https://docs.example.com") {
		t.Fatalf("unexpected policy: %s", policy)
	}
}

func TestRecovererTurnsPanicInto500(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
