package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func withUser(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid != "" {
			c.Set(ctxKeyUserID, uid)
		}
		c.Next()
	}
}

func TestHelpers_GetIdempotencyKey_GetReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}

	// Non-string key is treated as absent.
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("expected GetIdempotencyKey to be absent for non-string value")
	}

	c.Set(ctxKeyIdemReplay, Replay{ResourceID: "r1", Status: http.StatusCreated})
	rp, ok := GetReplay(c)
	if !ok || rp.ResourceID != "r1" || rp.Status != http.StatusCreated || !IsReplay(c) {
		t.Fatalf("unexpected replay: %+v ok=%v", rp, ok)
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false for wrong type")
	}
}

func TestIdempotencyValidator_NoHeader_NoLookupCalled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	lookupCalled := false
	lookup := func(context.Context, string, string, string, time.Time) (*Replay, error) {
		lookupCalled = true
		return nil, nil
	}
	r.Use(withUser("u1"), IdempotencyValidator(IdempotencyOptions{Scope: "contacts"}, lookup))
	r.POST("/contacts", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("key should not be present when header missing")
		}
		c.Status(http.StatusNoContent)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contacts", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if lookupCalled {
		t.Fatalf("lookup should not be called when header missing")
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{"default pattern", IdempotencyOptions{}, "has space"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(IdempotencyValidator(tc.opts, nil))
			r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set(HeaderIdempotencyKey, tc.key)
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["code"] != "bad_idempotency_key" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_AnonymousSkipsLookup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	lookup := func(context.Context, string, string, string, time.Time) (*Replay, error) {
		t.Fatalf("lookup must not run without a user")
		return nil, nil
	}
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/z", func(c *gin.Context) {
		key, ok := GetIdempotencyKey(c)
		if !ok || key != "abc-123" {
			t.Fatalf("expected stashed key abc-123, got %q ok=%v", key, ok)
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/z", nil)
	req.Header.Set(HeaderIdempotencyKey, "abc-123")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIdempotencyValidator_LookupMissHitAndError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(t *testing.T, lookup IdempotencyLookup, check gin.HandlerFunc) {
		t.Helper()
		r := gin.New()
		r.Use(withUser("u9"), IdempotencyValidator(IdempotencyOptions{Scope: "contacts"}, lookup))
		r.POST("/contacts", check, func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/contacts", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-9")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}

	t.Run("miss", func(t *testing.T) {
		run(t, func(_ context.Context, uid, scope, key string, now time.Time) (*Replay, error) {
			if uid != "u9" || scope != "contacts" || key != "k-9" || now.IsZero() {
				t.Fatalf("lookup args: uid=%q scope=%q key=%q now=%v", uid, scope, key, now)
			}
			return nil, nil
		}, func(c *gin.Context) {
			if IsReplay(c) || IsRateBypass(c) {
				t.Fatalf("expected no replay/bypass on miss")
			}
		})
	})

	t.Run("hit", func(t *testing.T) {
		run(t, func(context.Context, string, string, string, time.Time) (*Replay, error) {
			return &Replay{ResourceID: "ct_1", Status: http.StatusPaymentRequired}, nil
		}, func(c *gin.Context) {
			rp, ok := GetReplay(c)
			if !ok || rp.ResourceID != "ct_1" || rp.Status != http.StatusPaymentRequired {
				t.Fatalf("unexpected replay %+v ok=%v", rp, ok)
			}
			if !IsRateBypass(c) {
				t.Fatalf("expected IsRateBypass=true on hit")
			}
		})
	})

	t.Run("lookup error proceeds normally", func(t *testing.T) {
		run(t, func(context.Context, string, string, string, time.Time) (*Replay, error) {
			return nil, errors.New("db down")
		}, func(c *gin.Context) {
			if IsReplay(c) {
				t.Fatalf("lookup error must not mark a replay")
			}
		})
	})
}

func TestIdempotencyValidator_RoutesLimitLookupAndBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	calls := 0
	lookup := func(context.Context, string, string, string, time.Time) (*Replay, error) {
		calls++
		return &Replay{ResourceID: "c-1", Status: http.StatusCreated}, nil
	}
	r.Use(withUser("emp-1"))
	r.Use(IdempotencyValidator(IdempotencyOptions{
		Scope:  "contacts",
		Routes: []string{"POST /api/v1/contacts"},
	}, lookup))
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"replay": IsReplay(c), "bypass": IsRateBypass(c)})
	}
	r.POST("/api/v1/contacts", handler)
	r.GET("/api/v1/candidates/search", handler)
	r.GET("/api/v1/contacts", handler)

	cases := []struct {
		method, path string
		replay       bool
	}{
		{http.MethodPost, "/api/v1/contacts", true},
		{http.MethodGet, "/api/v1/candidates/search", false},
		{http.MethodGet, "/api/v1/contacts", false},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set(HeaderIdempotencyKey, "k1")
		r.ServeHTTP(w, req)

		var got struct{ Replay, Bypass bool }
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s %s: json: %v", tc.method, tc.path, err)
		}
		if got.Replay != tc.replay || got.Bypass != tc.replay {
			t.Fatalf("%s %s: replay=%v bypass=%v, want %v", tc.method, tc.path, got.Replay, got.Bypass, tc.replay)
		}
	}
	if calls != 1 {
		t.Fatalf("lookup calls = %d, want 1", calls)
	}
}
