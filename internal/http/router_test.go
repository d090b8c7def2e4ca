package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/noticeboard-backend/internal/config"
	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/http/middleware"
	"github.com/tbourn/noticeboard-backend/internal/payments"
	"github.com/tbourn/noticeboard-backend/internal/repo"
	"github.com/tbourn/noticeboard-backend/internal/services"
)

const (
	testJWTSecret     = "router-test-secret"
	testWebhookSecret = "whsec_router"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     1000,
		RateBurst:   1000,
		Auth:        config.AuthConfig{JWTSecret: testJWTSecret},
		Payments: config.PaymentsConfig{
			WebhookSecret:    testWebhookSecret,
			WebhookTolerance: 5 * time.Minute,
			Currency:         "gbp",
		},
		ContactExpiry:  14 * 24 * time.Hour,
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

// fakeGateway hands out sequential session ids.
type fakeGateway struct {
	n    int
	reqs []payments.CheckoutRequest
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	g.n++
	g.reqs = append(g.reqs, req)
	id := "cs_test_" + strconv.Itoa(g.n)
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func stripeSignature(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type client struct {
	t *testing.T
	r *gin.Engine
}

func (c client) do(method, path, bearer string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), nil, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get(middleware.HeaderRequestID) == "" {
		t.Fatalf("expected X-Request-ID header")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q, want no-store", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger is off unless enabled.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, newTestDB(t), nil, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_RoleGates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), nil, testConfig())
	c := client{t, r}

	cases := []struct {
		name   string
		method string
		path   string
		bearer string
		want   int
	}{
		{"anonymous credits", http.MethodGet, "/api/v1/credits", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/credits", "not-a-jwt", http.StatusUnauthorized},
		{"candidate on credits", http.MethodGet, "/api/v1/credits", token(t, "cand-1", middleware.RoleCandidate), http.StatusForbidden},
		{"employer on respond", http.MethodPost, "/api/v1/contacts/" + uuid.NewString() + "/respond", token(t, "emp-1", middleware.RoleEmployer), http.StatusForbidden},
		{"employer on admin", http.MethodPost, "/api/v1/admin/contacts/expire", token(t, "emp-1", middleware.RoleEmployer), http.StatusForbidden},
		{"candidate on feedback summary", http.MethodGet, "/api/v1/pilot/feedback", token(t, "cand-1", middleware.RoleCandidate), http.StatusForbidden},
		{"admin on verification", http.MethodPost, "/api/v1/verification", token(t, "adm-1", middleware.RoleAdmin), http.StatusForbidden},
		{"employer credits", http.MethodGet, "/api/v1/credits", token(t, "emp-1", middleware.RoleEmployer), http.StatusOK},
		{"admin expire", http.MethodPost, "/api/v1/admin/contacts/expire", token(t, "adm-1", middleware.RoleAdmin), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := c.do(tc.method, tc.path, tc.bearer, nil, nil); w.Code != tc.want {
				t.Fatalf("%s %s = %d, want %d (%s)", tc.method, tc.path, w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestRegisterRoutes_PilotFeedbackIsPublic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), nil, testConfig())
	c := client{t, r}

	w := c.do(http.MethodPost, "/api/v1/pilot/feedback", "", map[string]any{"user_type": "candidate", "rating": 5}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST feedback = %d (%s)", w.Code, w.Body.String())
	}
	w = c.do(http.MethodGet, "/api/v1/pilot/feedback", token(t, "adm-1", middleware.RoleAdmin), nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET feedback = %d", w.Code)
	}
	if sum := decode[services.FeedbackSummary](t, w); sum.Total != 1 || sum.AverageRating != 5 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

// End to end: gate denies, employer pays, webhook unlocks, candidate sees it.
func TestRegisterRoutes_ContactPaymentFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	gw := &fakeGateway{}
	RegisterRoutes(r, db, gw, testConfig())
	c := client{t, r}

	emp := token(t, "emp-1", middleware.RoleEmployer)
	cand := token(t, "cand-1", middleware.RoleCandidate)

	if w := c.do(http.MethodPut, "/api/v1/employers/me", emp, map[string]any{
		"email": "hiring@acme.test", "company_name": "Acme",
	}, nil); w.Code != http.StatusOK {
		t.Fatalf("PUT employers/me = %d (%s)", w.Code, w.Body.String())
	}
	if w := c.do(http.MethodPut, "/api/v1/candidates/me", cand, map[string]any{
		"email": "dev@example.test", "skills": []string{"Go"}, "visibility": "public",
	}, nil); w.Code != http.StatusOK {
		t.Fatalf("PUT candidates/me = %d (%s)", w.Code, w.Body.String())
	}

	// No credits: 402 with the price, replayed on retry with the same key.
	body := map[string]any{"candidate_id": "cand-1", "contact_type": "view"}
	idem := map[string]string{middleware.HeaderIdempotencyKey: "req-1"}
	w := c.do(http.MethodPost, "/api/v1/contacts", emp, body, idem)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("POST contacts = %d (%s)", w.Code, w.Body.String())
	}
	first := decode[struct {
		Code    string          `json:"code"`
		Contact *domain.Contact `json:"contact"`
		Price   *struct {
			Amount int64 `json:"amount"`
		} `json:"price"`
	}](t, w)
	if first.Code != "payment_required" || first.Contact == nil || first.Contact.Status != domain.ContactAwaitingPayment {
		t.Fatalf("unexpected 402 body: %s", w.Body.String())
	}
	if first.Price == nil || first.Price.Amount != 500 {
		t.Fatalf("expected view price 500, got %s", w.Body.String())
	}

	w = c.do(http.MethodPost, "/api/v1/contacts", emp, body, idem)
	if w.Code != http.StatusPaymentRequired || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}

	// Candidates never see requests awaiting payment.
	w = c.do(http.MethodGet, "/api/v1/contacts", cand, nil, nil)
	if got := decode[struct {
		Contacts []domain.Contact `json:"contacts"`
	}](t, w); len(got.Contacts) != 0 {
		t.Fatalf("candidate should see no contacts yet, got %d", len(got.Contacts))
	}

	// Pay for it.
	w = c.do(http.MethodPost, "/api/v1/checkout/contact", emp, map[string]any{"contact_id": first.Contact.ID}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout = %d (%s)", w.Code, w.Body.String())
	}
	start := decode[services.CheckoutStart](t, w)
	if start.SessionID != "cs_test_1" || start.Amount != 500 || start.Currency != "gbp" {
		t.Fatalf("unexpected checkout start: %+v", start)
	}
	if len(gw.reqs) != 1 || gw.reqs[0].Kind != domain.PurchaseOneTimeContact || gw.reqs[0].ContactID != first.Contact.ID {
		t.Fatalf("unexpected gateway request: %+v", gw.reqs)
	}

	payload := []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": %q,
    "object": "checkout.session",
    "amount_total": 500,
    "currency": "gbp",
    "payment_intent": "pi_flow_1",
    "payment_status": "paid",
    "metadata": {"kind": "one_time_contact", "employer_id": "emp-1", "contact_id": %q}
  }}
}`, start.SessionID, first.Contact.ID))

	// Unsigned deliveries are rejected.
	if w := c.do(http.MethodPost, "/api/v1/webhooks/stripe", "", payload, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unsigned webhook = %d", w.Code)
	}

	sig := map[string]string{"Stripe-Signature": stripeSignature(payload, testWebhookSecret, time.Now())}
	w = c.do(http.MethodPost, "/api/v1/webhooks/stripe", "", payload, sig)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook = %d (%s)", w.Code, w.Body.String())
	}
	if ack := decode[map[string]any](t, w); ack["result"] != string(services.ResultApplied) {
		t.Fatalf("expected applied, got %v", ack)
	}

	// Redelivery is acknowledged without effect.
	w = c.do(http.MethodPost, "/api/v1/webhooks/stripe", "", payload, sig)
	if ack := decode[map[string]any](t, w); w.Code != http.StatusOK || ack["result"] != string(services.ResultIgnored) {
		t.Fatalf("redelivery = %d %v", w.Code, ack)
	}

	// Now the candidate sees it and can accept.
	w = c.do(http.MethodGet, "/api/v1/contacts", cand, nil, nil)
	listed := decode[struct {
		Contacts []domain.Contact `json:"contacts"`
	}](t, w)
	if len(listed.Contacts) != 1 || listed.Contacts[0].Status != domain.ContactPending {
		t.Fatalf("candidate list after payment: %s", w.Body.String())
	}
	w = c.do(http.MethodPost, "/api/v1/contacts/"+first.Contact.ID+"/respond", cand, map[string]any{"action": "accept"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("respond = %d (%s)", w.Code, w.Body.String())
	}
	if got := decode[domain.Contact](t, w); got.Status != domain.ContactAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
}

func TestRegisterRoutes_CreditSpendAndDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, nil, testConfig())
	c := client{t, r}
	ctx := context.Background()

	if err := repo.UpsertEmployer(ctx, db, &domain.Employer{ID: "emp-2", Email: "e2@acme.test", CompanyName: "Acme"}); err != nil {
		t.Fatalf("seed employer: %v", err)
	}
	if err := repo.UpsertCandidate(ctx, db, &domain.Candidate{ID: "cand-2", Email: "c2@example.test", Visibility: "public"}); err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	ledger := &services.Ledger{DB: db}
	if _, err := ledger.Grant(ctx, "emp-2", domain.CreditMessage, 1, nil); err != nil {
		t.Fatalf("grant: %v", err)
	}

	emp := token(t, "emp-2", middleware.RoleEmployer)
	body := map[string]any{"candidate_id": "cand-2", "contact_type": "message", "message": "Hello"}

	if w := c.do(http.MethodPost, "/api/v1/contacts", emp, body, nil); w.Code != http.StatusCreated {
		t.Fatalf("first request = %d (%s)", w.Code, w.Body.String())
	}
	w := c.do(http.MethodPost, "/api/v1/contacts", emp, body, nil)
	if w.Code != http.StatusConflict || decode[map[string]any](t, w)["code"] != "duplicate_contact" {
		t.Fatalf("duplicate = %d (%s)", w.Code, w.Body.String())
	}

	w = c.do(http.MethodGet, "/api/v1/credits", emp, nil, nil)
	got := decode[struct {
		Balances map[string]int64 `json:"balances"`
	}](t, w)
	if got.Balances["message"] != 0 {
		t.Fatalf("message balance = %d, want 0", got.Balances["message"])
	}

	// An open pending tuple is a duplicate even when the repeat is malformed.
	w = c.do(http.MethodPost, "/api/v1/contacts", emp, map[string]any{"candidate_id": "cand-2", "contact_type": "message"}, nil)
	if w.Code != http.StatusConflict || decode[map[string]any](t, w)["code"] != "duplicate_contact" {
		t.Fatalf("duplicate without message = %d (%s)", w.Code, w.Body.String())
	}

	// Missing message body on a fresh tuple.
	if err := repo.UpsertCandidate(ctx, db, &domain.Candidate{ID: "cand-3", Email: "c3@example.test", Visibility: "public"}); err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	w = c.do(http.MethodPost, "/api/v1/contacts", emp, map[string]any{"candidate_id": "cand-3", "contact_type": "message"}, nil)
	if w.Code != http.StatusBadRequest || decode[map[string]any](t, w)["code"] != "message_required" {
		t.Fatalf("missing message = %d (%s)", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_ReplayedKeyOnlyBypassesLimiterOnContacts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 3
	RegisterRoutes(r, db, nil, cfg)
	c := client{t, r}
	ctx := context.Background()

	if err := repo.UpsertEmployer(ctx, db, &domain.Employer{ID: "emp-rl", Email: "rl@acme.test", CompanyName: "Acme"}); err != nil {
		t.Fatalf("seed employer: %v", err)
	}
	if err := repo.UpsertCandidate(ctx, db, &domain.Candidate{ID: "cand-rl", Email: "rl@example.test", Visibility: "public"}); err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	emp := token(t, "emp-rl", middleware.RoleEmployer)
	idem := map[string]string{middleware.HeaderIdempotencyKey: "k1"}

	w := c.do(http.MethodPost, "/api/v1/contacts", emp, map[string]any{"candidate_id": "cand-rl", "contact_type": "view"}, idem)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("record key = %d (%s)", w.Code, w.Body.String())
	}

	limited := 0
	for i := 0; i < 10; i++ {
		if w := c.do(http.MethodGet, "/api/v1/candidates/search", emp, nil, idem); w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Fatalf("recorded key let search skip the rate limiter")
	}

	// The contacts replay itself still bypasses.
	w = c.do(http.MethodPost, "/api/v1/contacts", emp, map[string]any{"candidate_id": "cand-rl", "contact_type": "view"}, idem)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("replay = %d (%s)", w.Code, w.Body.String())
	}
}

func TestRoutePath(t *testing.T) {
	cases := map[string]string{"": "/contacts", "/": "/contacts", "/api/v1": "/api/v1/contacts"}
	for prefix, want := range cases {
		if got := routePath(prefix, "/contacts"); got != want {
			t.Fatalf("routePath(%q) = %q, want %q", prefix, got, want)
		}
	}
}

func TestRegisterRoutes_CheckoutWithoutGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, nil, testConfig())
	c := client{t, r}

	if err := repo.UpsertEmployer(context.Background(), db, &domain.Employer{ID: "emp-3", Email: "e3@acme.test", CompanyName: "Acme"}); err != nil {
		t.Fatalf("seed employer: %v", err)
	}
	w := c.do(http.MethodPost, "/api/v1/checkout/subscription", token(t, "emp-3", middleware.RoleEmployer), map[string]any{"tier": "basic"}, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("checkout without gateway = %d (%s)", w.Code, w.Body.String())
	}
}

func TestIdemStore_LookupAndRecord(t *testing.T) {
	db := newTestDB(t)
	s := idemStore{db: db}
	ctx := context.Background()

	rp, err := s.Lookup(ctx, "u1", "contacts", "k1", time.Now())
	if err != nil || rp != nil {
		t.Fatalf("miss: rp=%v err=%v", rp, err)
	}
	if err := s.Record(ctx, "u1", "contacts", "k1", "ct_1", http.StatusCreated); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Losing a concurrent race is not an error.
	if err := s.Record(ctx, "u1", "contacts", "k1", "ct_2", http.StatusCreated); err != nil {
		t.Fatalf("second record: %v", err)
	}
	rp, err = s.Lookup(ctx, "u1", "contacts", "k1", time.Now())
	if err != nil || rp == nil || rp.ResourceID != "ct_1" || rp.Status != http.StatusCreated {
		t.Fatalf("hit: rp=%+v err=%v", rp, err)
	}
	// Default TTL applies when unset.
	if rp, _ := s.Lookup(ctx, "u1", "contacts", "k1", time.Now().Add(defaultIdempotencyTTL+time.Minute)); rp != nil {
		t.Fatalf("record should have expired")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
