// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, identity, idempotency, rate limiting, CORS, and security
// headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/config"
	"github.com/tbourn/noticeboard-backend/internal/http/handlers"
	"github.com/tbourn/noticeboard-backend/internal/http/middleware"
	"github.com/tbourn/noticeboard-backend/internal/payments"
	"github.com/tbourn/noticeboard-backend/internal/pricing"
	"github.com/tbourn/noticeboard-backend/internal/repo"
	"github.com/tbourn/noticeboard-backend/internal/services"
)

// defaultIdempotencyTTL applies when the config leaves IdempotencyTTL unset.
const defaultIdempotencyTTL = 24 * time.Hour

// idemStore adapts the idempotency repository to the middleware lookup and
// the handler recorder.
type idemStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup returns the stored outcome for a key, or nil on a miss.
func (s idemStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (*middleware.Replay, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &middleware.Replay{ResourceID: rec.ResourceID, Status: rec.Status}, nil
}

// Record stores an outcome. A concurrent first writer wins; losing the race
// is not an error.
func (s idemStore) Record(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	ttl := s.ttl
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. gw may be nil, in which case checkout endpoints answer 502 and the
// webhook still reconciles.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip responses
//  8. Authenticate: bearer identity (anonymous passes through)
//  9. Idempotency validator (needs the identity; before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gw payments.Gateway, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression (the exposition format negotiates its own)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) Identity
	r.Use(middleware.Authenticate(middleware.AuthOptions{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.Issuer,
	}))

	// 9) Idempotency validation (before rate limiting). Only POST /contacts
	// records keys, so only it may replay and bypass the limiter.
	idem := idemStore{db: db, ttl: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  handlers.IdempotencyScopeContacts,
			Routes: []string{http.MethodPost + " " + routePath(cfg.APIBasePath, "/contacts")},
		},
		idem.Lookup,
	))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 11) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{middleware.HeaderRequestID, "ETag", "Idempotency-Replayed", "Retry-After", "Content-Length"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Balances and contacts are per-user, so nothing is cacheable by proxies.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(newServices(db, gw, cfg, idem), handlers.Options{
		WebhookSecret:    cfg.Payments.WebhookSecret,
		WebhookTolerance: cfg.Payments.WebhookTolerance,
		ContactExpiry:    cfg.ContactExpiry,
	})

	employer := middleware.RequireRoles(middleware.RoleEmployer)
	candidate := middleware.RequireRoles(middleware.RoleCandidate)
	member := middleware.RequireRoles(middleware.RoleCandidate, middleware.RoleEmployer)
	admin := middleware.RequireRoles(middleware.RoleAdmin)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Gateway callbacks (signed, no bearer token)
		api.POST("/webhooks/stripe", h.StripeWebhook)

		// Employers
		api.PUT("/employers/me", employer, h.UpsertEmployer)
		api.GET("/employers/me", employer, h.GetEmployer)
		api.GET("/credits", employer, h.GetCredits)
		api.GET("/candidates/search", employer, h.SearchCandidates)

		// Contacts
		api.POST("/contacts", employer, h.RequestContact)
		api.GET("/contacts", member, h.ListContacts)
		api.POST("/contacts/:id/respond", candidate, h.RespondContact)

		// Checkout
		api.POST("/checkout/contact", employer, h.StartContactCheckout)
		api.POST("/checkout/subscription", employer, h.StartSubscriptionCheckout)

		// Candidates
		api.PUT("/candidates/me", candidate, h.UpsertCandidate)
		api.GET("/candidates/me", candidate, h.GetCandidate)

		// Verification
		api.POST("/verification", member, h.SubmitVerification)
		api.GET("/verification", member, h.GetVerification)

		// Pilot feedback
		api.POST("/pilot/feedback", h.SubmitPilotFeedback)
		api.GET("/pilot/feedback", admin, h.PilotFeedbackSummary)

		// Admin
		adm := api.Group("/admin", admin)
		adm.POST("/verification/:id/review", h.ReviewVerification)
		adm.POST("/contacts/expire", h.ExpireContacts)
		adm.PUT("/employers/:id/tier", h.SetEmployerTier)
	}
}

// newServices builds the application services over db.
func newServices(db *gorm.DB, gw payments.Gateway, cfg config.Config, idem idemStore) handlers.Services {
	pricing.SetReferences(cfg.Payments.PriceRefs)

	ledger := &services.Ledger{DB: db}
	svc := handlers.Services{
		Contacts: &services.ContactService{DB: db, Ledger: ledger},
		Ledger:   ledger,
		Reconciler: &services.Reconciler{
			DB:                 db,
			Ledger:             ledger,
			SubscriptionPeriod: cfg.SubscriptionPeriod,
		},
		Profiles:     &services.ProfileService{DB: db, Locale: language.English},
		Verification: &services.VerificationService{DB: db},
		Feedback:     &services.FeedbackService{DB: db},
		Checkout:     &services.CheckoutService{DB: db, Gateway: gw, Currency: cfg.Payments.Currency},
		Idempotency:  idem,
	}
	return svc
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// routePath is the Gin full path of a route registered under prefix.
func routePath(prefix, route string) string {
	if prefix == "/" {
		prefix = ""
	}
	return prefix + route
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
