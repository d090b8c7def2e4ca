// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for unsafe HTTP methods (e.g., POST).
// It validates an Idempotency-Key request header, optionally performs a
// user-defined lookup to detect previously completed requests, and annotates
// the request context so downstream handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests and their stored outcome (GetReplay)
//   - bypass rate limiting when a replay is served (via an internal flag)
//
// Design goals:
//   - Keep transport concerns (validation, context stashing) in middleware.
//   - Decouple persistence via a narrow IdempotencyLookup function type.
//   - Remain framework-agnostic beyond Gin’s context.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations (e.g., POST).
//
// The value is expected to be stable for a given semantic operation so that
// retries (network, client, or server initiated) can be safely deduplicated.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash idempotency state.
// These keys are intentionally unexported and referenced via accessor helpers.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // Replay: set when a stored outcome exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
//
// Handlers should prefer this function over reading the header directly.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// GetReplay returns the stored outcome when the middleware detected that this
// request repeats a completed operation by the same user.
//
// When present, handlers short-circuit and respond from the stored resource
// instead of re-running side effects.
func GetReplay(c *gin.Context) (Replay, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return Replay{}, false
	}
	rp, ok := v.(Replay)
	return rp, ok
}

// IsReplay reports whether GetReplay would find a stored outcome.
func IsReplay(c *gin.Context) bool {
	_, ok := GetReplay(c)
	return ok
}

// IdempotencyOptions configures header validation behavior for
// IdempotencyValidator. TTL enforcement is intentionally out of scope here and
// should be implemented inside the provided lookup function.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative RFC7230-like
	// token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
	// Scope namespaces keys per operation, e.g. "contacts".
	Scope string
	// Routes limits the replay lookup to "METHOD /route/template" entries
	// matched against c.FullPath(). Keys on other routes are validated and
	// stashed but never replayed, so they cannot skip rate limiting.
	// Empty means every route.
	Routes []string
}

// Replay is the stored outcome of a completed request.
type Replay struct {
	ResourceID string
	Status     int
}

// IdempotencyLookup returns the stored outcome for (userID, scope, key) if
// one is still valid at now. Implementations typically consult a database
// record holding the created resource id, the response status, and a TTL.
//
// Return (nil, nil) on a miss; return an error only for lookup failures
// (which do not block normal processing).
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (*Replay, error)

// IdempotencyValidator validates the Idempotency-Key header (if present), stashes
// it in the request context, and optionally checks for a prior completed request
// by the authenticated user via the supplied lookup. When a replay is detected,
// it marks the context so downstream components can:
//   - fetch it via GetReplay
//   - bypass rate limiting (internal flag checked by the RL middleware)
//
// Behavior:
//   - If header is absent: the middleware is a no-op.
//   - If header fails validation: responds 400 with a compact error body.
//   - Anonymous requests are validated but never looked up.
//   - Requests outside opts.Routes are validated but never looked up.
//   - Always invokes the next handler unless validation fails.
//
// This middleware does not itself return a cached payload; handlers remain in
// control of how to serve replays (e.g., by fetching the stored resource).
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	// Sensible defaults.
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		// RFC-7230-ish token + common safe chars.
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	routes := make(map[string]struct{}, len(opts.Routes))
	for _, r := range opts.Routes {
		routes[r] = struct{}{}
	}
	scoped := func(c *gin.Context) bool {
		if len(routes) == 0 {
			return true
		}
		_, ok := routes[c.Request.Method+" "+c.FullPath()]
		return ok
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			// Nothing to validate or stash; proceed.
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		// Stash the normalized key for downstream use.
		c.Set(ctxKeyIdemKey, key)

		// If we can find a previously stored response, mark replay + rate bypass.
		if uid := UserID(c); lookup != nil && uid != "" && scoped(c) {
			rp, err := lookup(c.Request.Context(), uid, opts.Scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if err == nil && rp != nil {
				c.Set(ctxKeyIdemReplay, *rp)
				c.Set(ctxKeyRateBypass, true) // let RL middleware skip limiting
			}
		}

		c.Next()
	}
}
