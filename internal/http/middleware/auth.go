// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token identity. The session provider issues
// HS256 JWTs whose subject is the user id and whose "role" claim is one of
// candidate, employer, or admin. Authenticate verifies the token and stashes
// the identity in the Gin context; RequireRoles gates routes on it.
//
// Handlers read the identity through UserID and Role rather than the context
// keys directly.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the "role" claim.
const (
	RoleCandidate = "candidate"
	RoleEmployer  = "employer"
	RoleAdmin     = "admin"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyRole   = "role"
)

// Claims is the token payload issued by the session provider.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthOptions configures token verification.
type AuthOptions struct {
	// Secret is the HS256 signing key. An empty secret rejects every token.
	Secret []byte
	// Issuer, when set, must match the "iss" claim.
	Issuer string
}

// ParseToken verifies raw and returns its claims.
func ParseToken(raw string, opts AuthOptions) (*Claims, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return opts.Secret, nil
	}, popts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	switch claims.Role {
	case RoleCandidate, RoleEmployer, RoleAdmin:
	default:
		return nil, errors.New("token has unknown role")
	}
	return claims, nil
}

// Authenticate verifies the Authorization bearer token when one is present.
// Requests without a token pass through anonymously; an invalid token is
// rejected with 401. Use RequireRoles to demand an identity.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}
		raw, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "invalid authorization header")
			return
		}
		claims, err := ParseToken(strings.TrimSpace(raw), opts)
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		c.Set(ctxKeyUserID, claims.Subject)
		c.Set(ctxKeyRole, claims.Role)
		c.Next()
	}
}

// RequireRoles rejects anonymous requests with 401 and requests whose role
// is not listed with 403.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if _, ok := allowed[Role(c)]; !ok {
			abortAuth(c, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated subject, or "".
func UserID(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserID)
	return asString(v)
}

// Role returns the authenticated role, or "".
func Role(c *gin.Context) string {
	v, _ := c.Get(ctxKeyRole)
	return asString(v)
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
