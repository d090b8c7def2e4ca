// Package handlers exposes the noticeboard REST API.
//
// Handlers are transport-thin: they bind and validate input, take the caller
// identity from the auth middleware, delegate to application services, and
// translate results into HTTP responses (including conditional and replayed
// responses).
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/http/middleware"
	"github.com/tbourn/noticeboard-backend/internal/payments"
	"github.com/tbourn/noticeboard-backend/internal/services"
	"github.com/tbourn/noticeboard-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ContactGate runs contact requests and the contact lifecycle.
type ContactGate interface {
	Request(ctx context.Context, in services.RequestInput) (*services.Decision, error)
	GetForEmployer(ctx context.Context, employerID, contactID string) (*domain.Contact, error)
	Respond(ctx context.Context, candidateID, contactID string, accept bool) (*domain.Contact, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ListForEmployer(ctx context.Context, employerID string, page, pageSize int) ([]domain.Contact, int64, error)
	ListForCandidate(ctx context.Context, candidateID string, page, pageSize int) ([]domain.Contact, int64, error)
	// Stats returns the employer's contact count and latest update, for ETags.
	Stats(ctx context.Context, employerID string) (int64, *time.Time, error)
}

// CreditLedger reports credit balances.
type CreditLedger interface {
	Balances(ctx context.Context, employerID string) (map[domain.CreditType]int64, error)
}

// PaymentReconciler applies verified checkout completions.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, ev payments.CheckoutCompleted) (services.Result, error)
}

// CheckoutStarter opens gateway checkout sessions.
type CheckoutStarter interface {
	StartContactCheckout(ctx context.Context, employerID, contactID string) (*services.CheckoutStart, error)
	StartSubscriptionCheckout(ctx context.Context, employerID string, tier domain.Tier) (*services.CheckoutStart, error)
}

// Profiles manages employer and candidate profiles.
type Profiles interface {
	UpsertEmployer(ctx context.Context, id string, in services.EmployerInput) (*domain.Employer, error)
	GetEmployer(ctx context.Context, id string) (*domain.Employer, error)
	SetTier(ctx context.Context, id string, tier domain.Tier) error
	UpsertCandidate(ctx context.Context, id string, in services.CandidateInput) (*domain.Candidate, error)
	GetCandidate(ctx context.Context, id string) (*domain.Candidate, error)
	Search(ctx context.Context, q services.SearchQuery) ([]services.CandidateCard, int64, error)
}

// Verifier runs the verification workflow.
type Verifier interface {
	Submit(ctx context.Context, userID string, userType domain.UserType, in services.VerificationInput) (*domain.VerificationRequest, error)
	Review(ctx context.Context, adminID, requestID string, approve bool, notes string) (*domain.VerificationRequest, error)
	Status(ctx context.Context, userID string) (*services.VerificationStatus, error)
}

// PilotFeedback records and summarizes pilot feedback.
type PilotFeedback interface {
	Submit(ctx context.Context, userType domain.UserType, rating int, comment string) (*domain.PilotFeedback, error)
	Summary(ctx context.Context, page, pageSize int) (*services.FeedbackSummary, error)
}

// IdempotencyRecorder stores the outcome of a keyed request so a retry with
// the same key replays it.
type IdempotencyRecorder interface {
	Record(ctx context.Context, userID, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Services bundles the handler dependencies. Nil members leave their
// endpoints unusable; the router always supplies all of them.
type Services struct {
	Contacts     ContactGate
	Ledger       CreditLedger
	Reconciler   PaymentReconciler
	Checkout     CheckoutStarter
	Profiles     Profiles
	Verification Verifier
	Feedback     PilotFeedback
	Idempotency  IdempotencyRecorder
}

// Options carries transport settings the handlers need.
type Options struct {
	// WebhookSecret verifies Stripe-Signature headers.
	WebhookSecret string
	// WebhookTolerance bounds the signature timestamp age.
	WebhookTolerance time.Duration
	// ContactExpiry is the default inactivity cutoff for the expiry sweep.
	ContactExpiry time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	contacts   ContactGate
	ledger     CreditLedger
	reconciler PaymentReconciler
	checkout   CheckoutStarter
	profiles   Profiles
	verify     Verifier
	feedback   PilotFeedback
	idem       IdempotencyRecorder
	opts       Options
}

// New constructs Handlers bound to the given services.
func New(svc Services, opts Options) *Handlers {
	return &Handlers{
		contacts:   svc.Contacts,
		ledger:     svc.Ledger,
		reconciler: svc.Reconciler,
		checkout:   svc.Checkout,
		profiles:   svc.Profiles,
		verify:     svc.Verification,
		feedback:   svc.Feedback,
		idem:       svc.Idempotency,
		opts:       opts,
	}
}

// userID is the authenticated subject set by middleware.Authenticate.
func userID(c *gin.Context) string { return middleware.UserID(c) }

// userType maps the caller's role to a profile kind. Admins have none.
func userType(c *gin.Context) (domain.UserType, bool) {
	switch middleware.Role(c) {
	case middleware.RoleCandidate:
		return domain.UserCandidate, true
	case middleware.RoleEmployer:
		return domain.UserEmployer, true
	}
	return "", false
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
