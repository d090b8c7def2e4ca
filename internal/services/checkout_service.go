// Package services – CheckoutService
//
// This file opens gateway checkout sessions for the two purchase kinds and
// records the pending checkout that reconciliation later matches the
// completion event against. Amounts and price references come from the
// pricing table, the same one the contact gate quotes from.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/payments"
	"github.com/tbourn/noticeboard-backend/internal/pricing"
	"github.com/tbourn/noticeboard-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutStart is what the caller needs to redirect the payer. Amount is
// known up front only for one-time contacts; subscription prices are billed
// by the gateway from the plan's price reference.
type CheckoutStart struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Amount    int64  `json:"amount,omitempty"`
	Currency  string `json:"currency"`
}

// CheckoutService creates checkout sessions.
type CheckoutService struct {
	DB       *gorm.DB
	Gateway  payments.Gateway
	Currency string
}

func (s *CheckoutService) currency() string {
	if c := strings.TrimSpace(s.Currency); c != "" {
		return strings.ToLower(c)
	}
	return "gbp"
}

// StartContactCheckout opens a one-time checkout for a contact that is
// awaiting payment.
func (s *CheckoutService) StartContactCheckout(ctx context.Context, employerID, contactID string) (*CheckoutStart, error) {
	tr := otel.Tracer("services/CheckoutService")
	ctx, span := tr.Start(ctx, "StartContactCheckout",
		trace.WithAttributes(
			attribute.String("employer.id", employerID),
			attribute.String("contact.id", contactID),
		),
	)
	defer span.End()

	emp, err := repo.GetEmployer(ctx, s.DB, employerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrEmployerNotFound
		}
		return nil, err
	}
	c, err := repo.GetContact(ctx, s.DB, contactID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	if c.EmployerID != employerID {
		return nil, ErrContactNotFound
	}
	if c.Status != domain.ContactAwaitingPayment {
		return nil, ErrContactNotAwaitingPayment
	}
	price, err := pricing.ContactPrice(c.ContactType)
	if err != nil {
		return nil, ErrInvalidPurchase
	}

	return s.start(ctx, payments.CheckoutRequest{
		Kind:           domain.PurchaseOneTimeContact,
		EmployerID:     employerID,
		CustomerEmail:  emp.Email,
		PriceReference: price.Reference,
		ContactID:      c.ID,
	}, price.Amount)
}

// StartSubscriptionCheckout opens a subscription checkout for a paid tier.
func (s *CheckoutService) StartSubscriptionCheckout(ctx context.Context, employerID string, tier domain.Tier) (*CheckoutStart, error) {
	tr := otel.Tracer("services/CheckoutService")
	ctx, span := tr.Start(ctx, "StartSubscriptionCheckout",
		trace.WithAttributes(
			attribute.String("employer.id", employerID),
			attribute.String("tier", string(tier)),
		),
	)
	defer span.End()

	if !tier.Valid() || tier == domain.TierFree {
		return nil, ErrInvalidTier
	}
	plan, err := pricing.PlanFor(tier)
	if err != nil || plan.Reference == "" {
		return nil, ErrInvalidTier
	}
	emp, err := repo.GetEmployer(ctx, s.DB, employerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrEmployerNotFound
		}
		return nil, err
	}

	return s.start(ctx, payments.CheckoutRequest{
		Kind:           domain.PurchaseSubscriptionCredits,
		EmployerID:     employerID,
		CustomerEmail:  emp.Email,
		PriceReference: plan.Reference,
		Tier:           tier,
	}, 0)
}

func (s *CheckoutService) start(ctx context.Context, req payments.CheckoutRequest, amount int64) (*CheckoutStart, error) {
	if s.Gateway == nil {
		return nil, errors.New("payment gateway not configured")
	}
	sess, err := s.Gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, err
	}

	pc := &domain.PendingCheckout{
		SessionID:  sess.ID,
		EmployerID: req.EmployerID,
		Kind:       req.Kind,
		Amount:     amount,
		Currency:   s.currency(),
	}
	if req.ContactID != "" {
		id := req.ContactID
		pc.ContactID = &id
	}
	if req.Tier != "" {
		t := req.Tier
		pc.Tier = &t
	}
	if err := repo.CreatePendingCheckout(ctx, s.DB, pc); err != nil {
		return nil, err
	}

	return &CheckoutStart{
		SessionID: sess.ID,
		URL:       sess.URL,
		Amount:    amount,
		Currency:  pc.Currency,
	}, nil
}
