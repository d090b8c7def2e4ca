// Package payments adapts the hosted payment gateway (Stripe) to the
// noticeboard domain. It creates checkout sessions for one-time contact
// unlocks and subscription tiers, and verifies and decodes webhook deliveries
// into typed events before they reach reconciliation.
package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// Metadata keys carried through the gateway and echoed back on completion.
const (
	MetaKind       = "kind"
	MetaEmployerID = "employer_id"
	MetaContactID  = "contact_id"
	MetaTier       = "tier"
)

// CheckoutRequest describes a checkout session to open.
type CheckoutRequest struct {
	Kind           domain.PurchaseKind
	EmployerID     string
	CustomerEmail  string
	PriceReference string
	// ContactID is set for one-time contact purchases.
	ContactID string
	// Tier is set for subscription purchases.
	Tier domain.Tier
}

// Metadata returns the key/value pairs attached to the session.
func (r CheckoutRequest) Metadata() map[string]string {
	m := map[string]string{
		MetaKind:       string(r.Kind),
		MetaEmployerID: r.EmployerID,
	}
	if r.ContactID != "" {
		m[MetaContactID] = r.ContactID
	}
	if r.Tier != "" {
		m[MetaTier] = string(r.Tier)
	}
	return m
}

// CheckoutSession is a created gateway session.
type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway creates hosted checkout sessions.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// sessionCreator is the subset of the stripe checkout session client used here.
type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGateway implements Gateway with Stripe Checkout.
type StripeGateway struct {
	sessions   sessionCreator
	successURL string
	cancelURL  string
}

// NewStripeGateway returns a gateway authenticated with secretKey.
func NewStripeGateway(secretKey, successURL, cancelURL string) *StripeGateway {
	return &StripeGateway{
		sessions:   &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateCheckoutSession opens a payment-mode session for one-time contacts and
// a subscription-mode session for tiers.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if strings.TrimSpace(req.PriceReference) == "" {
		return nil, errors.New("missing price reference")
	}
	var mode stripe.CheckoutSessionMode
	switch req.Kind {
	case domain.PurchaseOneTimeContact:
		mode = stripe.CheckoutSessionModePayment
	case domain.PurchaseSubscriptionCredits:
		mode = stripe.CheckoutSessionModeSubscription
	default:
		return nil, errors.New("unknown purchase kind")
	}

	meta := req.Metadata()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.EmployerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceReference), Quantity: stripe.Int64(1)},
		},
		Metadata: meta,
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta}
	}
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}
