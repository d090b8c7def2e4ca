package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

var (
	// ErrBadSignature means the delivery could not be authenticated: missing
	// or malformed header, wrong secret, or a timestamp outside tolerance.
	ErrBadSignature = errors.New("webhook signature verification failed")

	// ErrMalformedEvent means the delivery was authentic but its payload could
	// not be decoded into a recognized event.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// Event is a verified gateway event. Concrete values are CheckoutCompleted
// and Unhandled.
type Event interface {
	eventType() string
}

// CheckoutCompleted reports a paid checkout session.
type CheckoutCompleted struct {
	// TransactionID identifies the payment. It is the payment intent id when
	// the gateway created one and the session id otherwise.
	TransactionID string
	SessionID     string
	EmployerID    string
	Kind          domain.PurchaseKind
	ContactID     string
	Tier          domain.Tier
	AmountPaid    int64
	Currency      string
}

func (CheckoutCompleted) eventType() string { return "checkout.completed" }

// Unhandled is an authentic event this service does not act on.
type Unhandled struct {
	Type string
}

func (u Unhandled) eventType() string { return u.Type }

// ParseWebhook verifies the Stripe-Signature header against secret and
// decodes the payload. A tolerance of zero uses the library default.
func ParseWebhook(payload []byte, sigHeader, secret string, tolerance time.Duration) (Event, error) {
	if strings.TrimSpace(sigHeader) == "" || secret == "" {
		return nil, ErrBadSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return decodeCheckout(ev)
	default:
		return Unhandled{Type: string(ev.Type)}, nil
	}
}

func decodeCheckout(ev stripe.Event) (Event, error) {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: empty data object", ErrMalformedEvent)
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	// Asynchronous payment methods complete the session before funds settle;
	// the later async_payment_succeeded event carries the paid status.
	if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		s.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		return Unhandled{Type: string(ev.Type)}, nil
	}

	out := CheckoutCompleted{
		TransactionID: s.ID,
		SessionID:     s.ID,
		EmployerID:    s.Metadata[MetaEmployerID],
		Kind:          domain.PurchaseKind(s.Metadata[MetaKind]),
		ContactID:     s.Metadata[MetaContactID],
		Tier:          domain.Tier(s.Metadata[MetaTier]),
		AmountPaid:    s.AmountTotal,
		Currency:      string(s.Currency),
	}
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		out.TransactionID = s.PaymentIntent.ID
	}
	if out.EmployerID == "" {
		out.EmployerID = s.ClientReferenceID
	}

	if out.SessionID == "" || out.EmployerID == "" {
		return nil, fmt.Errorf("%w: missing session or employer", ErrMalformedEvent)
	}
	switch out.Kind {
	case domain.PurchaseOneTimeContact:
		if out.ContactID == "" {
			return nil, fmt.Errorf("%w: missing contact_id", ErrMalformedEvent)
		}
	case domain.PurchaseSubscriptionCredits:
		if !out.Tier.Valid() || out.Tier == domain.TierFree {
			return nil, fmt.Errorf("%w: invalid tier %q", ErrMalformedEvent, out.Tier)
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, out.Kind)
	}
	return out, nil
}
