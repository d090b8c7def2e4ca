// Checkout and payment webhook HTTP handlers.
//
//   - POST /checkout/contact         (employer: pay for one awaiting_payment contact)
//   - POST /checkout/subscription    (employer: subscribe to a paid tier)
//   - POST /webhooks/stripe          (gateway: signed completion events)
//
// The webhook answers 2xx only once an event is durably handled or known to
// be irrelevant. Store failures answer 500 so the gateway redelivers; the
// reconciler's transaction marker makes the redelivery safe.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/http/middleware"
	"github.com/tbourn/noticeboard-backend/internal/payments"
)

// HeaderStripeSignature carries the webhook signature.
const HeaderStripeSignature = "Stripe-Signature"

// ContactCheckoutRequest selects the contact to pay for.
type ContactCheckoutRequest struct {
	ContactID string `json:"contact_id" binding:"required" example:"5b0c2f1e-8d7a-4a55-9b1e-0c2d4e6f8a90"`
}

// SubscriptionCheckoutRequest selects the tier to subscribe to.
type SubscriptionCheckoutRequest struct {
	Tier domain.Tier `json:"tier" binding:"required" example:"basic"`
}

// WebhookAck acknowledges a webhook delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	Type     string `json:"type,omitempty"`
	Result   string `json:"result,omitempty" example:"applied"`
}

// StartContactCheckout godoc
// @ID          startContactCheckout
// @Summary     Pay for a contact
// @Description Opens a one-time checkout for a contact that is awaiting payment and returns the redirect URL.
// @Tags        Checkout
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.ContactCheckoutRequest  true  "Contact to pay for"
//
// @Success     201  {object} services.CheckoutStart
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Contact not found"
// @Failure     409  {object} handlers.ErrorResponse "Contact not awaiting payment"
// @Failure     502  {object} handlers.ErrorResponse "Payment gateway failed"
// @Router      /checkout/contact [post]
func (h *Handlers) StartContactCheckout(c *gin.Context) {
	var req ContactCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contact_id required")
		return
	}
	out, err := h.checkout.StartContactCheckout(c.Request.Context(), userID(c), strings.TrimSpace(req.ContactID))
	if err != nil {
		failCheckout(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}

// StartSubscriptionCheckout godoc
// @ID          startSubscriptionCheckout
// @Summary     Subscribe to a tier
// @Description Opens a subscription checkout for basic or premium and returns the redirect URL.
// @Tags        Checkout
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.SubscriptionCheckoutRequest  true  "Tier"
//
// @Success     201  {object} services.CheckoutStart
// @Failure     400  {object} handlers.ErrorResponse "Invalid tier"
// @Failure     404  {object} handlers.ErrorResponse "Employer profile required"
// @Failure     502  {object} handlers.ErrorResponse "Payment gateway failed"
// @Router      /checkout/subscription [post]
func (h *Handlers) StartSubscriptionCheckout(c *gin.Context) {
	var req SubscriptionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "tier required")
		return
	}
	tier := domain.Tier(strings.ToLower(strings.TrimSpace(string(req.Tier))))
	out, err := h.checkout.StartSubscriptionCheckout(c.Request.Context(), userID(c), tier)
	if err != nil {
		failCheckout(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}

// failCheckout renders checkout errors. Anything unmapped came from the
// gateway or the store after the gateway call, which the client sees as 502.
func failCheckout(c *gin.Context, err error) {
	if api := classify(err); api.status < http.StatusInternalServerError {
		fail(c, api.status, api.code, err.Error())
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("checkout failed")
	fail(c, http.StatusBadGateway, ErrCodeGatewayFailed, "payment gateway unavailable")
}

// StripeWebhook godoc
// @ID          stripeWebhook
// @Summary     Payment gateway webhook
// @Description Verifies the Stripe-Signature header and reconciles checkout completions. Authentic events
// @Description this service does not act on are acknowledged. Replays are acknowledged as ignored.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       Stripe-Signature  header  string  true  "Gateway signature (t=...,v1=...)"
//
// @Success     200  {object} handlers.WebhookAck
// @Failure     400  {object} handlers.ErrorResponse "Bad signature or malformed event"
// @Failure     500  {object} handlers.ErrorResponse "Internal error (gateway retries)"
// @Router      /webhooks/stripe [post]
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	ev, err := payments.ParseWebhook(payload, c.GetHeader(HeaderStripeSignature), h.opts.WebhookSecret, h.opts.WebhookTolerance)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("webhook rejected")
		failErr(c, err)
		return
	}

	lg := middleware.LoggerFrom(c)
	switch e := ev.(type) {
	case payments.CheckoutCompleted:
		res, err := h.reconciler.Reconcile(c.Request.Context(), e)
		if err != nil {
			lg.Warn().Err(err).
				Str("transaction_id", e.TransactionID).
				Str("session_id", e.SessionID).
				Msg("webhook reconcile failed")
			failErr(c, err)
			return
		}
		lg.Info().
			Str("transaction_id", e.TransactionID).
			Str("employer_id", e.EmployerID).
			Str("kind", string(e.Kind)).
			Str("result", string(res)).
			Msg("webhook reconciled")
		ok(c, http.StatusOK, WebhookAck{Received: true, Type: "checkout.session.completed", Result: string(res)})
	case payments.Unhandled:
		lg.Info().Str("type", e.Type).Msg("webhook ignored")
		ok(c, http.StatusOK, WebhookAck{Received: true, Type: e.Type})
	default:
		ok(c, http.StatusOK, WebhookAck{Received: true})
	}
}
