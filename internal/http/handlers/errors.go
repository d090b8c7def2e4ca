// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase, snake_case strings. Generic codes mirror HTTP
// status semantics; domain codes (payment_required, duplicate_contact, ...)
// name the business outcome so clients can branch on them without parsing
// messages.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "duplicate_contact",
//	  "message": "an open contact request already exists"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/noticeboard-backend/internal/payments"
	"github.com/tbourn/noticeboard-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeInvalidInput     = "invalid_input"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodePaymentRequired     = "payment_required"
	ErrCodeDuplicateContact    = "duplicate_contact"
	ErrCodeInsufficientCredit  = "insufficient_credit"
	ErrCodeMessageRequired     = "message_required"
	ErrCodeContactNotPending   = "contact_not_pending"
	ErrCodeNotAwaitingPayment  = "contact_not_awaiting_payment"
	ErrCodeInvalidTier         = "invalid_tier"
	ErrCodeCheckoutMismatch    = "checkout_mismatch"
	ErrCodeBadSignature        = "bad_signature"
	ErrCodeMalformedEvent      = "malformed_event"
	ErrCodeProfileRequired     = "profile_required"
	ErrCodeVerificationPending = "verification_pending"
	ErrCodeAlreadyReviewed     = "already_reviewed"
	ErrCodeTooLong             = "too_long"
	ErrCodeGatewayFailed       = "gateway_failed"
)

// apiError is the HTTP rendering of a service error.
type apiError struct {
	status int
	code   string
}

// serviceErrors maps sentinel errors to their HTTP rendering. Anything not
// listed is a store or gateway failure and renders as 500.
var serviceErrors = []struct {
	err error
	api apiError
}{
	{services.ErrInvalidInput, apiError{http.StatusBadRequest, ErrCodeInvalidInput}},
	{services.ErrInvalidCreditType, apiError{http.StatusBadRequest, ErrCodeInvalidInput}},
	{services.ErrInvalidQuantity, apiError{http.StatusBadRequest, ErrCodeInvalidInput}},
	{services.ErrInvalidProfile, apiError{http.StatusBadRequest, ErrCodeInvalidInput}},
	{services.ErrInvalidFeedback, apiError{http.StatusBadRequest, ErrCodeInvalidInput}},
	{services.ErrInvalidPurchase, apiError{http.StatusBadRequest, ErrCodeInvalidInput}},
	{services.ErrMessageRequired, apiError{http.StatusBadRequest, ErrCodeMessageRequired}},
	{services.ErrTooLong, apiError{http.StatusBadRequest, ErrCodeTooLong}},
	{services.ErrInvalidTier, apiError{http.StatusBadRequest, ErrCodeInvalidTier}},
	{services.ErrInsufficientCredit, apiError{http.StatusPaymentRequired, ErrCodeInsufficientCredit}},
	{services.ErrDuplicateContact, apiError{http.StatusConflict, ErrCodeDuplicateContact}},
	{services.ErrContactNotPending, apiError{http.StatusConflict, ErrCodeContactNotPending}},
	{services.ErrContactNotAwaitingPayment, apiError{http.StatusConflict, ErrCodeNotAwaitingPayment}},
	{services.ErrVerificationPending, apiError{http.StatusConflict, ErrCodeVerificationPending}},
	{services.ErrVerificationReviewed, apiError{http.StatusConflict, ErrCodeAlreadyReviewed}},
	{services.ErrCheckoutMismatch, apiError{http.StatusBadRequest, ErrCodeCheckoutMismatch}},
	{services.ErrEmployerNotFound, apiError{http.StatusNotFound, ErrCodeProfileRequired}},
	{services.ErrCandidateNotFound, apiError{http.StatusNotFound, ErrCodeNotFound}},
	{services.ErrContactNotFound, apiError{http.StatusNotFound, ErrCodeNotFound}},
	{services.ErrVerificationNotFound, apiError{http.StatusNotFound, ErrCodeNotFound}},
	{payments.ErrBadSignature, apiError{http.StatusBadRequest, ErrCodeBadSignature}},
	{payments.ErrMalformedEvent, apiError{http.StatusBadRequest, ErrCodeMalformedEvent}},
}

// classify returns the HTTP rendering of err, checked with errors.Is so
// wrapped sentinels still map.
func classify(err error) apiError {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.api
		}
	}
	return apiError{http.StatusInternalServerError, ErrCodeInternal}
}
