// Package services defines the business logic for the contact-credit ledger,
// the contact request gate, payment reconciliation, checkout, profiles,
// verification, and pilot feedback. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Ledger errors.
var (
	// ErrInsufficientCredit means the employer does not hold enough unexpired,
	// unused credits of the requested type. It is recoverable: the caller pays
	// and retries.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrInvalidCreditType is returned for unknown credit types, and for
	// grants of the never-pooled offer type.
	ErrInvalidCreditType = errors.New("invalid credit type")

	// ErrInvalidQuantity is returned when a consume quantity or grant amount
	// is not positive.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Contact gate errors.
var (
	// ErrDuplicateContact rejects a request while an open contact already
	// exists for the same employer, candidate, and type.
	ErrDuplicateContact = errors.New("an open contact request already exists")

	// ErrMessageRequired rejects a message contact without a body.
	ErrMessageRequired = errors.New("message is required for message contacts")

	// ErrInvalidInput rejects malformed requests (unknown type, oversized
	// message, missing ids).
	ErrInvalidInput = errors.New("invalid input")

	// ErrCandidateNotFound indicates the target candidate does not exist.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrEmployerNotFound indicates the employer has no profile yet.
	ErrEmployerNotFound = errors.New("employer not found")

	// ErrContactNotFound indicates the contact does not exist or is not
	// visible to the caller.
	ErrContactNotFound = errors.New("contact not found")

	// ErrContactNotPending is returned when responding to a contact that is
	// not awaiting a candidate response.
	ErrContactNotPending = errors.New("contact is not pending")

	// ErrContactNotAwaitingPayment is returned when starting a checkout for a
	// contact that does not need one.
	ErrContactNotAwaitingPayment = errors.New("contact is not awaiting payment")
)

// Payment errors.
var (
	// ErrCheckoutMismatch rejects a completion event whose metadata disagrees
	// with the pending checkout recorded for its session.
	ErrCheckoutMismatch = errors.New("checkout event does not match pending checkout")

	// ErrInvalidTier is returned for tiers that cannot be purchased.
	ErrInvalidTier = errors.New("invalid subscription tier")

	// ErrInvalidPurchase is returned for completion events with an unknown
	// purchase kind or missing purchase details.
	ErrInvalidPurchase = errors.New("invalid purchase")
)

// Profile, verification, and feedback errors.
var (
	// ErrInvalidProfile is returned when profile input fails validation.
	ErrInvalidProfile = errors.New("invalid profile")

	// ErrVerificationPending is returned when a user already has a
	// verification request under review.
	ErrVerificationPending = errors.New("verification already pending")

	// ErrVerificationNotFound indicates no verification request exists.
	ErrVerificationNotFound = errors.New("verification request not found")

	// ErrVerificationReviewed is returned when reviewing a request that is no
	// longer pending.
	ErrVerificationReviewed = errors.New("verification request already reviewed")

	// ErrInvalidFeedback is returned when a rating is outside 1..5 or the
	// user type is unknown.
	ErrInvalidFeedback = errors.New("rating must be between 1 and 5")

	// ErrTooLong is returned when free text exceeds its length limit.
	ErrTooLong = errors.New("text too long")
)
