// Package domain defines the persistence models and enumerations shared by
// the repository, service, and HTTP layers.
package domain

// Tier is an employer subscription level. It determines the periodic credit
// grant applied when a subscription payment is reconciled.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return true
	}
	return false
}

// CreditType identifies a kind of contact a credit can pay for.
//
// CreditOffer is never pooled: offers are always paid per use, so no Credit
// row may carry it and its balance is permanently zero.
type CreditType string

const (
	CreditView             CreditType = "view"
	CreditMessage          CreditType = "message"
	CreditInterviewRequest CreditType = "interview_request"
	CreditOffer            CreditType = "offer"
)

// PooledCreditTypes lists the credit types that can be granted and consumed
// through the ledger, in display order.
var PooledCreditTypes = []CreditType{CreditView, CreditMessage, CreditInterviewRequest}

// Valid reports whether c is a known credit type (pooled or not).
func (c CreditType) Valid() bool {
	switch c {
	case CreditView, CreditMessage, CreditInterviewRequest, CreditOffer:
		return true
	}
	return false
}

// Pooled reports whether c can be held as a balance.
func (c CreditType) Pooled() bool {
	return c.Valid() && c != CreditOffer
}

// ContactType is the kind of access an employer requests to a candidate.
// Every contact type is paid with the credit type of the same name.
type ContactType = CreditType

// ContactStatus is the lifecycle state of a Contact.
type ContactStatus string

const (
	// ContactAwaitingPayment marks a request that was denied for lack of
	// entitlement and waits for a one-time payment.
	ContactAwaitingPayment ContactStatus = "awaiting_payment"
	ContactPending         ContactStatus = "pending"
	ContactAccepted        ContactStatus = "accepted"
	ContactDeclined        ContactStatus = "declined"
	ContactExpired         ContactStatus = "expired"
)

// Open reports whether s is non-terminal.
func (s ContactStatus) Open() bool {
	return s == ContactPending || s == ContactAwaitingPayment
}

// PurchaseKind distinguishes what a checkout pays for.
type PurchaseKind string

const (
	PurchaseSubscriptionCredits PurchaseKind = "subscription_credits"
	PurchaseOneTimeContact      PurchaseKind = "one_time_contact"
)

// Valid reports whether k is a known purchase kind.
func (k PurchaseKind) Valid() bool {
	return k == PurchaseSubscriptionCredits || k == PurchaseOneTimeContact
}

// UserType is the profile kind of an authenticated user.
type UserType string

const (
	UserCandidate UserType = "candidate"
	UserEmployer  UserType = "employer"
)

// Valid reports whether u is a known user type.
func (u UserType) Valid() bool {
	return u == UserCandidate || u == UserEmployer
}

// VerificationStatus is the verification state shown on a profile.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationRejected   VerificationStatus = "rejected"
)
