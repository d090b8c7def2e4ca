// Package domain defines the persistence models for employers, candidates,
// the contact-credit ledger, contacts, and payment reconciliation records.
// These types are mapped with GORM and shared across the repository and
// service layers.
package domain

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// Employer is a hiring organisation account. Employers are never hard-deleted;
// tier and verification are soft state mutated in place.
//
// Fields:
//   - ID: identity supplied by the session provider (JWT subject).
//   - SubscriptionTier: free|basic|premium, changed by subscription reconciliation.
//   - VerificationStatus / IsVerified: maintained by the verification workflow.
type Employer struct {
	ID                 string             `json:"id"                  gorm:"type:varchar(64);primaryKey"`
	Email              string             `json:"email"               gorm:"type:varchar(255);not null;index"`
	CompanyName        string             `json:"company_name"        gorm:"type:varchar(255);not null"`
	FullName           *string            `json:"full_name,omitempty" gorm:"type:varchar(255)"`
	Phone              *string            `json:"phone,omitempty"     gorm:"type:varchar(64)"`
	Website            *string            `json:"website,omitempty"   gorm:"type:varchar(255)"`
	IsVerified         bool               `json:"is_verified"         gorm:"not null;default:false"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"type:varchar(16);not null;default:'unverified'"`
	SubscriptionTier   Tier               `json:"subscription_tier"   gorm:"type:varchar(16);not null;default:'free';check:subscription_tier IN ('free','basic','premium')"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// TableName returns the database table name for Employer.
func (Employer) TableName() string { return "employers" }

// Candidate is a job seeker profile. Only public candidates are searchable.
type Candidate struct {
	ID                 string                      `json:"id"                    gorm:"type:varchar(64);primaryKey"`
	Email              string                      `json:"email"                 gorm:"type:varchar(255);not null;index"`
	FullName           *string                     `json:"full_name,omitempty"   gorm:"type:varchar(255)"`
	Skills             datatypes.JSONSlice[string] `json:"skills"`
	SalaryMin          *int64                      `json:"salary_min,omitempty"`
	SalaryMax          *int64                      `json:"salary_max,omitempty"`
	NoticeEndDate      *time.Time                  `json:"notice_end_date,omitempty"`
	ResumePath         *string                     `json:"resume_path,omitempty" gorm:"type:varchar(512)"`
	IsVerified         bool                        `json:"is_verified"           gorm:"not null;default:false"`
	VerificationStatus VerificationStatus          `json:"verification_status"   gorm:"type:varchar(16);not null;default:'unverified'"`
	Visibility         string                      `json:"visibility"            gorm:"type:varchar(16);not null;default:'private';index;check:visibility IN ('private','public')"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for Candidate.
func (Candidate) TableName() string { return "candidates" }

// Credit is one ledger row: a grant of Amount units of CreditType to an
// employer, of which Used have been consumed.
//
// Invariants:
//   - 0 <= Used <= Amount (enforced by a check constraint and by the
//     conditional update used for consumption).
//   - A row with Used == Amount or past ExpiresAt is spent and excluded from
//     balances.
//   - CreditType is never "offer".
type Credit struct {
	ID         string     `json:"id"                   gorm:"type:char(36);primaryKey"`
	EmployerID string     `json:"employer_id"          gorm:"type:varchar(64);not null;index:idx_credit_owner,priority:1"`
	CreditType CreditType `json:"credit_type"          gorm:"type:varchar(32);not null;index:idx_credit_owner,priority:2;check:credit_type IN ('view','message','interview_request')"`
	Amount     int64      `json:"amount"               gorm:"not null;check:amount > 0"`
	Used       int64      `json:"used"                 gorm:"not null;default:0;check:used >= 0 AND used <= amount"`
	Source     string     `json:"source"               gorm:"type:varchar(32);not null;default:'manual'"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"index"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TableName returns the database table name for Credit.
func (Credit) TableName() string { return "credits" }

// Remaining returns the unconsumed units on the row, ignoring expiry.
func (c Credit) Remaining() int64 {
	if c.Used >= c.Amount {
		return 0
	}
	return c.Amount - c.Used
}

// Contact is an employer's request to reach a candidate.
//
// OpenKey is set to "<len(employer)>:<employer>|<candidate>|<type>" while the contact is open
// (pending or awaiting_payment) and cleared once it becomes terminal. Its
// unique index guarantees at most one open request per tuple.
type Contact struct {
	ID                string        `json:"id"                            gorm:"type:char(36);primaryKey"`
	EmployerID        string        `json:"employer_id"                   gorm:"type:varchar(64);not null;index:idx_contact_employer,priority:1"`
	CandidateID       string        `json:"candidate_id"                  gorm:"type:varchar(64);not null;index"`
	ContactType       ContactType   `json:"contact_type"                  gorm:"type:varchar(32);not null;check:contact_type IN ('view','message','interview_request','offer')"`
	Message           *string       `json:"message,omitempty"             gorm:"type:text"`
	Status            ContactStatus `json:"status"                        gorm:"type:varchar(32);not null;index"`
	OpenKey           *string       `json:"-"                             gorm:"type:varchar(255);uniqueIndex:ux_contact_open"`
	PaidTransactionID *string       `json:"paid_transaction_id,omitempty" gorm:"type:varchar(255)"`
	CreatedAt         time.Time     `json:"created_at"                    gorm:"index:idx_contact_employer,priority:2"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// ContactOpenKey builds the open-request key for a tuple. The employer id is
// length-prefixed and the type never contains "|", so ids containing "|"
// cannot make two tuples share a key.
func ContactOpenKey(employerID, candidateID string, t ContactType) string {
	return strconv.Itoa(len(employerID)) + ":" + employerID + "|" + candidateID + "|" + string(t)
}

// PendingCheckout maps a gateway checkout session to the grant it pays for.
// It is created before the payer is redirected and completed exactly once.
type PendingCheckout struct {
	ID          string       `json:"id"                     gorm:"type:char(36);primaryKey"`
	SessionID   string       `json:"session_id"             gorm:"type:varchar(255);not null;uniqueIndex"`
	EmployerID  string       `json:"employer_id"            gorm:"type:varchar(64);not null;index"`
	Kind        PurchaseKind `json:"kind"                   gorm:"type:varchar(32);not null"`
	ContactID   *string      `json:"contact_id,omitempty"   gorm:"type:char(36);index"`
	Tier        *Tier        `json:"tier,omitempty"         gorm:"type:varchar(16)"`
	Amount      int64        `json:"amount"                 gorm:"not null"`
	Currency    string       `json:"currency"               gorm:"type:varchar(8);not null"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// TableName returns the database table name for PendingCheckout.
func (PendingCheckout) TableName() string { return "pending_checkouts" }

// AppliedTransaction records an external transaction id whose effect has been
// committed. The primary key makes check-and-insert atomic.
type AppliedTransaction struct {
	TransactionID string       `json:"transaction_id" gorm:"type:varchar(255);primaryKey"`
	EmployerID    string       `json:"employer_id"    gorm:"type:varchar(64);not null;index"`
	Kind          PurchaseKind `json:"kind"           gorm:"type:varchar(32);not null"`
	AmountPaid    int64        `json:"amount_paid"    gorm:"not null;default:0"`
	Outcome       string       `json:"outcome"        gorm:"type:varchar(32);not null"`
	AppliedAt     time.Time    `json:"applied_at"     gorm:"autoCreateTime"`
}

// TableName returns the database table name for AppliedTransaction.
func (AppliedTransaction) TableName() string { return "applied_transactions" }

// PilotFeedback is a rating left by a pilot user.
type PilotFeedback struct {
	ID          string    `json:"id"                gorm:"type:char(36);primaryKey"`
	UserType    UserType  `json:"user_type"         gorm:"type:varchar(16);not null;index;check:user_type IN ('candidate','employer')"`
	Rating      int       `json:"rating"            gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment     *string   `json:"comment,omitempty" gorm:"type:text"`
	SubmittedAt time.Time `json:"submitted_at"      gorm:"not null;index"`
}

// TableName returns the database table name for PilotFeedback.
func (PilotFeedback) TableName() string { return "pilot_feedback" }

// VerificationRequest is a user's request to have their identity verified.
type VerificationRequest struct {
	ID               string     `json:"id"                      gorm:"type:char(36);primaryKey"`
	UserID           string     `json:"user_id"                 gorm:"type:varchar(64);not null;index"`
	UserType         UserType   `json:"user_type"               gorm:"type:varchar(16);not null"`
	VerificationType string     `json:"verification_type"       gorm:"type:varchar(16);not null;check:verification_type IN ('email','document','manual')"`
	Status           string     `json:"status"                  gorm:"type:varchar(16);not null;index;check:status IN ('pending','approved','rejected')"`
	DocumentPath     *string    `json:"document_path,omitempty" gorm:"type:varchar(512)"`
	DocumentType     *string    `json:"document_type,omitempty" gorm:"type:varchar(64)"`
	EmailDomain      *string    `json:"email_domain,omitempty"  gorm:"type:varchar(255)"`
	SubmittedAt      time.Time  `json:"submitted_at"            gorm:"not null"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy       *string    `json:"reviewed_by,omitempty"   gorm:"type:varchar(64)"`
	AdminNotes       *string    `json:"admin_notes,omitempty"   gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for VerificationRequest.
func (VerificationRequest) TableName() string { return "verification_requests" }

// VerificationLog is an append-only audit entry for a verification request.
type VerificationLog struct {
	ID                    string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	VerificationRequestID string         `json:"verification_request_id" gorm:"type:char(36);not null;index"`
	Action                string         `json:"action"                  gorm:"type:varchar(32);not null"`
	PerformedBy           string         `json:"performed_by"            gorm:"type:varchar(64);not null"`
	PerformedByType       string         `json:"performed_by_type"       gorm:"type:varchar(16);not null;check:performed_by_type IN ('user','admin','system')"`
	Details               datatypes.JSON `json:"details,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}

// TableName returns the database table name for VerificationLog.
func (VerificationLog) TableName() string { return "verification_logs" }
