// Package services – ContactService
//
// This file implements the contact request gate. An employer asks for access
// to a candidate (view, message, interview request, or offer); the gate
// either spends one pooled credit and opens a pending contact, or records the
// request as awaiting payment and returns the one-time price.
//
// At most one open (pending or awaiting_payment) contact exists per employer,
// candidate, and type. The open-contact lookup, the ledger spend, and the
// insert share a single transaction, and the unique open key on contacts
// rejects a concurrent duplicate insert, which rolls the spend back.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/pricing"
	"github.com/tbourn/noticeboard-backend/internal/repo"
	"github.com/tbourn/noticeboard-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxMessageRunes caps the body of message contacts.
const DefaultMaxMessageRunes = 2000

// Outcome is the non-error result of a contact request.
type Outcome string

const (
	OutcomeAllowed         Outcome = "allowed"
	OutcomePaymentRequired Outcome = "payment_required"
)

// RequestInput is an employer's contact request.
type RequestInput struct {
	EmployerID  string
	CandidateID string
	Type        domain.ContactType
	Message     string
}

// Decision is the gate's answer. Price is set only for payment_required.
type Decision struct {
	Outcome Outcome         `json:"outcome"`
	Contact *domain.Contact `json:"contact"`
	Price   *pricing.Price  `json:"price,omitempty"`
}

// ContactService implements the contact request gate and the candidate side
// of the contact lifecycle.
type ContactService struct {
	DB     *gorm.DB
	Ledger *Ledger

	// MaxMessageRunes overrides DefaultMaxMessageRunes when positive.
	MaxMessageRunes int
}

func (s *ContactService) maxMessage() int {
	if s.MaxMessageRunes > 0 {
		return s.MaxMessageRunes
	}
	return DefaultMaxMessageRunes
}

func (s *ContactService) ledger() *Ledger {
	if s.Ledger != nil {
		return s.Ledger
	}
	return &Ledger{DB: s.DB}
}

// validate normalizes the request and checks the tuple itself. Message
// rules run later, once the duplicate check has had its say.
func (s *ContactService) validate(in *RequestInput) error {
	in.EmployerID = strings.TrimSpace(in.EmployerID)
	in.CandidateID = strings.TrimSpace(in.CandidateID)
	in.Message = strings.TrimSpace(in.Message)
	if in.EmployerID == "" || in.CandidateID == "" || !in.Type.Valid() {
		return ErrInvalidInput
	}
	if in.Type != domain.CreditMessage {
		in.Message = ""
	}
	return nil
}

// validateMessage enforces the message rules for message contacts.
func (s *ContactService) validateMessage(in RequestInput) error {
	if in.Type != domain.CreditMessage {
		return nil
	}
	if in.Message == "" {
		return ErrMessageRequired
	}
	if utf8.RuneCountInString(in.Message) > s.maxMessage() {
		return ErrInvalidInput
	}
	return nil
}

// Request runs the gate for one contact request.
//
// Outcomes:
//   - Allowed: a credit was spent and the contact is pending.
//   - PaymentRequired: the contact is awaiting_payment and Price carries the
//     one-time charge. Offer requests always end here.
//   - ErrDuplicateContact: a pending contact already exists for the tuple; no
//     credit is spent. Checked before the message rules.
//   - ErrMessageRequired / ErrInvalidInput: the request is malformed.
//
// A request for a tuple whose open contact is awaiting payment retries the
// spend against that same contact instead of opening a second one.
func (s *ContactService) Request(ctx context.Context, in RequestInput) (*Decision, error) {
	tr := otel.Tracer("services/ContactService")
	ctx, span := tr.Start(ctx, "Request",
		trace.WithAttributes(
			attribute.String("employer.id", in.EmployerID),
			attribute.String("candidate.id", in.CandidateID),
			attribute.String("contact.type", string(in.Type)),
		),
	)
	defer span.End()

	if err := s.validate(&in); err != nil {
		return nil, err
	}
	price, err := pricing.ContactPrice(in.Type)
	if err != nil {
		return nil, ErrInvalidInput
	}
	var msg *string
	if in.Message != "" {
		msg = &in.Message
	}

	ledger := s.ledger()
	var (
		dec      *Decision
		consumed bool
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dec, consumed = nil, false

		if _, err := repo.GetEmployer(ctx, tx, in.EmployerID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrEmployerNotFound
			}
			return err
		}
		if _, err := repo.GetCandidate(ctx, tx, in.CandidateID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrCandidateNotFound
			}
			return err
		}

		open, err := repo.FindOpenContact(ctx, tx, in.EmployerID, in.CandidateID, in.Type)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if open != nil && open.Status == domain.ContactPending {
			return ErrDuplicateContact
		}
		if err := s.validateMessage(in); err != nil {
			return err
		}

		spent, err := s.spend(ctx, tx, ledger, in)
		if err != nil {
			return err
		}

		switch {
		case open != nil && spent:
			if err := repo.TransitionContact(ctx, tx, open.ID, domain.ContactAwaitingPayment, domain.ContactPending, nil); err != nil {
				if errors.Is(err, repo.ErrStaleStatus) {
					return ErrDuplicateContact
				}
				return err
			}
			open.Status = domain.ContactPending
			dec = &Decision{Outcome: OutcomeAllowed, Contact: open}
		case open != nil:
			dec = &Decision{Outcome: OutcomePaymentRequired, Contact: open, Price: &price}
		default:
			status := domain.ContactAwaitingPayment
			if spent {
				status = domain.ContactPending
			}
			c, err := repo.CreateContact(ctx, tx, in.EmployerID, in.CandidateID, in.Type, msg, status)
			if err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return ErrDuplicateContact
				}
				return err
			}
			if spent {
				dec = &Decision{Outcome: OutcomeAllowed, Contact: c}
			} else {
				dec = &Decision{Outcome: OutcomePaymentRequired, Contact: c, Price: &price}
			}
		}
		consumed = spent
		return nil
	})
	if err != nil {
		return nil, err
	}

	if consumed {
		recordConsumed(in.Type, 1)
	}
	contactDecisions.WithLabelValues(string(in.Type), string(dec.Outcome)).Inc()
	return dec, nil
}

// spend tries to take one pooled credit for the request. It reports false,
// without error, when payment is required instead.
func (s *ContactService) spend(ctx context.Context, tx *gorm.DB, ledger *Ledger, in RequestInput) (bool, error) {
	if !in.Type.Pooled() {
		return false, nil
	}
	err := ledger.ConsumeTx(ctx, tx, in.EmployerID, in.Type, 1)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrInsufficientCredit):
		return false, nil
	default:
		return false, err
	}
}

// GetForEmployer returns one of the employer's contacts.
func (s *ContactService) GetForEmployer(ctx context.Context, employerID, contactID string) (*domain.Contact, error) {
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
	return c, nil
}

// Respond records a candidate's answer to a pending contact.
func (s *ContactService) Respond(ctx context.Context, candidateID, contactID string, accept bool) (*domain.Contact, error) {
	tr := otel.Tracer("services/ContactService")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("candidate.id", candidateID),
			attribute.String("contact.id", contactID),
			attribute.Bool("accept", accept),
		),
	)
	defer span.End()

	c, err := repo.GetContact(ctx, s.DB, contactID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	// Unpaid requests are invisible to the candidate.
	if c.CandidateID != candidateID || c.Status == domain.ContactAwaitingPayment {
		return nil, ErrContactNotFound
	}
	if c.Status != domain.ContactPending {
		return nil, ErrContactNotPending
	}

	to := domain.ContactDeclined
	if accept {
		to = domain.ContactAccepted
	}
	if err := repo.TransitionContact(ctx, s.DB, c.ID, domain.ContactPending, to, nil); err != nil {
		if errors.Is(err, repo.ErrStaleStatus) {
			return nil, ErrContactNotPending
		}
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	c.Status = to
	c.OpenKey = nil
	return c, nil
}

// ExpireStale expires pending contacts with no activity for olderThan and
// returns how many were changed.
func (s *ContactService) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidInput
	}
	return repo.ExpirePendingContactsBefore(ctx, s.DB, time.Now().UTC().Add(-olderThan))
}

// ListForEmployer returns a page of the employer's contacts and the total.
func (s *ContactService) ListForEmployer(ctx context.Context, employerID string, page, pageSize int) ([]domain.Contact, int64, error) {
	offset, limit := utils.Window(page, pageSize)
	total, err := repo.CountContactsByEmployer(ctx, s.DB, employerID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Contact{}, 0, nil
	}
	items, err := repo.ListContactsByEmployerPage(ctx, s.DB, employerID, offset, limit)
	return items, total, err
}

// ListForCandidate returns a page of contacts addressed to the candidate.
func (s *ContactService) ListForCandidate(ctx context.Context, candidateID string, page, pageSize int) ([]domain.Contact, int64, error) {
	offset, limit := utils.Window(page, pageSize)
	total, err := repo.CountContactsByCandidate(ctx, s.DB, candidateID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Contact{}, 0, nil
	}
	items, err := repo.ListContactsByCandidatePage(ctx, s.DB, candidateID, offset, limit)
	return items, total, err
}

// Stats returns the employer's contact count and latest update time, used
// for ETag generation.
func (s *ContactService) Stats(ctx context.Context, employerID string) (int64, *time.Time, error) {
	return repo.ContactsStats(ctx, s.DB, employerID)
}
