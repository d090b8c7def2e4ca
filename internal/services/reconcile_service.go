// Package services – Reconciler
//
// This file converts verified checkout-completion events into ledger grants
// and contact unlocks, exactly once per external transaction id.
//
// The applied_transactions insert is the first write of the reconciliation
// transaction. A replay hits its primary key and is reported as ignored; a
// concurrent duplicate blocks on the key until the first delivery commits.
// Because the marker commits together with the grant or unlock, a failed
// attempt leaves nothing behind and the gateway's retry is safe.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/noticeboard-backend/internal/domain"
	"github.com/tbourn/noticeboard-backend/internal/payments"
	"github.com/tbourn/noticeboard-backend/internal/pricing"
	"github.com/tbourn/noticeboard-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSubscriptionPeriod is the lifetime of subscription grants.
const DefaultSubscriptionPeriod = 30 * 24 * time.Hour

// Result is the outcome of a reconciliation.
type Result string

const (
	ResultApplied Result = "applied"
	ResultIgnored Result = "ignored"
)

// Outcomes stored on applied transactions.
const (
	outcomeApplied  = "applied"
	outcomeNoEffect = "no_effect"
)

// errIgnored rolls back a reconciliation that must leave no trace.
var errIgnored = errors.New("ignored")

// Reconciler applies payment completions to the ledger and contacts.
type Reconciler struct {
	DB     *gorm.DB
	Ledger *Ledger

	// SubscriptionPeriod overrides DefaultSubscriptionPeriod when positive.
	SubscriptionPeriod time.Duration
}

func (r *Reconciler) period() time.Duration {
	if r.SubscriptionPeriod > 0 {
		return r.SubscriptionPeriod
	}
	return DefaultSubscriptionPeriod
}

func (r *Reconciler) ledger() *Ledger {
	if r.Ledger != nil {
		return r.Ledger
	}
	return &Ledger{DB: r.DB}
}

// Reconcile applies ev.
//
// Results:
//   - Applied: the grant or unlock committed together with the transaction marker.
//   - Ignored: the transaction was already applied, its session is not a
//     known pending checkout, or the checkout was already completed. Nothing
//     changes.
//   - Ignored with a recorded marker: a one-time payment whose contact is no
//     longer awaiting payment. The transaction is recorded so it is never
//     reapplied, but no contact changes.
//   - ErrCheckoutMismatch: the event disagrees with the pending checkout.
//   - ErrInvalidPurchase: the event is missing its identifiers.
func (r *Reconciler) Reconcile(ctx context.Context, ev payments.CheckoutCompleted) (Result, error) {
	tr := otel.Tracer("services/Reconciler")
	ctx, span := tr.Start(ctx, "Reconcile",
		trace.WithAttributes(
			attribute.String("transaction.id", ev.TransactionID),
			attribute.String("session.id", ev.SessionID),
			attribute.String("employer.id", ev.EmployerID),
			attribute.String("purchase.kind", string(ev.Kind)),
		),
	)
	defer span.End()

	if ev.TransactionID == "" || ev.SessionID == "" || ev.EmployerID == "" || !ev.Kind.Valid() {
		return "", ErrInvalidPurchase
	}

	var grants []pricing.Grant
	res := ResultApplied
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grants, res = nil, ResultApplied

		err := repo.InsertAppliedTransaction(ctx, tx, &domain.AppliedTransaction{
			TransactionID: ev.TransactionID,
			EmployerID:    ev.EmployerID,
			Kind:          ev.Kind,
			AmountPaid:    ev.AmountPaid,
			Outcome:       outcomeApplied,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return errIgnored
		}
		if err != nil {
			return err
		}

		pc, err := repo.GetPendingCheckoutBySession(ctx, tx, ev.SessionID)
		if errors.Is(err, repo.ErrNotFound) {
			return errIgnored
		}
		if err != nil {
			return err
		}
		if pc.EmployerID != ev.EmployerID || pc.Kind != ev.Kind {
			return ErrCheckoutMismatch
		}
		if pc.CompletedAt != nil {
			return errIgnored
		}

		switch ev.Kind {
		case domain.PurchaseSubscriptionCredits:
			g, err := r.applySubscription(ctx, tx, pc, ev)
			if err != nil {
				return err
			}
			grants = g
		case domain.PurchaseOneTimeContact:
			unlocked, err := r.applyOneTime(ctx, tx, pc, ev)
			if err != nil {
				return err
			}
			if !unlocked {
				res = ResultIgnored
				if err := repo.SetAppliedTransactionOutcome(ctx, tx, ev.TransactionID, outcomeNoEffect); err != nil {
					return err
				}
			}
		}

		return repo.CompletePendingCheckout(ctx, tx, pc.ID, time.Now().UTC())
	})
	if errors.Is(err, errIgnored) {
		reconcileTotal.WithLabelValues(string(ev.Kind), string(ResultIgnored)).Inc()
		return ResultIgnored, nil
	}
	if err != nil {
		reconcileTotal.WithLabelValues(string(ev.Kind), "error").Inc()
		return "", err
	}

	for _, g := range grants {
		recordGranted(g.CreditType, g.Amount)
	}
	reconcileTotal.WithLabelValues(string(ev.Kind), string(res)).Inc()
	return res, nil
}

func (r *Reconciler) applySubscription(ctx context.Context, tx *gorm.DB, pc *domain.PendingCheckout, ev payments.CheckoutCompleted) ([]pricing.Grant, error) {
	tier := ev.Tier
	if pc.Tier != nil {
		if tier != "" && tier != *pc.Tier {
			return nil, ErrCheckoutMismatch
		}
		tier = *pc.Tier
	}
	if !tier.Valid() || tier == domain.TierFree {
		return nil, ErrInvalidTier
	}
	grants, err := pricing.Grants(tier)
	if err != nil {
		return nil, ErrInvalidTier
	}

	expires := time.Now().UTC().Add(r.period())
	ledger := r.ledger()
	for _, g := range grants {
		if _, err := ledger.GrantTx(ctx, tx, ev.EmployerID, g.CreditType, g.Amount, &expires, "subscription"); err != nil {
			return nil, err
		}
	}
	if err := repo.SetEmployerTier(ctx, tx, ev.EmployerID, tier); err != nil {
		return nil, err
	}
	return grants, nil
}

// applyOneTime unlocks the contact the checkout paid for. It reports false
// when the contact no longer needs the payment.
func (r *Reconciler) applyOneTime(ctx context.Context, tx *gorm.DB, pc *domain.PendingCheckout, ev payments.CheckoutCompleted) (bool, error) {
	contactID := ev.ContactID
	if pc.ContactID != nil {
		if contactID != "" && contactID != *pc.ContactID {
			return false, ErrCheckoutMismatch
		}
		contactID = *pc.ContactID
	}
	if contactID == "" {
		return false, ErrInvalidPurchase
	}

	c, err := repo.GetContact(ctx, tx, contactID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.EmployerID != ev.EmployerID {
		return false, ErrCheckoutMismatch
	}
	if c.Status != domain.ContactAwaitingPayment {
		return false, nil
	}

	txn := ev.TransactionID
	err = repo.TransitionContact(ctx, tx, c.ID, domain.ContactAwaitingPayment, domain.ContactPending, &txn)
	if errors.Is(err, repo.ErrStaleStatus) {
		return false, nil
	}
	return err == nil, err
}
