// Package pricing holds the one static table of contact prices and tier
// credit grants. The contact gate, checkout creation, and reconciliation all
// read from here so the displayed price and the enforced price cannot drift.
package pricing

import (
	"errors"

	"github.com/tbourn/noticeboard-backend/internal/domain"
)

// ErrUnknownPrice is returned for contact types or tiers without a price.
var ErrUnknownPrice = errors.New("no price for item")

// Price is a one-time charge in minor currency units (pence for gbp).
type Price struct {
	// Amount in minor units.
	Amount int64 `json:"amount"`
	// Reference is the gateway price identifier used for checkout line items.
	Reference string `json:"price_reference"`
}

// Plan is a subscription tier and the credits granted per billing period.
type Plan struct {
	Tier      domain.Tier                 `json:"tier"`
	Name      string                      `json:"name"`
	Reference string                      `json:"price_reference,omitempty"`
	Credits   map[domain.CreditType]int64 `json:"credits"`
}

var contactPrices = map[domain.ContactType]Price{
	domain.CreditView:             {Amount: 500, Reference: "price_view_contact"},
	domain.CreditMessage:          {Amount: 1000, Reference: "price_message_contact"},
	domain.CreditInterviewRequest: {Amount: 2500, Reference: "price_interview_contact"},
	domain.CreditOffer:            {Amount: 5000, Reference: "price_offer_contact"},
}

// The offer column is informational: offers are never pooled, so
// Grants drops it when the tier is applied to the ledger.
var plans = map[domain.Tier]Plan{
	domain.TierFree: {
		Tier: domain.TierFree,
		Name: "Free Tier",
		Credits: map[domain.CreditType]int64{
			domain.CreditView: 0, domain.CreditMessage: 0, domain.CreditInterviewRequest: 0, domain.CreditOffer: 0,
		},
	},
	domain.TierBasic: {
		Tier:      domain.TierBasic,
		Name:      "Basic Plan",
		Reference: "price_basic_monthly",
		Credits: map[domain.CreditType]int64{
			domain.CreditView: 10, domain.CreditMessage: 5, domain.CreditInterviewRequest: 2, domain.CreditOffer: 1,
		},
	},
	domain.TierPremium: {
		Tier:      domain.TierPremium,
		Name:      "Premium Plan",
		Reference: "price_premium_monthly",
		Credits: map[domain.CreditType]int64{
			domain.CreditView: 50, domain.CreditMessage: 25, domain.CreditInterviewRequest: 10, domain.CreditOffer: 5,
		},
	},
}

// ContactPrice returns the one-time price for a contact type.
func ContactPrice(t domain.ContactType) (Price, error) {
	p, ok := contactPrices[t]
	if !ok {
		return Price{}, ErrUnknownPrice
	}
	return p, nil
}

// ContactPrices returns a copy of the full contact price table.
func ContactPrices() map[domain.ContactType]Price {
	out := make(map[domain.ContactType]Price, len(contactPrices))
	for k, v := range contactPrices {
		out[k] = v
	}
	return out
}

// PlanFor returns the plan for a tier.
func PlanFor(t domain.Tier) (Plan, error) {
	p, ok := plans[t]
	if !ok {
		return Plan{}, ErrUnknownPrice
	}
	return p, nil
}

// Plans returns every plan, cheapest first.
func Plans() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, t := range []domain.Tier{domain.TierFree, domain.TierBasic, domain.TierPremium} {
		p := plans[t]
		credits := make(map[domain.CreditType]int64, len(p.Credits))
		for k, v := range p.Credits {
			credits[k] = v
		}
		p.Credits = credits
		out = append(out, p)
	}
	return out
}

// Grant is one ledger grant derived from a plan.
type Grant struct {
	CreditType domain.CreditType
	Amount     int64
}

// Grants returns the pooled, non-zero credit grants for a tier in a stable
// order. Free yields nothing.
func Grants(t domain.Tier) ([]Grant, error) {
	p, err := PlanFor(t)
	if err != nil {
		return nil, err
	}
	out := make([]Grant, 0, len(domain.PooledCreditTypes))
	for _, ct := range domain.PooledCreditTypes {
		if n := p.Credits[ct]; n > 0 {
			out = append(out, Grant{CreditType: ct, Amount: n})
		}
	}
	return out, nil
}

// SetReferences overrides gateway price identifiers, keyed by contact type
// name or tier name. Unknown keys and empty values are ignored. It is meant
// to be called once at startup, before the table is read concurrently.
func SetReferences(refs map[string]string) {
	for k, ref := range refs {
		if ref == "" {
			continue
		}
		if p, ok := contactPrices[domain.ContactType(k)]; ok {
			p.Reference = ref
			contactPrices[domain.ContactType(k)] = p
			continue
		}
		if p, ok := plans[domain.Tier(k)]; ok && p.Tier != domain.TierFree {
			p.Reference = ref
			plans[domain.Tier(k)] = p
		}
	}
}
