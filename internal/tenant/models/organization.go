package models

import (
	"time"

	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
)

// Organization is the tenant root and the isolation boundary for all data.
//
// Invariants:
//   - InboundAddress is non-empty and unique across organizations
//   - Every Project, Event, and UsageRecord carries this OrgID, and no read
//     path may omit it as a filter
//   - Organizations are never deleted; suspension flips BillingStatus only
type Organization struct {
	ID   id.OrgID `json:"id"`
	Name string   `json:"name"`

	// InboundAddress is the exact mailbox this organization claims
	// (e.g. "acme@mail.example"). Plus-address tags are stripped before
	// matching.
	InboundAddress string `json:"inbound_address"`

	// Subdomain is the alias pattern claim: any recipient under
	// "<subdomain>.*" also resolves here. Exact address wins over it.
	Subdomain string `json:"subdomain,omitempty"`

	Tier          Tier          `json:"subscription_tier"`
	BillingStatus BillingStatus `json:"billing_status"`

	// MonthlyBudgetUSD is the AI spend ceiling evaluated by usage metering.
	MonthlyBudgetUSD float64 `json:"monthly_api_budget"`

	// AdminKeyHash is the bcrypt hash of the admin API key issued at
	// onboarding. The plaintext is returned exactly once.
	AdminKeyHash string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tier is the subscription level; it determines the default AI budget.
type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// DefaultBudgetUSD returns the monthly AI budget for a tier. Enterprise
// budgets are negotiated; zero means no ceiling.
func (t Tier) DefaultBudgetUSD() float64 {
	switch t {
	case TierStarter:
		return 20
	case TierProfessional:
		return 100
	default:
		return 0
	}
}

// IsValid reports whether the tier is one of the known levels.
func (t Tier) IsValid() bool {
	switch t {
	case TierStarter, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// BillingStatus gates message processing: only active organizations accept
// mail.
type BillingStatus string

const (
	BillingActive    BillingStatus = "active"
	BillingSuspended BillingStatus = "suspended"
)

// IsActive reports whether the organization may process messages.
func (o *Organization) IsActive() bool {
	return o.BillingStatus == BillingActive
}

// Suspend soft-disables the organization. Suspended organizations keep all
// data; their mail is rejected at the tenant-resolve stage.
func (o *Organization) Suspend(now time.Time) {
	o.BillingStatus = BillingSuspended
	o.UpdatedAt = now
}

// Reactivate restores processing.
func (o *Organization) Reactivate(now time.Time) {
	o.BillingStatus = BillingActive
	o.UpdatedAt = now
}

// NewOrganization validates and constructs an organization with tier
// defaults applied.
func NewOrganization(name, inboundAddress, subdomain string, tier Tier, now time.Time) (*Organization, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization name must be 128 characters or less")
	}
	if inboundAddress == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "inbound address cannot be empty")
	}
	if tier == "" {
		tier = TierStarter
	}
	if !tier.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown subscription tier %q", tier)
	}
	return &Organization{
		ID:               id.NewOrgID(),
		Name:             name,
		InboundAddress:   inboundAddress,
		Subdomain:        subdomain,
		Tier:             tier,
		BillingStatus:    BillingActive,
		MonthlyBudgetUSD: tier.DefaultBudgetUSD(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
