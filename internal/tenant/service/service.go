// Package service implements tenant resolution and organization lifecycle.
//
// Resolve is the sole enforcement point keeping unbound envelopes out of the
// system: every downstream write carries the OrgID it returns.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"mailroom/internal/tenant/models"
	"mailroom/internal/tenant/secrets"
	"mailroom/internal/tenant/store"
	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	pkgemail "mailroom/pkg/email"
	"mailroom/pkg/platform/sentinel"
	"mailroom/pkg/requestcontext"
)

// Service orchestrates tenant lookup and organization lifecycle.
type Service struct {
	orgs   store.OrganizationStore
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(orgs store.OrganizationStore, opts ...Option) *Service {
	s := &Service{orgs: orgs, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve maps a normalized recipient address to its organization.
// Matching is exact-address-first (tag stripped), then subdomain pattern;
// first match wins and there is no fallback tenant. A recipient nobody
// claims yields unauthorized_tenant, logged for security review.
func (s *Service) Resolve(ctx context.Context, recipient string) (*models.Organization, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorizedTenant, "empty recipient address")
	}

	org, err := s.orgs.FindByAddress(ctx, pkgemail.StripTag(recipient))
	if errors.Is(err, sentinel.ErrNotFound) {
		if sub := pkgemail.Subdomain(recipient); sub != "" {
			org, err = s.orgs.FindBySubdomain(ctx, sub)
		}
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "recipient matches no organization",
			"recipient", recipient,
			"delivery_id", requestcontext.DeliveryID(ctx),
		)
		return nil, dErrors.Newf(dErrors.CodeUnauthorizedTenant, "no organization claims %s", recipient)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "tenant directory lookup failed")
	}

	if !org.IsActive() {
		s.logger.WarnContext(ctx, "recipient organization is suspended",
			"recipient", recipient,
			"org_id", org.ID,
		)
		return nil, dErrors.Newf(dErrors.CodeUnauthorizedTenant, "organization %s is suspended", org.ID)
	}
	return org, nil
}

// OnboardResult carries the one-time plaintext admin key alongside the new
// organization.
type OnboardResult struct {
	Organization *models.Organization
	AdminKey     string
}

// Onboard creates an organization with tier defaults and issues its admin
// API key. The key is bcrypt-hashed at rest and returned in plaintext
// exactly once.
func (s *Service) Onboard(ctx context.Context, name, inboundAddress, subdomain string, tier models.Tier) (*OnboardResult, error) {
	org, err := models.NewOrganization(
		strings.TrimSpace(name),
		pkgemail.NormalizeAddress(inboundAddress),
		strings.ToLower(strings.TrimSpace(subdomain)),
		tier,
		requestcontext.Now(ctx),
	)
	if err != nil {
		return nil, err
	}

	key, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate admin key")
	}
	org.AdminKeyHash, err = secrets.Hash(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash admin key")
	}

	if err := s.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, dErrors.New(dErrors.CodeConflict, "inbound address already claimed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create organization")
	}

	s.logger.InfoContext(ctx, "organization onboarded",
		"org_id", org.ID,
		"inbound_address", org.InboundAddress,
		"tier", org.Tier,
	)
	return &OnboardResult{Organization: org, AdminKey: key}, nil
}

// Get returns an organization by id.
func (s *Service) Get(ctx context.Context, orgID id.OrgID) (*models.Organization, error) {
	org, err := s.orgs.FindByID(ctx, orgID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "organization %s not found", orgID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load organization")
	}
	return org, nil
}

// Suspend soft-disables processing for an organization.
func (s *Service) Suspend(ctx context.Context, orgID id.OrgID) (*models.Organization, error) {
	return s.setBilling(ctx, orgID, func(org *models.Organization) {
		org.Suspend(requestcontext.Now(ctx))
	})
}

// Reactivate restores processing for a suspended organization.
func (s *Service) Reactivate(ctx context.Context, orgID id.OrgID) (*models.Organization, error) {
	return s.setBilling(ctx, orgID, func(org *models.Organization) {
		org.Reactivate(requestcontext.Now(ctx))
	})
}

func (s *Service) setBilling(ctx context.Context, orgID id.OrgID, mutate func(*models.Organization)) (*models.Organization, error) {
	org, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	mutate(org)
	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update organization")
	}
	return org, nil
}

// VerifyAdminKey checks a presented admin key against the stored hash.
func (s *Service) VerifyAdminKey(ctx context.Context, orgID id.OrgID, key string) error {
	org, err := s.Get(ctx, orgID)
	if err != nil {
		return err
	}
	return secrets.Verify(key, org.AdminKeyHash)
}
