// Package store defines organization persistence. Implementations return
// sentinel errors; the service layer translates them into coded domain
// errors.
package store

import (
	"context"

	"mailroom/internal/tenant/models"
	id "mailroom/pkg/domain"
)

// OrganizationStore is the tenant directory. Read-mostly: lookups run on
// every message, writes only at onboarding and billing transitions.
type OrganizationStore interface {
	// Create inserts a new organization. Returns sentinel.ErrDuplicate when
	// the inbound address is already claimed.
	Create(ctx context.Context, org *models.Organization) error

	// FindByID returns sentinel.ErrNotFound when absent.
	FindByID(ctx context.Context, orgID id.OrgID) (*models.Organization, error)

	// FindByAddress matches the exact inbound address (tag-stripped,
	// normalized). Returns sentinel.ErrNotFound when no organization
	// claims it.
	FindByAddress(ctx context.Context, address string) (*models.Organization, error)

	// FindBySubdomain matches the subdomain/alias pattern claim.
	FindBySubdomain(ctx context.Context, subdomain string) (*models.Organization, error)

	// Update persists billing-status and budget mutations.
	Update(ctx context.Context, org *models.Organization) error
}
