// Package store defines project persistence. Implementations return sentinel
// errors; services translate them into coded domain errors.
package store

import (
	"context"

	"mailroom/internal/project/models"
	id "mailroom/pkg/domain"
)

// ProjectStore persists project aggregates. Every operation is org-scoped.
type ProjectStore interface {
	// Create inserts a project at version 1. Returns sentinel.ErrDuplicate
	// when the id already exists.
	Create(ctx context.Context, project *models.Project) error

	// FindByID returns sentinel.ErrNotFound when absent or owned by another
	// organization.
	FindByID(ctx context.Context, orgID id.OrgID, projectID id.ProjectID) (*models.Project, error)

	// FindByNameAndSender matches projects whose name equals name exactly
	// and whose participants include sender. Ambiguity resolves to the most
	// recently updated match. Returns sentinel.ErrNotFound when none match.
	FindByNameAndSender(ctx context.Context, orgID id.OrgID, name, sender string) (*models.Project, error)

	// Update persists a merged aggregate, conditioned on the version the
	// caller read: the write applies only when the stored version is
	// project.Version-1. Returns sentinel.ErrVersionConflict otherwise.
	// Honors a transaction carried in ctx.
	Update(ctx context.Context, project *models.Project) error

	// ListByOrg returns the organization's projects, most recently updated
	// first.
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*models.Project, error)
}
