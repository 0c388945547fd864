// Package store defines event ledger persistence. Implementations return
// sentinel errors; the writer translates them into coded domain errors.
package store

import (
	"context"

	"mailroom/internal/ledger/models"
	id "mailroom/pkg/domain"
)

// EventStore is append-only. Every operation is org-scoped.
type EventStore interface {
	// Insert appends an event. Returns sentinel.ErrDuplicate when an event
	// with the same (org, message id) already exists. Honors a transaction
	// carried in ctx so the append can bind to the project version bump.
	Insert(ctx context.Context, event *models.Event) error

	// FindByMessageID returns the event recorded for a source message, or
	// sentinel.ErrNotFound.
	FindByMessageID(ctx context.Context, orgID id.OrgID, messageID id.MessageID) (*models.Event, error)

	// ListByProject returns up to limit events for a project, newest first.
	ListByProject(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, limit int) ([]*models.Event, error)
}
