// Package store defines usage accumulation. Implementations return sentinel
// errors; the service translates them into coded domain errors.
package store

import (
	"context"
	"time"

	"mailroom/internal/usage/models"
	id "mailroom/pkg/domain"
)

// UsageStore accumulates AI usage by (org, day, model) and tracks monthly
// spend against the budget ceiling. Day buckets expire after
// models.RetentionDays.
type UsageStore interface {
	// Add folds one record into its day bucket and its month's spend.
	Add(ctx context.Context, record *models.Record) error

	// Summary aggregates the trailing `days` day buckets ending at `until`.
	Summary(ctx context.Context, orgID id.OrgID, days int, until time.Time) (*models.Summary, error)

	// MonthSpend returns accumulated cost for a month bucket. Months with no
	// usage return zero, not an error.
	MonthSpend(ctx context.Context, orgID id.OrgID, month string) (float64, error)
}
