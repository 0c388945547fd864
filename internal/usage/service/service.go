// Package service meters AI usage and enforces the monthly budget ceiling.
package service

import (
	"context"
	"log/slog"

	"mailroom/internal/extraction"
	tenantmodels "mailroom/internal/tenant/models"
	"mailroom/internal/usage/models"
	"mailroom/internal/usage/store"
	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	"mailroom/pkg/requestcontext"
)

// Service records extraction usage after the fact and gates extraction
// before it. Budget enforcement is check-then-extract: the message that
// crosses the ceiling is still recorded in full, the next one degrades.
type Service struct {
	store  store.UsageStore
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(usage store.UsageStore, opts ...Option) *Service {
	s := &Service{store: usage, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Meter prices and records one message's extraction usage. Metering
// failures are logged but never fail the message; usage is advisory,
// the ledger is authoritative.
func (s *Service) Meter(ctx context.Context, orgID id.OrgID, usage *extraction.Usage) {
	if usage == nil {
		return
	}
	now := requestcontext.Now(ctx)
	record := &models.Record{
		OrgID:            orgID,
		Day:              models.DayBucket(now),
		Model:            usage.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CostUSD:          models.Cost(usage.Model, usage.PromptTokens, usage.CompletionTokens),
		RecordedAt:       now,
	}
	if err := s.store.Add(ctx, record); err != nil {
		s.logger.ErrorContext(ctx, "usage metering failed",
			"org_id", orgID,
			"error", err,
		)
	}
}

// CheckBudget returns quota_exceeded when the organization's month-to-date
// spend has reached its ceiling. A zero budget means no ceiling. Lookup
// failures fail open with a log line: a metering outage must not stop mail.
func (s *Service) CheckBudget(ctx context.Context, org *tenantmodels.Organization) error {
	if org.MonthlyBudgetUSD <= 0 {
		return nil
	}
	month := models.MonthBucket(requestcontext.Now(ctx))
	spend, err := s.store.MonthSpend(ctx, org.ID, month)
	if err != nil {
		s.logger.ErrorContext(ctx, "budget check failed, allowing extraction",
			"org_id", org.ID,
			"error", err,
		)
		return nil
	}
	if spend >= org.MonthlyBudgetUSD {
		return dErrors.Newf(dErrors.CodeQuotaExceeded,
			"organization %s spent $%.2f of its $%.2f monthly AI budget", org.ID, spend, org.MonthlyBudgetUSD)
	}
	return nil
}

// Summary aggregates the trailing N-day usage window for the admin API.
func (s *Service) Summary(ctx context.Context, orgID id.OrgID, days int) (*models.Summary, error) {
	if days <= 0 || days > models.RetentionDays {
		days = 30
	}
	summary, err := s.store.Summary(ctx, orgID, days, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate usage")
	}
	return summary, nil
}
