// Package service implements the ledger writer, the single write path for
// project events.
package service

import (
	"context"
	"errors"
	"log/slog"

	"mailroom/internal/ledger/models"
	"mailroom/internal/ledger/store"
	"mailroom/internal/pipeline/metrics"
	projectmodels "mailroom/internal/project/models"
	projectstore "mailroom/internal/project/store"
	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	"mailroom/pkg/platform/sentinel"
	"mailroom/pkg/platform/tx"
	"mailroom/pkg/requestcontext"
)

// Writer appends exactly one event per (org, message) and applies the
// message's facts to its project in the same transaction. The event sequence
// number is the project version produced by that apply, so ledger order and
// aggregate state can never disagree.
type Writer struct {
	projects   projectstore.ProjectStore
	events     store.EventStore
	runner     tx.Runner
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxRetries int
}

type Option func(*Writer)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// WithMaxRetries bounds version-conflict retries before the writer gives up
// and asks for redelivery.
func WithMaxRetries(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxRetries = n
		}
	}
}

func NewWriter(projects projectstore.ProjectStore, events store.EventStore, runner tx.Runner, opts ...Option) *Writer {
	w := &Writer{
		projects:   projects,
		events:     events,
		runner:     runner,
		logger:     slog.Default(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record appends the draft for a message and merges its facts into the
// project. Redelivered messages return the previously recorded event with
// applied=false and cause no second project bump. Version conflicts retry
// against fresh state up to the bound, then fail with concurrency_exhausted
// so the queue redelivers.
func (w *Writer) Record(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, facts projectmodels.MessageFacts, draft models.Draft) (event *models.Event, applied bool, err error) {
	if err := draft.Validate(); err != nil {
		return nil, false, err
	}

	// Fast path: redelivery of an already recorded message.
	if existing, err := w.events.FindByMessageID(ctx, orgID, draft.MessageID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeTransient, "ledger lookup failed")
	}

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		project, err := w.projects.FindByID(ctx, orgID, projectID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, dErrors.Newf(dErrors.CodeInvariantViolation, "project %s vanished during append", projectID)
		}
		if err != nil {
			return nil, false, dErrors.Wrap(err, dErrors.CodeTransient, "project load failed")
		}

		project.Apply(facts, requestcontext.Now(ctx))
		event = &models.Event{
			ID:             id.NewEventID(),
			OrgID:          orgID,
			ProjectID:      project.ID,
			MessageID:      draft.MessageID,
			Kind:           draft.Kind,
			Seq:            project.Version,
			Sender:         draft.Sender,
			Subject:        draft.Subject,
			Summary:        draft.Summary,
			Payload:        draft.Payload,
			DegradedReason: draft.DegradedReason,
			OccurredAt:     requestcontext.Now(ctx),
		}

		// The version-conditioned update goes first: under the nop runner a
		// conflict must fail before anything else is written, since memory
		// stores have no rollback.
		err = w.runner.RunInTx(ctx, func(txCtx context.Context) error {
			if err := w.projects.Update(txCtx, project); err != nil {
				return err
			}
			return w.events.Insert(txCtx, event)
		})
		switch {
		case err == nil:
			return event, true, nil
		case errors.Is(err, sentinel.ErrDuplicate):
			// Lost the race to a concurrent delivery of the same message.
			existing, ferr := w.events.FindByMessageID(ctx, orgID, draft.MessageID)
			if ferr != nil {
				return nil, false, dErrors.Wrap(ferr, dErrors.CodeTransient, "ledger lookup failed")
			}
			return existing, false, nil
		case errors.Is(err, sentinel.ErrVersionConflict):
			if w.metrics != nil {
				w.metrics.VersionConflicts.Inc()
			}
			w.logger.InfoContext(ctx, "project version conflict, retrying append",
				"project_id", projectID,
				"attempt", attempt,
			)
			continue
		default:
			return nil, false, dErrors.Wrap(err, dErrors.CodeTransient, "ledger append failed")
		}
	}

	return nil, false, dErrors.Newf(dErrors.CodeConcurrencyExhausted,
		"gave up appending message %s to project %s after %d version conflicts",
		draft.MessageID, projectID, w.maxRetries)
}

// Lookup returns the event already recorded for a message, or nil. The
// pipeline checks it before extraction so a redelivered message never
// spends model tokens twice.
func (w *Writer) Lookup(ctx context.Context, orgID id.OrgID, messageID id.MessageID) (*models.Event, error) {
	event, err := w.events.FindByMessageID(ctx, orgID, messageID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransient, "ledger lookup failed")
	}
	return event, nil
}

// History returns up to limit events for a project, newest first.
func (w *Writer) History(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, limit int) ([]*models.Event, error) {
	events, err := w.events.ListByProject(ctx, orgID, projectID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return events, nil
}
