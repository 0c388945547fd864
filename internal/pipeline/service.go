// Package pipeline runs the linear per-message flow: decode, tenant-resolve,
// extract, project-resolve, ledger-append, meter, reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mailroom/internal/blob"
	"mailroom/internal/envelope"
	"mailroom/internal/extraction"
	ledgermodels "mailroom/internal/ledger/models"
	ledgerservice "mailroom/internal/ledger/service"
	"mailroom/internal/pipeline/metrics"
	projectmodels "mailroom/internal/project/models"
	projectservice "mailroom/internal/project/service"
	"mailroom/internal/queue"
	"mailroom/internal/reply"
	tenantmodels "mailroom/internal/tenant/models"
	tenantservice "mailroom/internal/tenant/service"
	usageservice "mailroom/internal/usage/service"
	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	"mailroom/pkg/platform/sentinel"
	"mailroom/pkg/requestcontext"
)

// Deps carries everything one worker needs. Workers are stateless; all
// state lives behind these handles.
type Deps struct {
	Blobs      blob.Store
	Tenants    *tenantservice.Service
	Extractor  *extraction.Orchestrator
	Projects   *projectservice.Resolver
	Ledger     *ledgerservice.Writer
	Usage      *usageservice.Service
	Dispatcher reply.Dispatcher

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer

	// ReplyFrom is the address acknowledgments are sent from.
	ReplyFrom string
	// MaxAttachmentBytes bounds what gets copied into the object store.
	MaxAttachmentBytes int64
}

// Service processes one delivery end to end.
type Service struct {
	deps Deps
}

func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("mailroom/pipeline")
	}
	return &Service{deps: deps}
}

// Handler adapts the service to the queue consumer, pinning per-delivery
// context values so every record written for one message shares a clock
// reading.
func (s *Service) Handler() queue.Handler {
	return func(ctx context.Context, delivery *queue.Delivery) error {
		ctx = requestcontext.WithDeliveryID(ctx, delivery.ID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		return s.ProcessMessage(ctx, delivery)
	}
}

// ProcessMessage runs the stages for one delivery. A nil return means the
// message reached a terminal, recorded state; errors are classified for the
// consumer's disposition policy.
func (s *Service) ProcessMessage(ctx context.Context, delivery *queue.Delivery) (err error) {
	logger := s.deps.Logger.With(
		"delivery_id", delivery.ID,
		"message_id", delivery.Notice.MessageID,
	)

	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "message processing failed",
				"code", dErrors.CodeOf(err),
				"error", err,
			)
		}
	}()

	// Decode.
	var env *envelope.Envelope
	err = s.stage(ctx, "decode", func(ctx context.Context) error {
		raw, gerr := s.deps.Blobs.Get(ctx, delivery.Notice.RawKey)
		if errors.Is(gerr, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeMalformedInput, "raw message %s missing from object store", delivery.Notice.RawKey)
		}
		if gerr != nil {
			return dErrors.Wrap(gerr, dErrors.CodeTransient, "object store read failed")
		}
		env, gerr = envelope.Decode(raw, envelope.Metadata{
			DeliveryID: delivery.Notice.MessageID,
			Recipient:  delivery.Notice.Recipient,
			RawKey:     delivery.Notice.RawKey,
		})
		return gerr
	})
	if err != nil {
		return err
	}

	// Tenant resolve.
	var org *tenantmodels.Organization
	err = s.stage(ctx, "tenant", func(ctx context.Context) error {
		var rerr error
		org, rerr = s.deps.Tenants.Resolve(ctx, env.Recipient)
		return rerr
	})
	if err != nil {
		return err
	}
	logger = logger.With("org_id", org.ID)

	// Redelivery of a recorded message stops here: no model tokens, no
	// second event, no second acknowledgment.
	if existing, lerr := s.deps.Ledger.Lookup(ctx, org.ID, env.MessageID); lerr != nil {
		return lerr
	} else if existing != nil {
		logger.InfoContext(ctx, "message already recorded, acking redelivery",
			"event_id", existing.ID,
		)
		s.observe("duplicate")
		return nil
	}

	if err := s.storeAttachments(ctx, org.ID, env, logger); err != nil {
		return err
	}

	// Auto-replies are recorded and dropped: no extraction, no ack (an ack
	// to an auto-responder would loop forever).
	if env.AutoReply {
		return s.recordWithoutExtraction(ctx, logger, org, env, ledgermodels.KindAutoReply, "auto-generated message", "auto_reply")
	}

	// Budget gate: the organization that crossed its ceiling gets degraded
	// events until the month rolls over.
	if qerr := s.deps.Usage.CheckBudget(ctx, org); qerr != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.QuotaRejections.Inc()
		}
		return s.recordWithoutExtraction(ctx, logger, org, env, ledgermodels.KindQuotaExceeded, qerr.Error(), "quota_exceeded")
	}

	// Extract.
	var result *extraction.Result
	err = s.stage(ctx, "extract", func(ctx context.Context) error {
		var xerr error
		result, xerr = s.deps.Extractor.Extract(ctx, extraction.Request{
			Subject: env.Subject,
			Sender:  env.Sender,
			Body:    env.Body,
		})
		return xerr
	})
	if err != nil {
		return err
	}
	s.deps.Usage.Meter(ctx, org.ID, result.Usage)

	// Project resolve.
	var project *projectmodels.Project
	err = s.stage(ctx, "project", func(ctx context.Context) error {
		var name string
		if result.Payload != nil {
			name = result.Payload.ProjectName
		}
		var perr error
		project, _, perr = s.deps.Projects.Resolve(ctx, org.ID, env.ProjectTag, name, env.Sender)
		return perr
	})
	if err != nil {
		return err
	}

	// Ledger append.
	var (
		event   *ledgermodels.Event
		applied bool
	)
	err = s.stage(ctx, "ledger", func(ctx context.Context) error {
		facts, draft := s.buildRecord(env, result)
		var lerr error
		event, applied, lerr = s.deps.Ledger.Record(ctx, org.ID, project.ID, facts, draft)
		return lerr
	})
	if err != nil {
		return err
	}
	if !applied {
		logger.InfoContext(ctx, "redelivery of recorded message, skipping acknowledgment",
			"event_id", event.ID,
		)
		s.observe("duplicate")
		return nil
	}

	// Reply. Best effort: the event is already committed, so a dispatch
	// failure must not trigger redelivery.
	_ = s.stage(ctx, "reply", func(ctx context.Context) error {
		msg := reply.Compose(env, project, result, s.deps.ReplyFrom)
		if derr := s.deps.Dispatcher.Send(ctx, msg); derr != nil {
			logger.ErrorContext(ctx, "acknowledgment dispatch failed", "error", derr)
		}
		return nil
	})

	outcome := "processed"
	if result.Status == extraction.StatusDegraded {
		outcome = "degraded"
	}
	s.observe(outcome)
	logger.InfoContext(ctx, "message processed",
		"project_id", project.ID,
		"event_id", event.ID,
		"seq", event.Seq,
		"outcome", outcome,
	)
	return nil
}

// recordWithoutExtraction appends a payload-free event for messages the
// pipeline deliberately does not extract.
func (s *Service) recordWithoutExtraction(ctx context.Context, logger *slog.Logger, org *tenantmodels.Organization, env *envelope.Envelope, kind ledgermodels.Kind, reason, outcome string) error {
	var project *projectmodels.Project
	err := s.stage(ctx, "project", func(ctx context.Context) error {
		var perr error
		project, _, perr = s.deps.Projects.Resolve(ctx, org.ID, env.ProjectTag, "", env.Sender)
		return perr
	})
	if err != nil {
		return err
	}

	err = s.stage(ctx, "ledger", func(ctx context.Context) error {
		draft := ledgermodels.Draft{
			MessageID:      env.MessageID,
			Kind:           kind,
			Sender:         env.Sender,
			Subject:        env.Subject,
			Summary:        env.Subject,
			DegradedReason: reason,
		}
		facts := projectmodels.MessageFacts{Sender: env.Sender, Summary: env.Subject}
		_, _, lerr := s.deps.Ledger.Record(ctx, org.ID, project.ID, facts, draft)
		return lerr
	})
	if err != nil {
		return err
	}

	s.observe(outcome)
	logger.InfoContext(ctx, "message recorded without extraction",
		"project_id", project.ID,
		"kind", kind,
	)
	return nil
}

func (s *Service) buildRecord(env *envelope.Envelope, result *extraction.Result) (projectmodels.MessageFacts, ledgermodels.Draft) {
	facts := projectmodels.MessageFacts{
		Sender:  env.Sender,
		Summary: env.Subject,
	}
	draft := ledgermodels.Draft{
		MessageID: env.MessageID,
		Sender:    env.Sender,
		Subject:   env.Subject,
		Summary:   env.Subject,
	}

	if result.Status == extraction.StatusExtracted && result.Payload != nil {
		p := result.Payload
		facts.ProjectName = p.ProjectName
		facts.ProjectAddress = p.ProjectAddress
		facts.People = p.PeopleMentioned
		if len(p.KeyPoints) > 0 {
			facts.Summary = p.KeyPoints[0]
			draft.Summary = p.KeyPoints[0]
		}
		draft.Kind = ledgermodels.KindEmailReceived
		draft.Payload = p
	} else {
		draft.Kind = ledgermodels.KindEmailDegraded
		draft.DegradedReason = result.DegradedReason
	}
	return facts, draft
}

// storeAttachments copies attachment bytes into the object store and fills
// each descriptor's BlobKey. Oversize attachments are skipped with a log
// line, not failed: the message text is still worth recording.
func (s *Service) storeAttachments(ctx context.Context, orgID id.OrgID, env *envelope.Envelope, logger *slog.Logger) error {
	return s.stage(ctx, "attachments", func(ctx context.Context) error {
		for i := range env.Attachments {
			att := &env.Attachments[i]
			if s.deps.MaxAttachmentBytes > 0 && att.Size > s.deps.MaxAttachmentBytes {
				logger.WarnContext(ctx, "skipping oversize attachment",
					"filename", att.Filename,
					"size", att.Size,
				)
				continue
			}
			key := fmt.Sprintf("attachments/%s/%s/%d-%s", orgID, env.MessageID, i, att.Filename)
			if err := s.deps.Blobs.Put(ctx, key, att.Content); err != nil {
				return dErrors.Wrap(err, dErrors.CodeTransient, "attachment store failed")
			}
			att.BlobKey = key
		}
		return nil
	})
}

func (s *Service) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := s.deps.Tracer.Start(ctx, "pipeline."+name)
	defer span.End()
	if s.deps.Metrics != nil {
		defer s.deps.Metrics.ObserveStage(name, start)
	}
	return fn(ctx)
}

func (s *Service) observe(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.IncrementProcessed(outcome)
	}
}
