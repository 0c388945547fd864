package extraction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mailroom/internal/pipeline/metrics"
	"mailroom/pkg/platform/circuit"

	dErrors "mailroom/pkg/domain-errors"
)

// Orchestrator drives the extraction state machine for one message:
// sanitize, invoke the model with bounded retries, validate the output
// against the payload schema, and degrade when attempts are exhausted or
// the breaker is open.
type Orchestrator struct {
	client        Client
	breaker       *circuit.Breaker
	logger        *slog.Logger
	metrics       *metrics.Metrics
	maxAttempts   uint
	maxInputChars int
	initialWait   time.Duration
}

type OrchestratorOption func(*Orchestrator)

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithMaxAttempts bounds model invocations per message.
func WithMaxAttempts(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = uint(n)
		}
	}
}

// WithMaxInputChars bounds the body length sent to the model.
func WithMaxInputChars(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxInputChars = n }
}

// WithInitialBackoff sets the first retry delay. Tests shrink it.
func WithInitialBackoff(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.initialWait = d }
}

func WithBreaker(b *circuit.Breaker) OrchestratorOption {
	return func(o *Orchestrator) { o.breaker = b }
}

func NewOrchestrator(client Client, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		breaker:       circuit.New("extraction", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:        slog.Default(),
		maxAttempts:   3,
		maxInputChars: 100_000,
		initialWait:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Extract runs the full extraction attempt for one message. Degradation is a
// successful outcome carrying a reason; the error return is reserved for
// context cancellation, where the message should be released for redelivery.
func (o *Orchestrator) Extract(ctx context.Context, req Request) (*Result, error) {
	if o.breaker.IsOpen() {
		o.logger.WarnContext(ctx, "extraction suppressed, breaker open")
		return Degraded("ai endpoint unavailable", nil), nil
	}

	req.Body = Sanitize(ctx, o.logger, req.Body, o.maxInputChars)

	var (
		usage   *Usage
		attempt int
	)
	operation := func() (*Payload, error) {
		attempt++
		if attempt > 1 && o.metrics != nil {
			o.metrics.ExtractionRetries.Inc()
		}

		resp, err := o.client.Extract(ctx, req)
		if err != nil {
			return nil, err
		}
		usage = accumulate(usage, resp)

		payload, err := ParsePayload(resp.RawJSON)
		if err != nil {
			o.logger.WarnContext(ctx, "model output rejected by schema",
				"attempt", attempt,
				"error", err,
			)
			return nil, err
		}
		return payload, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.initialWait

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(o.maxAttempts),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTransient, "extraction interrupted")
		}

		if _, change := o.breaker.RecordFailure(); change.Opened {
			o.logger.ErrorContext(ctx, "extraction breaker opened", "error", err)
		}
		if o.metrics != nil {
			o.metrics.ExtractionDegraded.Inc()
		}
		o.logger.WarnContext(ctx, "extraction degraded",
			"attempts", attempt,
			"error", err,
		)
		return Degraded(degradeReason(err), usage), nil
	}

	if _, change := o.breaker.RecordSuccess(); change.Closed {
		o.logger.InfoContext(ctx, "extraction breaker closed")
	}
	return Extracted(payload, usage), nil
}

func accumulate(total *Usage, resp *Response) *Usage {
	if total == nil {
		total = &Usage{Model: resp.Model}
	}
	total.PromptTokens += resp.PromptTokens
	total.CompletionTokens += resp.CompletionTokens
	return total
}

func degradeReason(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeExtractionSchema:
		return "model output failed schema validation"
	case dErrors.CodeTransient:
		return "ai endpoint unavailable"
	default:
		return "extraction failed"
	}
}
