// Package models defines the append-only project event ledger records.
package models

import (
	"time"

	"mailroom/internal/extraction"
	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
)

// Kind classifies what one ledger event records.
type Kind string

const (
	// KindEmailReceived is a fully processed message with extracted content.
	KindEmailReceived Kind = "email_received"
	// KindEmailDegraded is a message recorded without structured extraction.
	KindEmailDegraded Kind = "email_degraded"
	// KindAutoReply is an auto-responder message, recorded but never
	// extracted or acknowledged.
	KindAutoReply Kind = "auto_reply"
	// KindQuotaExceeded is a message whose extraction was suppressed by the
	// organization's budget ceiling.
	KindQuotaExceeded Kind = "quota_exceeded"
)

// Event is one immutable ledger entry.
//
// Invariants:
//   - (OrgID, MessageID) is unique; redelivered messages land on the
//     existing event
//   - Seq equals the project version produced by applying this message;
//     within a project, sequence numbers are strictly increasing in
//     commit order
//   - Events are never updated or deleted
type Event struct {
	ID        id.EventID   `json:"id"`
	OrgID     id.OrgID     `json:"org_id"`
	ProjectID id.ProjectID `json:"project_id"`
	MessageID id.MessageID `json:"message_id"`

	Kind Kind  `json:"kind"`
	Seq  int64 `json:"seq"`

	Sender  string `json:"sender"`
	Subject string `json:"subject,omitempty"`
	Summary string `json:"summary,omitempty"`

	// Payload is present on email_received events only.
	Payload *extraction.Payload `json:"payload,omitempty"`

	// DegradedReason is present on email_degraded and quota_exceeded events.
	DegradedReason string `json:"degraded_reason,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Draft is an event before the ledger writer assigns identity, sequence,
// and project binding.
type Draft struct {
	MessageID      id.MessageID
	Kind           Kind
	Sender         string
	Subject        string
	Summary        string
	Payload        *extraction.Payload
	DegradedReason string
}

// Validate checks draft shape before the writer spends a transaction on it.
func (d Draft) Validate() error {
	if d.MessageID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "event requires a message id")
	}
	switch d.Kind {
	case KindEmailReceived, KindEmailDegraded, KindAutoReply, KindQuotaExceeded:
	default:
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown event kind %q", d.Kind)
	}
	if d.Kind == KindEmailReceived && d.Payload == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "email_received event requires a payload")
	}
	return nil
}
