package envelope

import (
	"io"

	id "mailroom/pkg/domain"
)

// Envelope is the canonical, decoded representation of one inbound email.
// It is a pure value: decoding has no side effects, and downstream stages
// never touch the raw bytes again except through RawKey.
type Envelope struct {
	// MessageID is the source message identifier, the idempotency key for
	// every downstream write. Falls back to the delivery id when the
	// message carries no Message-ID header.
	MessageID id.MessageID

	// Sender and Recipient are normalized (bare address, lowercased).
	Sender    string
	Recipient string

	// SenderDisplay keeps the original From header for client-name hints.
	SenderDisplay string

	Subject string

	// Body is plain text, derived from text/html when no text/plain part
	// exists. An empty body is not an error.
	Body string

	// ProjectTag is the plus-address tag on the recipient, if any
	// ("acme+PROJ-1A2B@..." -> "PROJ-1A2B").
	ProjectTag string

	// InReplyTo threads acknowledgment replies back onto the original
	// conversation.
	InReplyTo string

	// AutoReply flags out-of-office and other auto-generated messages so
	// the pipeline records a lightweight event without invoking extraction.
	AutoReply bool

	// RawKey addresses the stored raw message in the object store.
	RawKey string

	Attachments []Attachment
}

// Attachment describes one attachment part. Content is a lazy reader over
// the already-buffered message; bytes are only materialized when the
// pipeline copies them into the object store.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64

	// BlobKey is filled by the pipeline after the bytes are persisted.
	BlobKey string

	Content io.Reader `json:"-"`
}
