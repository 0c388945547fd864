// Package queue adapts the durable message queue (Kafka) to the pipeline.
//
// Delivery is at-least-once: offsets are committed only after a message
// reaches a terminal outcome. Releasing a message for retry re-produces it
// with an incremented redelivery header; past the redelivery bound it moves
// to the quarantine topic instead.
package queue

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	dErrors "mailroom/pkg/domain-errors"
)

const (
	// HeaderRedeliveries counts how many times a notice has been released
	// back to the inbound topic.
	HeaderRedeliveries = "mailroom-redeliveries"
	// HeaderErrorKind carries the last error code on quarantined notices.
	HeaderErrorKind = "mailroom-error-kind"
)

// Notice is the wire form of one inbound delivery: a pointer to the raw
// message in the object store plus routing facts.
type Notice struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	RawKey    string `json:"raw_key"`
}

// Delivery is one consumed notice plus its queue-level metadata.
type Delivery struct {
	Notice Notice

	// ID is unique per delivery attempt (partition/offset), unlike the
	// message id which survives redelivery.
	ID string

	// Redeliveries is how many times this notice has been released before.
	Redeliveries int

	record *kgo.Record
}

func deliveryFrom(record *kgo.Record) (*Delivery, error) {
	var notice Notice
	if err := json.Unmarshal(record.Value, &notice); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformedInput, "undecodable queue notice")
	}
	return &Delivery{
		Notice:       notice,
		ID:           fmt.Sprintf("%s/%d/%d", record.Topic, record.Partition, record.Offset),
		Redeliveries: redeliveriesOf(record),
		record:       record,
	}, nil
}

func redeliveriesOf(record *kgo.Record) int {
	for _, h := range record.Headers {
		if h.Key == HeaderRedeliveries {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
				return n
			}
			return 0
		}
	}
	return 0
}

func noticeRecord(topic string, notice Notice, redeliveries int) (*kgo.Record, error) {
	value, err := json.Marshal(notice)
	if err != nil {
		return nil, fmt.Errorf("encode notice: %w", err)
	}
	record := &kgo.Record{
		// Key by message id so redeliveries stay on one partition and
		// per-message ordering holds.
		Key:   []byte(notice.MessageID),
		Topic: topic,
		Value: value,
	}
	if redeliveries > 0 {
		record.Headers = append(record.Headers, kgo.RecordHeader{
			Key:   HeaderRedeliveries,
			Value: []byte(strconv.Itoa(redeliveries)),
		})
	}
	return record, nil
}

// Outcome is what the consumer does with a handled delivery.
type Outcome int

const (
	// OutcomeAck commits the delivery; the message reached a terminal state.
	OutcomeAck Outcome = iota
	// OutcomeRelease re-produces the notice for a later retry.
	OutcomeRelease
	// OutcomeQuarantine moves the notice to the quarantine topic.
	OutcomeQuarantine
)

// Disposition decides the outcome for a handler error. Permanent failures
// quarantine immediately; transient ones release until the redelivery bound
// is spent, then quarantine.
func Disposition(err error, redeliveries, maxRedeliveries int) Outcome {
	if err == nil {
		return OutcomeAck
	}
	if dErrors.Permanent(err) {
		return OutcomeQuarantine
	}
	if redeliveries >= maxRedeliveries {
		return OutcomeQuarantine
	}
	return OutcomeRelease
}
