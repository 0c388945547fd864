package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	dErrors "mailroom/pkg/domain-errors"
)

// QueueSuite tests disposition policy and notice encoding, the parts of the
// adapter that decide message fate without a broker.
type QueueSuite struct {
	suite.Suite
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}

func (s *QueueSuite) TestDisposition() {
	transient := dErrors.New(dErrors.CodeTransient, "store unavailable")
	contention := dErrors.New(dErrors.CodeConcurrencyExhausted, "version conflicts")
	malformed := dErrors.New(dErrors.CodeMalformedInput, "unparseable message")
	unauthorized := dErrors.New(dErrors.CodeUnauthorizedTenant, "unknown recipient")

	s.Run("success acks", func() {
		s.Equal(OutcomeAck, Disposition(nil, 0, 3))
	})

	s.Run("transient releases until the bound", func() {
		s.Equal(OutcomeRelease, Disposition(transient, 0, 3))
		s.Equal(OutcomeRelease, Disposition(transient, 2, 3))
		s.Equal(OutcomeQuarantine, Disposition(transient, 3, 3))
	})

	s.Run("contention releases like transient", func() {
		s.Equal(OutcomeRelease, Disposition(contention, 1, 3))
	})

	s.Run("permanent failures quarantine immediately", func() {
		s.Equal(OutcomeQuarantine, Disposition(malformed, 0, 3))
		s.Equal(OutcomeQuarantine, Disposition(unauthorized, 0, 3))
	})

	s.Run("uncoded errors are treated as retryable", func() {
		s.Equal(OutcomeRelease, Disposition(errors.New("boom"), 0, 3))
	})
}

func (s *QueueSuite) TestNoticeRoundTrip() {
	notice := Notice{
		MessageID: "<m1@client.example>",
		Recipient: "acme+proj-1a2b@mail.example",
		RawKey:    "raw/2026/08/20/m1",
	}

	record, err := noticeRecord("mailroom.inbound", notice, 2)
	s.Require().NoError(err)
	s.Equal([]byte(notice.MessageID), record.Key)

	delivery, err := deliveryFrom(record)
	s.Require().NoError(err)
	s.Equal(notice, delivery.Notice)
	s.Equal(2, delivery.Redeliveries)
	s.NotEmpty(delivery.ID)
}

func (s *QueueSuite) TestFirstDeliveryHasNoRedeliveryHeader() {
	record, err := noticeRecord("mailroom.inbound", Notice{MessageID: "<m1@x>"}, 0)
	s.Require().NoError(err)
	s.Empty(record.Headers)

	delivery, err := deliveryFrom(record)
	s.Require().NoError(err)
	s.Zero(delivery.Redeliveries)
}

func (s *QueueSuite) TestSettledPrefixHoldsBackUnsettledPartitions() {
	rec := func(partition int32, offset int64) *kgo.Record {
		return &kgo.Record{Topic: "mailroom.inbound", Partition: partition, Offset: offset}
	}
	records := []*kgo.Record{rec(0, 5), rec(0, 6), rec(0, 7), rec(1, 3)}

	s.Run("everything settled commits everything", func() {
		got := settledPrefix(records, []bool{true, true, true, true})
		s.Equal(records, got)
	})

	s.Run("unsettled record blocks later offsets on its partition only", func() {
		got := settledPrefix(records, []bool{true, false, true, true})
		s.Equal([]*kgo.Record{records[0], records[3]}, got)
	})

	s.Run("unsettled head blocks its whole partition", func() {
		got := settledPrefix(records, []bool{false, true, true, true})
		s.Equal([]*kgo.Record{records[3]}, got)
	})

	s.Run("nothing settled commits nothing", func() {
		s.Empty(settledPrefix(records, []bool{false, false, false, false}))
	})
}

func (s *QueueSuite) TestUndecodableNoticeIsMalformed() {
	record, err := noticeRecord("mailroom.inbound", Notice{MessageID: "<m1@x>"}, 0)
	s.Require().NoError(err)
	record.Value = []byte("not json")

	_, err = deliveryFrom(record)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMalformedInput))
}
