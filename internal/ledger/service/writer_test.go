package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mailroom/internal/extraction"
	"mailroom/internal/ledger/models"
	"mailroom/internal/ledger/store"
	projectmodels "mailroom/internal/project/models"
	projectstore "mailroom/internal/project/store"
	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	"mailroom/pkg/platform/sentinel"
	"mailroom/pkg/platform/tx"
)

// WriterSuite tests idempotent appends, sequence assignment, and the
// version-conflict retry bound.
type WriterSuite struct {
	suite.Suite
	ctx      context.Context
	orgID    id.OrgID
	projects *projectstore.InMemoryStore
	events   *store.InMemoryStore
	writer   *Writer
	project  *projectmodels.Project
}

func TestWriterSuite(t *testing.T) {
	suite.Run(t, new(WriterSuite))
}

func (s *WriterSuite) SetupTest() {
	s.ctx = context.Background()
	s.orgID = id.NewOrgID()
	s.projects = projectstore.NewInMemoryStore()
	s.events = store.NewInMemoryStore()
	s.writer = NewWriter(s.projects, s.events, tx.NewNopRunner())

	var err error
	s.project, err = projectmodels.New(s.orgID, "Riverside", "dana@client.example", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.projects.Create(s.ctx, s.project))
}

func (s *WriterSuite) draft(messageID string) models.Draft {
	return models.Draft{
		MessageID: id.MessageID(messageID),
		Kind:      models.KindEmailReceived,
		Sender:    "dana@client.example",
		Subject:   "Re: foundation pour",
		Summary:   "change order approved",
		Payload:   &extraction.Payload{Decisions: []extraction.Decision{{Decision: "change order approved"}}},
	}
}

func (s *WriterSuite) facts() projectmodels.MessageFacts {
	return projectmodels.MessageFacts{
		Sender:  "dana@client.example",
		Summary: "change order approved",
	}
}

// ===========================================================================
// Append semantics
// ===========================================================================

func (s *WriterSuite) TestFirstMessageOnNewProjectIsSeqOne() {
	event, applied, err := s.writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), s.draft("<m1@client.example>"))
	s.Require().NoError(err)
	s.True(applied)
	s.Equal(int64(1), event.Seq)

	merged, err := s.projects.FindByID(s.ctx, s.orgID, s.project.ID)
	s.Require().NoError(err)
	s.Equal(event.Seq, merged.Version)
}

func (s *WriterSuite) TestSequencesIncreasePerMessage() {
	first, _, err := s.writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), s.draft("<m1@client.example>"))
	s.Require().NoError(err)
	second, _, err := s.writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), s.draft("<m2@client.example>"))
	s.Require().NoError(err)

	s.Equal(first.Seq+1, second.Seq)
}

func (s *WriterSuite) TestRedeliveryReturnsExistingEventWithoutSecondBump() {
	first, applied, err := s.writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), s.draft("<m1@client.example>"))
	s.Require().NoError(err)
	s.True(applied)

	again, applied, err := s.writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), s.draft("<m1@client.example>"))
	s.Require().NoError(err)
	s.False(applied)
	s.Equal(first.ID, again.ID)
	s.Equal(first.Seq, again.Seq)

	project, err := s.projects.FindByID(s.ctx, s.orgID, s.project.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), project.Version, "redelivery must not bump the version")
}

func (s *WriterSuite) TestDraftValidation() {
	s.Run("missing message id", func() {
		draft := s.draft("<m1@client.example>")
		draft.MessageID = ""
		_, _, err := s.writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), draft)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("received without payload", func() {
		draft := s.draft("<m1@client.example>")
		draft.Payload = nil
		_, _, err := s.writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), draft)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("degraded without payload is fine", func() {
		draft := s.draft("<m1@client.example>")
		draft.Kind = models.KindEmailDegraded
		draft.Payload = nil
		draft.DegradedReason = "ai endpoint unavailable"
		_, applied, err := s.writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), draft)
		s.Require().NoError(err)
		s.True(applied)
	})
}

// ===========================================================================
// Concurrency
// ===========================================================================

// conflictingStore wedges the first n Update calls with a version conflict.
type conflictingStore struct {
	*projectstore.InMemoryStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictingStore) Update(ctx context.Context, p *projectmodels.Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conflicts > 0 {
		c.conflicts--
		return sentinel.ErrVersionConflict
	}
	return c.InMemoryStore.Update(ctx, p)
}

func (s *WriterSuite) TestVersionConflictRetriesThenSucceeds() {
	conflicted := &conflictingStore{InMemoryStore: s.projects, conflicts: 2}
	writer := NewWriter(conflicted, store.NewInMemoryStore(), tx.NewNopRunner(), WithMaxRetries(3))

	event, applied, err := writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), s.draft("<m1@client.example>"))
	s.Require().NoError(err)
	s.True(applied)
	s.NotNil(event)
}

func (s *WriterSuite) TestConflictExhaustionFailsForRedelivery() {
	conflicted := &conflictingStore{InMemoryStore: s.projects, conflicts: 10}
	writer := NewWriter(conflicted, store.NewInMemoryStore(), tx.NewNopRunner(), WithMaxRetries(3))

	_, _, err := writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), s.draft("<m1@client.example>"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConcurrencyExhausted))
}

func (s *WriterSuite) TestConcurrentDistinctMessagesAllLand() {
	writer := NewWriter(s.projects, s.events, tx.NewNopRunner(), WithMaxRetries(10))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			draft := s.draft("<m" + string(rune('a'+i)) + "@client.example>")
			_, _, errs[i] = writer.Record(s.ctx, s.orgID, s.project.ID, s.facts(), draft)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		s.NoError(err)
	}
	project, err := s.projects.FindByID(s.ctx, s.orgID, s.project.ID)
	s.Require().NoError(err)
	s.Equal(int64(5), project.Version)

	events, err := writer.History(s.ctx, s.orgID, s.project.ID, 10)
	s.Require().NoError(err)
	s.Len(events, 5)
	for i := 1; i < len(events); i++ {
		s.Greater(events[i-1].Seq, events[i].Seq)
	}
}
