//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mailroom/internal/extraction"
	"mailroom/internal/ledger/models"
	"mailroom/internal/ledger/store"
	id "mailroom/pkg/domain"
	"mailroom/pkg/platform/sentinel"
	"mailroom/pkg/testutil/containers"
)

type PostgresEventSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	orgID    id.OrgID
	project  id.ProjectID
}

func TestPostgresEventSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresEventSuite))
}

func (s *PostgresEventSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresEventSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "events"))
	s.orgID = id.NewOrgID()
	s.project = id.NewProjectID()
}

func (s *PostgresEventSuite) newEvent(messageID string, seq int64) *models.Event {
	return &models.Event{
		ID:         id.NewEventID(),
		OrgID:      s.orgID,
		ProjectID:  s.project,
		MessageID:  id.MessageID(messageID),
		Kind:       models.KindEmailReceived,
		Seq:        seq,
		Sender:     "alice@client.example.com",
		Subject:    "Update",
		Summary:    "permit approved",
		Payload:    &extraction.Payload{ProjectName: "Harborview Remodel", KeyPoints: []string{"permit approved"}},
		OccurredAt: time.Now().UTC(),
	}
}

func (s *PostgresEventSuite) TestInsertAndRoundTrip() {
	ctx := context.Background()
	event := s.newEvent("<msg-1@client>", 2)
	s.Require().NoError(s.store.Insert(ctx, event))

	found, err := s.store.FindByMessageID(ctx, s.orgID, event.MessageID)
	s.Require().NoError(err)
	s.Equal(event.ID, found.ID)
	s.Equal(event.Seq, found.Seq)
	s.Require().NotNil(found.Payload)
	s.Equal("Harborview Remodel", found.Payload.ProjectName)
	s.Equal([]string{"permit approved"}, found.Payload.KeyPoints)
}

func (s *PostgresEventSuite) TestDegradedEventHasNoPayload() {
	ctx := context.Background()
	event := s.newEvent("<msg-degraded@client>", 2)
	event.Kind = models.KindEmailDegraded
	event.Payload = nil
	event.DegradedReason = "ai endpoint unavailable"
	s.Require().NoError(s.store.Insert(ctx, event))

	found, err := s.store.FindByMessageID(ctx, s.orgID, event.MessageID)
	s.Require().NoError(err)
	s.Nil(found.Payload)
	s.Equal("ai endpoint unavailable", found.DegradedReason)
}

func (s *PostgresEventSuite) TestDuplicateMessagePerOrg() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, s.newEvent("<msg-1@client>", 2)))

	s.Run("same org rejects", func() {
		err := s.store.Insert(ctx, s.newEvent("<msg-1@client>", 3))
		s.ErrorIs(err, sentinel.ErrDuplicate)
	})

	s.Run("another org is unaffected", func() {
		other := s.newEvent("<msg-1@client>", 2)
		other.OrgID = id.NewOrgID()
		s.NoError(s.store.Insert(ctx, other))
	})
}

func (s *PostgresEventSuite) TestListByProjectNewestFirst() {
	ctx := context.Background()
	for seq := int64(2); seq <= 6; seq++ {
		s.Require().NoError(s.store.Insert(ctx, s.newEvent("<msg-"+string(rune('0'+seq))+"@client>", seq)))
	}

	events, err := s.store.ListByProject(ctx, s.orgID, s.project, 3)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(int64(6), events[0].Seq)
	s.Equal(int64(5), events[1].Seq)
	s.Equal(int64(4), events[2].Seq)
}
