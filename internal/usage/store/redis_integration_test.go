//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mailroom/internal/usage/models"
	"mailroom/internal/usage/store"
	id "mailroom/pkg/domain"
	"mailroom/pkg/testutil/containers"
)

type RedisUsageSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisUsageSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisUsageSuite))
}

func (s *RedisUsageSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedisStore(s.redis.Client)
}

func (s *RedisUsageSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func record(orgID id.OrgID, at time.Time, model string, prompt, completion int) *models.Record {
	return &models.Record{
		OrgID:            orgID,
		Day:              models.DayBucket(at),
		Model:            model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		CostUSD:          models.Cost(model, prompt, completion),
		RecordedAt:       at,
	}
}

func (s *RedisUsageSuite) TestAddAccumulates() {
	ctx := context.Background()
	orgID := id.NewOrgID()
	now := time.Now().UTC()

	s.Require().NoError(s.store.Add(ctx, record(orgID, now, "gpt-4o-mini", 100, 40)))
	s.Require().NoError(s.store.Add(ctx, record(orgID, now, "gpt-4o-mini", 50, 10)))
	s.Require().NoError(s.store.Add(ctx, record(orgID, now, "gpt-4o", 20, 5)))

	summary, err := s.store.Summary(ctx, orgID, 1, now)
	s.Require().NoError(err)
	s.Equal(170, summary.PromptTokens)
	s.Equal(55, summary.CompletionTokens)
	s.Require().Len(summary.ByModel, 2)
	s.Equal("gpt-4o", summary.ByModel[0].Model)
	s.Equal("gpt-4o-mini", summary.ByModel[1].Model)
	s.Equal(150, summary.ByModel[1].PromptTokens)
}

func (s *RedisUsageSuite) TestSummaryWindowExcludesOlderDays() {
	ctx := context.Background()
	orgID := id.NewOrgID()
	now := time.Now().UTC()

	s.Require().NoError(s.store.Add(ctx, record(orgID, now, "gpt-4o-mini", 100, 40)))
	s.Require().NoError(s.store.Add(ctx, record(orgID, now.AddDate(0, 0, -10), "gpt-4o-mini", 999, 999)))

	summary, err := s.store.Summary(ctx, orgID, 7, now)
	s.Require().NoError(err)
	s.Equal(100, summary.PromptTokens)
}

func (s *RedisUsageSuite) TestMonthSpend() {
	ctx := context.Background()
	orgID := id.NewOrgID()
	now := time.Now().UTC()

	s.Run("empty month reads zero", func() {
		spend, err := s.store.MonthSpend(ctx, orgID, models.MonthBucket(now))
		s.Require().NoError(err)
		s.Zero(spend)
	})

	s.Run("spend accumulates", func() {
		s.Require().NoError(s.store.Add(ctx, record(orgID, now, "gpt-4o", 1_000_000, 0)))
		s.Require().NoError(s.store.Add(ctx, record(orgID, now, "gpt-4o", 1_000_000, 0)))

		spend, err := s.store.MonthSpend(ctx, orgID, models.MonthBucket(now))
		s.Require().NoError(err)
		s.InDelta(5.0, spend, 0.001)
	})
}

func (s *RedisUsageSuite) TestBucketsCarryExpiry() {
	ctx := context.Background()
	orgID := id.NewOrgID()
	now := time.Now().UTC()
	s.Require().NoError(s.store.Add(ctx, record(orgID, now, "gpt-4o-mini", 1, 1)))

	dayTTL := s.redis.Client.TTL(ctx, "usage:"+orgID.String()+":"+models.DayBucket(now)).Val()
	s.Greater(dayTTL, time.Duration(0))
	s.LessOrEqual(dayTTL, time.Duration(models.RetentionDays)*24*time.Hour)

	monthTTL := s.redis.Client.TTL(ctx, "spend:"+orgID.String()+":"+models.MonthBucket(now)).Val()
	s.Greater(monthTTL, time.Duration(0))
}

func (s *RedisUsageSuite) TestOrgIsolation() {
	ctx := context.Background()
	now := time.Now().UTC()
	a, b := id.NewOrgID(), id.NewOrgID()

	s.Require().NoError(s.store.Add(ctx, record(a, now, "gpt-4o-mini", 100, 0)))

	summary, err := s.store.Summary(ctx, b, 7, now)
	s.Require().NoError(err)
	s.Zero(summary.PromptTokens)
}
