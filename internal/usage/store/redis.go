package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mailroom/internal/usage/models"
	id "mailroom/pkg/domain"
)

// RedisStore accumulates usage in Redis hashes, one per (org, day), with
// per-model fields. Day keys expire after models.RetentionDays; month spend
// keys live slightly longer than their budget window.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func dayKey(orgID id.OrgID, day string) string {
	return fmt.Sprintf("usage:%s:%s", orgID, day)
}

func monthKeyOf(orgID id.OrgID, month string) string {
	return fmt.Sprintf("spend:%s:%s", orgID, month)
}

func (s *RedisStore) Add(ctx context.Context, record *models.Record) error {
	key := dayKey(record.OrgID, record.Day)
	spendKey := monthKeyOf(record.OrgID, models.MonthBucket(record.RecordedAt))

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, record.Model+":prompt", int64(record.PromptTokens))
	pipe.HIncrBy(ctx, key, record.Model+":completion", int64(record.CompletionTokens))
	pipe.HIncrByFloat(ctx, key, record.Model+":cost", record.CostUSD)
	pipe.Expire(ctx, key, models.RetentionDays*24*time.Hour)
	pipe.IncrByFloat(ctx, spendKey, record.CostUSD)
	pipe.Expire(ctx, spendKey, 62*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("accumulate usage: %w", err)
	}
	return nil
}

func (s *RedisStore) Summary(ctx context.Context, orgID id.OrgID, days int, until time.Time) (*models.Summary, error) {
	summary := &models.Summary{OrgID: orgID, Days: days}
	byModel := make(map[string]*models.ModelUsage)

	for i := 0; i < days; i++ {
		day := models.DayBucket(until.AddDate(0, 0, -i))
		fields, err := s.client.HGetAll(ctx, dayKey(orgID, day)).Result()
		if err != nil {
			return nil, fmt.Errorf("read usage bucket %s: %w", day, err)
		}
		for field, raw := range fields {
			model, metric, ok := strings.Cut(field, ":")
			if !ok {
				continue
			}
			mu, found := byModel[model]
			if !found {
				mu = &models.ModelUsage{Model: model}
				byModel[model] = mu
			}
			switch metric {
			case "prompt":
				n, _ := strconv.Atoi(raw)
				mu.PromptTokens += n
				summary.PromptTokens += n
			case "completion":
				n, _ := strconv.Atoi(raw)
				mu.CompletionTokens += n
				summary.CompletionTokens += n
			case "cost":
				f, _ := strconv.ParseFloat(raw, 64)
				mu.CostUSD += f
				summary.CostUSD += f
			}
		}
	}

	for _, mu := range byModel {
		summary.ByModel = append(summary.ByModel, *mu)
	}
	sort.Slice(summary.ByModel, func(i, j int) bool { return summary.ByModel[i].Model < summary.ByModel[j].Model })
	return summary, nil
}

func (s *RedisStore) MonthSpend(ctx context.Context, orgID id.OrgID, month string) (float64, error) {
	raw, err := s.client.Get(ctx, monthKeyOf(orgID, month)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read month spend: %w", err)
	}
	spend, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse month spend: %w", err)
	}
	return spend, nil
}
