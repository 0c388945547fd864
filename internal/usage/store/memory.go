package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"mailroom/internal/usage/models"
	id "mailroom/pkg/domain"
)

type bucketKey struct {
	org   id.OrgID
	day   string
	model string
}

type bucket struct {
	promptTokens     int
	completionTokens int
	costUSD          float64
}

type monthKey struct {
	org   id.OrgID
	month string
}

// InMemoryStore accumulates usage in process memory, for dev and tests.
// It does not expire old buckets; retention is a deployment concern.
type InMemoryStore struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*bucket
	months  map[monthKey]float64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		buckets: make(map[bucketKey]*bucket),
		months:  make(map[monthKey]float64),
	}
}

func (s *InMemoryStore) Add(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey{org: record.OrgID, day: record.Day, model: record.Model}
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	b.promptTokens += record.PromptTokens
	b.completionTokens += record.CompletionTokens
	b.costUSD += record.CostUSD

	s.months[monthKey{org: record.OrgID, month: models.MonthBucket(record.RecordedAt)}] += record.CostUSD
	return nil
}

func (s *InMemoryStore) Summary(_ context.Context, orgID id.OrgID, days int, until time.Time) (*models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := make(map[string]bool, days)
	for i := 0; i < days; i++ {
		window[models.DayBucket(until.AddDate(0, 0, -i))] = true
	}

	summary := &models.Summary{OrgID: orgID, Days: days}
	byModel := make(map[string]*models.ModelUsage)
	for key, b := range s.buckets {
		if key.org != orgID || !window[key.day] {
			continue
		}
		summary.PromptTokens += b.promptTokens
		summary.CompletionTokens += b.completionTokens
		summary.CostUSD += b.costUSD

		mu, ok := byModel[key.model]
		if !ok {
			mu = &models.ModelUsage{Model: key.model}
			byModel[key.model] = mu
		}
		mu.PromptTokens += b.promptTokens
		mu.CompletionTokens += b.completionTokens
		mu.CostUSD += b.costUSD
	}

	for _, mu := range byModel {
		summary.ByModel = append(summary.ByModel, *mu)
	}
	sort.Slice(summary.ByModel, func(i, j int) bool { return summary.ByModel[i].Model < summary.ByModel[j].Model })
	return summary, nil
}

func (s *InMemoryStore) MonthSpend(_ context.Context, orgID id.OrgID, month string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.months[monthKey{org: orgID, month: month}], nil
}
