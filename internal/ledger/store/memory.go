package store

import (
	"context"
	"sort"
	"sync"

	"mailroom/internal/ledger/models"
	id "mailroom/pkg/domain"
	"mailroom/pkg/platform/sentinel"
)

type messageKey struct {
	org     id.OrgID
	message id.MessageID
}

// InMemoryStore keeps events in process memory, for dev and tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	events    []*models.Event
	byMessage map[messageKey]*models.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byMessage: make(map[messageKey]*models.Event)}
}

func (s *InMemoryStore) Insert(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey{org: event.OrgID, message: event.MessageID}
	if _, exists := s.byMessage[key]; exists {
		return sentinel.ErrDuplicate
	}
	clone := *event
	s.events = append(s.events, &clone)
	s.byMessage[key] = &clone
	return nil
}

func (s *InMemoryStore) FindByMessageID(_ context.Context, orgID id.OrgID, messageID id.MessageID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.byMessage[messageKey{org: orgID, message: messageID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *event
	return &clone, nil
}

func (s *InMemoryStore) ListByProject(_ context.Context, orgID id.OrgID, projectID id.ProjectID, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Event
	for _, event := range s.events {
		if event.OrgID == orgID && event.ProjectID == projectID {
			clone := *event
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
